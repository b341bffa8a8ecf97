package service

import (
	"context"
	"math"
	"sync"
	"time"

	"vibefeed/internal/cache"
	"vibefeed/internal/models"
	"vibefeed/internal/observability"
	"vibefeed/internal/repository"

	"github.com/redis/go-redis/v9"
)

// Score is the decaying popularity of a post:
//
//	rate  = (likes + 2*comments + 3*shares) / max(views, 1)
//	score = rate*100 / sqrt(ageHours + 1)
func Score(likes, comments, shares, views int, ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	rate := float64(likes+2*comments+3*shares) / float64(max(views, 1))
	return rate * 100 / math.Sqrt(ageHours+1)
}

// PostScore scores p at now from its stored counters.
func PostScore(p *models.Post, now time.Time) float64 {
	return Score(p.LikesCount, p.CommentsCount, p.SharesCount, p.ViewsCount, p.AgeHours(now))
}

const (
	trendQueueSize = 1000
	trendBatchSize = 50
	trendFlushTick = 500 * time.Millisecond
)

// TrendWorker recomputes stored trend scores. Engagement mutations schedule a
// post through Schedule; a periodic sweep rescores every post inside the
// trending window so age decay is reflected without new engagement.
type TrendWorker struct {
	postRepo      repository.PostRepository
	rdb           *redis.Client
	sweepInterval time.Duration
	window        time.Duration
	now           func() time.Time

	queue   chan uint
	mu      sync.Mutex
	pending map[uint]bool
}

// NewTrendWorker returns a worker. rdb may be nil; when set, cached trending
// pages are invalidated after each batch.
func NewTrendWorker(postRepo repository.PostRepository, rdb *redis.Client, sweepInterval, window time.Duration) *TrendWorker {
	return &TrendWorker{
		postRepo:      postRepo,
		rdb:           rdb,
		sweepInterval: sweepInterval,
		window:        window,
		now:           time.Now,
		queue:         make(chan uint, trendQueueSize),
		pending:       make(map[uint]bool),
	}
}

func (w *TrendWorker) String() string { return "trend worker" }

// Schedule queues postID for recomputation. Already-queued ids are skipped
// and a full queue drops the request; the next sweep catches it.
func (w *TrendWorker) Schedule(postID uint) {
	if postID == 0 {
		return
	}
	w.mu.Lock()
	if w.pending[postID] {
		w.mu.Unlock()
		return
	}
	w.pending[postID] = true
	w.mu.Unlock()

	select {
	case w.queue <- postID:
	default:
		w.mu.Lock()
		delete(w.pending, postID)
		w.mu.Unlock()
		observability.GlobalLogger.Warn("trend queue full, dropping recompute", "post_id", postID)
	}
}

// Serve drains the queue in batches and sweeps on an interval until ctx is
// cancelled.
func (w *TrendWorker) Serve(ctx context.Context) error {
	batch := make([]uint, 0, trendBatchSize)
	flush := time.NewTicker(trendFlushTick)
	defer flush.Stop()

	var sweepC <-chan time.Time
	if w.sweepInterval > 0 {
		sweep := time.NewTicker(w.sweepInterval)
		defer sweep.Stop()
		sweepC = sweep.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-w.queue:
			batch = append(batch, id)
			if len(batch) >= trendBatchSize {
				w.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-flush.C:
			if len(batch) > 0 {
				w.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-sweepC:
			if _, err := w.Sweep(ctx); err != nil {
				observability.LogAsyncError(ctx, "trend_sweep", err)
			}
		}
	}
}

func (w *TrendWorker) processBatch(ctx context.Context, ids []uint) {
	for _, id := range ids {
		if _, err := w.RecomputePost(ctx, id, "engagement"); err != nil && !models.IsNotFound(err) {
			observability.LogAsyncError(ctx, "trend_recompute", err, "post_id", id)
		}
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
	}
	w.invalidateTrending(ctx)
}

// RecomputePost reads the post, scores it and stores the score.
func (w *TrendWorker) RecomputePost(ctx context.Context, postID uint, trigger string) (float64, error) {
	post, err := w.postRepo.GetByID(ctx, postID)
	if err != nil {
		return 0, err
	}
	score := PostScore(post, w.now())
	if err := w.postRepo.UpdateTrendScore(ctx, postID, score); err != nil {
		return 0, err
	}
	observability.TrendRecomputes.WithLabelValues(trigger).Inc()
	return score, nil
}

// Sweep rescores every post created inside the window and returns how many
// were updated.
func (w *TrendWorker) Sweep(ctx context.Context) (int, error) {
	ids, err := w.postRepo.ListIDsSince(ctx, w.now().Add(-w.window))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := w.RecomputePost(ctx, id, "sweep"); err != nil {
			if models.IsNotFound(err) {
				continue
			}
			return n, err
		}
		n++
	}
	w.invalidateTrending(ctx)
	return n, nil
}

func (w *TrendWorker) invalidateTrending(ctx context.Context) {
	if w.rdb == nil {
		return
	}
	keys, err := w.rdb.Keys(ctx, cache.TrendingPattern).Result()
	if err != nil {
		return
	}
	cache.Invalidate(ctx, w.rdb, keys...)
}
