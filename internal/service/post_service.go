package service

import (
	"context"
	"strings"
	"time"

	"vibefeed/internal/cache"
	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/observability"
	"vibefeed/internal/repository"
	"vibefeed/internal/validation"

	"github.com/redis/go-redis/v9"
)

// Trending page bounds.
const (
	DefaultTrendingLimit = 20
	MaxTrendingLimit     = 100
)

// PostService creates posts and serves scored reads.
type PostService struct {
	postRepo  repository.PostRepository
	rdb       *redis.Client
	publisher EventPublisher
	window    time.Duration
	now       func() time.Time
}

type CreatePostInput struct {
	AuthorID         uint
	Content          string `json:"content" validate:"required,max=5000"`
	MediaURL         string `json:"media_url" validate:"omitempty,url,max=2048"`
	CommentsDisabled bool
}

// NewPostService returns a new PostService. rdb and publisher may be nil.
func NewPostService(postRepo repository.PostRepository, rdb *redis.Client, publisher EventPublisher, window time.Duration) *PostService {
	return &PostService{
		postRepo:  postRepo,
		rdb:       rdb,
		publisher: publisherOrNop(publisher),
		window:    window,
		now:       time.Now,
	}
}

// CreatePost persists a post and announces it on the global feed.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.AuthorID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	in.Content = strings.TrimSpace(in.Content)
	in.MediaURL = strings.TrimSpace(in.MediaURL)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	post := &models.Post{
		AuthorID:         in.AuthorID,
		Content:          in.Content,
		MediaURL:         in.MediaURL,
		CommentsDisabled: in.CommentsDisabled,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, notifications.GlobalRoom, notifications.Event{
		Type:    notifications.EventNewPost,
		Payload: notifications.NewPost{Post: post},
	})
	return post, nil
}

// GetPost returns the post with its trend score recomputed for now. A
// changed score is written back.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	score := PostScore(post, s.now())
	if score != post.TrendScore {
		post.TrendScore = score
		if err := s.postRepo.UpdateTrendScore(ctx, id, score); err != nil {
			observability.LogAsyncError(ctx, "trend_score_on_read", err, "post_id", id)
		} else {
			observability.TrendRecomputes.WithLabelValues("read").Inc()
		}
	}
	return post, nil
}

// Trending returns posts from the trending window ordered by stored score.
// Pages are cached in Redis briefly.
func (s *PostService) Trending(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	if limit > MaxTrendingLimit {
		limit = MaxTrendingLimit
	}
	if offset < 0 {
		offset = 0
	}

	posts := []*models.Post{}
	err := cache.CacheAside(ctx, s.rdb, cache.TrendingKey(limit, offset), &posts, cache.TrendingTTL, func() error {
		found, err := s.postRepo.ListTrending(ctx, s.now().Add(-s.window), limit, offset)
		if err != nil {
			return err
		}
		posts = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}
