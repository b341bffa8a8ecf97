// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"

	"gorm.io/gorm"
)

// PostRepository is the post half of the Engagement Store.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	// UpdateEngagement persists the post's like, comment and share sets and
	// their counters, guarded by post.Version. On success post.Version is
	// advanced; a concurrent writer yields ErrStaleVersion.
	UpdateEngagement(ctx context.Context, post *models.Post) error
	IncrementViews(ctx context.Context, id uint) (int, error)
	UpdateTrendScore(ctx context.Context, id uint, score float64) error
	ListTrending(ctx context.Context, since time.Time, limit, offset int) ([]*models.Post, error)
	ListIDsSince(ctx context.Context, since time.Time) ([]uint, error)
}

type postRepository struct {
	db  *gorm.DB
	log *observability.StoreLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, log: observability.NewStoreLogger("posts")}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	post.Version = 1
	post.LikesCount = len(post.Likes)
	post.CommentsCount = len(post.CommentIDs)
	post.SharesCount = len(post.Shares)
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		r.log.Failed(ctx, "create", err)
		return models.NewInternalError(err)
	}
	r.log.Done(ctx, "create", "post_id", post.ID, "author_id", post.AuthorID)
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) UpdateEngagement(ctx context.Context, post *models.Post) error {
	ctx, span := observability.StartStoreSpan(ctx, "posts", "update_engagement")
	defer span.End()

	err := updateVersioned(ctx, r.db, &models.Post{}, post.ID, post.Version, map[string]interface{}{
		"likes":          post.Likes,
		"likes_count":    len(post.Likes),
		"comment_ids":    post.CommentIDs,
		"comments_count": len(post.CommentIDs),
		"shares":         post.Shares,
		"shares_count":   len(post.Shares),
	})
	if err != nil {
		if !errors.Is(err, ErrStaleVersion) {
			r.log.Failed(ctx, "update_engagement", err)
			observability.RecordErrorInContext(ctx, err)
		}
		return err
	}

	post.LikesCount = len(post.Likes)
	post.CommentsCount = len(post.CommentIDs)
	post.SharesCount = len(post.Shares)
	post.Version++
	r.log.Done(ctx, "update", "post_id", post.ID, "version", post.Version)
	return nil
}

func (r *postRepository) IncrementViews(ctx context.Context, id uint) (int, error) {
	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("views_count", gorm.Expr("views_count + 1"))
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, models.NewNotFoundError("Post", id)
	}

	var views int
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		Pluck("views_count", &views).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return views, nil
}

func (r *postRepository) UpdateTrendScore(ctx context.Context, id uint, score float64) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("trend_score", score).Error
}

func (r *postRepository) ListTrending(ctx context.Context, since time.Time, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("trend_score DESC").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ListIDsSince(ctx context.Context, since time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("created_at >= ?", since).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}
