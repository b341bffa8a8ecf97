package repository

import (
	"context"
	"errors"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"

	"gorm.io/gorm"
)

// CommentRepository is the comment half of the Engagement Store.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint, limit, offset int) ([]*models.Comment, error)
	ListIDsByPost(ctx context.Context, postID uint) ([]uint, error)
	Delete(ctx context.Context, id uint) error
	// UpdateEngagement persists the comment's like set and count guarded by
	// comment.Version, the same way PostRepository.UpdateEngagement does.
	UpdateEngagement(ctx context.Context, comment *models.Comment) error
}

type commentRepository struct {
	db  *gorm.DB
	log *observability.StoreLogger
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db, log: observability.NewStoreLogger("comments")}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	comment.Version = 1
	comment.LikesCount = len(comment.Likes)
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		r.log.Failed(ctx, "create", err)
		return models.NewInternalError(err)
	}
	r.log.Done(ctx, "create", "comment_id", comment.ID, "post_id", comment.PostID)
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &comment, nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID uint, limit, offset int) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

func (r *commentRepository) ListIDsByPost(ctx context.Context, postID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Comment{}, id)
	if res.Error != nil {
		r.log.Failed(ctx, "delete", res.Error)
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Comment", id)
	}
	r.log.Done(ctx, "delete", "comment_id", id)
	return nil
}

func (r *commentRepository) UpdateEngagement(ctx context.Context, comment *models.Comment) error {
	ctx, span := observability.StartStoreSpan(ctx, "comments", "update_engagement")
	defer span.End()

	err := updateVersioned(ctx, r.db, &models.Comment{}, comment.ID, comment.Version, map[string]interface{}{
		"likes":       comment.Likes,
		"likes_count": len(comment.Likes),
	})
	if err != nil {
		if !errors.Is(err, ErrStaleVersion) {
			r.log.Failed(ctx, "update_engagement", err)
			observability.RecordErrorInContext(ctx, err)
		}
		return err
	}
	comment.LikesCount = len(comment.Likes)
	comment.Version++
	return nil
}
