package service

import (
	"context"
	"strings"

	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/observability"
	"vibefeed/internal/repository"
	"vibefeed/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// Comment listing bounds.
const (
	DefaultCommentPageSize = 20
	MaxCommentPageSize     = 100
)

// CommentService is the Comment Ledger. It keeps Post.CommentIDs and
// Post.CommentsCount in step with the comments table.
type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	publisher   EventPublisher
	trends      TrendScheduler
	maxAttempts int
}

type CreateCommentInput struct {
	AuthorID uint
	PostID   uint
	Text     string `json:"text" validate:"required,max=500"`
}

type DeleteCommentInput struct {
	RequesterID uint
	CommentID   uint
}

// DeleteCommentResult is the parent post's comment count after a delete.
type DeleteCommentResult struct {
	CommentsCount int `json:"commentsCount"`
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	publisher EventPublisher,
	trends TrendScheduler,
	maxAttempts int,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		publisher:   publisherOrNop(publisher),
		trends:      schedulerOrNop(trends),
		maxAttempts: maxAttempts,
	}
}

// CreateComment persists the comment first and only then attaches its id to
// the parent post. A failed attach leaves a visible but uncounted comment,
// which RecountComments repairs.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.AuthorID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if !post.AllowsComments() {
		return nil, models.NewForbiddenError("Comments are disabled for this post")
	}

	ctx, span := observability.StartServiceSpan(ctx, "comments", "create", attribute.Int64("post.id", int64(in.PostID)))
	comment := &models.Comment{
		PostID:   in.PostID,
		AuthorID: in.AuthorID,
		Text:     in.Text,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}

	count, err := s.attach(ctx, in.PostID, comment.ID)
	observability.EndSpan(span, err)
	if err != nil {
		observability.LogAsyncError(ctx, "attach_comment", err, "post_id", in.PostID, "comment_id", comment.ID)
		count = post.CommentsCount
	}

	s.publisher.Publish(ctx, notifications.GlobalRoom, notifications.Event{
		Type: notifications.EventPostComment,
		Payload: notifications.PostCommented{
			PostID:        in.PostID,
			Comment:       comment,
			CommentsCount: count,
		},
	})
	s.trends.Schedule(in.PostID)
	return comment, nil
}

// attach adds commentID to the post unless the comment has been deleted in
// the meantime. detach always bumps the post version, so an attach that read
// the post before a delete is forced to re-read and re-check.
func (s *CommentService) attach(ctx context.Context, postID, commentID uint) (int, error) {
	return retryVersioned(ctx, "comment_ids", s.maxAttempts, func() (int, error) {
		post, err := s.postRepo.GetByID(ctx, postID)
		if err != nil {
			return 0, err
		}
		if _, err := s.commentRepo.GetByID(ctx, commentID); err != nil {
			if models.IsNotFound(err) {
				return post.CommentsCount, nil
			}
			return 0, err
		}
		ids, added := models.AddMember(post.CommentIDs, commentID)
		if !added {
			return post.CommentsCount, nil
		}
		post.CommentIDs = ids
		if err := s.postRepo.UpdateEngagement(ctx, post); err != nil {
			return 0, err
		}
		return post.CommentsCount, nil
	})
}

func (s *CommentService) detach(ctx context.Context, postID, commentID uint) (int, error) {
	return retryVersioned(ctx, "comment_ids", s.maxAttempts, func() (int, error) {
		post, err := s.postRepo.GetByID(ctx, postID)
		if err != nil {
			return 0, err
		}
		post.CommentIDs, _ = models.RemoveMember(post.CommentIDs, commentID)
		if err := s.postRepo.UpdateEngagement(ctx, post); err != nil {
			return 0, err
		}
		return post.CommentsCount, nil
	})
}

// DeleteComment removes a comment. Only the comment author or the author of
// the parent post may delete it. When the parent post is gone the comment is
// deleted without touching any counter.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) (*DeleteCommentResult, error) {
	if in.RequesterID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetByID(ctx, comment.PostID)
	if err != nil && !models.IsNotFound(err) {
		return nil, err
	}
	postExists := err == nil

	allowed := comment.AuthorID == in.RequesterID || (postExists && post.AuthorID == in.RequesterID)
	if !allowed {
		return nil, models.NewForbiddenError("You can only delete your own comments or comments on your posts")
	}

	if err := s.commentRepo.Delete(ctx, comment.ID); err != nil {
		return nil, err
	}
	if !postExists {
		return &DeleteCommentResult{}, nil
	}

	count, err := s.detach(ctx, comment.PostID, comment.ID)
	if err != nil {
		if models.IsNotFound(err) {
			return &DeleteCommentResult{}, nil
		}
		// The row is already gone; RecountComments drops the stale id.
		observability.LogAsyncError(ctx, "detach_comment", err, "post_id", comment.PostID, "comment_id", comment.ID)
		ids, _ := models.RemoveMember(post.CommentIDs, comment.ID)
		count = len(ids)
	}

	s.publisher.Publish(ctx, notifications.GlobalRoom, notifications.Event{
		Type: notifications.EventCommentDeleted,
		Payload: notifications.CommentDeleted{
			PostID:        comment.PostID,
			CommentID:     comment.ID,
			CommentsCount: count,
		},
	})
	s.trends.Schedule(comment.PostID)
	return &DeleteCommentResult{CommentsCount: count}, nil
}

// ListComments returns a page of a post's comments, newest first. page is
// 1-based; limit defaults to 20 and is capped at 100.
func (s *CommentService) ListComments(ctx context.Context, postID uint, page, limit int) ([]*models.Comment, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultCommentPageSize
	}
	if limit > MaxCommentPageSize {
		limit = MaxCommentPageSize
	}
	if page < 1 {
		page = 1
	}
	return s.commentRepo.ListByPost(ctx, postID, limit, (page-1)*limit)
}

// RecountComments rebuilds the post's comment ids and count from the
// comments table.
func (s *CommentService) RecountComments(ctx context.Context, postID uint) (int, error) {
	return retryVersioned(ctx, "comment_ids", s.maxAttempts, func() (int, error) {
		ids, err := s.commentRepo.ListIDsByPost(ctx, postID)
		if err != nil {
			return 0, err
		}
		post, err := s.postRepo.GetByID(ctx, postID)
		if err != nil {
			return 0, err
		}
		post.CommentIDs = ids
		if err := s.postRepo.UpdateEngagement(ctx, post); err != nil {
			return 0, err
		}
		return post.CommentsCount, nil
	})
}
