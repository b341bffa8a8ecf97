package service

import (
	"context"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/observability"
	"vibefeed/internal/repository"
	"vibefeed/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// EngagementService is the Toggle Engine: like toggles on posts and comments,
// plus shares and view counts on posts.
type EngagementService struct {
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	publisher   EventPublisher
	trends      TrendScheduler
	maxAttempts int
	now         func() time.Time
}

// ToggleLikeInput is the input for toggling a like.
type ToggleLikeInput struct {
	UserID     uint
	TargetID   uint
	TargetKind models.TargetKind
	Reaction   models.ReactionKind
}

// ToggleResult carries the authoritative post-mutation state.
type ToggleResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

// ShareResult carries the share state after SharePost.
type ShareResult struct {
	Shared      bool `json:"shared"`
	SharesCount int  `json:"sharesCount"`
}

// NewEngagementService returns a new EngagementService. publisher and trends
// may be nil.
func NewEngagementService(
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	publisher EventPublisher,
	trends TrendScheduler,
	maxAttempts int,
) *EngagementService {
	return &EngagementService{
		postRepo:    postRepo,
		commentRepo: commentRepo,
		publisher:   publisherOrNop(publisher),
		trends:      schedulerOrNop(trends),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// ToggleLike flips the caller's membership in the target's like set. Two
// different users toggling concurrently both land; the count always equals
// the size of the stored set.
func (s *EngagementService) ToggleLike(ctx context.Context, in ToggleLikeInput) (*ToggleResult, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if in.TargetKind == "" {
		in.TargetKind = models.TargetPost
	}
	if in.Reaction == "" {
		in.Reaction = models.ReactionLike
	}
	if err := validation.Reaction(in.Reaction, in.TargetKind); err != nil {
		return nil, err
	}

	ctx, span := observability.StartServiceSpan(ctx, "engagement", "toggle_like",
		attribute.String("target.kind", string(in.TargetKind)),
		attribute.Int64("target.id", int64(in.TargetID)),
	)

	var (
		res *ToggleResult
		evt notifications.LikeToggled
		err error
	)
	switch in.TargetKind {
	case models.TargetPost:
		res, evt, err = s.togglePostLike(ctx, in)
	case models.TargetComment:
		res, evt, err = s.toggleCommentLike(ctx, in)
	default:
		err = models.NewValidationError("targetKind must be post or comment")
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	eventType := notifications.EventPostLiked
	if in.TargetKind == models.TargetComment {
		eventType = notifications.EventCommentLiked
	}
	s.publisher.Publish(ctx, notifications.GlobalRoom, notifications.Event{Type: eventType, Payload: evt})
	s.trends.Schedule(evt.PostID)
	return res, nil
}

func (s *EngagementService) togglePostLike(ctx context.Context, in ToggleLikeInput) (*ToggleResult, notifications.LikeToggled, error) {
	res, err := retryVersioned(ctx, string(models.TargetPost), s.maxAttempts, func() (*ToggleResult, error) {
		post, err := s.postRepo.GetByID(ctx, in.TargetID)
		if err != nil {
			return nil, err
		}
		likes, liked := models.ToggleLike(post.Likes, in.UserID, in.Reaction, s.now())
		post.Likes = likes
		if err := s.postRepo.UpdateEngagement(ctx, post); err != nil {
			return nil, err
		}
		return &ToggleResult{Liked: liked, LikesCount: post.LikesCount}, nil
	})
	if err != nil {
		return nil, notifications.LikeToggled{}, err
	}
	return res, notifications.LikeToggled{
		TargetID:   in.TargetID,
		TargetKind: string(models.TargetPost),
		PostID:     in.TargetID,
		UserID:     in.UserID,
		Liked:      res.Liked,
		LikesCount: res.LikesCount,
	}, nil
}

func (s *EngagementService) toggleCommentLike(ctx context.Context, in ToggleLikeInput) (*ToggleResult, notifications.LikeToggled, error) {
	var postID uint
	res, err := retryVersioned(ctx, string(models.TargetComment), s.maxAttempts, func() (*ToggleResult, error) {
		comment, err := s.commentRepo.GetByID(ctx, in.TargetID)
		if err != nil {
			return nil, err
		}
		postID = comment.PostID
		likes, liked := models.ToggleLike(comment.Likes, in.UserID, in.Reaction, s.now())
		comment.Likes = likes
		if err := s.commentRepo.UpdateEngagement(ctx, comment); err != nil {
			return nil, err
		}
		return &ToggleResult{Liked: liked, LikesCount: comment.LikesCount}, nil
	})
	if err != nil {
		return nil, notifications.LikeToggled{}, err
	}
	return res, notifications.LikeToggled{
		TargetID:   in.TargetID,
		TargetKind: string(models.TargetComment),
		PostID:     postID,
		CommentID:  in.TargetID,
		UserID:     in.UserID,
		Liked:      res.Liked,
		LikesCount: res.LikesCount,
	}, nil
}

// SharePost adds userID to the post's share set. Sharing twice is a no-op
// that still reports the current count.
func (s *EngagementService) SharePost(ctx context.Context, postID, userID uint) (*ShareResult, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	res, err := retryVersioned(ctx, "share", s.maxAttempts, func() (*ShareResult, error) {
		post, err := s.postRepo.GetByID(ctx, postID)
		if err != nil {
			return nil, err
		}
		shares, added := models.AddMember(post.Shares, userID)
		if !added {
			return &ShareResult{Shared: true, SharesCount: post.SharesCount}, nil
		}
		post.Shares = shares
		if err := s.postRepo.UpdateEngagement(ctx, post); err != nil {
			return nil, err
		}
		return &ShareResult{Shared: true, SharesCount: post.SharesCount}, nil
	})
	if err != nil {
		return nil, err
	}
	s.trends.Schedule(postID)
	return res, nil
}

// RecordView counts one view of the post and returns the new total.
func (s *EngagementService) RecordView(ctx context.Context, postID uint) (int, error) {
	views, err := s.postRepo.IncrementViews(ctx, postID)
	if err != nil {
		return 0, err
	}
	s.trends.Schedule(postID)
	return views, nil
}
