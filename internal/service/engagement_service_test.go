package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngagementFixture(t *testing.T, maxAttempts int) (*EngagementService, repository.PostRepository, repository.CommentRepository, *recordingPublisher, *recordingScheduler) {
	t.Helper()
	db := setupTestDB(t)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	pub := &recordingPublisher{}
	sched := &recordingScheduler{}
	return NewEngagementService(postRepo, commentRepo, pub, sched, maxAttempts), postRepo, commentRepo, pub, sched
}

func TestEngagementService_ToggleLike_Scenario(t *testing.T) {
	svc, postRepo, _, pub, _ := newEngagementFixture(t, DefaultMaxAttempts)
	ctx := context.Background()
	post := createPost(t, postRepo, 1)

	const userA, userB = 10, 20
	toggle := func(user uint) *ToggleResult {
		res, err := svc.ToggleLike(ctx, ToggleLikeInput{UserID: user, TargetID: post.ID, TargetKind: models.TargetPost})
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, &ToggleResult{Liked: true, LikesCount: 1}, toggle(userA))
	assert.Equal(t, &ToggleResult{Liked: false, LikesCount: 0}, toggle(userA))
	assert.Equal(t, &ToggleResult{Liked: true, LikesCount: 1}, toggle(userB))

	stored, err := postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LikesCount)
	require.Len(t, stored.Likes, 1)
	assert.Equal(t, uint(userB), stored.Likes[0].UserID)

	events := pub.ofType(notifications.EventPostLiked)
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, notifications.GlobalRoom, last.Room)
	payload, ok := last.Event.Payload.(notifications.LikeToggled)
	require.True(t, ok)
	assert.Equal(t, notifications.LikeToggled{
		TargetID:   post.ID,
		TargetKind: "post",
		PostID:     post.ID,
		UserID:     userB,
		Liked:      true,
		LikesCount: 1,
	}, payload)
}

func TestEngagementService_ToggleLike_DoubleToggleRestoresState(t *testing.T) {
	svc, postRepo, _, _, _ := newEngagementFixture(t, DefaultMaxAttempts)
	ctx := context.Background()
	post := createPost(t, postRepo, 1)

	_, err := svc.ToggleLike(ctx, ToggleLikeInput{UserID: 7, TargetID: post.ID})
	require.NoError(t, err)

	before, err := postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.ToggleLike(ctx, ToggleLikeInput{UserID: 8, TargetID: post.ID, Reaction: models.ReactionFire})
		require.NoError(t, err)
	}

	after, err := postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, before.LikesCount, after.LikesCount)
	var likers []uint
	for _, l := range after.Likes {
		likers = append(likers, l.UserID)
	}
	assert.Contains(t, likers, uint(7))
	assert.NotContains(t, likers, uint(8))
}

func TestEngagementService_ToggleLike_ConcurrentDistinctUsers(t *testing.T) {
	svc, postRepo, _, pub, _ := newEngagementFixture(t, 100)
	ctx := context.Background()
	post := createPost(t, postRepo, 1)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(user uint) {
			defer wg.Done()
			res, err := svc.ToggleLike(ctx, ToggleLikeInput{UserID: user, TargetID: post.ID})
			if err != nil {
				errs <- err
				return
			}
			if !res.Liked {
				errs <- errors.New("expected like")
			}
		}(uint(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored.LikesCount)
	assert.Len(t, stored.Likes, n)
	assert.Len(t, pub.ofType(notifications.EventPostLiked), n)
}

func TestEngagementService_ToggleLike_Comment(t *testing.T) {
	svc, postRepo, commentRepo, pub, sched := newEngagementFixture(t, DefaultMaxAttempts)
	ctx := context.Background()
	post := createPost(t, postRepo, 1)
	comment := &models.Comment{PostID: post.ID, AuthorID: 2, Text: "nice"}
	require.NoError(t, commentRepo.Create(ctx, comment))

	res, err := svc.ToggleLike(ctx, ToggleLikeInput{
		UserID:     3,
		TargetID:   comment.ID,
		TargetKind: models.TargetComment,
		Reaction:   models.ReactionLaugh,
	})
	require.NoError(t, err)
	assert.Equal(t, &ToggleResult{Liked: true, LikesCount: 1}, res)

	events := pub.ofType(notifications.EventCommentLiked)
	require.Len(t, events, 1)
	payload := events[0].Event.Payload.(notifications.LikeToggled)
	assert.Equal(t, post.ID, payload.PostID)
	assert.Equal(t, comment.ID, payload.CommentID)
	assert.Equal(t, []uint{post.ID}, sched.ids)
}

func TestEngagementService_ToggleLike_Errors(t *testing.T) {
	svc, postRepo, _, pub, _ := newEngagementFixture(t, DefaultMaxAttempts)
	ctx := context.Background()
	post := createPost(t, postRepo, 1)

	tests := []struct {
		name string
		in   ToggleLikeInput
		code string
	}{
		{"unauthenticated", ToggleLikeInput{TargetID: post.ID}, models.CodeUnauthorized},
		{"missing post", ToggleLikeInput{UserID: 1, TargetID: 9999}, models.CodeNotFound},
		{"missing comment", ToggleLikeInput{UserID: 1, TargetID: 9999, TargetKind: models.TargetComment}, models.CodeNotFound},
		{"reaction not allowed on comment", ToggleLikeInput{UserID: 1, TargetID: 1, TargetKind: models.TargetComment, Reaction: models.ReactionAngry}, models.CodeValidation},
		{"unknown reaction", ToggleLikeInput{UserID: 1, TargetID: post.ID, Reaction: "meh"}, models.CodeValidation},
		{"unknown target kind", ToggleLikeInput{UserID: 1, TargetID: post.ID, TargetKind: "story"}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ToggleLike(ctx, tt.in)
			assertCode(t, err, tt.code)
		})
	}
	assert.Empty(t, pub.all(), "failed toggles must not publish")
}

// alwaysStalePostRepo loses every versioned write.
type alwaysStalePostRepo struct {
	repository.PostRepository
	attempts int
}

func (r *alwaysStalePostRepo) GetByID(_ context.Context, id uint) (*models.Post, error) {
	return &models.Post{ID: id, Version: 1}, nil
}

func (r *alwaysStalePostRepo) UpdateEngagement(context.Context, *models.Post) error {
	r.attempts++
	return repository.ErrStaleVersion
}

func TestEngagementService_ToggleLike_RetryExhaustedIsConflict(t *testing.T) {
	repo := &alwaysStalePostRepo{}
	pub := &recordingPublisher{}
	svc := NewEngagementService(repo, nil, pub, nil, 3)

	_, err := svc.ToggleLike(context.Background(), ToggleLikeInput{UserID: 1, TargetID: 5})
	assertCode(t, err, models.CodeConflict)
	assert.ErrorIs(t, err, repository.ErrStaleVersion)
	assert.Equal(t, 3, repo.attempts)
	assert.Empty(t, pub.all())
}

func TestEngagementService_SharePost(t *testing.T) {
	svc, postRepo, _, _, sched := newEngagementFixture(t, DefaultMaxAttempts)
	ctx := context.Background()
	post := createPost(t, postRepo, 1)

	res, err := svc.SharePost(ctx, post.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, &ShareResult{Shared: true, SharesCount: 1}, res)

	res, err = svc.SharePost(ctx, post.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SharesCount)

	res, err = svc.SharePost(ctx, post.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SharesCount)

	_, err = svc.SharePost(ctx, 9999, 5)
	assertCode(t, err, models.CodeNotFound)
	_, err = svc.SharePost(ctx, post.ID, 0)
	assertCode(t, err, models.CodeUnauthorized)

	assert.Len(t, sched.ids, 3)
}

func TestEngagementService_RecordView(t *testing.T) {
	svc, postRepo, _, _, _ := newEngagementFixture(t, DefaultMaxAttempts)
	ctx := context.Background()
	post := createPost(t, postRepo, 1)

	for i := 1; i <= 3; i++ {
		views, err := svc.RecordView(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, i, views)
	}

	_, err := svc.RecordView(ctx, 9999)
	assertCode(t, err, models.CodeNotFound)
}
