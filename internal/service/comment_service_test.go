package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type commentFixture struct {
	db          *gorm.DB
	svc         *CommentService
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	pub         *recordingPublisher
}

func newCommentFixture(t *testing.T) *commentFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &commentFixture{
		db:          db,
		postRepo:    repository.NewPostRepository(db),
		commentRepo: repository.NewCommentRepository(db),
		pub:         &recordingPublisher{},
	}
	f.svc = NewCommentService(f.commentRepo, f.postRepo, f.pub, nil, DefaultMaxAttempts)
	return f
}

func TestCommentService_CreateComment(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)

	comment, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "  first!  "})
	require.NoError(t, err)
	assert.Equal(t, "first!", comment.Text)
	assert.NotZero(t, comment.ID)

	stored, err := f.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CommentsCount)
	assert.Equal(t, []uint{comment.ID}, []uint(stored.CommentIDs))

	events := f.pub.ofType(notifications.EventPostComment)
	require.Len(t, events, 1)
	payload := events[0].Event.Payload.(notifications.PostCommented)
	assert.Equal(t, post.ID, payload.PostID)
	assert.Equal(t, 1, payload.CommentsCount)
}

func TestCommentService_CreateComment_Rejections(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)
	closed := &models.Post{AuthorID: 1, Content: "quiet", CommentsDisabled: true}
	require.NoError(t, f.postRepo.Create(ctx, closed))

	tests := []struct {
		name string
		in   CreateCommentInput
		code string
	}{
		{"unauthenticated", CreateCommentInput{PostID: post.ID, Text: "hi"}, models.CodeUnauthorized},
		{"empty text", CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "   "}, models.CodeValidation},
		{"too long", CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: strings.Repeat("x", 501)}, models.CodeValidation},
		{"missing post", CreateCommentInput{AuthorID: 2, PostID: 9999, Text: "hi"}, models.CodeNotFound},
		{"comments disabled", CreateCommentInput{AuthorID: 2, PostID: closed.ID, Text: "hi"}, models.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateComment(ctx, tt.in)
			assertCode(t, err, tt.code)
		})
	}

	_, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: strings.Repeat("é", 500)})
	assert.NoError(t, err, "500 characters is within the limit")
	assert.Len(t, f.pub.all(), 1)
}

// failingUpdatePostRepo reads normally but fails every engagement write.
type failingUpdatePostRepo struct {
	repository.PostRepository
}

func (r failingUpdatePostRepo) UpdateEngagement(context.Context, *models.Post) error {
	return errors.New("connection reset")
}

func TestCommentService_CreateComment_AttachFailureIsNotFatal(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)

	svc := NewCommentService(f.commentRepo, failingUpdatePostRepo{f.postRepo}, f.pub, nil, DefaultMaxAttempts)
	comment, err := svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "orphan"})
	require.NoError(t, err)

	stored, err := f.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.CommentsCount)

	count, err := f.svc.RecountComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err = f.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{comment.ID}, []uint(stored.CommentIDs))
}

func TestCommentService_DeleteComment(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	const postAuthor, commenter, stranger = 1, 2, 3
	post := createPost(t, f.postRepo, postAuthor)

	c1, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: commenter, PostID: post.ID, Text: "one"})
	require.NoError(t, err)
	c2, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: commenter, PostID: post.ID, Text: "two"})
	require.NoError(t, err)

	_, err = f.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: stranger, CommentID: c1.ID})
	assertCode(t, err, models.CodeForbidden)

	res, err := f.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: commenter, CommentID: c1.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CommentsCount)

	res, err = f.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: postAuthor, CommentID: c2.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, res.CommentsCount)

	// repeated delete never drives the count negative
	_, err = f.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: commenter, CommentID: c1.ID})
	assertCode(t, err, models.CodeNotFound)

	stored, err := f.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.CommentsCount)
	assert.Empty(t, stored.CommentIDs)

	events := f.pub.ofType(notifications.EventCommentDeleted)
	require.Len(t, events, 2)
	assert.Equal(t, notifications.CommentDeleted{PostID: post.ID, CommentID: c2.ID, CommentsCount: 0}, events[1].Event.Payload)
}

// deleteOnCreateRepo deletes every comment through the service right after
// it is persisted, before the parent post is updated.
type deleteOnCreateRepo struct {
	repository.CommentRepository
	svc *CommentService
}

func (r *deleteOnCreateRepo) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.CommentRepository.Create(ctx, comment); err != nil {
		return err
	}
	_, err := r.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: comment.AuthorID, CommentID: comment.ID})
	return err
}

func TestCommentService_DeleteBeforeAttach(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)

	repo := &deleteOnCreateRepo{CommentRepository: f.commentRepo}
	svc := NewCommentService(repo, f.postRepo, f.pub, nil, DefaultMaxAttempts)
	repo.svc = svc

	comment, err := svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "gone already"})
	require.NoError(t, err)

	_, err = f.commentRepo.GetByID(ctx, comment.ID)
	require.True(t, models.IsNotFound(err))

	stored, err := f.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.NotContains(t, []uint(stored.CommentIDs), comment.ID)
	assert.Zero(t, stored.CommentsCount)
}

func TestCommentService_DeleteComment_DetachFailureIsNotFatal(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)
	keep, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "stays"})
	require.NoError(t, err)
	drop, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "goes"})
	require.NoError(t, err)

	svc := NewCommentService(f.commentRepo, failingUpdatePostRepo{f.postRepo}, f.pub, nil, DefaultMaxAttempts)
	res, err := svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: 2, CommentID: drop.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CommentsCount)

	events := f.pub.ofType(notifications.EventCommentDeleted)
	require.Len(t, events, 1)
	assert.Equal(t, notifications.CommentDeleted{PostID: post.ID, CommentID: drop.ID, CommentsCount: 1}, events[0].Event.Payload)

	count, err := f.svc.RecountComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := f.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{keep.ID}, []uint(stored.CommentIDs))
}

func TestCommentService_ConcurrentCreateAndDelete(t *testing.T) {
	f := newCommentFixture(t)
	f.svc = NewCommentService(f.commentRepo, f.postRepo, f.pub, nil, 100)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(author uint, remove bool) {
			defer wg.Done()
			c, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: author, PostID: post.ID, Text: "busy thread"})
			if err != nil {
				errs <- err
				return
			}
			if remove {
				if _, err := f.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: author, CommentID: c.ID}); err != nil {
					errs <- err
				}
			}
		}(uint(i+2), i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, len(stored.CommentIDs), stored.CommentsCount)
	assert.Len(t, stored.CommentIDs, n/2)
	for _, id := range stored.CommentIDs {
		_, err := f.commentRepo.GetByID(ctx, id)
		assert.NoError(t, err, "comment %d listed on the post but missing", id)
	}

	rows, err := f.commentRepo.ListIDsByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint(rows), []uint(stored.CommentIDs))
}

func TestCommentService_DeleteComment_ParentPostGone(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)
	comment, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "left behind"})
	require.NoError(t, err)

	require.NoError(t, f.db.Delete(&models.Post{}, post.ID).Error)

	// without the post only the comment author may delete
	_, err = f.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: 1, CommentID: comment.ID})
	assertCode(t, err, models.CodeForbidden)

	res, err := f.svc.DeleteComment(ctx, DeleteCommentInput{RequesterID: 2, CommentID: comment.ID})
	require.NoError(t, err)
	assert.Zero(t, res.CommentsCount)

	_, err = f.commentRepo.GetByID(ctx, comment.ID)
	assert.True(t, models.IsNotFound(err))
	assert.Empty(t, f.pub.ofType(notifications.EventCommentDeleted))
}

func TestCommentService_ListComments(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	post := createPost(t, f.postRepo, 1)

	var ids []uint
	for i := 0; i < 5; i++ {
		c, err := f.svc.CreateComment(ctx, CreateCommentInput{AuthorID: 2, PostID: post.ID, Text: "c"})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	page1, err := f.svc.ListComments(ctx, post.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID, "newest first")

	page3, err := f.svc.ListComments(ctx, post.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].ID)

	all, err := f.svc.ListComments(ctx, post.ID, 0, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = f.svc.ListComments(ctx, 9999, 1, 10)
	assertCode(t, err, models.CodeNotFound)
}
