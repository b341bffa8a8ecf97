// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

var reactionPool = []models.ReactionKind{
	models.ReactionLike, models.ReactionLike, models.ReactionLike,
	models.ReactionLove, models.ReactionFire, models.ReactionLaugh, models.ReactionWow,
}

// Factory builds domain entities and persists them through the repositories
// so counters and versions start out consistent.
type Factory struct {
	users    repository.UserRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	chats    repository.ChatRepository
	opts     Options
	rng      *rand.Rand
	faker    *gofakeit.Faker
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a Factory bound to db. A nil chats repository falls
// back to the SQL chat store on the same database.
func NewFactory(db *gorm.DB, chats repository.ChatRepository, opts Options) *Factory {
	opts = opts.withDefaults()
	f := &Factory{
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.RandSeed)),
		faker:  gofakeit.New(opts.RandSeed),
		nextID: 1000,
	}
	if db != nil {
		f.users = repository.NewUserRepository(db)
		f.posts = repository.NewPostRepository(db)
		f.comments = repository.NewCommentRepository(db)
		if chats == nil {
			chats = repository.NewChatRepository(db)
		}
	}
	f.chats = chats
	return f
}

func (f *Factory) syntheticID() uint {
	f.nextID++
	return f.nextID
}

// backdate returns a time up to MaxDays in the past.
func (f *Factory) backdate() time.Time {
	span := time.Duration(f.opts.MaxDays) * 24 * time.Hour
	return time.Now().Add(-time.Duration(f.rng.Int63n(int64(span))))
}

// CreateUser persists a user with a unique fake username.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		Username: fmt.Sprintf("%s_%d", strings.ToLower(f.faker.Username()), f.syntheticID()),
	}
	for _, override := range overrides {
		override(user)
	}
	if f.opts.DryRun {
		user.ID = f.nextID
		return user, nil
	}
	if err := f.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// BuildPost constructs a post by author with likes and shares drawn from
// audience but does not persist it.
func (f *Factory) BuildPost(author *models.User, audience []models.User, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		AuthorID:  author.ID,
		Content:   f.faker.Paragraph(1, 3, 12, "\n"),
		CreatedAt: f.backdate(),
	}
	if f.rng.Intn(3) == 0 {
		post.MediaURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID())
	}
	post.CommentsDisabled = f.rng.Intn(20) == 0

	for _, u := range f.sample(audience, author.ID) {
		post.Likes, _ = models.ToggleLike(post.Likes, u.ID, reactionPool[f.rng.Intn(len(reactionPool))], post.CreatedAt)
	}
	for _, u := range f.sample(audience, author.ID) {
		if f.rng.Intn(4) == 0 {
			post.Shares, _ = models.AddMember(post.Shares, u.ID)
		}
	}
	post.ViewsCount = len(post.Likes)*3 + f.rng.Intn(50)

	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePost builds and persists a post.
func (f *Factory) CreatePost(ctx context.Context, author *models.User, audience []models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPost(author, audience, overrides...)
	if f.opts.DryRun {
		post.ID = f.syntheticID()
		post.LikesCount = len(post.Likes)
		post.SharesCount = len(post.Shares)
		return post, nil
	}
	if err := f.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// CreateComment persists a comment on post and appends it to the post's
// comment list.
func (f *Factory) CreateComment(ctx context.Context, author *models.User, post *models.Post, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		PostID:    post.ID,
		AuthorID:  author.ID,
		Text:      f.faker.Sentence(f.rng.Intn(12) + 3),
		CreatedAt: post.CreatedAt.Add(time.Duration(f.rng.Intn(72)) * time.Hour),
	}
	if comment.CreatedAt.After(time.Now()) {
		comment.CreatedAt = time.Now()
	}
	for _, override := range overrides {
		override(comment)
	}
	if f.opts.DryRun {
		comment.ID = f.syntheticID()
		post.CommentIDs, _ = models.AddMember(post.CommentIDs, comment.ID)
		post.CommentsCount = len(post.CommentIDs)
		return comment, nil
	}
	if err := f.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	post.CommentIDs, _ = models.AddMember(post.CommentIDs, comment.ID)
	if err := f.posts.UpdateEngagement(ctx, post); err != nil {
		return nil, fmt.Errorf("attach comment %d: %w", comment.ID, err)
	}
	return comment, nil
}

// CreateMessage persists a chat message from sender in chatID.
func (f *Factory) CreateMessage(ctx context.Context, chatID string, sender *models.User, at time.Time) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ChatID:         chatID,
		SenderID:       sender.ID,
		SenderUsername: sender.Username,
		Content:        f.faker.Sentence(f.rng.Intn(10) + 2),
		CreatedAt:      at.UTC().Truncate(time.Millisecond),
	}
	if f.opts.DryRun {
		msg.ID = f.syntheticID()
		return msg, nil
	}
	if err := f.chats.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// sample picks a random subset of users, never including exclude.
func (f *Factory) sample(users []models.User, exclude uint) []models.User {
	if len(users) == 0 {
		return nil
	}
	n := f.rng.Intn(len(users) + 1)
	out := make([]models.User, 0, n)
	for _, i := range f.rng.Perm(len(users))[:n] {
		if users[i].ID != exclude {
			out = append(out, users[i])
		}
	}
	return out
}
