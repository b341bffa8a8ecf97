package seed

import (
	"context"
	"fmt"
	"log"
	"time"

	"vibefeed/internal/database"
	"vibefeed/internal/models"
	"vibefeed/internal/repository"
	"vibefeed/internal/service"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	NumPosts        int
	CommentsPerPost int
	NumChats        int
	MessagesPerChat int
	MaxDays         int
	RandSeed        int64
	ShouldClean     bool
	DryRun          bool
}

func (o Options) withDefaults() Options {
	if o.MaxDays <= 0 {
		o.MaxDays = 7
	}
	if o.RandSeed == 0 {
		o.RandSeed = time.Now().UnixNano()
	}
	return o
}

// Summary counts what a seeding run created.
type Summary struct {
	Users    int
	Posts    int
	Comments int
	Messages int
	Scored   int
}

var chatNames = []string{"general", "music", "gaming", "programming", "travel", "food", "movies", "pets"}

// Seed populates the database with users, posts carrying likes, shares and
// comments, chat history, and fresh trend scores. chats may be nil to use the
// SQL chat store.
func Seed(ctx context.Context, db *gorm.DB, chats repository.ChatRepository, opts Options) (*Summary, error) {
	opts = opts.withDefaults()
	log.Printf("🌱 Seeding %d users, %d posts, %d chats...", opts.NumUsers, opts.NumPosts, opts.NumChats)

	if opts.ShouldClean && !opts.DryRun {
		if err := Clear(db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	f := NewFactory(db, chats, opts)
	sum := &Summary{}

	users := make([]models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser(ctx)
		if err != nil {
			return sum, err
		}
		users = append(users, *u)
	}
	sum.Users = len(users)
	log.Printf("✓ %d users created", sum.Users)
	if len(users) == 0 {
		return sum, nil
	}

	for i := 0; i < opts.NumPosts; i++ {
		author := &users[f.rng.Intn(len(users))]
		post, err := f.CreatePost(ctx, author, users)
		if err != nil {
			return sum, err
		}
		sum.Posts++
		if !post.AllowsComments() {
			continue
		}
		for j := f.rng.Intn(opts.CommentsPerPost + 1); j > 0; j-- {
			if _, err := f.CreateComment(ctx, &users[f.rng.Intn(len(users))], post); err != nil {
				return sum, err
			}
			sum.Comments++
		}
	}
	log.Printf("✓ %d posts with %d comments created", sum.Posts, sum.Comments)

	for i := 0; i < opts.NumChats; i++ {
		chatID := chatNames[i%len(chatNames)]
		if i >= len(chatNames) {
			chatID = fmt.Sprintf("%s-%d", chatID, i/len(chatNames))
		}
		at := time.Now().Add(-time.Duration(opts.MessagesPerChat) * time.Minute)
		for j := 0; j < opts.MessagesPerChat; j++ {
			at = at.Add(time.Duration(f.rng.Intn(50)+10) * time.Second)
			if _, err := f.CreateMessage(ctx, chatID, &users[f.rng.Intn(len(users))], at); err != nil {
				return sum, err
			}
			sum.Messages++
		}
	}
	log.Printf("✓ %d chat messages created", sum.Messages)

	if !opts.DryRun {
		window := time.Duration(opts.MaxDays+1) * 24 * time.Hour
		scored, err := service.NewTrendWorker(f.posts, nil, 0, window).Sweep(ctx)
		if err != nil {
			return sum, fmt.Errorf("score posts: %w", err)
		}
		sum.Scored = scored
		log.Printf("✓ %d trend scores computed", sum.Scored)
	}

	log.Println("🎉 Database seeding completed successfully!")
	return sum, nil
}

// Clear hard-deletes every row of the persistent models, children first.
func Clear(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	all := database.PersistentModels()
	session := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped()
	for i := len(all) - 1; i >= 0; i-- {
		if err := session.Delete(all[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
