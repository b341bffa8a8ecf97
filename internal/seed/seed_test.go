package seed

import (
	"context"
	"testing"
	"time"

	"vibefeed/internal/database"
	"vibefeed/internal/models"
	"vibefeed/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func TestSeed_CountersMatchStoredState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	sum, err := Seed(ctx, db, nil, Options{
		NumUsers: 8, NumPosts: 15, CommentsPerPost: 4,
		NumChats: 2, MessagesPerChat: 5, RandSeed: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Users)
	assert.Equal(t, 15, sum.Posts)
	assert.Equal(t, 10, sum.Messages)
	assert.Equal(t, 15, sum.Scored)

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	require.Len(t, posts, 15)

	comments := repository.NewCommentRepository(db)
	total := 0
	for _, p := range posts {
		assert.Equal(t, len(p.Likes), p.LikesCount, "post %d likes", p.ID)
		assert.Equal(t, len(p.Shares), p.SharesCount, "post %d shares", p.ID)
		assert.Equal(t, len(p.CommentIDs), p.CommentsCount, "post %d comments", p.ID)
		for _, l := range p.Likes {
			assert.NotEqual(t, p.AuthorID, l.UserID)
			assert.True(t, l.Reaction.AllowedOn(models.TargetPost))
		}
		ids, err := comments.ListIDsByPost(ctx, p.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids, []uint(p.CommentIDs))
		total += len(ids)
		if p.LikesCount > 0 {
			assert.Greater(t, p.TrendScore, 0.0, "post %d", p.ID)
		}
	}
	assert.Equal(t, sum.Comments, total)

	history, err := repository.NewChatRepository(db).History(ctx, "general", 100, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt))
	}
}

func TestSeed_CleanRemovesPreviousRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := Seed(ctx, db, nil, Options{NumUsers: 3, NumPosts: 3, RandSeed: 1})
	require.NoError(t, err)
	_, err = Seed(ctx, db, nil, Options{NumUsers: 2, NumPosts: 1, RandSeed: 2, ShouldClean: true})
	require.NoError(t, err)

	var users, posts int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Unscoped().Model(&models.Post{}).Count(&posts).Error)
	assert.EqualValues(t, 2, users)
	assert.EqualValues(t, 1, posts)
}

func TestFactory_DryRunAssignsSyntheticIDs(t *testing.T) {
	f := NewFactory(nil, nil, Options{DryRun: true, MaxDays: 3, RandSeed: 7})
	ctx := context.Background()

	author, err := f.CreateUser(ctx)
	require.NoError(t, err)
	fan, err := f.CreateUser(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, author.ID, fan.ID)
	assert.NotEmpty(t, author.Username)

	post, err := f.CreatePost(ctx, author, []models.User{*author, *fan})
	require.NoError(t, err)
	assert.NotZero(t, post.ID)
	assert.WithinDuration(t, time.Now(), post.CreatedAt, 3*24*time.Hour)
	assert.Equal(t, len(post.Likes), post.LikesCount)

	_, err = f.CreateComment(ctx, fan, post)
	require.NoError(t, err)
	assert.Equal(t, 1, post.CommentsCount)
}
