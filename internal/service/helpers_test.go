package service

import (
	"context"
	"sync"
	"testing"

	"vibefeed/internal/database"
	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
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

type published struct {
	Room  string
	Event notifications.Event
}

// recordingPublisher captures every Publish call in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, room string, evt notifications.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Room: room, Event: evt})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]published, len(p.events))
	copy(out, p.events)
	return out
}

func (p *recordingPublisher) ofType(eventType string) []published {
	var out []published
	for _, e := range p.all() {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []uint
}

func (s *recordingScheduler) Schedule(postID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, postID)
}

func createPost(t *testing.T, repo repository.PostRepository, authorID uint) *models.Post {
	t.Helper()
	post := &models.Post{AuthorID: authorID, Content: "post by author"}
	require.NoError(t, repo.Create(context.Background(), post))
	return post
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, models.ErrorCode(err), "unexpected error: %v", err)
}
