package repository

import (
	"context"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"

	"gorm.io/gorm"
)

// ChatRepository is the append-only chat log.
type ChatRepository interface {
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	// History returns messages of chatID ordered by (created_at, id) ascending.
	History(ctx context.Context, chatID string, limit, offset int) ([]*models.ChatMessage, error)
}

type chatRepository struct {
	db  *gorm.DB
	log *observability.StoreLogger
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db, log: observability.NewStoreLogger("chat_messages")}
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	ctx, span := observability.StartStoreSpan(ctx, "chat_messages", "create")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		r.log.Failed(ctx, "create", err)
		observability.RecordErrorInContext(ctx, err)
		return models.NewInternalError(err)
	}
	r.log.Done(ctx, "create", "chat_id", msg.ChatID, "message_id", msg.ID)
	return nil
}

func (r *chatRepository) History(ctx context.Context, chatID string, limit, offset int) ([]*models.ChatMessage, error) {
	var msgs []*models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}
