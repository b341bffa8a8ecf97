package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/observability"
	"vibefeed/internal/repository"
	"vibefeed/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// History bounds.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// ChatService is the Chat Message Pipeline: persist, then broadcast, one
// room at a time.
type ChatService struct {
	chatRepo  repository.ChatRepository
	publisher EventPublisher
	now       func() time.Time

	locks notifications.RoomLocks

	mu        sync.Mutex
	lastStamp map[string]time.Time
	lastPrune time.Time
}

// stampRetention is how long a room's last timestamp is kept once the room
// goes quiet. Later sends compare against the clock alone.
const stampRetention = time.Second

// SendMessageInput is the validated shape of an inbound chat message.
type SendMessageInput struct {
	ChatID  string `json:"chatId" validate:"required,max=128,chatid"`
	Content string `json:"content" validate:"required,max=2000"`
}

// NewChatService returns a new ChatService. publisher may be nil.
func NewChatService(chatRepo repository.ChatRepository, publisher EventPublisher) *ChatService {
	return &ChatService{
		chatRepo:  chatRepo,
		publisher: publisherOrNop(publisher),
		now:       time.Now,
		lastStamp: make(map[string]time.Time),
	}
}

// Send stores a message and then publishes new-message to the chat room.
// Sends to the same room are serialised so stored order, timestamp order and
// delivery order agree. A message that fails to persist is never published.
func (s *ChatService) Send(ctx context.Context, chatID string, sender models.Principal, content string) (*models.ChatMessage, error) {
	if !sender.Authenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	in := SendMessageInput{ChatID: strings.TrimSpace(chatID), Content: strings.TrimSpace(content)}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	ctx, span := observability.StartServiceSpan(ctx, "chat", "send", attribute.String("chat.id", in.ChatID))
	unlock := s.locks.Lock(in.ChatID)
	defer unlock()

	msg := &models.ChatMessage{
		ChatID:         in.ChatID,
		SenderID:       sender.UserID,
		SenderUsername: sender.Username,
		Content:        in.Content,
		CreatedAt:      s.stamp(in.ChatID),
	}
	err := s.chatRepo.CreateMessage(ctx, msg)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	observability.ChatMessagesStored.Inc()

	s.publisher.Publish(ctx, notifications.ChatRoom(in.ChatID), notifications.Event{
		Type:    notifications.EventNewMessage,
		Payload: notifications.NewMessage{ChatID: in.ChatID, Message: msg},
	})
	return msg, nil
}

// stamp returns a createdAt strictly after the previous one issued for the
// room. Stored precision is milliseconds.
func (s *ChatService) stamp(chatID string) time.Time {
	now := s.now().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastPrune) >= stampRetention {
		for id, last := range s.lastStamp {
			if now.Sub(last) > stampRetention {
				delete(s.lastStamp, id)
			}
		}
		s.lastPrune = now
	}
	if last, ok := s.lastStamp[chatID]; ok && !now.After(last) {
		now = last.Add(time.Millisecond)
	}
	s.lastStamp[chatID] = now
	return now
}

// History returns the room's messages oldest first. limit defaults to 50 and
// is capped at 100.
func (s *ChatService) History(ctx context.Context, chatID string, limit, offset int) ([]*models.ChatMessage, error) {
	chatID, err := validation.ChatID(chatID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.chatRepo.History(ctx, chatID, limit, offset)
}
