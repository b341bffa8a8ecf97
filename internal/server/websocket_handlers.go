package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"vibefeed/internal/featureflags"
	"vibefeed/internal/middleware"
	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/observability"
	"vibefeed/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// chatRef accepts {"chatId": ...} or a bare chat id.
type chatRef struct {
	ChatID notifications.RoomID `json:"chatId"`
}

type sendMessageCommand struct {
	ChatID  notifications.RoomID `json:"chatId"`
	Content string               `json:"content"`
}

// viewStoryCommand identifies the story owner; the viewer is always the
// connection's own principal.
type viewStoryCommand struct {
	UserID  uint   `json:"userId"`
	StoryID string `json:"storyId"`
}

type userTypingCommand struct {
	ChatID   notifications.RoomID `json:"chatId"`
	IsTyping bool                 `json:"isTyping"`
}

// WebsocketUpgrade verifies the handshake credential before upgrade. A
// failed verification still upgrades so the client can be told why; the
// handler then closes without registering the connection.
func (s *Server) WebsocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if p, err := s.verifier.Verify(c.UserContext(), middleware.BearerToken(c)); err == nil {
			c.Locals("principal", p)
		}
		return c.Next()
	}
}

// WebsocketHandler serves the realtime connection.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		p, ok := conn.Locals("principal").(models.Principal)
		if !ok || !p.Authenticated() {
			rejectConn(conn, "Authentication required")
			return
		}

		ctx := context.Background()
		if err := s.userRepo.EnsureUser(ctx, p); err != nil {
			observability.LogAsyncError(ctx, "ensure_user", err, "user_id", p.UserID)
		}

		client, err := s.hub.Connect(ctx, conn, p)
		if err != nil {
			rejectConn(conn, err.Error())
			return
		}
		client.IncomingHandler = s.handleCommand

		go client.WritePump()
		client.ReadPump()
	})
}

func rejectConn(conn *websocket.Conn, msg string) {
	_ = conn.WriteJSON(notifications.ErrorEvent(msg))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg))
	_ = conn.Close()
}

// handleCommand routes one inbound frame. Failures are reported to the
// sending connection as an error event; nothing is returned to the pump.
func (s *Server) handleCommand(c *notifications.Client, raw []byte) {
	ctx := middleware.WithConnID(context.Background(), c.ID)
	ctx = context.WithValue(ctx, middleware.UserIDKey, c.UserID())

	var cmd notifications.Command
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Type == "" {
		s.hub.SendError(c, "Invalid command")
		return
	}
	if !c.Principal.Authenticated() {
		s.hub.SendError(c, "Authentication required")
		return
	}

	var err error
	switch cmd.Type {
	case notifications.CommandJoinChat:
		err = s.joinChat(c, cmd.Payload)
	case notifications.CommandLeaveChat:
		err = s.leaveChat(c, cmd.Payload)
	case notifications.CommandSendMessage:
		err = s.sendMessage(ctx, c, cmd.Payload)
	case notifications.CommandViewStory:
		err = s.viewStory(ctx, c, cmd.Payload)
	case notifications.CommandUserTyping:
		err = s.userTyping(ctx, c, cmd.Payload)
	default:
		err = models.NewValidationError("Unknown command " + cmd.Type)
	}
	if err != nil {
		if models.HTTPStatus(err) == fiber.StatusInternalServerError {
			middleware.Logger.ErrorContext(ctx, "realtime command failed", "command", cmd.Type, "error", err)
			s.hub.SendError(c, "Internal server error")
			return
		}
		s.hub.SendError(c, commandErrorMessage(err))
	}
}

func commandErrorMessage(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func decodeChatID(payload json.RawMessage) (string, error) {
	var ref chatRef
	if err := json.Unmarshal(payload, &ref); err == nil && ref.ChatID != "" {
		return validation.ChatID(string(ref.ChatID))
	}
	var bare notifications.RoomID
	if err := json.Unmarshal(payload, &bare); err == nil && bare != "" {
		return validation.ChatID(string(bare))
	}
	return "", models.NewValidationError("chatId is required")
}

func (s *Server) joinChat(c *notifications.Client, payload json.RawMessage) error {
	chatID, err := decodeChatID(payload)
	if err != nil {
		return err
	}
	_, err = s.hub.Join(c, notifications.ChatRoom(chatID))
	return err
}

func (s *Server) leaveChat(c *notifications.Client, payload json.RawMessage) error {
	chatID, err := decodeChatID(payload)
	if err != nil {
		return err
	}
	s.hub.Leave(c, notifications.ChatRoom(chatID))
	return nil
}

func (s *Server) sendMessage(ctx context.Context, c *notifications.Client, payload json.RawMessage) error {
	var cmd sendMessageCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return models.NewValidationError("Invalid send-message payload")
	}

	allowed, err := s.limiter.Allow(ctx, sendMessageResource, fmt.Sprintf("user:%d", c.UserID()), sendMessageLimit, sendMessageWindow)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "rate limit unavailable", "resource", sendMessageResource, "error", err)
	} else if !allowed {
		return models.NewValidationError("Rate limit exceeded")
	}

	_, err = s.chatService.Send(ctx, string(cmd.ChatID), c.Principal, cmd.Content)
	return err
}

func (s *Server) viewStory(ctx context.Context, c *notifications.Client, payload json.RawMessage) error {
	if !s.featureFlags.Enabled(featureflags.StoryViews, c.UserID()) {
		return nil
	}
	var cmd viewStoryCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return models.NewValidationError("Invalid view-story payload")
	}
	if cmd.UserID == 0 || cmd.StoryID == "" {
		return models.NewValidationError("userId and storyId are required")
	}

	s.hub.Publish(ctx, notifications.UserRoom(cmd.UserID), notifications.Event{
		Type:    notifications.EventStoryViewed,
		Payload: notifications.StoryViewed{ViewerID: c.UserID(), StoryID: cmd.StoryID},
	})
	return nil
}

func (s *Server) userTyping(ctx context.Context, c *notifications.Client, payload json.RawMessage) error {
	if !s.featureFlags.Enabled(featureflags.TypingIndicators, c.UserID()) {
		return nil
	}
	var cmd userTypingCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return models.NewValidationError("Invalid user-typing payload")
	}
	chatID, err := validation.ChatID(string(cmd.ChatID))
	if err != nil {
		return err
	}
	s.hub.PublishExcept(ctx, notifications.ChatRoom(chatID), notifications.Event{
		Type:    notifications.EventTypingIndicator,
		Payload: notifications.TypingIndicator{ChatID: chatID, UserID: c.UserID(), IsTyping: cmd.IsTyping},
	}, c)
	return nil
}
