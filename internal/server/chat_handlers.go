package server

import (
	"time"

	"vibefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// send-message is limited per user on both the REST and realtime paths.
const (
	sendMessageResource = "send_chat"
	sendMessageLimit    = 15
	sendMessageWindow   = time.Minute
)

// SendMessageRequest is the body of POST /api/chats/:chatId/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// GetChatMessages handles GET /api/chats/:chatId/messages
func (s *Server) GetChatMessages(c *fiber.Ctx) error {
	messages, err := s.chatService.History(c.UserContext(), c.Params("chatId"),
		c.QueryInt("limit", service.DefaultHistoryLimit), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(messages)
}

// SendChatMessage handles POST /api/chats/:chatId/messages
func (s *Server) SendChatMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	msg, err := s.chatService.Send(c.UserContext(), c.Params("chatId"), principal(c), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}
