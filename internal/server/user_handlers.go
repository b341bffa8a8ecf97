package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetOnlineUsers handles GET /api/users/online
func (s *Server) GetOnlineUsers(c *fiber.Ctx) error {
	ids := s.hub.OnlineUserIDs(c.UserContext())
	return c.JSON(fiber.Map{
		"userIds": ids,
		"count":   len(ids),
	})
}

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := principal(c).UserID
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(userID),
	})
}
