package server

import (
	"vibefeed/internal/models"
	"vibefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePostRequest is the body of POST /api/posts.
type CreatePostRequest struct {
	Content          string `json:"content"`
	MediaURL         string `json:"media_url"`
	CommentsDisabled bool   `json:"comments_disabled"`
}

// ReactionRequest is the optional body of the like endpoints.
type ReactionRequest struct {
	Reaction string `json:"reaction"`
}

// GetTrendingPosts handles GET /api/posts/trending
func (s *Server) GetTrendingPosts(c *fiber.Ctx) error {
	posts, err := s.postService.Trending(c.UserContext(), c.QueryInt("limit", service.DefaultTrendingLimit), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.GetPost(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req CreatePostRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID:         principal(c).UserID,
		Content:          req.Content,
		MediaURL:         req.MediaURL,
		CommentsDisabled: req.CommentsDisabled,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	return s.toggleLike(c, models.TargetPost)
}

// LikeComment handles POST /api/comments/:id/like
func (s *Server) LikeComment(c *fiber.Ctx) error {
	return s.toggleLike(c, models.TargetComment)
}

func (s *Server) toggleLike(c *fiber.Ctx, kind models.TargetKind) error {
	targetID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req ReactionRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.engagementService.ToggleLike(c.UserContext(), service.ToggleLikeInput{
		UserID:     principal(c).UserID,
		TargetID:   targetID,
		TargetKind: kind,
		Reaction:   models.ReactionKind(req.Reaction),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// SharePost handles POST /api/posts/:id/share
func (s *Server) SharePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	res, err := s.engagementService.SharePost(c.UserContext(), postID, principal(c).UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// RecordView handles POST /api/posts/:id/view
func (s *Server) RecordView(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	views, err := s.engagementService.RecordView(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"viewsCount": views})
}
