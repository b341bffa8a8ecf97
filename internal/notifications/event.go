package notifications

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Outbound event types.
const (
	EventNewPost         = "new-post"
	EventPostLiked       = "post-liked"
	EventCommentLiked    = "comment-liked"
	EventPostComment     = "post-comment"
	EventCommentDeleted  = "comment-deleted"
	EventNewMessage      = "new-message"
	EventStoryViewed     = "story-viewed"
	EventTypingIndicator = "typing-indicator"
	EventUserStatus      = "user-status"
	EventError           = "error"
)

// Inbound command types.
const (
	CommandJoinChat    = "join-chat"
	CommandLeaveChat   = "leave-chat"
	CommandSendMessage = "send-message"
	CommandViewStory   = "view-story"
	CommandUserTyping  = "user-typing"
)

// Presence states carried by user-status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// GlobalRoom addresses every registered connection.
const GlobalRoom = "*"

// UserRoom is the personal room every connection of userID joins on connect.
func UserRoom(userID uint) string {
	return "user:" + strconv.FormatUint(uint64(userID), 10)
}

// ChatRoom is the room key for a chat id.
func ChatRoom(chatID string) string {
	return "chat:" + chatID
}

// Event is the wire envelope for everything pushed to a connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Command is the wire envelope for everything a connection sends.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LikeToggled is the payload of post-liked and comment-liked.
type LikeToggled struct {
	TargetID   uint   `json:"targetId"`
	TargetKind string `json:"targetKind"`
	PostID     uint   `json:"postId"`
	CommentID  uint   `json:"commentId,omitempty"`
	UserID     uint   `json:"userId"`
	Liked      bool   `json:"liked"`
	LikesCount int    `json:"likesCount"`
}

// PostCommented is the payload of post-comment.
type PostCommented struct {
	PostID        uint `json:"postId"`
	Comment       any  `json:"comment"`
	CommentsCount int  `json:"commentsCount"`
}

// CommentDeleted is the payload of comment-deleted.
type CommentDeleted struct {
	PostID        uint `json:"postId"`
	CommentID     uint `json:"commentId"`
	CommentsCount int  `json:"commentsCount"`
}

// NewMessage is the payload of new-message.
type NewMessage struct {
	ChatID  string `json:"chatId"`
	Message any    `json:"message"`
}

// NewPost is the payload of new-post.
type NewPost struct {
	Post any `json:"post"`
}

// StoryViewed is the payload of story-viewed.
type StoryViewed struct {
	ViewerID uint   `json:"viewerId"`
	StoryID  string `json:"storyId"`
}

// TypingIndicator is the payload of typing-indicator.
type TypingIndicator struct {
	ChatID   string `json:"chatId"`
	UserID   uint   `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// UserStatus is the payload of user-status.
type UserStatus struct {
	UserID uint   `json:"userId"`
	Status string `json:"status"`
}

// ErrorPayload is the payload of error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ErrorEvent builds an error event.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: msg}}
}

// RoomID accepts a JSON string or number; clients send chat ids both ways.
type RoomID string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RoomID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*r = RoomID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("room id must be a string or number: %w", err)
	}
	*r = RoomID(n.String())
	return nil
}
