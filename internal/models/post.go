// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Post is an engagement document. Every *Count field mirrors the cardinality
// of its collection and is only written in the same versioned update that
// writes the collection.
type Post struct {
	ID               uint                           `gorm:"primaryKey" json:"id"`
	AuthorID         uint                           `gorm:"not null;index" json:"author_id"`
	Content          string                         `gorm:"type:text;not null" json:"content"`
	MediaURL         string                         `json:"media_url,omitempty"`
	CommentsDisabled bool                           `gorm:"not null;default:false" json:"comments_disabled"`
	Likes            datatypes.JSONSlice[LikeEntry] `json:"likes"`
	LikesCount       int                            `gorm:"not null;default:0" json:"likes_count"`
	CommentIDs       datatypes.JSONSlice[uint]      `json:"comment_ids"`
	CommentsCount    int                            `gorm:"not null;default:0" json:"comments_count"`
	Shares           datatypes.JSONSlice[uint]      `json:"shares"`
	SharesCount      int                            `gorm:"not null;default:0" json:"shares_count"`
	ViewsCount       int                            `gorm:"not null;default:0" json:"views_count"`
	TrendScore       float64                        `gorm:"not null;default:0;index" json:"trend_score"`
	Version          int                            `gorm:"not null" json:"-"`
	CreatedAt        time.Time                      `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time                      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt                 `gorm:"index" json:"-"`
}

// AllowsComments reports whether new comments may be attached.
func (p *Post) AllowsComments() bool {
	return !p.CommentsDisabled
}

// AgeHours is the post age used by trend scoring; never negative.
func (p *Post) AgeHours(now time.Time) float64 {
	age := now.Sub(p.CreatedAt).Hours()
	if age < 0 {
		return 0
	}
	return age
}

// Comment is attached to exactly one post for its whole life.
type Comment struct {
	ID         uint                           `gorm:"primaryKey" json:"id"`
	PostID     uint                           `gorm:"not null;index" json:"post_id"`
	AuthorID   uint                           `gorm:"not null;index" json:"author_id"`
	Text       string                         `gorm:"type:text;not null" json:"text"`
	Likes      datatypes.JSONSlice[LikeEntry] `json:"likes"`
	LikesCount int                            `gorm:"not null;default:0" json:"likes_count"`
	Version    int                            `gorm:"not null" json:"-"`
	CreatedAt  time.Time                      `json:"created_at"`
	UpdatedAt  time.Time                      `json:"updated_at"`
}

// ChatMessage is immutable once stored.
type ChatMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id" bson:"id"`
	ChatID         string    `gorm:"size:128;not null;index:idx_chat_messages_chat_created,priority:1" json:"chat_id" bson:"chat_id"`
	SenderID       uint      `gorm:"not null;index" json:"sender_id" bson:"sender_id"`
	SenderUsername string    `gorm:"not null" json:"sender_username" bson:"sender_username"`
	Content        string    `gorm:"type:text;not null" json:"content" bson:"content"`
	CreatedAt      time.Time `gorm:"index:idx_chat_messages_chat_created,priority:2" json:"created_at" bson:"created_at"`
}
