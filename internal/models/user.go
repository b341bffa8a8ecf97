package models

import (
	"time"
)

// User is the persisted side of a principal: identity plus last known presence.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Username  string     `gorm:"uniqueIndex;not null" json:"username"`
	IsOnline  bool       `gorm:"not null;default:false" json:"is_online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Principal is the verified identity attached to a request or connection.
type Principal struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
}

// Authenticated reports whether the principal came from a verified credential.
func (p Principal) Authenticated() bool {
	return p.UserID != 0
}
