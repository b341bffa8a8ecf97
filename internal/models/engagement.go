package models

import (
	"slices"
	"time"
)

// ReactionKind is the flavour of a like.
type ReactionKind string

const (
	ReactionLike  ReactionKind = "like"
	ReactionLove  ReactionKind = "love"
	ReactionLaugh ReactionKind = "laugh"
	ReactionWow   ReactionKind = "wow"
	ReactionSad   ReactionKind = "sad"
	ReactionAngry ReactionKind = "angry"
	ReactionFire  ReactionKind = "fire"
)

// TargetKind names what a like is attached to.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

var reactionsByTarget = map[TargetKind][]ReactionKind{
	TargetPost:    {ReactionLike, ReactionLove, ReactionLaugh, ReactionWow, ReactionSad, ReactionAngry, ReactionFire},
	TargetComment: {ReactionLike, ReactionLove, ReactionLaugh, ReactionFire},
}

// AllowedOn reports whether the reaction may be used on the given target kind.
func (k ReactionKind) AllowedOn(target TargetKind) bool {
	return slices.Contains(reactionsByTarget[target], k)
}

// LikeEntry is one member of a like set. UserID is unique within a set.
type LikeEntry struct {
	UserID    uint         `json:"user_id"`
	Reaction  ReactionKind `json:"reaction"`
	CreatedAt time.Time    `json:"created_at"`
}

// ToggleLike flips userID's membership in likes. It never mutates the input;
// the returned slice is the new set and liked tells which way it flipped.
// Any duplicate entries for userID are collapsed on removal.
func ToggleLike(likes []LikeEntry, userID uint, kind ReactionKind, now time.Time) ([]LikeEntry, bool) {
	next := make([]LikeEntry, 0, len(likes)+1)
	removed := false
	for _, l := range likes {
		if l.UserID == userID {
			removed = true
			continue
		}
		next = append(next, l)
	}
	if removed {
		return next, false
	}
	if kind == "" {
		kind = ReactionLike
	}
	return append(next, LikeEntry{UserID: userID, Reaction: kind, CreatedAt: now}), true
}

// AddMember returns ids with id appended unless it is already there.
func AddMember(ids []uint, id uint) ([]uint, bool) {
	if slices.Contains(ids, id) {
		return slices.Clone(ids), false
	}
	next := make([]uint, 0, len(ids)+1)
	next = append(next, ids...)
	return append(next, id), true
}

// RemoveMember returns ids without any occurrence of id.
func RemoveMember(ids []uint, id uint) ([]uint, bool) {
	next := make([]uint, 0, len(ids))
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		next = append(next, v)
	}
	return next, removed
}
