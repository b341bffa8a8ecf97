package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleLike_Scenario(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var likes []LikeEntry

	likes, liked := ToggleLike(likes, 1, ReactionLike, now)
	assert.True(t, liked)
	assert.Len(t, likes, 1)

	likes, liked = ToggleLike(likes, 1, ReactionLike, now)
	assert.False(t, liked)
	assert.Empty(t, likes)

	likes, liked = ToggleLike(likes, 2, ReactionFire, now)
	assert.True(t, liked)
	require.Len(t, likes, 1)
	assert.Equal(t, uint(2), likes[0].UserID)
	assert.Equal(t, ReactionFire, likes[0].Reaction)
	assert.NotEqual(t, uint(1), likes[0].UserID)
}

func TestToggleLike_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	orig := []LikeEntry{{UserID: 1, Reaction: ReactionLike}, {UserID: 2, Reaction: ReactionLove}}

	next, liked := ToggleLike(orig, 1, ReactionLike, now)
	assert.False(t, liked)
	assert.Len(t, next, 1)
	assert.Len(t, orig, 2)
	assert.Equal(t, uint(1), orig[0].UserID)
}

func TestToggleLike_DefaultsReactionAndCollapsesDuplicates(t *testing.T) {
	now := time.Now()
	next, liked := ToggleLike(nil, 7, "", now)
	require.True(t, liked)
	assert.Equal(t, ReactionLike, next[0].Reaction)

	dupes := []LikeEntry{{UserID: 7}, {UserID: 8}, {UserID: 7}}
	next, liked = ToggleLike(dupes, 7, ReactionLike, now)
	assert.False(t, liked)
	assert.Equal(t, []LikeEntry{{UserID: 8}}, next)
}

func TestToggleLike_CountTracksLastAction(t *testing.T) {
	now := time.Now()
	var likes []LikeEntry
	// user i toggles i times; odd counts end liked
	wantLiked := 0
	for user := uint(1); user <= 9; user++ {
		for i := uint(0); i < user; i++ {
			likes, _ = ToggleLike(likes, user, ReactionLike, now)
		}
		if user%2 == 1 {
			wantLiked++
		}
	}
	assert.Len(t, likes, wantLiked)
}

func TestReactionKind_AllowedOn(t *testing.T) {
	tests := []struct {
		kind    ReactionKind
		target  TargetKind
		allowed bool
	}{
		{ReactionLike, TargetPost, true},
		{ReactionAngry, TargetPost, true},
		{ReactionAngry, TargetComment, false},
		{ReactionFire, TargetComment, true},
		{"meh", TargetPost, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s on %s", tt.kind, tt.target), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.kind.AllowedOn(tt.target))
		})
	}
}

func TestMembers(t *testing.T) {
	ids, added := AddMember([]uint{1, 2}, 2)
	assert.False(t, added)
	assert.Equal(t, []uint{1, 2}, ids)

	ids, added = AddMember(ids, 3)
	assert.True(t, added)
	assert.Equal(t, []uint{1, 2, 3}, ids)

	ids, removed := RemoveMember(ids, 2)
	assert.True(t, removed)
	assert.Equal(t, []uint{1, 3}, ids)

	ids, removed = RemoveMember(ids, 2)
	assert.False(t, removed)
	assert.Equal(t, []uint{1, 3}, ids)
}

func TestAppError_CodesAndStatus(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", NewNotFoundError("Post", 9))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, 404, HTTPStatus(wrapped))
	assert.Equal(t, 409, HTTPStatus(NewConflictError("busy", errors.New("stale"))))
	assert.Equal(t, 403, HTTPStatus(NewForbiddenError("no")))
	assert.Equal(t, 400, HTTPStatus(NewValidationError("bad")))
	assert.Equal(t, 401, HTTPStatus(NewUnauthorizedError("who")))
	assert.Equal(t, 500, HTTPStatus(errors.New("boom")))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
}
