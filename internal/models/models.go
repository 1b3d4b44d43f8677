package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a person registered through the identity provider.
//
// The ID is the identity provider's user id, so rows are created by the
// provider's webhook rather than by a signup endpoint.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Nickname    string    `json:"nickname"`
	AvatarURL   string    `json:"avatar_url"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

// Friendship is one directed row of a symmetric friendship.
// Every pair is stored twice: (A, B) and (B, A).
type Friendship struct {
	UserID    uuid.UUID `json:"user_id"`
	FriendID  uuid.UUID `json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FriendRequest is a pending friendship proposal from Requester to Addressee.
type FriendRequest struct {
	ID          uuid.UUID `json:"id"`
	RequesterID uuid.UUID `json:"requester_id"`
	AddresseeID uuid.UUID `json:"addressee_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Space is a named, password-protected remote desktop session.
//
// PasswordHash never leaves the server; handlers return SpaceView instead.
type Space struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Theme        Theme     `json:"theme"`
	PasswordHash string    `json:"-"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// AppNameFor builds the name a new space is registered under with the
// provisioning API: the lowercased alphanumeric name plus the space id.
// Renaming a space later does not rename the app, so deletes derive the
// app name from the stored URL instead.
func AppNameFor(name string, id uuid.UUID) string {
	out := make([]byte, 0, len(name)+37)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		}
	}
	out = append(out, '-')
	return string(out) + id.String()
}

// SpaceMember is the join table between spaces and users.
// Exactly one row exists per (SpaceID, UserID).
type SpaceMember struct {
	SpaceID        uuid.UUID  `json:"space_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Role           Role       `json:"role"`
	LastConnection *time.Time `json:"last_connection,omitempty"`
}

// SpaceRequest is a pending invitation into a space.
// At most one is outstanding per (SpaceID, InvitedID).
type SpaceRequest struct {
	ID        uuid.UUID `json:"id"`
	SpaceID   uuid.UUID `json:"space_id"`
	InviterID uuid.UUID `json:"inviter_id"`
	InvitedID uuid.UUID `json:"invited_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStatus is the persisted half of presence. The row exists while the user
// holds a live connection; a nil SpaceID means "online, not in a space".
type UserStatus struct {
	UserID       uuid.UUID  `json:"user_id"`
	SpaceID      *uuid.UUID `json:"space_id,omitempty"`
	ConnectionID string     `json:"-"`
}

// SpaceView is the public shape of a space.
type SpaceView struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Theme Theme     `json:"theme"`
	URL   string    `json:"url"`
}

// View strips server-only fields.
func (s Space) View() SpaceView {
	return SpaceView{ID: s.ID, Name: s.Name, Theme: s.Theme, URL: s.URL}
}

// SpaceMemberProfile is a member row joined with the member's profile.
type SpaceMemberProfile struct {
	User
	Role           Role       `json:"role"`
	LastConnection *time.Time `json:"last_connection,omitempty"`
}

// SpaceInvite is a pending request joined with the space it points at.
type SpaceInvite struct {
	SpaceRequest
	SpaceName string `json:"space_name"`
}

// PresenceState is how a friend appears in the friends list.
type PresenceState string

const (
	PresenceOffline PresenceState = "offline"
	PresenceOnline  PresenceState = "online"
	PresenceInSpace PresenceState = "in_space"
)

// FriendPresence is a friend's profile with their current presence.
type FriendPresence struct {
	User
	Status  PresenceState `json:"status"`
	SpaceID *uuid.UUID    `json:"space_id,omitempty"`
}
