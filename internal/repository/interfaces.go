package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
)

// Every method takes ctx first so an abandoned HTTP request or closed
// websocket cancels the query it started.
//
// Lookups return nil, nil when the row does not exist. Deletes are
// idempotent. Updates of a missing row return ErrNotFound.

var (
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("row not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate row")
	// ErrMissingReference is returned when a write points at a row that
	// does not exist (foreign key violation).
	ErrMissingReference = errors.New("referenced row does not exist")
)

// UserRepository handles user profiles mirrored from the identity provider.
type UserRepository interface {
	// Create inserts a user. ErrDuplicate if the id is taken.
	Create(ctx context.Context, u *models.User) error

	// GetByID returns nil, nil if not found.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// Update overwrites the mutable profile fields.
	Update(ctx context.Context, u *models.User) error

	// Delete removes the user and, through cascades, everything that
	// references them.
	Delete(ctx context.Context, userID uuid.UUID) error
}

// FriendRepository is the symmetric friend graph. Each pair is two rows.
type FriendRepository interface {
	// Add inserts both directed rows. ErrDuplicate if either exists.
	Add(ctx context.Context, userID, friendID uuid.UUID) error

	// Remove deletes both directed rows.
	Remove(ctx context.Context, userID, friendID uuid.UUID) error

	Exists(ctx context.Context, userID, friendID uuid.UUID) (bool, error)

	// ListIDs is the hot path for presence fan-out.
	ListIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	// List returns the friends' profiles ordered by display name.
	List(ctx context.Context, userID uuid.UUID) ([]models.User, error)
}

// FriendRequestRepository holds pending friendship proposals.
type FriendRequestRepository interface {
	Create(ctx context.Context, r *models.FriendRequest) error
	GetByID(ctx context.Context, requestID uuid.UUID) (*models.FriendRequest, error)

	// FindBetween returns a pending request in either direction, or nil.
	FindBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error)

	// ListIncoming returns requests addressed to userID, newest first.
	ListIncoming(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)

	Delete(ctx context.Context, requestID uuid.UUID) error

	// DeleteBetween removes pending requests in both directions.
	DeleteBetween(ctx context.Context, a, b uuid.UUID) error
}

// SpaceRepository handles space rows.
type SpaceRepository interface {
	// Create inserts a space. ErrDuplicate if the id is taken.
	Create(ctx context.Context, s *models.Space) error
	GetByID(ctx context.Context, spaceID uuid.UUID) (*models.Space, error)
	Update(ctx context.Context, spaceID uuid.UUID, name string, theme models.Theme) error
	Delete(ctx context.Context, spaceID uuid.UUID) error

	// LockForUpdate blocks other transactions from changing the space's
	// membership until the current transaction ends. ErrNotFound if the
	// space does not exist. Only meaningful inside WithTx.
	LockForUpdate(ctx context.Context, spaceID uuid.UUID) error

	// OwnerHasSpaceNamed reports whether ownerID already owns a space called name.
	OwnerHasSpaceNamed(ctx context.Context, ownerID uuid.UUID, name string) (bool, error)

	// ListOwned returns spaces where userID holds the owner role.
	ListOwned(ctx context.Context, userID uuid.UUID) ([]models.Space, error)

	// ListInvited returns spaces where userID is a member with any
	// role other than owner.
	ListInvited(ctx context.Context, userID uuid.UUID) ([]models.Space, error)
}

// MemberRepository is the space membership join table.
type MemberRepository interface {
	// Add inserts a member. ErrDuplicate if (space, user) exists.
	Add(ctx context.Context, m *models.SpaceMember) error

	// Get returns nil, nil if userID is not a member of spaceID.
	Get(ctx context.Context, spaceID, userID uuid.UUID) (*models.SpaceMember, error)

	UpdateRole(ctx context.Context, spaceID, userID uuid.UUID, role models.Role) error
	Remove(ctx context.Context, spaceID, userID uuid.UUID) error
	DeleteBySpace(ctx context.Context, spaceID uuid.UUID) error

	// ListProfiles returns members joined with their profiles.
	ListProfiles(ctx context.Context, spaceID uuid.UUID) ([]models.SpaceMemberProfile, error)

	CountOwners(ctx context.Context, spaceID uuid.UUID) (int, error)

	// TouchLastConnection records that userID entered spaceID at `at`.
	TouchLastConnection(ctx context.Context, spaceID, userID uuid.UUID, at time.Time) error
}

// SpaceRequestRepository holds pending space invitations.
type SpaceRequestRepository interface {
	// Create inserts a request. ErrDuplicate if one is already
	// outstanding for (space, invited).
	Create(ctx context.Context, r *models.SpaceRequest) error
	GetByID(ctx context.Context, requestID uuid.UUID) (*models.SpaceRequest, error)
	FindPending(ctx context.Context, spaceID, invitedID uuid.UUID) (*models.SpaceRequest, error)

	// ListForInvitee returns requests addressed to userID with the space
	// name attached, newest first.
	ListForInvitee(ctx context.Context, userID uuid.UUID) ([]models.SpaceInvite, error)

	Delete(ctx context.Context, requestID uuid.UUID) error
	DeleteFor(ctx context.Context, spaceID, invitedID uuid.UUID) error
	DeleteBySpace(ctx context.Context, spaceID uuid.UUID) error
}

// StatusRepository is the persisted half of presence. Each row belongs to
// the connection that wrote it last; a stale connection cannot change or
// remove a row claimed by a newer one.
type StatusRepository interface {
	// Upsert creates or replaces the user's row and hands it to connID.
	// A nil spaceID means online.
	Upsert(ctx context.Context, userID uuid.UUID, connID string, spaceID *uuid.UUID) error

	// SetSpace moves the user in or out of a space. It reports false and
	// changes nothing when the row is missing or held by another connection.
	SetSpace(ctx context.Context, userID uuid.UUID, connID string, spaceID *uuid.UUID) (bool, error)

	Get(ctx context.Context, userID uuid.UUID) (*models.UserStatus, error)

	// Delete removes the row only while connID still holds it.
	Delete(ctx context.Context, userID uuid.UUID, connID string) error

	// ListFor returns the rows that exist among userIDs.
	ListFor(ctx context.Context, userIDs []uuid.UUID) ([]models.UserStatus, error)

	// ClearSpace moves everyone in spaceID back to plain online.
	ClearSpace(ctx context.Context, spaceID uuid.UUID) error

	// DeleteAll drops every row. Used at boot when connections do not
	// survive a restart.
	DeleteAll(ctx context.Context) error
}

// Store groups the repositories and scopes them to a transaction.
type Store interface {
	Users() UserRepository
	Friends() FriendRepository
	FriendRequests() FriendRequestRepository
	Spaces() SpaceRepository
	Members() MemberRepository
	Requests() SpaceRequestRepository
	Statuses() StatusRepository

	// WithTx runs fn against a Store whose repositories share one
	// transaction. fn's writes are committed only if it returns nil.
	// Calling WithTx on a transactional Store reuses the transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
