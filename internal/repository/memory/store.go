// Package memory is a process-local repository.Store for development and
// tests. It enforces the same uniqueness and cascade rules as the schema.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type memberKey struct {
	space, user uuid.UUID
}

type friendKey struct {
	user, friend uuid.UUID
}

type state struct {
	users          map[uuid.UUID]models.User
	friends        map[friendKey]models.Friendship
	friendRequests map[uuid.UUID]models.FriendRequest
	spaces         map[uuid.UUID]models.Space
	members        map[memberKey]models.SpaceMember
	requests       map[uuid.UUID]models.SpaceRequest
	statuses       map[uuid.UUID]models.UserStatus
}

func newState() *state {
	return &state{
		users:          make(map[uuid.UUID]models.User),
		friends:        make(map[friendKey]models.Friendship),
		friendRequests: make(map[uuid.UUID]models.FriendRequest),
		spaces:         make(map[uuid.UUID]models.Space),
		members:        make(map[memberKey]models.SpaceMember),
		requests:       make(map[uuid.UUID]models.SpaceRequest),
		statuses:       make(map[uuid.UUID]models.UserStatus),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.friends {
		c.friends[k] = v
	}
	for k, v := range st.friendRequests {
		c.friendRequests[k] = v
	}
	for k, v := range st.spaces {
		c.spaces[k] = v
	}
	for k, v := range st.members {
		c.members[k] = v
	}
	for k, v := range st.requests {
		c.requests[k] = v
	}
	for k, v := range st.statuses {
		c.statuses[k] = v
	}
	return c
}

// Store implements repository.Store. WithTx runs on a copy of the state
// and swaps it in only on success, holding the lock for the duration.
type Store struct {
	mu   *sync.Mutex
	root **state
	data *state
	inTx bool
}

func New() *Store {
	data := newState()
	return &Store{mu: &sync.Mutex{}, root: &data}
}

// view returns the state to operate on and a release func.
func (s *Store) view() (*state, func()) {
	if s.inTx {
		return s.data, func() {}
	}
	s.mu.Lock()
	return *s.root, s.mu.Unlock
}

func (s *Store) Users() repository.UserRepository                   { return userRepo{s} }
func (s *Store) Friends() repository.FriendRepository               { return friendRepo{s} }
func (s *Store) FriendRequests() repository.FriendRequestRepository { return friendRequestRepo{s} }
func (s *Store) Spaces() repository.SpaceRepository                 { return spaceRepo{s} }
func (s *Store) Members() repository.MemberRepository               { return memberRepo{s} }
func (s *Store) Requests() repository.SpaceRequestRepository        { return requestRepo{s} }
func (s *Store) Statuses() repository.StatusRepository              { return statusRepo{s} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := (*s.root).clone()
	if err := fn(&Store{mu: s.mu, root: s.root, data: work, inTx: true}); err != nil {
		return err
	}
	*s.root = work
	return nil
}

var _ repository.Store = (*Store)(nil)
