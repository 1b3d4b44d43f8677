// Package friends manages the friend graph and pending friend requests.
package friends

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/presence"
	"github.com/lalith-99/hop/internal/repository"
	"go.uber.org/zap"
)

// Notifier pushes coarse realtime signals to online users.
type Notifier interface {
	NotifyUsers(ctx context.Context, n presence.Notification, userIDs ...uuid.UUID) error
}

type Service struct {
	store    repository.Store
	notifier Notifier
	logger   *zap.Logger
}

// NewService builds the friends service. notifier may be nil.
func NewService(store repository.Store, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logger}
}

// ListFriends returns userID's friends with their current presence.
func (s *Service) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendPresence, error) {
	friends, err := s.store.Friends().List(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "list friends")
	}
	if len(friends) == 0 {
		return []models.FriendPresence{}, nil
	}

	ids := make([]uuid.UUID, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.ID)
	}
	statuses, err := s.store.Statuses().ListFor(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "list friend statuses")
	}
	byUser := make(map[uuid.UUID]models.UserStatus, len(statuses))
	for _, st := range statuses {
		byUser[st.UserID] = st
	}

	out := make([]models.FriendPresence, 0, len(friends))
	for _, f := range friends {
		fp := models.FriendPresence{User: f, Status: models.PresenceOffline}
		if st, ok := byUser[f.ID]; ok {
			fp.Status = models.PresenceOnline
			if st.SpaceID != nil {
				fp.Status = models.PresenceInSpace
				fp.SpaceID = st.SpaceID
			}
		}
		out = append(out, fp)
	}
	return out, nil
}

// AddFriend links two users directly, clearing any pending request
// between them.
func (s *Service) AddFriend(ctx context.Context, userID, friendID uuid.UUID) error {
	if userID == friendID {
		return apperr.Validation("cannot befriend yourself")
	}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.FriendRequests().DeleteBetween(ctx, userID, friendID); err != nil {
			return apperr.Internal(err, "clear friend requests")
		}
		return addFriendship(ctx, tx, userID, friendID)
	})
	if err != nil {
		return err
	}
	s.notify(ctx, presence.EventOnlineFriends, userID, friendID)
	return nil
}

// RemoveFriend deletes both directions of a friendship.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID uuid.UUID) error {
	ok, err := s.store.Friends().Exists(ctx, userID, friendID)
	if err != nil {
		return apperr.Internal(err, "check friendship")
	}
	if !ok {
		return apperr.NotFound("friendship not found")
	}
	if err := s.store.Friends().Remove(ctx, userID, friendID); err != nil {
		return apperr.Internal(err, "remove friend")
	}
	s.notify(ctx, presence.EventOnlineFriends, userID, friendID)
	return nil
}

// SendRequest proposes a friendship from requesterID to addresseeID.
func (s *Service) SendRequest(ctx context.Context, requesterID, addresseeID uuid.UUID) (*models.FriendRequest, error) {
	if requesterID == addresseeID {
		return nil, apperr.Validation("cannot befriend yourself")
	}
	target, err := s.store.Users().GetByID(ctx, addresseeID)
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	if target == nil {
		return nil, apperr.NotFound("user not found")
	}
	already, err := s.store.Friends().Exists(ctx, requesterID, addresseeID)
	if err != nil {
		return nil, apperr.Internal(err, "check friendship")
	}
	if already {
		return nil, apperr.Conflict("already friends")
	}
	pending, err := s.store.FriendRequests().FindBetween(ctx, requesterID, addresseeID)
	if err != nil {
		return nil, apperr.Internal(err, "load friend request")
	}
	if pending != nil {
		return nil, apperr.Conflict("friend request already pending")
	}

	req := &models.FriendRequest{ID: uuid.New(), RequesterID: requesterID, AddresseeID: addresseeID}
	if err := s.store.FriendRequests().Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("friend request already pending")
		}
		return nil, apperr.Internal(err, "insert friend request")
	}
	s.notify(ctx, presence.EventFriendRequests, addresseeID)
	return req, nil
}

// ListRequests returns the requests addressed to userID.
func (s *Service) ListRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	reqs, err := s.store.FriendRequests().ListIncoming(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "list friend requests")
	}
	return reqs, nil
}

// AcceptRequest turns a request addressed to userID into a friendship.
func (s *Service) AcceptRequest(ctx context.Context, requestID, userID uuid.UUID) error {
	var requesterID uuid.UUID
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		req, err := tx.FriendRequests().GetByID(ctx, requestID)
		if err != nil {
			return apperr.Internal(err, "load friend request")
		}
		if req == nil {
			return apperr.NotFound("friend request not found")
		}
		if req.AddresseeID != userID {
			return apperr.Forbidden("friend request is addressed to another user")
		}
		requesterID = req.RequesterID

		if err := tx.FriendRequests().DeleteBetween(ctx, req.RequesterID, req.AddresseeID); err != nil {
			return apperr.Internal(err, "clear friend requests")
		}
		return addFriendship(ctx, tx, req.RequesterID, req.AddresseeID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("friend request accepted", zap.Stringer("user_id", userID), zap.Stringer("friend_id", requesterID))
	s.notify(ctx, presence.EventOnlineFriends, userID, requesterID)
	s.notify(ctx, presence.EventFriendRequests, userID, requesterID)
	return nil
}

// RejectRequest deletes a request. Either side may do it.
func (s *Service) RejectRequest(ctx context.Context, requestID, userID uuid.UUID) error {
	req, err := s.store.FriendRequests().GetByID(ctx, requestID)
	if err != nil {
		return apperr.Internal(err, "load friend request")
	}
	if req == nil {
		return apperr.NotFound("friend request not found")
	}
	if req.AddresseeID != userID && req.RequesterID != userID {
		return apperr.Forbidden("not your friend request")
	}
	if err := s.store.FriendRequests().Delete(ctx, requestID); err != nil {
		return apperr.Internal(err, "delete friend request")
	}
	s.notify(ctx, presence.EventFriendRequests, req.AddresseeID, req.RequesterID)
	return nil
}

func addFriendship(ctx context.Context, tx repository.Store, a, b uuid.UUID) error {
	if err := tx.Friends().Add(ctx, a, b); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return apperr.Conflict("already friends")
		case errors.Is(err, repository.ErrMissingReference):
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err, "add friend")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, event string, userIDs ...uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyUsers(ctx, presence.Updated(event), userIDs...); err != nil {
		s.logger.Warn("realtime notify failed", zap.String("event", event), zap.Error(err))
	}
}
