package space

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

type InviteInput struct {
	SpaceID   uuid.UUID
	InviterID uuid.UUID
	InvitedID uuid.UUID
	Role      string
}

// InviteUser records a pending invitation. The inviter must belong to the
// space and may not grant a role above their own; nobody is invited as owner.
func (s *Service) InviteUser(ctx context.Context, in InviteInput) (*models.SpaceRequest, error) {
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if role == models.RoleOwner {
		return nil, apperr.Validation("cannot invite a user as owner")
	}
	if in.InviterID == in.InvitedID {
		return nil, apperr.Validation("cannot invite yourself")
	}

	if _, err := s.loadSpace(ctx, s.store, in.SpaceID); err != nil {
		return nil, err
	}
	inviter, err := s.requireMember(ctx, s.store, in.SpaceID, in.InviterID)
	if err != nil {
		return nil, err
	}
	if role.Outranks(inviter.Role) {
		return nil, apperr.Forbidden("cannot grant a role above your own")
	}

	invited, err := s.store.Users().GetByID(ctx, in.InvitedID)
	if err != nil {
		return nil, apperr.Internal(err, "load invited user")
	}
	if invited == nil {
		return nil, apperr.NotFound("user not found")
	}
	existing, err := s.store.Members().Get(ctx, in.SpaceID, in.InvitedID)
	if err != nil {
		return nil, apperr.Internal(err, "load membership")
	}
	if existing != nil {
		return nil, apperr.Conflict("user is already a member")
	}
	pending, err := s.store.Requests().FindPending(ctx, in.SpaceID, in.InvitedID)
	if err != nil {
		return nil, apperr.Internal(err, "load pending invite")
	}
	if pending != nil {
		return nil, apperr.Conflict("user already has a pending invite")
	}

	req := &models.SpaceRequest{
		ID:        uuid.New(),
		SpaceID:   in.SpaceID,
		InviterID: in.InviterID,
		InvitedID: in.InvitedID,
		Role:      role,
	}
	if err := s.store.Requests().Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("user already has a pending invite")
		}
		return nil, apperr.Internal(err, "insert space request")
	}

	s.notify(ctx, presence.EventSpaceRequests, in.InvitedID)
	return req, nil
}

// AcceptInvite turns the invitation into a membership. Every request for
// the same space and invitee is cleared in the same transaction.
func (s *Service) AcceptInvite(ctx context.Context, requestID, userID uuid.UUID) (*models.SpaceMember, error) {
	var member *models.SpaceMember
	var inviterID uuid.UUID

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		req, err := tx.Requests().GetByID(ctx, requestID)
		if err != nil {
			return apperr.Internal(err, "load space request")
		}
		if req == nil {
			return apperr.NotFound("invite not found")
		}
		if req.InvitedID != userID {
			return apperr.Forbidden("invite is addressed to another user")
		}
		inviterID = req.InviterID

		if err := tx.Requests().DeleteFor(ctx, req.SpaceID, req.InvitedID); err != nil {
			return apperr.Internal(err, "clear space requests")
		}

		member = &models.SpaceMember{SpaceID: req.SpaceID, UserID: req.InvitedID, Role: req.Role}
		if err := tx.Members().Add(ctx, member); err != nil {
			switch {
			case errors.Is(err, repository.ErrDuplicate):
				return apperr.Conflict("already a member of this space")
			case errors.Is(err, repository.ErrMissingReference):
				return apperr.NotFound("space not found")
			}
			return apperr.Internal(err, "insert space member")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("space invite accepted",
		zap.Stringer("space_id", member.SpaceID),
		zap.Stringer("user_id", userID),
		zap.String("role", member.Role.String()),
	)
	s.notify(ctx, presence.EventSpaceRequests, userID, inviterID)
	return member, nil
}

// RejectInvite deletes an invitation. The invitee declines it or the
// inviter withdraws it.
func (s *Service) RejectInvite(ctx context.Context, requestID, userID uuid.UUID) error {
	req, err := s.store.Requests().GetByID(ctx, requestID)
	if err != nil {
		return apperr.Internal(err, "load space request")
	}
	if req == nil {
		return apperr.NotFound("invite not found")
	}
	if req.InvitedID != userID && req.InviterID != userID {
		return apperr.Forbidden("not your invite")
	}
	if err := s.store.Requests().Delete(ctx, requestID); err != nil {
		return apperr.Internal(err, "delete space request")
	}

	s.notify(ctx, presence.EventSpaceRequests, req.InvitedID, req.InviterID)
	return nil
}

// ListInvites returns the pending invitations addressed to userID.
func (s *Service) ListInvites(ctx context.Context, userID uuid.UUID) ([]models.SpaceInvite, error) {
	invites, err := s.store.Requests().ListForInvitee(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "list space requests")
	}
	return invites, nil
}

// RemoveMember removes targetID from the space. Anyone may leave; removing
// someone else needs a strictly higher role and never works on an owner.
// The last owner cannot leave.
func (s *Service) RemoveMember(ctx context.Context, spaceID, actingID, targetID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := lockSpace(ctx, tx, spaceID); err != nil {
			return err
		}
		acting, err := s.requireMember(ctx, tx, spaceID, actingID)
		if err != nil {
			return err
		}
		target := acting
		if targetID != actingID {
			target, err = tx.Members().Get(ctx, spaceID, targetID)
			if err != nil {
				return apperr.Internal(err, "load membership")
			}
			if target == nil {
				return apperr.NotFound("user is not a member of this space")
			}
			if !CanRemove(acting.Role, target.Role) {
				return apperr.Forbidden("insufficient role to remove this member")
			}
		}

		if target.Role == models.RoleOwner {
			if err := requireAnotherOwner(ctx, tx, spaceID); err != nil {
				return err
			}
		}
		if err := tx.Members().Remove(ctx, spaceID, targetID); err != nil {
			return apperr.Internal(err, "remove space member")
		}
		return nil
	})
}

// EditUserRole changes targetID's role. Owner only; the last owner cannot
// be demoted.
func (s *Service) EditUserRole(ctx context.Context, actingID, targetID, spaceID uuid.UUID, role string) error {
	newRole, err := models.ParseRole(role)
	if err != nil {
		return apperr.Validation(err.Error())
	}

	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := lockSpace(ctx, tx, spaceID); err != nil {
			return err
		}
		if err := s.requireOwner(ctx, tx, spaceID, actingID); err != nil {
			return err
		}
		target, err := tx.Members().Get(ctx, spaceID, targetID)
		if err != nil {
			return apperr.Internal(err, "load membership")
		}
		if target == nil {
			return apperr.NotFound("user is not a member of this space")
		}
		if target.Role == newRole {
			return nil
		}
		if target.Role == models.RoleOwner {
			if err := requireAnotherOwner(ctx, tx, spaceID); err != nil {
				return err
			}
		}
		if err := tx.Members().UpdateRole(ctx, spaceID, targetID, newRole); err != nil {
			return apperr.Internal(err, "update member role")
		}
		return nil
	})
}

// CanRemove reports whether a member with role acting may remove another
// member with role target.
func CanRemove(acting, target models.Role) bool {
	return acting.Outranks(target) && target != models.RoleOwner
}

// lockSpace serializes owner-changing transactions on one space. Without
// it two owners leaving at once would both count two owners.
func lockSpace(ctx context.Context, tx repository.Store, spaceID uuid.UUID) error {
	if err := tx.Spaces().LockForUpdate(ctx, spaceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("space not found")
		}
		return apperr.Internal(err, "lock space")
	}
	return nil
}

// requireAnotherOwner must run after lockSpace in the same transaction.
func requireAnotherOwner(ctx context.Context, tx repository.Store, spaceID uuid.UUID) error {
	owners, err := tx.Members().CountOwners(ctx, spaceID)
	if err != nil {
		return apperr.Internal(err, "count owners")
	}
	if owners <= 1 {
		return apperr.Conflict("a space must keep at least one owner")
	}
	return nil
}
