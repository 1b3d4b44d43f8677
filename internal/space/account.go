package space

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
	"go.uber.org/zap"
)

// RemoveAccount deletes userID and settles the spaces they own so that no
// space is left without an owner. A space the user owns alone goes to the
// highest-ranked remaining member. A space with nobody left is deleted and
// its app queued for deprovisioning.
func (s *Service) RemoveAccount(ctx context.Context, userID uuid.UUID) error {
	var orphaned []models.Space
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		owned, err := tx.Spaces().ListOwned(ctx, userID)
		if err != nil {
			return apperr.Internal(err, "list owned spaces")
		}

		for _, sp := range owned {
			if err := lockSpace(ctx, tx, sp.ID); err != nil {
				return err
			}
			owners, err := tx.Members().CountOwners(ctx, sp.ID)
			if err != nil {
				return apperr.Internal(err, "count owners")
			}
			if owners > 1 {
				continue
			}

			heir, err := successor(ctx, tx, sp.ID, userID)
			if err != nil {
				return err
			}
			if heir != nil {
				if err := tx.Members().UpdateRole(ctx, sp.ID, heir.ID, models.RoleOwner); err != nil {
					return apperr.Internal(err, "promote successor")
				}
				s.logger.Info("space ownership handed over",
					zap.Stringer("space_id", sp.ID),
					zap.Stringer("from", userID),
					zap.Stringer("to", heir.ID),
				)
				continue
			}

			if err := deleteSpaceRows(ctx, tx, sp.ID); err != nil {
				return apperr.Internal(err, "delete abandoned space")
			}
			orphaned = append(orphaned, sp)
		}

		if err := tx.Users().Delete(ctx, userID); err != nil {
			return apperr.Internal(err, "delete user")
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, sp := range orphaned {
		s.compensator.Enqueue(s.provisioner.AppNameFromURL(sp.URL))
		s.logger.Info("abandoned space deleted", zap.Stringer("space_id", sp.ID))
	}
	return nil
}

// successor picks the member who inherits a space: highest role first,
// then the most recent connection. Nil when leaving is the only member.
func successor(ctx context.Context, tx repository.Store, spaceID, leaving uuid.UUID) (*models.SpaceMemberProfile, error) {
	members, err := tx.Members().ListProfiles(ctx, spaceID)
	if err != nil {
		return nil, apperr.Internal(err, "list space members")
	}

	var best *models.SpaceMemberProfile
	for i := range members {
		m := &members[i]
		if m.ID == leaving {
			continue
		}
		if best == nil || m.Role.Rank() > best.Role.Rank() ||
			(m.Role.Rank() == best.Role.Rank() && connectedLater(m.LastConnection, best.LastConnection)) {
			best = m
		}
	}
	return best, nil
}

func connectedLater(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}
