package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type spaceRepo struct{ s *Store }

func (r spaceRepo) Create(_ context.Context, sp *models.Space) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.spaces[sp.ID]; ok {
		return repository.ErrDuplicate
	}
	sp.CreatedAt = time.Now().UTC()
	st.spaces[sp.ID] = *sp
	return nil
}

func (r spaceRepo) GetByID(_ context.Context, spaceID uuid.UUID) (*models.Space, error) {
	st, release := r.s.view()
	defer release()

	sp, ok := st.spaces[spaceID]
	if !ok {
		return nil, nil
	}
	return &sp, nil
}

func (r spaceRepo) Update(_ context.Context, spaceID uuid.UUID, name string, theme models.Theme) error {
	st, release := r.s.view()
	defer release()

	sp, ok := st.spaces[spaceID]
	if !ok {
		return repository.ErrNotFound
	}
	sp.Name = name
	sp.Theme = theme
	st.spaces[spaceID] = sp
	return nil
}

// LockForUpdate only checks existence; WithTx already runs transactions
// one at a time.
func (r spaceRepo) LockForUpdate(_ context.Context, spaceID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.spaces[spaceID]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (r spaceRepo) Delete(_ context.Context, spaceID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	delete(st.spaces, spaceID)
	for k := range st.members {
		if k.space == spaceID {
			delete(st.members, k)
		}
	}
	for id, req := range st.requests {
		if req.SpaceID == spaceID {
			delete(st.requests, id)
		}
	}
	for id, status := range st.statuses {
		if status.SpaceID != nil && *status.SpaceID == spaceID {
			status.SpaceID = nil
			st.statuses[id] = status
		}
	}
	return nil
}

func (r spaceRepo) OwnerHasSpaceNamed(_ context.Context, ownerID uuid.UUID, name string) (bool, error) {
	st, release := r.s.view()
	defer release()

	for k, m := range st.members {
		if k.user != ownerID || m.Role != models.RoleOwner {
			continue
		}
		if sp, ok := st.spaces[k.space]; ok && sp.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r spaceRepo) ListOwned(_ context.Context, userID uuid.UUID) ([]models.Space, error) {
	return r.list(userID, func(role models.Role) bool { return role == models.RoleOwner })
}

func (r spaceRepo) ListInvited(_ context.Context, userID uuid.UUID) ([]models.Space, error) {
	return r.list(userID, func(role models.Role) bool { return role != models.RoleOwner })
}

func (r spaceRepo) list(userID uuid.UUID, match func(models.Role) bool) ([]models.Space, error) {
	st, release := r.s.view()
	defer release()

	out := make([]models.Space, 0)
	for k, m := range st.members {
		if k.user != userID || !match(m.Role) {
			continue
		}
		if sp, ok := st.spaces[k.space]; ok {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
