package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type statusRepo struct{ s *Store }

func (r statusRepo) Upsert(_ context.Context, userID uuid.UUID, connID string, spaceID *uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.users[userID]; !ok {
		return repository.ErrMissingReference
	}
	sid, err := copySpaceRef(st, spaceID)
	if err != nil {
		return err
	}
	st.statuses[userID] = models.UserStatus{UserID: userID, SpaceID: sid, ConnectionID: connID}
	return nil
}

func (r statusRepo) SetSpace(_ context.Context, userID uuid.UUID, connID string, spaceID *uuid.UUID) (bool, error) {
	st, release := r.s.view()
	defer release()

	cur, ok := st.statuses[userID]
	if !ok || cur.ConnectionID != connID {
		return false, nil
	}
	sid, err := copySpaceRef(st, spaceID)
	if err != nil {
		return false, err
	}
	cur.SpaceID = sid
	st.statuses[userID] = cur
	return true, nil
}

func copySpaceRef(st *state, spaceID *uuid.UUID) (*uuid.UUID, error) {
	if spaceID == nil {
		return nil, nil
	}
	if _, ok := st.spaces[*spaceID]; !ok {
		return nil, repository.ErrMissingReference
	}
	v := *spaceID
	return &v, nil
}

func (r statusRepo) Get(_ context.Context, userID uuid.UUID) (*models.UserStatus, error) {
	st, release := r.s.view()
	defer release()

	status, ok := st.statuses[userID]
	if !ok {
		return nil, nil
	}
	return &status, nil
}

func (r statusRepo) Delete(_ context.Context, userID uuid.UUID, connID string) error {
	st, release := r.s.view()
	defer release()

	if cur, ok := st.statuses[userID]; ok && cur.ConnectionID == connID {
		delete(st.statuses, userID)
	}
	return nil
}

func (r statusRepo) ListFor(_ context.Context, userIDs []uuid.UUID) ([]models.UserStatus, error) {
	st, release := r.s.view()
	defer release()

	out := make([]models.UserStatus, 0, len(userIDs))
	for _, id := range userIDs {
		if status, ok := st.statuses[id]; ok {
			out = append(out, status)
		}
	}
	return out, nil
}

func (r statusRepo) ClearSpace(_ context.Context, spaceID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	for id, status := range st.statuses {
		if status.SpaceID != nil && *status.SpaceID == spaceID {
			status.SpaceID = nil
			st.statuses[id] = status
		}
	}
	return nil
}

func (r statusRepo) DeleteAll(_ context.Context) error {
	st, release := r.s.view()
	defer release()

	clear(st.statuses)
	return nil
}
