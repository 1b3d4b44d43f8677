package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type requestRepo struct{ s *Store }

func (r requestRepo) Create(_ context.Context, req *models.SpaceRequest) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.spaces[req.SpaceID]; !ok {
		return repository.ErrMissingReference
	}
	if _, ok := st.users[req.InvitedID]; !ok {
		return repository.ErrMissingReference
	}
	if _, ok := st.requests[req.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range st.requests {
		if existing.SpaceID == req.SpaceID && existing.InvitedID == req.InvitedID {
			return repository.ErrDuplicate
		}
	}
	req.CreatedAt = time.Now().UTC()
	st.requests[req.ID] = *req
	return nil
}

func (r requestRepo) GetByID(_ context.Context, requestID uuid.UUID) (*models.SpaceRequest, error) {
	st, release := r.s.view()
	defer release()

	req, ok := st.requests[requestID]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r requestRepo) FindPending(_ context.Context, spaceID, invitedID uuid.UUID) (*models.SpaceRequest, error) {
	st, release := r.s.view()
	defer release()

	for _, req := range st.requests {
		if req.SpaceID == spaceID && req.InvitedID == invitedID {
			return &req, nil
		}
	}
	return nil, nil
}

func (r requestRepo) ListForInvitee(_ context.Context, userID uuid.UUID) ([]models.SpaceInvite, error) {
	st, release := r.s.view()
	defer release()

	out := make([]models.SpaceInvite, 0)
	for _, req := range st.requests {
		if req.InvitedID != userID {
			continue
		}
		sp, ok := st.spaces[req.SpaceID]
		if !ok {
			continue
		}
		out = append(out, models.SpaceInvite{SpaceRequest: req, SpaceName: sp.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r requestRepo) Delete(_ context.Context, requestID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	delete(st.requests, requestID)
	return nil
}

func (r requestRepo) DeleteFor(_ context.Context, spaceID, invitedID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	for id, req := range st.requests {
		if req.SpaceID == spaceID && req.InvitedID == invitedID {
			delete(st.requests, id)
		}
	}
	return nil
}

func (r requestRepo) DeleteBySpace(_ context.Context, spaceID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	for id, req := range st.requests {
		if req.SpaceID == spaceID {
			delete(st.requests, id)
		}
	}
	return nil
}
