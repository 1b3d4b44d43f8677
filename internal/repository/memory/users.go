package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *models.User) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.users[u.ID]; ok {
		return repository.ErrDuplicate
	}
	u.CreatedAt = time.Now().UTC()
	st.users[u.ID] = *u
	return nil
}

func (r userRepo) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	st, release := r.s.view()
	defer release()

	u, ok := st.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r userRepo) Update(_ context.Context, u *models.User) error {
	st, release := r.s.view()
	defer release()

	cur, ok := st.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.DisplayName = u.DisplayName
	cur.Nickname = u.Nickname
	cur.AvatarURL = u.AvatarURL
	cur.Email = u.Email
	st.users[u.ID] = cur
	return nil
}

// Delete mirrors the schema's ON DELETE CASCADE rules.
func (r userRepo) Delete(_ context.Context, userID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	delete(st.users, userID)
	for k := range st.friends {
		if k.user == userID || k.friend == userID {
			delete(st.friends, k)
		}
	}
	for id, fr := range st.friendRequests {
		if fr.RequesterID == userID || fr.AddresseeID == userID {
			delete(st.friendRequests, id)
		}
	}
	for k := range st.members {
		if k.user == userID {
			delete(st.members, k)
		}
	}
	for id, req := range st.requests {
		if req.InviterID == userID || req.InvitedID == userID {
			delete(st.requests, id)
		}
	}
	delete(st.statuses, userID)
	return nil
}
