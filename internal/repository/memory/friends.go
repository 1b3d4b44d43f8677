package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type friendRepo struct{ s *Store }

func (r friendRepo) Add(_ context.Context, userID, friendID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.users[userID]; !ok {
		return repository.ErrMissingReference
	}
	if _, ok := st.users[friendID]; !ok {
		return repository.ErrMissingReference
	}
	ab := friendKey{userID, friendID}
	ba := friendKey{friendID, userID}
	if _, ok := st.friends[ab]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := st.friends[ba]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	st.friends[ab] = models.Friendship{UserID: userID, FriendID: friendID, CreatedAt: now}
	st.friends[ba] = models.Friendship{UserID: friendID, FriendID: userID, CreatedAt: now}
	return nil
}

func (r friendRepo) Remove(_ context.Context, userID, friendID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	delete(st.friends, friendKey{userID, friendID})
	delete(st.friends, friendKey{friendID, userID})
	return nil
}

func (r friendRepo) Exists(_ context.Context, userID, friendID uuid.UUID) (bool, error) {
	st, release := r.s.view()
	defer release()

	_, ok := st.friends[friendKey{userID, friendID}]
	return ok, nil
}

func (r friendRepo) ListIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	st, release := r.s.view()
	defer release()

	ids := make([]uuid.UUID, 0)
	for k := range st.friends {
		if k.user == userID {
			ids = append(ids, k.friend)
		}
	}
	return ids, nil
}

func (r friendRepo) List(_ context.Context, userID uuid.UUID) ([]models.User, error) {
	st, release := r.s.view()
	defer release()

	users := make([]models.User, 0)
	for k := range st.friends {
		if k.user != userID {
			continue
		}
		if u, ok := st.users[k.friend]; ok {
			users = append(users, u)
		}
	}
	sortUsers(users)
	return users, nil
}

func sortUsers(users []models.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].DisplayName != users[j].DisplayName {
			return users[i].DisplayName < users[j].DisplayName
		}
		return users[i].ID.String() < users[j].ID.String()
	})
}

type friendRequestRepo struct{ s *Store }

func (r friendRequestRepo) Create(_ context.Context, fr *models.FriendRequest) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.users[fr.RequesterID]; !ok {
		return repository.ErrMissingReference
	}
	if _, ok := st.users[fr.AddresseeID]; !ok {
		return repository.ErrMissingReference
	}
	if _, ok := st.friendRequests[fr.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range st.friendRequests {
		if existing.RequesterID == fr.RequesterID && existing.AddresseeID == fr.AddresseeID {
			return repository.ErrDuplicate
		}
	}
	fr.CreatedAt = time.Now().UTC()
	st.friendRequests[fr.ID] = *fr
	return nil
}

func (r friendRequestRepo) GetByID(_ context.Context, requestID uuid.UUID) (*models.FriendRequest, error) {
	st, release := r.s.view()
	defer release()

	fr, ok := st.friendRequests[requestID]
	if !ok {
		return nil, nil
	}
	return &fr, nil
}

func (r friendRequestRepo) FindBetween(_ context.Context, a, b uuid.UUID) (*models.FriendRequest, error) {
	st, release := r.s.view()
	defer release()

	for _, fr := range st.friendRequests {
		if (fr.RequesterID == a && fr.AddresseeID == b) || (fr.RequesterID == b && fr.AddresseeID == a) {
			return &fr, nil
		}
	}
	return nil, nil
}

func (r friendRequestRepo) ListIncoming(_ context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	st, release := r.s.view()
	defer release()

	out := make([]models.FriendRequest, 0)
	for _, fr := range st.friendRequests {
		if fr.AddresseeID == userID {
			out = append(out, fr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r friendRequestRepo) Delete(_ context.Context, requestID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	delete(st.friendRequests, requestID)
	return nil
}

func (r friendRequestRepo) DeleteBetween(_ context.Context, a, b uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	for id, fr := range st.friendRequests {
		if (fr.RequesterID == a && fr.AddresseeID == b) || (fr.RequesterID == b && fr.AddresseeID == a) {
			delete(st.friendRequests, id)
		}
	}
	return nil
}
