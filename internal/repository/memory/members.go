package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type memberRepo struct{ s *Store }

func (r memberRepo) Add(_ context.Context, m *models.SpaceMember) error {
	st, release := r.s.view()
	defer release()

	if _, ok := st.spaces[m.SpaceID]; !ok {
		return repository.ErrMissingReference
	}
	if _, ok := st.users[m.UserID]; !ok {
		return repository.ErrMissingReference
	}
	key := memberKey{m.SpaceID, m.UserID}
	if _, ok := st.members[key]; ok {
		return repository.ErrDuplicate
	}
	st.members[key] = *m
	return nil
}

func (r memberRepo) Get(_ context.Context, spaceID, userID uuid.UUID) (*models.SpaceMember, error) {
	st, release := r.s.view()
	defer release()

	m, ok := st.members[memberKey{spaceID, userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r memberRepo) UpdateRole(_ context.Context, spaceID, userID uuid.UUID, role models.Role) error {
	st, release := r.s.view()
	defer release()

	key := memberKey{spaceID, userID}
	m, ok := st.members[key]
	if !ok {
		return repository.ErrNotFound
	}
	m.Role = role
	st.members[key] = m
	return nil
}

func (r memberRepo) Remove(_ context.Context, spaceID, userID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	delete(st.members, memberKey{spaceID, userID})
	return nil
}

func (r memberRepo) DeleteBySpace(_ context.Context, spaceID uuid.UUID) error {
	st, release := r.s.view()
	defer release()

	for k := range st.members {
		if k.space == spaceID {
			delete(st.members, k)
		}
	}
	return nil
}

func (r memberRepo) ListProfiles(_ context.Context, spaceID uuid.UUID) ([]models.SpaceMemberProfile, error) {
	st, release := r.s.view()
	defer release()

	users := make([]models.User, 0)
	roles := make(map[uuid.UUID]models.SpaceMember)
	for k, m := range st.members {
		if k.space != spaceID {
			continue
		}
		if u, ok := st.users[k.user]; ok {
			users = append(users, u)
			roles[u.ID] = m
		}
	}
	sortUsers(users)

	out := make([]models.SpaceMemberProfile, 0, len(users))
	for _, u := range users {
		m := roles[u.ID]
		out = append(out, models.SpaceMemberProfile{User: u, Role: m.Role, LastConnection: m.LastConnection})
	}
	return out, nil
}

func (r memberRepo) CountOwners(_ context.Context, spaceID uuid.UUID) (int, error) {
	st, release := r.s.view()
	defer release()

	n := 0
	for k, m := range st.members {
		if k.space == spaceID && m.Role == models.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (r memberRepo) TouchLastConnection(_ context.Context, spaceID, userID uuid.UUID, at time.Time) error {
	st, release := r.s.view()
	defer release()

	key := memberKey{spaceID, userID}
	m, ok := st.members[key]
	if !ok {
		return nil
	}
	at = at.UTC()
	m.LastConnection = &at
	st.members[key] = m
	return nil
}
