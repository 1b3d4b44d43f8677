package space

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/presence"
	"github.com/lalith-99/hop/internal/repository"
	"github.com/lalith-99/hop/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeProvisioner struct {
	mu        sync.Mutex
	created   []string
	deleted   []string
	createErr error
	deleteErr error
}

func (f *fakeProvisioner) Create(_ context.Context, appName, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, appName)
	return "https://" + appName + ".fly.dev", nil
}

func (f *fakeProvisioner) Delete(_ context.Context, appName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, appName)
	return nil
}

func (f *fakeProvisioner) AppNameFromURL(url string) string {
	return strings.TrimSuffix(strings.TrimPrefix(url, "https://"), ".fly.dev")
}

type recordingEnqueuer struct {
	apps []string
}

func (r *recordingEnqueuer) Enqueue(appName string) {
	r.apps = append(r.apps, appName)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[uuid.UUID][]string
}

func (r *recordingNotifier) NotifyUsers(_ context.Context, n presence.Notification, ids ...uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[uuid.UUID][]string)
	}
	for _, id := range ids {
		r.calls[id] = append(r.calls[id], n.Event)
	}
	return nil
}

// failingMembersStore makes every membership insert fail inside a
// transaction so the space insert has to roll back.
type failingMembersStore struct {
	repository.Store
}

type failingMembers struct {
	repository.MemberRepository
}

func (failingMembers) Add(context.Context, *models.SpaceMember) error {
	return errors.New("connection reset")
}

func (s failingMembersStore) Members() repository.MemberRepository {
	return failingMembers{s.Store.Members()}
}

func (s failingMembersStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(failingMembersStore{tx})
	})
}

type fixture struct {
	store    *memory.Store
	prov     *fakeProvisioner
	enqueuer *recordingEnqueuer
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		prov:     &fakeProvisioner{},
		enqueuer: &recordingEnqueuer{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.store, f.prov, f.enqueuer, zap.NewNop(),
		WithNotifier(f.notifier),
		WithBcryptCost(bcrypt.MinCost),
	)
	return f
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.Users().Create(context.Background(), &models.User{ID: id, DisplayName: name}))
	return id
}

func (f *fixture) space(t *testing.T, owner uuid.UUID, name string) *models.Space {
	t.Helper()
	sp, err := f.svc.CreateSpace(context.Background(), CreateSpaceInput{Name: name, OwnerID: owner, Password: "hunter2"})
	require.NoError(t, err)
	return sp
}

func (f *fixture) member(t *testing.T, spaceID, userID uuid.UUID, role models.Role) {
	t.Helper()
	require.NoError(t, f.store.Members().Add(context.Background(), &models.SpaceMember{SpaceID: spaceID, UserID: userID, Role: role}))
}

func TestCreateSpace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")

	sp, err := f.svc.CreateSpace(ctx, CreateSpaceInput{Name: "  Lab  ", OwnerID: owner, Password: "hunter2"})
	require.NoError(t, err)

	assert.Equal(t, "Lab", sp.Name)
	assert.Equal(t, models.ThemeDefault, sp.Theme)
	assert.Equal(t, []string{models.AppNameFor("Lab", sp.ID)}, f.prov.created)
	assert.Equal(t, "https://"+models.AppNameFor("Lab", sp.ID)+".fly.dev", sp.URL)
	assert.NotEqual(t, "hunter2", sp.PasswordHash)

	role, err := f.svc.MyRole(ctx, sp.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	ok, err := f.svc.VerifyPassword(ctx, sp.ID, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.VerifyPassword(ctx, sp.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateSpaceValidation(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")

	tests := []struct {
		name string
		in   CreateSpaceInput
		code apperr.Code
	}{
		{"blank name", CreateSpaceInput{Name: "  ", OwnerID: owner, Password: "x"}, apperr.CodeValidation},
		{"long name", CreateSpaceInput{Name: strings.Repeat("a", 65), OwnerID: owner, Password: "x"}, apperr.CodeValidation},
		{"no password", CreateSpaceInput{Name: "lab", OwnerID: owner}, apperr.CodeValidation},
		{"long password", CreateSpaceInput{Name: "lab", OwnerID: owner, Password: strings.Repeat("p", 73)}, apperr.CodeValidation},
		{"bad theme", CreateSpaceInput{Name: "lab", OwnerID: owner, Password: "x", Theme: "neon"}, apperr.CodeValidation},
		{"unknown owner", CreateSpaceInput{Name: "lab", OwnerID: uuid.New(), Password: "x"}, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSpace(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
	assert.Empty(t, f.prov.created)
}

func TestCreateSpaceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	sp := f.space(t, owner, "lab")

	_, err := f.svc.CreateSpace(ctx, CreateSpaceInput{ID: sp.ID, Name: "other", OwnerID: owner, Password: "x"})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	_, err = f.svc.CreateSpace(ctx, CreateSpaceInput{Name: "lab", OwnerID: owner, Password: "x"})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	assert.Len(t, f.prov.created, 1)
}

func TestCreateSpaceProvisionFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	f.prov.createErr = apperr.Wrap(apperr.CodeDependency, errors.New("502"), "provision app")

	_, err := f.svc.CreateSpace(context.Background(), CreateSpaceInput{Name: "lab", OwnerID: owner, Password: "x"})
	assert.True(t, apperr.Is(err, apperr.CodeDependency))

	owned, err := f.svc.ListOwnedSpaces(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, owned)
	assert.Empty(t, f.enqueuer.apps)
}

func TestCreateSpaceInsertFailureCompensates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	svc := NewService(failingMembersStore{f.store}, f.prov, f.enqueuer, zap.NewNop(), WithBcryptCost(bcrypt.MinCost))

	id := uuid.New()
	_, err := svc.CreateSpace(ctx, CreateSpaceInput{ID: id, Name: "lab", OwnerID: owner, Password: "x"})
	assert.True(t, apperr.Is(err, apperr.CodeInternal))

	sp, err := f.store.Spaces().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, sp, "space row must roll back with the member row")
	assert.Equal(t, []string{models.AppNameFor("lab", id)}, f.enqueuer.apps)
}

func TestDeleteSpace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	editor := f.user(t, "bob")
	invitee := f.user(t, "carol")
	sp := f.space(t, owner, "lab")
	f.member(t, sp.ID, editor, models.RoleEditor)
	_, err := f.svc.InviteUser(ctx, InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: invitee, Role: "member"})
	require.NoError(t, err)
	require.NoError(t, f.store.Statuses().Upsert(ctx, editor, "conn-editor", &sp.ID))

	err = f.svc.DeleteSpace(ctx, sp.ID, editor)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	require.NoError(t, f.svc.DeleteSpace(ctx, sp.ID, owner))
	assert.Equal(t, []string{models.AppNameFor("lab", sp.ID)}, f.prov.deleted)

	_, err = f.svc.GetSpace(ctx, sp.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	m, err := f.store.Members().Get(ctx, sp.ID, editor)
	require.NoError(t, err)
	assert.Nil(t, m)
	invites, err := f.svc.ListInvites(ctx, invitee)
	require.NoError(t, err)
	assert.Empty(t, invites)
	st, err := f.store.Statuses().Get(ctx, editor)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Nil(t, st.SpaceID)
}

func TestDeleteSpaceAfterRenameUsesStoredURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	sp := f.space(t, owner, "lab")

	_, err := f.svc.EditSpace(ctx, owner, sp.ID, "studio", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSpace(ctx, sp.ID, owner))
	assert.Equal(t, []string{models.AppNameFor("lab", sp.ID)}, f.prov.deleted)
}

func TestDeleteSpaceKeepsRowsWhenDeprovisionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	sp := f.space(t, owner, "lab")
	f.prov.deleteErr = apperr.Wrap(apperr.CodeDependency, errors.New("502"), "delete app")

	err := f.svc.DeleteSpace(ctx, sp.ID, owner)
	assert.True(t, apperr.Is(err, apperr.CodeDependency))

	_, err = f.svc.GetSpace(ctx, sp.ID)
	assert.NoError(t, err)
}

func TestEditSpaceOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	editor := f.user(t, "bob")
	sp := f.space(t, owner, "lab")
	f.member(t, sp.ID, editor, models.RoleEditor)

	_, err := f.svc.EditSpace(ctx, editor, sp.ID, "hacked", "")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	view, err := f.svc.EditSpace(ctx, owner, sp.ID, "studio", "default")
	require.NoError(t, err)
	assert.Equal(t, "studio", view.Name)
	assert.Equal(t, sp.URL, view.URL)
}

func TestInviteAndAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	sp := f.space(t, owner, "lab")
	f.member(t, sp.ID, carol, models.RoleEditor)

	req, err := f.svc.InviteUser(ctx, InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: bob, Role: "editor"})
	require.NoError(t, err)
	assert.Equal(t, []string{presence.EventSpaceRequests}, f.notifier.calls[bob])

	_, err = f.svc.InviteUser(ctx, InviteInput{SpaceID: sp.ID, InviterID: carol, InvitedID: bob, Role: "member"})
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "one pending invite per user and space")

	invites, err := f.svc.ListInvites(ctx, bob)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, "lab", invites[0].SpaceName)

	_, err = f.svc.AcceptInvite(ctx, req.ID, carol)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	m, err := f.svc.AcceptInvite(ctx, req.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, models.RoleEditor, m.Role)

	invites, err = f.svc.ListInvites(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, invites)

	spaces, err := f.svc.ListInvitedSpaces(ctx, bob)
	require.NoError(t, err)
	require.Len(t, spaces, 1)
	assert.Equal(t, sp.ID, spaces[0].ID)

	_, err = f.svc.InviteUser(ctx, InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: bob, Role: "member"})
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "already a member")
}

func TestInviteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	member := f.user(t, "bob")
	outsider := f.user(t, "carol")
	target := f.user(t, "dave")
	sp := f.space(t, owner, "lab")
	f.member(t, sp.ID, member, models.RoleMember)

	tests := []struct {
		name string
		in   InviteInput
		code apperr.Code
	}{
		{"owner role", InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: target, Role: "owner"}, apperr.CodeValidation},
		{"unknown role", InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: target, Role: "admin"}, apperr.CodeValidation},
		{"self", InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: owner, Role: "member"}, apperr.CodeValidation},
		{"outsider", InviteInput{SpaceID: sp.ID, InviterID: outsider, InvitedID: target, Role: "member"}, apperr.CodeForbidden},
		{"above own role", InviteInput{SpaceID: sp.ID, InviterID: member, InvitedID: target, Role: "editor"}, apperr.CodeForbidden},
		{"unknown space", InviteInput{SpaceID: uuid.New(), InviterID: owner, InvitedID: target, Role: "member"}, apperr.CodeNotFound},
		{"unknown invitee", InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: uuid.New(), Role: "member"}, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.InviteUser(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	_, err := f.svc.InviteUser(ctx, InviteInput{SpaceID: sp.ID, InviterID: member, InvitedID: target, Role: "anonymous"})
	assert.NoError(t, err)
}

func TestAcceptInviteForDeletedSpace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	sp := f.space(t, owner, "lab")
	req, err := f.svc.InviteUser(ctx, InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: bob, Role: "member"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSpace(ctx, sp.ID, owner))

	_, err = f.svc.AcceptInvite(ctx, req.ID, bob)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestRejectInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	sp := f.space(t, owner, "lab")
	req, err := f.svc.InviteUser(ctx, InviteInput{SpaceID: sp.ID, InviterID: owner, InvitedID: bob, Role: "member"})
	require.NoError(t, err)

	err = f.svc.RejectInvite(ctx, req.ID, carol)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	require.NoError(t, f.svc.RejectInvite(ctx, req.ID, bob))
	err = f.svc.RejectInvite(ctx, req.ID, bob)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestCanRemove(t *testing.T) {
	tests := []struct {
		acting, target models.Role
		want           bool
	}{
		{models.RoleOwner, models.RoleEditor, true},
		{models.RoleOwner, models.RoleOwner, false},
		{models.RoleEditor, models.RoleMember, true},
		{models.RoleEditor, models.RoleEditor, false},
		{models.RoleMember, models.RoleAnonymous, true},
		{models.RoleAnonymous, models.RoleMember, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.acting)+"_"+string(tt.target), func(t *testing.T) {
			assert.Equal(t, tt.want, CanRemove(tt.acting, tt.target))
		})
	}
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	editor := f.user(t, "bob")
	member := f.user(t, "carol")
	sp := f.space(t, owner, "lab")
	f.member(t, sp.ID, editor, models.RoleEditor)
	f.member(t, sp.ID, member, models.RoleMember)

	err := f.svc.RemoveMember(ctx, sp.ID, member, editor)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	err = f.svc.RemoveMember(ctx, sp.ID, editor, owner)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	err = f.svc.RemoveMember(ctx, sp.ID, owner, owner)
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "last owner cannot leave")

	require.NoError(t, f.svc.RemoveMember(ctx, sp.ID, editor, member))
	require.NoError(t, f.svc.RemoveMember(ctx, sp.ID, editor, editor))

	members, err := f.svc.ListSpaceMembers(ctx, sp.ID, owner)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, owner, members[0].ID)

	_, err = f.svc.ListSpaceMembers(ctx, sp.ID, editor)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestEditUserRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	editor := f.user(t, "bob")
	sp := f.space(t, owner, "lab")
	f.member(t, sp.ID, editor, models.RoleEditor)

	err := f.svc.EditUserRole(ctx, editor, owner, sp.ID, "member")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	err = f.svc.EditUserRole(ctx, owner, owner, sp.ID, "editor")
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "last owner cannot be demoted")

	err = f.svc.EditUserRole(ctx, owner, editor, sp.ID, "superuser")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	require.NoError(t, f.svc.EditUserRole(ctx, owner, editor, sp.ID, "owner"))
	require.NoError(t, f.svc.EditUserRole(ctx, editor, owner, sp.ID, "member"))

	role, err := f.svc.MyRole(ctx, sp.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, role)

	_, err = f.svc.MyRole(ctx, sp.ID, uuid.New())
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
