package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/auth"
	"github.com/lalith-99/hop/internal/friends"
	"github.com/lalith-99/hop/internal/identity"
	"github.com/lalith-99/hop/internal/middleware"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository/memory"
	"github.com/lalith-99/hop/internal/space"
	"github.com/lalith-99/hop/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testTicketSecret  = "router-test-secret"
	testWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
)

// tokenVerifier accepts any access token that is a user id.
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, access, _ string) (uuid.UUID, error) {
	id, err := uuid.Parse(access)
	if err != nil {
		return uuid.Nil, apperr.Forbidden("invalid session")
	}
	return id, nil
}

type stubProvisioner struct {
	fail bool
}

func (p *stubProvisioner) Create(_ context.Context, appName, _ string) (string, error) {
	if p.fail {
		return "", apperr.Wrap(apperr.CodeDependency, errors.New("502"), "provision app")
	}
	return "https://" + appName + ".fly.dev", nil
}

func (p *stubProvisioner) Delete(context.Context, string) error { return nil }

func (p *stubProvisioner) AppNameFromURL(url string) string { return url }

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(string) {}

type apiEnv struct {
	store    *memory.Store
	prov     *stubProvisioner
	webhooks *identity.Webhook
	router   *gin.Engine
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := memory.New()
	prov := &stubProvisioner{}
	webhooks, err := identity.NewWebhookVerifier(testWebhookSecret)
	require.NoError(t, err)

	spaces := space.NewService(store, prov, nopEnqueuer{}, logger, space.WithBcryptCost(bcrypt.MinCost))
	router := NewRouter(Deps{
		Logger:       logger,
		Verifier:     tokenVerifier{},
		Webhooks:     webhooks,
		Users:        user.NewService(store.Users(), spaces, logger),
		Friends:      friends.NewService(store, nil, logger),
		Spaces:       spaces,
		TicketSecret: testTicketSecret,
		TicketTTL:    time.Minute,
		Health:       func(context.Context) error { return nil },
	})
	return &apiEnv{store: store, prov: prov, webhooks: webhooks, router: router}
}

// webhook posts an identity event, signed with the test secret when sign is set.
func (e *apiEnv) webhook(t *testing.T, body any, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		now := time.Now()
		sig := e.webhooks.Sign("msg_test", now, payload)
		req.Header.Set(identity.HeaderWebhookID, "msg_test")
		req.Header.Set(identity.HeaderWebhookTimestamp, strconv.FormatInt(now.Unix(), 10))
		req.Header.Set(identity.HeaderWebhookSignature, sig)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) user(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.store.Users().Create(context.Background(), &models.User{ID: id, DisplayName: "u-" + id.String()[:4]}))
	return id
}

func (e *apiEnv) do(t *testing.T, method, path string, as uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != uuid.Nil {
		req.Header.Set(middleware.HeaderAccessToken, as.String())
		req.Header.Set(middleware.HeaderRefreshToken, "refresh")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestPublicRoutes(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/api/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/user", uuid.Nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "session tokens not provided", decode[map[string]string](t, w)["error"])
}

func TestWebhookAndProfile(t *testing.T) {
	env := newAPIEnv(t)
	id := uuid.New()

	w := env.webhook(t, map[string]any{
		"event": "user.created",
		"data":  map[string]string{"id": id.String(), "display_name": "Alice"},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/user", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", decode[models.User](t, w).DisplayName)

	w = env.do(t, http.MethodPut, "/api/user", id, map[string]string{"nickname": "ali"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ali", decode[models.User](t, w).Nickname)

	w = env.webhook(t, map[string]any{"event": "user.created", "data": map[string]string{"id": "bad"}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsUnsignedEvents(t *testing.T) {
	env := newAPIEnv(t)
	victim := env.user(t)

	w := env.webhook(t, map[string]any{"event": "user.deleted", "data": map[string]string{"id": victim.String()}}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	u, err := env.store.Users().GetByID(context.Background(), victim)
	require.NoError(t, err)
	assert.NotNil(t, u)

	// A valid signature over a different body does not carry over.
	body := map[string]any{"event": "user.updated", "data": map[string]string{"id": victim.String(), "display_name": "pwned"}}
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewReader(payload))
	now := time.Now()
	sig := env.webhooks.Sign("msg_test", now, []byte(`{}`))
	req.Header.Set(identity.HeaderWebhookID, "msg_test")
	req.Header.Set(identity.HeaderWebhookTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(identity.HeaderWebhookSignature, sig)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookWithoutSecretRejectsEverything(t *testing.T) {
	logger := zap.NewNop()
	store := memory.New()
	spaces := space.NewService(store, &stubProvisioner{}, nopEnqueuer{}, logger)
	router := NewRouter(Deps{
		Logger:   logger,
		Verifier: tokenVerifier{},
		Users:    user.NewService(store.Users(), spaces, logger),
		Friends:  friends.NewService(store, nil, logger),
		Spaces:   spaces,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewReader([]byte(`{"event":"user.created","data":{"id":"`+uuid.NewString()+`"}}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeletedOwnerHandsSpaceOver(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()
	owner := env.user(t)
	editor := env.user(t)

	w := env.do(t, http.MethodPost, "/api/space", owner, map[string]string{"name": "lab", "password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sp := decode[models.SpaceView](t, w)
	require.NoError(t, env.store.Members().Add(ctx, &models.SpaceMember{SpaceID: sp.ID, UserID: editor, Role: models.RoleEditor}))

	w = env.webhook(t, map[string]any{"event": "user.deleted", "data": map[string]string{"id": owner.String()}}, true)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	owners, err := env.store.Members().CountOwners(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, owners)
	w = env.do(t, http.MethodGet, "/api/space/role/"+sp.ID.String(), editor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner", decode[map[string]string](t, w)["role"])
}

func TestIssueTicket(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.user(t)

	w := env.do(t, http.MethodPost, "/api/realtime/ticket", alice, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[ticketResponse](t, w)
	got, err := auth.ParseTicket(resp.Ticket, testTicketSecret)
	require.NoError(t, err)
	assert.Equal(t, alice, got)
}

func TestFriendRoutes(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.user(t)
	bob := env.user(t)

	w := env.do(t, http.MethodPost, "/api/user/friend/request/"+bob.String(), alice, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[models.FriendRequest](t, w)

	w = env.do(t, http.MethodGet, "/api/user/friend/request", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.FriendRequest](t, w), 1)

	w = env.do(t, http.MethodPost, "/api/user/friend/request/"+req.ID.String()+"/accept", bob, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/user/friend", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.FriendPresence](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, bob, list[0].ID)
	assert.Equal(t, models.PresenceOffline, list[0].Status)

	w = env.do(t, http.MethodDelete, "/api/user/friend/"+bob.String(), alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/api/user/friend/"+alice.String(), alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/user/friend/not-a-uuid", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpaceRoutes(t *testing.T) {
	env := newAPIEnv(t)
	owner := env.user(t)
	bob := env.user(t)

	w := env.do(t, http.MethodPost, "/api/space", owner, map[string]string{"name": "lab", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "hash")
	sp := decode[models.SpaceView](t, w)

	w = env.do(t, http.MethodGet, "/api/spaceId/"+sp.ID.String(), uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lab", decode[models.SpaceView](t, w).Name)

	w = env.do(t, http.MethodPost, "/api/space/verify", bob, map[string]string{"spaceId": sp.ID.String(), "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]bool](t, w)["valid"])

	w = env.do(t, http.MethodPost, "/api/space/request", owner, map[string]string{"spaceId": sp.ID.String(), "friendId": bob.String(), "role": "editor"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	invite := decode[models.SpaceRequest](t, w)

	w = env.do(t, http.MethodGet, "/api/space/request", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	invites := decode[[]models.SpaceInvite](t, w)
	require.Len(t, invites, 1)
	assert.Equal(t, "lab", invites[0].SpaceName)

	w = env.do(t, http.MethodPost, "/api/space/request/"+invite.ID.String(), bob, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/space/role/"+sp.ID.String(), bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "editor", decode[map[string]string](t, w)["role"])

	w = env.do(t, http.MethodGet, "/api/space/invitedSpaces", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.SpaceView](t, w), 1)

	w = env.do(t, http.MethodGet, "/api/space/mySpaces", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.SpaceView](t, w), 1)

	w = env.do(t, http.MethodGet, "/api/space/spaceMembers/"+sp.ID.String(), bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.SpaceMemberProfile](t, w), 2)

	w = env.do(t, http.MethodPut, "/api/space/edit", bob, map[string]string{"spaceId": sp.ID.String(), "name": "mine"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, "/api/space/changeRole", owner, map[string]string{"spaceId": sp.ID.String(), "userId": bob.String(), "role": "member"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/space/kick/"+sp.ID.String()+"/"+owner.String(), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/api/space/kick/"+sp.ID.String()+"/"+bob.String(), owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/space/"+sp.ID.String(), owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/spaceId/"+sp.ID.String(), uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSpaceErrors(t *testing.T) {
	env := newAPIEnv(t)
	owner := env.user(t)

	w := env.do(t, http.MethodPost, "/api/space", owner, map[string]string{"name": "lab"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/space", owner, map[string]string{"id": "nope", "name": "lab", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.prov.fail = true
	w = env.do(t, http.MethodPost, "/api/space", owner, map[string]string{"name": "lab", "password": "x"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "dependency unavailable", decode[map[string]string](t, w)["error"])
}
