// Package space implements the space lifecycle: creation backed by an
// externally provisioned remote desktop, invitations, membership and roles.
package space

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/presence"
	"github.com/lalith-99/hop/internal/provision"
	"github.com/lalith-99/hop/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxNameLength = 64
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// Enqueuer schedules deprovisioning of an app that has no space row.
type Enqueuer interface {
	Enqueue(appName string)
}

// UserNotifier pushes a coarse realtime signal to users that are online.
type UserNotifier interface {
	NotifyUsers(ctx context.Context, n presence.Notification, userIDs ...uuid.UUID) error
}

type Service struct {
	store       repository.Store
	provisioner provision.Provisioner
	compensator Enqueuer
	notifier    UserNotifier
	bcryptCost  int
	logger      *zap.Logger
}

type Option func(*Service)

// WithNotifier enables realtime signals for invitations.
func WithNotifier(n UserNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func NewService(store repository.Store, provisioner provision.Provisioner, compensator Enqueuer, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		provisioner: provisioner,
		compensator: compensator,
		bcryptCost:  bcrypt.DefaultCost,
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateSpaceInput carries a create request. A nil ID asks the service to
// generate one; an empty Theme means the default theme.
type CreateSpaceInput struct {
	ID       uuid.UUID
	Name     string
	OwnerID  uuid.UUID
	Password string
	Theme    string
}

// CreateSpace provisions the remote desktop first and then writes the
// space and its owner in one transaction. If that transaction fails the
// app is queued for deprovisioning.
func (s *Service) CreateSpace(ctx context.Context, in CreateSpaceInput) (*models.Space, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	theme, err := models.ParseTheme(in.Theme)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if in.Password == "" {
		return nil, apperr.Validation("password is required")
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, apperr.Validation("password must be at most 72 bytes")
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	owner, err := s.store.Users().GetByID(ctx, in.OwnerID)
	if err != nil {
		return nil, apperr.Internal(err, "load owner")
	}
	if owner == nil {
		return nil, apperr.NotFound("user not found")
	}
	existing, err := s.store.Spaces().GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "load space")
	}
	if existing != nil {
		return nil, apperr.Conflict("space already exists")
	}
	taken, err := s.store.Spaces().OwnerHasSpaceNamed(ctx, in.OwnerID, name)
	if err != nil {
		return nil, apperr.Internal(err, "check space name")
	}
	if taken {
		return nil, apperr.Conflict("you already own a space with that name")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal(err, "hash space password")
	}

	appName := models.AppNameFor(name, id)
	url, err := s.provisioner.Create(ctx, appName, in.Password)
	if err != nil {
		s.logger.Error("provisioning failed", zap.String("app_name", appName), zap.Error(err))
		return nil, err
	}

	sp := &models.Space{
		ID:           id,
		Name:         name,
		Theme:        theme,
		PasswordHash: string(hash),
		URL:          url,
	}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Spaces().Create(ctx, sp); err != nil {
			return err
		}
		return tx.Members().Add(ctx, &models.SpaceMember{SpaceID: id, UserID: in.OwnerID, Role: models.RoleOwner})
	})
	if err != nil {
		s.compensator.Enqueue(appName)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("space already exists")
		}
		return nil, apperr.Internal(err, "insert space")
	}

	s.logger.Info("space created", zap.Stringer("space_id", id), zap.Stringer("owner_id", in.OwnerID))
	return sp, nil
}

// DeleteSpace deprovisions the app and removes the space with everything
// that points at it. Only an owner may delete.
func (s *Service) DeleteSpace(ctx context.Context, spaceID, requesterID uuid.UUID) error {
	sp, err := s.loadSpace(ctx, s.store, spaceID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, s.store, spaceID, requesterID); err != nil {
		return err
	}

	if err := s.provisioner.Delete(ctx, s.provisioner.AppNameFromURL(sp.URL)); err != nil {
		s.logger.Error("deprovisioning failed", zap.Stringer("space_id", spaceID), zap.Error(err))
		return err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		return deleteSpaceRows(ctx, tx, spaceID)
	})
	if err != nil {
		return apperr.Internal(err, "delete space")
	}

	s.logger.Info("space deleted", zap.Stringer("space_id", spaceID))
	return nil
}

func deleteSpaceRows(ctx context.Context, tx repository.Store, spaceID uuid.UUID) error {
	if err := tx.Requests().DeleteBySpace(ctx, spaceID); err != nil {
		return err
	}
	if err := tx.Statuses().ClearSpace(ctx, spaceID); err != nil {
		return err
	}
	if err := tx.Members().DeleteBySpace(ctx, spaceID); err != nil {
		return err
	}
	return tx.Spaces().Delete(ctx, spaceID)
}

// EditSpace renames or re-themes a space. Owner only.
func (s *Service) EditSpace(ctx context.Context, actingID, spaceID uuid.UUID, name, theme string) (*models.SpaceView, error) {
	cleanName, err := validateName(name)
	if err != nil {
		return nil, err
	}
	parsedTheme, err := models.ParseTheme(theme)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := s.requireOwner(ctx, s.store, spaceID, actingID); err != nil {
		return nil, err
	}

	if err := s.store.Spaces().Update(ctx, spaceID, cleanName, parsedTheme); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("space not found")
		}
		return nil, apperr.Internal(err, "update space")
	}
	return s.GetSpace(ctx, spaceID)
}

// GetSpace returns the public view of a space.
func (s *Service) GetSpace(ctx context.Context, spaceID uuid.UUID) (*models.SpaceView, error) {
	sp, err := s.loadSpace(ctx, s.store, spaceID)
	if err != nil {
		return nil, err
	}
	view := sp.View()
	return &view, nil
}

// VerifyPassword checks a candidate access password against the stored hash.
func (s *Service) VerifyPassword(ctx context.Context, spaceID uuid.UUID, password string) (bool, error) {
	sp, err := s.loadSpace(ctx, s.store, spaceID)
	if err != nil {
		return false, err
	}
	err = bcrypt.CompareHashAndPassword([]byte(sp.PasswordHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, apperr.Internal(err, "compare space password")
	}
}

func (s *Service) ListOwnedSpaces(ctx context.Context, userID uuid.UUID) ([]models.SpaceView, error) {
	spaces, err := s.store.Spaces().ListOwned(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "list owned spaces")
	}
	return views(spaces), nil
}

// ListInvitedSpaces returns the spaces userID belongs to without owning them.
func (s *Service) ListInvitedSpaces(ctx context.Context, userID uuid.UUID) ([]models.SpaceView, error) {
	spaces, err := s.store.Spaces().ListInvited(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "list invited spaces")
	}
	return views(spaces), nil
}

// ListSpaceMembers returns members with their roles. The requester must
// belong to the space.
func (s *Service) ListSpaceMembers(ctx context.Context, spaceID, requesterID uuid.UUID) ([]models.SpaceMemberProfile, error) {
	if _, err := s.requireMember(ctx, s.store, spaceID, requesterID); err != nil {
		return nil, err
	}
	members, err := s.store.Members().ListProfiles(ctx, spaceID)
	if err != nil {
		return nil, apperr.Internal(err, "list space members")
	}
	return members, nil
}

// MyRole returns userID's role in spaceID.
func (s *Service) MyRole(ctx context.Context, spaceID, userID uuid.UUID) (models.Role, error) {
	m, err := s.store.Members().Get(ctx, spaceID, userID)
	if err != nil {
		return "", apperr.Internal(err, "load membership")
	}
	if m == nil {
		return "", apperr.NotFound("not a member of this space")
	}
	return m.Role, nil
}

func (s *Service) loadSpace(ctx context.Context, store repository.Store, spaceID uuid.UUID) (*models.Space, error) {
	sp, err := store.Spaces().GetByID(ctx, spaceID)
	if err != nil {
		return nil, apperr.Internal(err, "load space")
	}
	if sp == nil {
		return nil, apperr.NotFound("space not found")
	}
	return sp, nil
}

func (s *Service) requireMember(ctx context.Context, store repository.Store, spaceID, userID uuid.UUID) (*models.SpaceMember, error) {
	m, err := store.Members().Get(ctx, spaceID, userID)
	if err != nil {
		return nil, apperr.Internal(err, "load membership")
	}
	if m == nil {
		return nil, apperr.Forbidden("not a member of this space")
	}
	return m, nil
}

func (s *Service) requireOwner(ctx context.Context, store repository.Store, spaceID, userID uuid.UUID) error {
	m, err := s.requireMember(ctx, store, spaceID, userID)
	if err != nil {
		return err
	}
	if m.Role != models.RoleOwner {
		return apperr.Forbidden("only an owner can do this")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, event string, userIDs ...uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyUsers(ctx, presence.Updated(event), userIDs...); err != nil {
		s.logger.Warn("realtime notify failed", zap.String("event", event), zap.Error(err))
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", apperr.Validation("name must be at most 64 characters")
	}
	return name, nil
}

func views(spaces []models.Space) []models.SpaceView {
	out := make([]models.SpaceView, 0, len(spaces))
	for _, sp := range spaces {
		out = append(out, sp.View())
	}
	return out
}
