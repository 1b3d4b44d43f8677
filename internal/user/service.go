// Package user keeps local profiles in step with the identity provider.
package user

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
	"go.uber.org/zap"
)

// Identity provider webhook event types.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

const maxProfileField = 128

// WebhookEvent is the envelope the identity provider posts to /api/auth.
type WebhookEvent struct {
	Event string      `json:"event" binding:"required"`
	Data  WebhookUser `json:"data"`
}

type WebhookUser struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	PrimaryEmail    string `json:"primary_email"`
	ProfileImageURL string `json:"profile_image_url"`
}

// ProfileUpdate carries the fields a user may edit. Nil means unchanged.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	Nickname    *string `json:"nickname"`
	AvatarURL   *string `json:"avatar_url"`
}

// AccountRemover deletes a user together with whatever depends on them.
type AccountRemover interface {
	RemoveAccount(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	users    repository.UserRepository
	accounts AccountRemover
	logger   *zap.Logger
}

func NewService(users repository.UserRepository, accounts AccountRemover, logger *zap.Logger) *Service {
	return &Service{users: users, accounts: accounts, logger: logger}
}

// Get returns the profile of userID.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// UpdateProfile applies upd to userID's profile and returns the result.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name  string
		value *string
		dst   *string
	}{
		{"display_name", upd.DisplayName, &u.DisplayName},
		{"nickname", upd.Nickname, &u.Nickname},
		{"avatar_url", upd.AvatarURL, &u.AvatarURL},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		v := strings.TrimSpace(*f.value)
		if utf8.RuneCountInString(v) > maxProfileField {
			return nil, apperr.Validation(f.name + " is too long")
		}
		*f.dst = v
	}

	if err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(err, "update user")
	}
	return u, nil
}

// HandleWebhook applies an identity provider event. The returned user is
// nil for deletions.
func (s *Service) HandleWebhook(ctx context.Context, ev WebhookEvent) (*models.User, error) {
	id, err := uuid.Parse(ev.Data.ID)
	if err != nil {
		return nil, apperr.Validation("invalid user id")
	}

	switch ev.Event {
	case EventUserCreated:
		u := profileFromWebhook(id, ev.Data)
		if err := s.users.Create(ctx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, apperr.Conflict("user already exists")
			}
			return nil, apperr.Internal(err, "insert user")
		}
		s.logger.Info("user registered", zap.Stringer("user_id", id))
		return u, nil

	case EventUserUpdated:
		existing, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		incoming := profileFromWebhook(id, ev.Data)
		existing.DisplayName = incoming.DisplayName
		existing.Email = incoming.Email
		if incoming.AvatarURL != "" {
			existing.AvatarURL = incoming.AvatarURL
		}
		if err := s.users.Update(ctx, existing); err != nil {
			return nil, apperr.Internal(err, "update user")
		}
		return existing, nil

	case EventUserDeleted:
		if err := s.accounts.RemoveAccount(ctx, id); err != nil {
			return nil, err
		}
		s.logger.Info("user deleted", zap.Stringer("user_id", id))
		return nil, nil
	}

	s.logger.Warn("unhandled identity event", zap.String("event", ev.Event))
	return nil, apperr.Validation("unsupported event type")
}

func profileFromWebhook(id uuid.UUID, data WebhookUser) *models.User {
	return &models.User{
		ID:          id,
		DisplayName: strings.TrimSpace(data.DisplayName),
		Email:       strings.TrimSpace(data.PrimaryEmail),
		AvatarURL:   strings.TrimSpace(data.ProfileImageURL),
	}
}
