package realtime

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Client to server event names.
const (
	EventSpaceJoin     = "space_join"
	EventSpaceLeave    = "space_leave"
	EventFriendRequest = "friend_request"
	EventSpaceRequest  = "space_request"
	EventDisconnect    = "disconnect"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type spacePayload struct {
	SpaceID string `json:"spaceId" validate:"required,uuid"`
}

type targetPayload struct {
	TargetUserID string `json:"targetUserId" validate:"required,uuid"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func decodePayload(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(dest); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("%s is invalid", errs[0].Field())
		}
		return err
	}
	return nil
}

func decodeSpaceID(raw json.RawMessage) (uuid.UUID, error) {
	var p spacePayload
	if err := decodePayload(raw, &p); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(p.SpaceID)
}

func decodeTarget(raw json.RawMessage) (uuid.UUID, error) {
	var p targetPayload
	if err := decodePayload(raw, &p); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(p.TargetUserID)
}
