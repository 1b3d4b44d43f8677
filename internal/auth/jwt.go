package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ticketIssuer = "hop"

// ticketAudience keeps a socket ticket from being replayed anywhere that
// accepts other HS256 tokens signed with the same secret.
const ticketAudience = "hop-realtime"

var ErrInvalidTicket = errors.New("invalid socket ticket")

// TicketClaims is the payload of a socket ticket: proof, minted by an
// authenticated HTTP call, that the websocket handshake belongs to UserID.
type TicketClaims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueTicket signs a short-lived ticket for userID.
func IssueTicket(userID uuid.UUID, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := TicketClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{ticketAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    ticketIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseTicket verifies signature, expiry, issuer and audience and returns
// the ticket's user.
func ParseTicket(ticket, secret string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(ticketIssuer),
		jwt.WithAudience(ticketAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return uuid.Nil, ErrInvalidTicket
	}
	return claims.UserID, nil
}
