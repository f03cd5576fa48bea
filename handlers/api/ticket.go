package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ticketAudience = "notifications"

// Tickets issues and checks the short-lived tokens a page uses to open its
// notification stream. A ticket names the browser session it belongs to.
type Tickets struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTickets creates a ticket issuer signing with HS256
func NewTickets(secret string, ttl time.Duration) *Tickets {
	return &Tickets{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed ticket for sessionID
func (t *Tickets) Issue(sessionID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		Audience:  jwt.ClaimStrings{ticketAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign ticket: %w", err)
	}
	return signed, nil
}

// Verify checks signature, audience and expiry and returns the session id
func (t *Tickets) Verify(ticket string) (string, error) {
	if ticket == "" {
		return "", errors.New("missing ticket")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(ticket, &claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(ticketAudience),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid ticket: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("ticket without session")
	}
	return claims.Subject, nil
}
