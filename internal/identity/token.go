package identity

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the ID token fields this layer reads. Signature verification
// belongs to the services that accept the token; the client only needs the
// expiry and a sanity check of the audience.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// ErrAudienceMismatch is returned for a token issued to another project.
var ErrAudienceMismatch = errors.New("id token audience mismatch")

// ParseIDToken decodes an ID token without verifying its signature.
func ParseIDToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	return claims, nil
}

// CheckAudience verifies that the token was issued for projectID.
// An empty projectID disables the check.
func (c *Claims) CheckAudience(projectID string) error {
	if projectID == "" {
		return nil
	}
	if !slices.Contains(c.Audience, projectID) {
		return fmt.Errorf("%w: %v", ErrAudienceMismatch, []string(c.Audience))
	}
	return nil
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
