package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

var ErrInvalidToken = apperr.Unauthorized("invalid_token", "authorization token is invalid or expired")

// Claims are issued by the identity platform. Org is empty for patients.
type Claims struct {
	Role string `json:"role"`
	Org  string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns the principal it carries.
func ParseToken(secret, raw string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	role := Role(claims.Role)
	switch role {
	case RoleDoctor, RoleFrontDesk, RoleAssistant, RoleAdmin, RolePatient:
	default:
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	p := Principal{UserID: userID, Role: role}
	if claims.Org != "" {
		orgID, err := uuid.Parse(claims.Org)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: org is not a uuid", ErrInvalidToken)
		}
		p.OrganizationID = &orgID
	}
	return p, nil
}

// IssueToken signs a principal token. The platform normally does this; the
// simulator and tests use it to talk to the API.
func IssueToken(secret string, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.OrganizationID != nil {
		claims.Org = p.OrganizationID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
