// Package auth issues and verifies the JWTs used by admin and team
// clients. Teams log in with their opaque per-team access token and
// receive a JWT carrying their team identity; spectators need no token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Role classifies a caller.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTeam      Role = "team"
	RoleSpectator Role = "spectator"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Principal is a verified caller identity. TeamID is set only for teams.
type Principal struct {
	Role   Role
	TeamID *uuid.UUID
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Claims is the JWT claim set.
type Claims struct {
	Role   string `json:"role"`
	TeamID string `json:"team_id,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewService creates a token service. ttl bounds how long issued tokens
// stay valid.
func NewService(secret string, ttl time.Duration, clock clockwork.Clock) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, clock: clock}
}

// IssueAdminToken signs a token carrying the admin role.
func (s *Service) IssueAdminToken() (string, error) {
	return s.sign(Claims{
		Role:             string(RoleAdmin),
		RegisteredClaims: s.registeredClaims(),
	})
}

// IssueTeamToken signs a token identifying one team.
func (s *Service) IssueTeamToken(teamID uuid.UUID) (string, error) {
	return s.sign(Claims{
		Role:             string(RoleTeam),
		TeamID:           teamID.String(),
		RegisteredClaims: s.registeredClaims(),
	})
}

// VerifyToken parses and validates a token, returning the caller identity.
func (s *Service) VerifyToken(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}

	switch Role(claims.Role) {
	case RoleAdmin:
		return Principal{Role: RoleAdmin}, nil
	case RoleTeam:
		teamID, err := uuid.Parse(claims.TeamID)
		if err != nil {
			return Principal{}, ErrInvalidToken
		}
		return Principal{Role: RoleTeam, TeamID: &teamID}, nil
	default:
		return Principal{}, ErrInvalidToken
	}
}

func (s *Service) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) registeredClaims() jwt.RegisteredClaims {
	now := s.clock.Now()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
}
