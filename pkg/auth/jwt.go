package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	ScopeAccess  = "access"
	ScopeRefresh = "refresh"
)

// TokenPair is one freshly-minted local session: a short-lived access token
// and a long-lived refresh token, both bound to a DID.
type TokenPair struct {
	AccessJwt  string
	RefreshJwt string
	ExpiresIn  int // access token lifetime, seconds
}

type sessionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// JWTService mints and verifies HS256 session tokens with a DID subject.
type JWTService struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewJWTService(secret string, accessExpiry, refreshExpiry time.Duration) (*JWTService, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if accessExpiry <= 0 {
		accessExpiry = 2 * time.Hour
	}
	if refreshExpiry <= 0 {
		refreshExpiry = 90 * 24 * time.Hour
	}
	return &JWTService{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}, nil
}

// GenerateTokenPair mints an access/refresh pair for the DID.
func (s *JWTService) GenerateTokenPair(did string) (*TokenPair, error) {
	if did == "" {
		return nil, fmt.Errorf("did is required to mint tokens")
	}
	access, err := s.sign(did, ScopeAccess, s.accessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(did, ScopeRefresh, s.refreshExpiry)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessJwt:  access,
		RefreshJwt: refresh,
		ExpiresIn:  int(s.accessExpiry.Seconds()),
	}, nil
}

func (s *JWTService) sign(did, scope string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   did,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", scope, err)
	}
	return token, nil
}

// ParseAccessToken verifies the token and returns its DID subject. Refresh
// tokens are rejected here; they are only good for minting new pairs.
func (s *JWTService) ParseAccessToken(tokenString string) (string, error) {
	return s.parse(tokenString, ScopeAccess)
}

// ParseRefreshToken verifies a refresh token and returns its DID subject.
func (s *JWTService) ParseRefreshToken(tokenString string) (string, error) {
	return s.parse(tokenString, ScopeRefresh)
}

func (s *JWTService) parse(tokenString, wantScope string) (string, error) {
	claims := &sessionClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Scope != wantScope {
		return "", fmt.Errorf("unexpected token scope %q", claims.Scope)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
