// Package auth resolves the calling tenant from a bearer JWT.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation failures. The middleware reports all of them as unauthenticated.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Claims identify the storefront tenant whose FAQ corpus and settings a request uses.
type Claims struct {
	jwt.RegisteredClaims
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name,omitempty"`
}

// JWTConfig holds the shared HMAC secret and token lifetime.
type JWTConfig struct {
	Secret        string
	Expiry        time.Duration
	Issuer        string
	SigningMethod jwt.SigningMethod
}

// DefaultJWTConfig signs with HS256 and issues day-long tokens.
func DefaultJWTConfig(secret string) *JWTConfig {
	return &JWTConfig{
		Secret:        secret,
		Expiry:        24 * time.Hour,
		Issuer:        "faqd",
		SigningMethod: jwt.SigningMethodHS256,
	}
}

// JWTManager mints and checks tenant tokens.
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager fills in the signing method and expiry when unset.
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config.SigningMethod == nil {
		config.SigningMethod = jwt.SigningMethodHS256
	}
	if config.Expiry <= 0 {
		config.Expiry = 24 * time.Hour
	}
	return &JWTManager{config: config}
}

// GenerateToken issues a token for the given tenant. Operators use it to mint
// storefront credentials; the service itself only validates.
func (m *JWTManager) GenerateToken(tenantID uuid.UUID, tenantName string) (string, error) {
	return m.GenerateTokenWithExpiry(tenantID, tenantName, m.config.Expiry)
}

// GenerateTokenWithExpiry is GenerateToken with an explicit lifetime. A negative
// lifetime yields an already-expired token.
func (m *JWTManager) GenerateTokenWithExpiry(tenantID uuid.UUID, tenantName string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.config.Issuer,
			Subject:   tenantID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
		TenantID:   tenantID.String(),
		TenantName: tenantName,
	}

	token := jwt.NewWithClaims(m.config.SigningMethod, claims)
	return token.SignedString([]byte(m.config.Secret))
}

// ValidateToken checks signature, algorithm and expiry, and requires tenant_id
// to be a UUID so it can key tenant settings.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.signingKey,
		jwt.WithValidMethods([]string{m.config.SigningMethod.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if _, err := claims.GetTenantID(); err != nil {
		return nil, fmt.Errorf("%w: tenant_id is not a UUID", ErrInvalidClaims)
	}
	return claims, nil
}

func (m *JWTManager) signingKey(*jwt.Token) (any, error) {
	return []byte(m.config.Secret), nil
}

// GetTenantID parses the tenant_id claim.
func (c *Claims) GetTenantID() (uuid.UUID, error) {
	return uuid.Parse(c.TenantID)
}
