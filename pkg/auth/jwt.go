package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zapvendas/messaging-api/pkg/env"
)

// JWTSecretKey for signing tenant tokens
// REQUIRED: Application will panic if not set
var JWTSecretKey string

func init() {
	JWTSecretKey = env.MustGetEnvString("JWT_SECRET_KEY")
}

// TenantTokenClaims represents the claims in a tenant JWT
type TenantTokenClaims struct {
	TenantID   string `json:"tenant_id"`
	JWTVersion int    `json:"version"` // For token invalidation
	jwt.RegisteredClaims
}

// GenerateTenantToken creates a long-lived JWT for a tenant.
// The token does not expire, but can be invalidated by incrementing the version.
func GenerateTenantToken(tenantID string, jwtVersion int) (string, error) {
	if JWTSecretKey == "" {
		return "", errors.New("JWT_SECRET_KEY not configured")
	}

	claims := TenantTokenClaims{
		TenantID:   tenantID,
		JWTVersion: jwtVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(JWTSecretKey))
}

// ValidateTenantToken validates a tenant JWT and returns the claims
func ValidateTenantToken(tokenString string) (*TenantTokenClaims, error) {
	if JWTSecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TenantTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(JWTSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TenantTokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
