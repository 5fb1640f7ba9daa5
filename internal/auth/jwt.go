package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lalith-99/chatcore/internal/models"
)

// Claims is the payload of a session token.
//
// The backend issues one at login; the engine decodes it exactly once at
// construction and threads the resulting models.User through every call.
// There is no ambient identity store — the token is the single source of
// who the session belongs to.
type Claims struct {
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name"`
	Capability  models.Capability `json:"capability"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed session token for a user.
//
// HS256 with a shared secret: the backend is the only issuer and the only
// verifier, so symmetric signing is sufficient.
func GenerateToken(user models.User, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Capability:  user.Capability,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chatcore",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a session token and extracts the claims. It verifies
// the signature, the expiry, and that the signing method is HMAC (rejecting
// algorithm-switching tokens).
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// UserFromToken decodes a session token into the User the engine is
// constructed with.
func UserFromToken(tokenString, secret string) (models.User, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return models.User{}, err
	}
	capability := claims.Capability
	if capability == "" {
		capability = models.CapabilityStandard
	}
	return models.User{
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		Capability:  capability,
	}, nil
}
