package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docmail/utils"
)

// GenerateToken mints a signed bearer token for the given account.
func GenerateToken(email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", utils.InternalError("failed to sign token", err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry and returns the subject email.
func ValidateToken(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", utils.AuthError("invalid or expired token", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", utils.AuthError("invalid token claims", nil)
	}
	return claims.Subject, nil
}
