package utils

import (
	"errors"

	"github.com/golang-jwt/jwt"

	"findmycoach/config"
)

// Claims carried by a session token: the acting user's id and their role
// ("PLAYER" or "COACH"). Token issuance is owned by the identity service; this
// subsystem only validates.
type SessionClaims struct {
	UserID string
	Role   string
	Email  string
}

// ValidateToken parses and validates a token string and returns the session
// claims if valid.
func ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure that the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || role == "" {
		return nil, errors.New("token missing subject or role")
	}
	return &SessionClaims{UserID: sub, Role: role, Email: email}, nil
}
