package services

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityVerifier turns a bearer credential into a stable linked-account id.
// It is only used to populate participant identity; play never requires it.
type IdentityVerifier interface {
	Verify(token string) (uint, error)
}

type JWTVerifier struct {
	secret string
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(v.secret), nil
	})
	if err != nil || !token.Valid {
		return 0, ErrBadAuthToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrBadAuthToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return 0, ErrBadAuthToken
	}
	return uint(userID), nil
}
