package api

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing token")
	errNoSubject    = errors.New("token has no subject")
)

// validateToken checks an HS256 browser token and returns its subject.
// Expiry is enforced when the token carries one.
func (s *Server) validateToken(raw string) (string, error) {
	if raw == "" {
		return "", errMissingToken
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(s.secCfg.JWT.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if sub == "" {
		return "", errNoSubject
	}
	return sub, nil
}
