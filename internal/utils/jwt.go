package utils // package utils provides helper functions for token creation

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires_at"`
}

// NewAccessToken builds and signs an HS256 JWT carrying the sub, role and
// restaurants claims the API reads.  It stands in for the identity
// provider in development and tests.
func NewAccessToken(secret, subject, role string, restaurants []string, ttlMin int) (AccessToken, error) {
	if strings.TrimSpace(subject) == "" {
		return AccessToken{}, errors.New("subject is required")
	}
	if ttlMin <= 0 {
		ttlMin = 60
	}
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": strings.ToUpper(role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if len(restaurants) > 0 {
		claims["restaurants"] = restaurants
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
