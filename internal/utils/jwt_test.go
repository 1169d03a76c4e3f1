package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "op-1", "operator", []string{"bistro"}, 5)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), tok.Exp, 5*time.Second)

	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "op-1", claims["sub"])
	assert.Equal(t, "OPERATOR", claims["role"])
	assert.Equal(t, []any{"bistro"}, claims["restaurants"])
}

func TestNewAccessTokenRequiresSubject(t *testing.T) {
	_, err := NewAccessToken("s3cret", " ", "CUSTOMER", nil, 5)
	assert.Error(t, err)
}
