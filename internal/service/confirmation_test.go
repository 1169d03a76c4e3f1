package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`^RSV-[0-9A-Z]+-[0-9A-Z]{4}$`)

func TestGenerateFormat(t *testing.T) {
	g := NewCodeGenerator("rsv")
	for i := 0; i < 50; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	}
}

func TestGenerateTimeSegmentIsBase36Millis(t *testing.T) {
	at := time.Date(2024, 12, 1, 19, 0, 0, 0, time.UTC)
	g := &CodeGenerator{
		Prefix: "RSV",
		Now:    func() time.Time { return at },
		Random: func(n int) (string, error) { return strings.Repeat("A", n), nil },
	}
	code, err := g.Generate()
	require.NoError(t, err)

	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	ms, err := strconv.ParseInt(strings.ToLower(parts[1]), 36, 64)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), ms)
	assert.Equal(t, "AAAA", parts[2])
}

type codeSet map[string]bool

func (s codeSet) CodeExists(_ context.Context, code string) (bool, error) { return s[code], nil }

func TestUniqueSkipsExistingCodes(t *testing.T) {
	seq := []string{"AAAA", "AAAA", "BBBB"}
	i := 0
	g := &CodeGenerator{
		Prefix: "RSV",
		Now:    func() time.Time { return time.UnixMilli(36) },
		Random: func(int) (string, error) { s := seq[i]; i++; return s, nil },
	}
	taken := codeSet{"RSV-10-AAAA": true}

	code, err := g.unique(context.Background(), taken, RetryPolicy{Attempts: 1})
	require.NoError(t, err)
	assert.Equal(t, "RSV-10-BBBB", code)
}

func TestUniqueGivesUpEventually(t *testing.T) {
	g := &CodeGenerator{
		Prefix: "RSV",
		Now:    func() time.Time { return time.UnixMilli(1) },
		Random: func(int) (string, error) { return "ZZZZ", nil },
	}
	_, err := g.unique(context.Background(), codeSet{"RSV-1-ZZZZ": true}, RetryPolicy{Attempts: 1})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
