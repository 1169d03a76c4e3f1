package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	codeAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeRandomLen  = 4
	maxCodeRetries = 5
)

// CodeGenerator produces confirmation codes of the form
// PREFIX-<base36 unix millis>-<4 random characters>, all upper case.
type CodeGenerator struct {
	Prefix string
	Now    func() time.Time
	Random func(n int) (string, error)
}

// NewCodeGenerator returns a generator with the real clock and a nanoid
// random segment drawn from upper-case letters and digits.
func NewCodeGenerator(prefix string) *CodeGenerator {
	if prefix == "" {
		prefix = "RSV"
	}
	return &CodeGenerator{
		Prefix: strings.ToUpper(prefix),
		Now:    time.Now,
		Random: func(n int) (string, error) { return gonanoid.Generate(codeAlphabet, n) },
	}
}

// Generate builds a new code.  It does not check uniqueness.
func (g *CodeGenerator) Generate() (string, error) {
	ts := strings.ToUpper(strconv.FormatInt(g.Now().UnixMilli(), 36))
	r, err := g.Random(codeRandomLen)
	if err != nil {
		return "", fmt.Errorf("random segment: %w", err)
	}
	return g.Prefix + "-" + ts + "-" + r, nil
}

// codeChecker is the part of the booking store the generator needs.
type codeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// unique generates codes until one is not yet present in the store.  The
// store's unique index still backs this check at insert time.
func (g *CodeGenerator) unique(ctx context.Context, store codeChecker, retry RetryPolicy) (string, error) {
	for i := 0; i < maxCodeRetries; i++ {
		code, err := g.Generate()
		if err != nil {
			return "", err
		}
		exists, err := withStoreRetry(ctx, retry, func() (bool, error) { return store.CodeExists(ctx, code) })
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique confirmation code", ErrServiceUnavailable)
}
