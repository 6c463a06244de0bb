package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAuthenticated is returned when no bearer credential is available.
// Callers should trigger re-authentication rather than retry.
var ErrNotAuthenticated = errors.New("not authenticated")

// TokenSource supplies the bearer credential attached to backend requests.
// forceRefresh asks the identity provider to mint a fresh token instead of
// returning a cached one.
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// TokenFunc adapts a plain function to a TokenSource.
type TokenFunc func(ctx context.Context, forceRefresh bool) (string, error)

func (f TokenFunc) Token(ctx context.Context, forceRefresh bool) (string, error) {
	return f(ctx, forceRefresh)
}

// StaticTokenSource returns a fixed credential, typically loaded from
// configuration. An empty token reports ErrNotAuthenticated.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a TokenSource that always returns token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if s.token == "" {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// CachingTokenSource memoizes the credential from an underlying source.
// forceRefresh bypasses the cache and replaces it on success.
type CachingTokenSource struct {
	mu     sync.Mutex
	src    TokenSource
	cached string
}

// NewCachingTokenSource wraps src with a cache.
func NewCachingTokenSource(src TokenSource) *CachingTokenSource {
	return &CachingTokenSource{src: src}
}

func (c *CachingTokenSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != "" && !forceRefresh {
		return c.cached, nil
	}

	token, err := c.src.Token(ctx, forceRefresh)
	if err != nil {
		return "", err
	}
	c.cached = token
	return token, nil
}

var (
	_ TokenSource = (*StaticTokenSource)(nil)
	_ TokenSource = (*CachingTokenSource)(nil)
)
