package api

import (
	"context"
	"sync"
)

// Credentials holds the active bearer token shared by the gateway and the
// session store. Every change bumps the epoch so callers can tell whether
// the credential they started with is still current.
type Credentials struct {
	mu    sync.RWMutex
	token string
	epoch uint64
}

func NewCredentials() *Credentials {
	return &Credentials{}
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Credentials) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

func (c *Credentials) Set(token string) {
	c.mu.Lock()
	c.token = token
	c.epoch++
	c.mu.Unlock()
}

func (c *Credentials) Clear() {
	c.Set("")
}

type tokenKey struct{}

// WithToken returns a context whose requests carry token instead of the
// active credential.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok
}
