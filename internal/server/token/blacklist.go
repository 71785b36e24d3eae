package token

import (
	"context"
	"sync"
	"time"
)

// Blacklist records access tokens revoked before their natural expiry.
// Entries only need to live until the token's own exp, so implementations
// bound their size to the tokens issued during one access-token lifetime.
type Blacklist interface {
	// Add decodes the token without verifying its signature and records the
	// jti until the token's expiry. Adding an already-expired or jti-less
	// token is a no-op. Idempotent.
	Add(ctx context.Context, tokenString string) error

	// Contains reports whether the jti has been blacklisted.
	Contains(ctx context.Context, jti string) bool
}

// MemoryBlacklist is the process-local Blacklist. Losing it on restart only
// shortens the revocation window to the token's own expiry, which is bounded
// and acceptable for short-lived tokens; multi-instance deployments should
// use RedisBlacklist instead.
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time // jti -> expiry

	now func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBlacklist) Add(_ context.Context, tokenString string) error {
	claims, err := decodeUnverified(tokenString)
	if err != nil {
		return err
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	exp := claims.ExpiresAt.Time
	if !exp.After(b.now()) {
		return nil
	}

	b.mu.Lock()
	b.entries[claims.ID] = exp
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, jti string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[jti]
	return ok && exp.After(b.now())
}

// Run sweeps expired entries on the given interval until ctx is canceled.
// The app owns this goroutine.
func (b *MemoryBlacklist) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

func (b *MemoryBlacklist) sweep() {
	now := b.now()
	b.mu.Lock()
	for jti, exp := range b.entries {
		if !exp.After(now) {
			delete(b.entries, jti)
		}
	}
	b.mu.Unlock()
}

// Len reports the number of live entries, for tests and metrics.
func (b *MemoryBlacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
