package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryRegistry struct {
	tokens      map[string]time.Time
	mutex       sync.RWMutex
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory registry for single-instance
// deployments. Expired entries are evicted by a background GC loop, so
// the set cannot grow without bound.
func NewMemory(cfg Config) Registry {
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	r := &memoryRegistry{
		tokens:      make(map[string]time.Time),
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go r.gcLoop()
	return r
}

func (r *memoryRegistry) gcLoop() {
	ticker := time.NewTicker(r.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = r.CleanupExpired(context.Background())
		case <-r.stop:
			return
		}
	}
}

func (r *memoryRegistry) Add(_ context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return fmt.Errorf("token required")
	}
	r.mutex.Lock()
	r.tokens[token] = expiresAt
	r.mutex.Unlock()
	return nil
}

func (r *memoryRegistry) Contains(_ context.Context, token string) (bool, error) {
	r.mutex.RLock()
	expiresAt, ok := r.tokens[token]
	r.mutex.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiresAt) {
		_ = r.Revoke(context.Background(), token)
		return false, nil
	}
	return true, nil
}

func (r *memoryRegistry) Revoke(_ context.Context, token string) error {
	r.mutex.Lock()
	delete(r.tokens, token)
	r.mutex.Unlock()
	return nil
}

func (r *memoryRegistry) CleanupExpired(_ context.Context) error {
	now := time.Now()
	r.mutex.Lock()
	for token, expiresAt := range r.tokens {
		if now.After(expiresAt) {
			delete(r.tokens, token)
		}
	}
	r.mutex.Unlock()
	return nil
}

func (r *memoryRegistry) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	total := len(r.tokens)
	active := 0
	for _, expiresAt := range r.tokens {
		if now.Before(expiresAt) {
			active++
		}
	}
	return map[string]any{
		"type":   "memory",
		"total":  total,
		"active": active,
	}, nil
}

func (r *memoryRegistry) Close(_ context.Context) error {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	return nil
}
