package registry

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryRegistryBasicLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(Config{
		Memory: &MemoryConfig{GCInterval: 10 * time.Millisecond},
	})
	t.Cleanup(func() {
		_ = reg.Close(ctx)
	})

	if err := reg.Add(ctx, "token-a", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	ok, err := reg.Contains(ctx, "token-a")
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected token to be registered")
	}

	ok, err = reg.Contains(ctx, "token-unknown")
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if ok {
		t.Fatal("unknown token should not be present")
	}

	if err := reg.Revoke(ctx, "token-a"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	ok, err = reg.Contains(ctx, "token-a")
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if ok {
		t.Fatal("revoked token should be absent")
	}
}

func TestMemoryRegistryRejectsEmptyToken(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(Config{})
	t.Cleanup(func() {
		_ = reg.Close(ctx)
	})

	if err := reg.Add(ctx, "", time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestMemoryRegistryExpiration(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(Config{
		Memory: &MemoryConfig{GCInterval: 5 * time.Millisecond},
	})
	t.Cleanup(func() {
		_ = reg.Close(ctx)
	})

	if err := reg.Add(ctx, "short-lived", time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	ok, err := reg.Contains(ctx, "short-lived")
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if ok {
		t.Fatal("expired token should have been evicted")
	}

	stats, err := reg.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats["active"].(int) != 0 {
		t.Errorf("expected no active tokens, stats: %v", stats)
	}
}

func TestMemoryRegistryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(Config{})
	t.Cleanup(func() {
		_ = reg.Close(ctx)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		token := "token-" + string(rune('a'+i%26))
		go func(tok string) {
			defer wg.Done()
			_ = reg.Add(ctx, tok, time.Now().Add(time.Hour))
		}(token)
		go func(tok string) {
			defer wg.Done()
			_, _ = reg.Contains(ctx, tok)
		}(token)
	}
	wg.Wait()
}
