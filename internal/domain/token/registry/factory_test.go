package registry

import (
	"context"
	"testing"
)

func TestFactoryDefaultsToMemory(t *testing.T) {
	reg, err := New(Config{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = reg.Close(context.Background())
	})

	stats, err := reg.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats["type"] != "memory" {
		t.Errorf("expected memory driver, got %v", stats["type"])
	}
}

func TestFactoryRejectsUnknownDriver(t *testing.T) {
	if _, err := New(Config{Driver: "etcd"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestFactoryRedisRequiresConfig(t *testing.T) {
	if _, err := New(Config{Driver: DriverRedis}); err == nil {
		t.Fatal("expected error for missing redis config")
	}
}
