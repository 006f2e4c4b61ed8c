package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	platformconfig "paylink-server-go/internal/platform/config"
	platformerrors "paylink-server-go/internal/platform/errors"
	platformlogging "paylink-server-go/internal/platform/logging"
)

func testLogger(t *testing.T) *platformlogging.Logger {
	t.Helper()
	logger, err := platformlogging.New(platformlogging.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})
	return logger
}

func TestExecuteInitStepsWrapsUntypedErrors(t *testing.T) {
	steps := []initStep{{
		ID:   "test:fail",
		Kind: platformerrors.KindStorage,
		Execute: func(_ context.Context, _ *appState) error {
			return errors.New("boom")
		},
	}}

	err := executeInitSteps(context.Background(), steps, &appState{})
	if !platformerrors.IsKind(err, platformerrors.KindStorage) {
		t.Errorf("expected step kind on wrapped error, got %v", err)
	}
}

func TestExecuteInitStepsPreservesTypedErrors(t *testing.T) {
	wantErr := platformerrors.New(platformerrors.KindConfig, "config.validate", "bad config")
	steps := []initStep{{
		ID:   "test:fail",
		Kind: platformerrors.KindBootstrap,
		Execute: func(_ context.Context, _ *appState) error {
			return wantErr
		},
	}}

	err := executeInitSteps(context.Background(), steps, &appState{})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected typed error passed through, got %v", err)
	}
}

func TestBuildRegistryDefaultsToMemory(t *testing.T) {
	logger := testLogger(t)

	for _, driver := range []string{"", "memory", "something-else"} {
		cfg := &platformconfig.Config{}
		cfg.Auth.Registry.Type = driver
		cfg.Auth.Registry.Cleanup = platformconfig.Duration(time.Minute)

		reg, err := buildRegistry(cfg, logger)
		if err != nil {
			t.Fatalf("buildRegistry(%q): %v", driver, err)
		}
		// No redis is running; a working Add/Contains roundtrip means the
		// memory driver was selected.
		ctx := context.Background()
		if err := reg.Add(ctx, "tok", time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("Add on registry for driver %q: %v", driver, err)
		}
		ok, err := reg.Contains(ctx, "tok")
		if err != nil || !ok {
			t.Errorf("expected token registered for driver %q, got ok=%v err=%v", driver, ok, err)
		}
		_ = reg.Close(ctx)
	}
}

func TestBuildRegistryRequiresRedisAddr(t *testing.T) {
	logger := testLogger(t)

	cfg := &platformconfig.Config{}
	cfg.Auth.Registry.Type = "redis"

	if _, err := buildRegistry(cfg, logger); err == nil {
		t.Fatal("expected error for redis registry without address")
	}
}
