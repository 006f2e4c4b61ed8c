package account

import (
	"context"
	"testing"

	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
	"paylink-server-go/internal/platform/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	logger, err := logging.New(logging.Config{Level: "error"})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})
	return NewService(db, logger)
}

func TestSignupAndVerifyCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if err := svc.Signup(ctx, "user1", "pass1"); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	ok, err := svc.VerifyCredentials(ctx, "user1", "pass1")
	if err != nil {
		t.Fatalf("VerifyCredentials returned error: %v", err)
	}
	if !ok {
		t.Error("expected valid credentials to verify")
	}

	ok, err = svc.VerifyCredentials(ctx, "user1", "wrong")
	if err != nil {
		t.Fatalf("VerifyCredentials returned error: %v", err)
	}
	if ok {
		t.Error("wrong password must not verify")
	}

	ok, err = svc.VerifyCredentials(ctx, "ghost", "pass1")
	if err != nil {
		t.Fatalf("VerifyCredentials returned error: %v", err)
	}
	if ok {
		t.Error("unknown username must not verify")
	}
}

func TestSignupCreatesProfileAtomically(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if err := svc.Signup(ctx, "user1", "pass1"); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	profile, err := svc.Profile(ctx, "user1")
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if profile.Username != "user1" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestSignupRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if err := svc.Signup(ctx, "user1", "pass1"); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	err := svc.Signup(ctx, "user1", "other")
	if err == nil {
		t.Fatal("expected duplicate signup to fail")
	}
	if !platformerrors.IsKind(err, platformerrors.KindConflict) {
		t.Errorf("expected conflict kind, got %v", err)
	}
}

func TestSignupRejectsEmptyFields(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if err := svc.Signup(ctx, "", "pass"); !platformerrors.IsKind(err, platformerrors.KindBadRequest) {
		t.Errorf("expected bad request for empty username, got %v", err)
	}
	if err := svc.Signup(ctx, "user", ""); !platformerrors.IsKind(err, platformerrors.KindBadRequest) {
		t.Errorf("expected bad request for empty password, got %v", err)
	}
}

func TestSetBankDetailsKeepsLast4(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if err := svc.Signup(ctx, "user1", "pass1"); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if err := svc.SetBankDetails(ctx, "user1", "123456789012", "987654321"); err != nil {
		t.Fatalf("SetBankDetails returned error: %v", err)
	}

	profile, err := svc.Profile(ctx, "user1")
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if profile.AccountLast4 != "9012" {
		t.Errorf("expected account last4 9012, got %s", profile.AccountLast4)
	}
	if profile.RoutingLast4 != "4321" {
		t.Errorf("expected routing last4 4321, got %s", profile.RoutingLast4)
	}
}

func TestSetBankDetailsUnknownProfile(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	err := svc.SetBankDetails(ctx, "ghost", "1234", "5678")
	if !platformerrors.IsKind(err, platformerrors.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestProfileNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Profile(ctx, "ghost")
	if !platformerrors.IsKind(err, platformerrors.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestLast4(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123456789", "6789"},
		{"1234", "1234"},
		{"12", "12"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := last4(tt.input); got != tt.expected {
			t.Errorf("last4(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

// verifyPassword must depend only on the stored hash, never on session
// state: the same context can verify repeatedly.
func TestVerifyCredentialsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if err := svc.Signup(ctx, "user1", "pass1"); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	for i := 0; i < 3; i++ {
		ok, err := svc.VerifyCredentials(ctx, "user1", "pass1")
		if err != nil || !ok {
			t.Fatalf("iteration %d: ok=%v err=%v", i, ok, err)
		}
	}
}
