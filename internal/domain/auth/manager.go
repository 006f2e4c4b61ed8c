package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"paylink-server-go/internal/domain/eventbus"
	"paylink-server-go/internal/domain/token"
	"paylink-server-go/internal/domain/token/registry"
	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	minCleanupInterval     = 30 * time.Second
)

// CredentialVerifier is the single credential-checking collaborator.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (bool, error)
}

// TokenPair is what a successful authentication returns.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	AccessCodec     *token.Codec
	RefreshCodec    *token.Codec
	Registry        registry.Registry
	Credentials     CredentialVerifier
	Bus             *eventbus.Bus
	Logger          *logging.Logger
	CleanupInterval time.Duration
}

// Manager coordinates the token lifecycle: issuance on login, refresh
// exchange, stateless validation and refresh revocation.
type Manager struct {
	accessCodec  *token.Codec
	refreshCodec *token.Codec
	registry     registry.Registry
	credentials  CredentialVerifier
	bus          *eventbus.Bus
	logger       *logging.Logger

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupOnce     sync.Once
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.AccessCodec == nil || opts.RefreshCodec == nil {
		return nil, errors.New("auth manager requires both token codecs")
	}
	if opts.Registry == nil {
		return nil, errors.New("auth manager requires a registry")
	}
	if opts.Credentials == nil {
		return nil, errors.New("auth manager requires a credential verifier")
	}
	if opts.Logger == nil {
		return nil, errors.New("auth manager requires a logger")
	}

	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	} else if cleanupInterval < minCleanupInterval {
		opts.Logger.WarnTag("auth", "cleanup interval too small, adjusting to %s", minCleanupInterval)
		cleanupInterval = minCleanupInterval
	}

	mgr := &Manager{
		accessCodec:     opts.AccessCodec,
		refreshCodec:    opts.RefreshCodec,
		registry:        opts.Registry,
		credentials:     opts.Credentials,
		bus:             opts.Bus,
		logger:          opts.Logger,
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
	}

	go mgr.runCleanup()
	return mgr, nil
}

func (m *Manager) runCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.registry.CleanupExpired(context.Background()); err != nil {
				m.logger.WarnTag("auth", "registry cleanup failed: %v", err)
			}
		case <-m.cleanupStop:
			return
		}
	}
}

// Authenticate verifies the credential pair and issues a fresh token
// pair, registering the refresh token for later exchange.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (TokenPair, error) {
	ok, err := m.credentials.VerifyCredentials(ctx, username, password)
	if err != nil {
		m.logger.ErrorTag("auth", "credential lookup failed: %v", err)
		return TokenPair{}, err
	}
	if !ok {
		m.logger.DebugTag("auth", "authentication rejected for %s", username)
		return TokenPair{}, platformerrors.New(platformerrors.KindUnauthenticated,
			"auth.authenticate", "invalid username or password")
	}

	accessToken, _, err := m.accessCodec.Issue(username)
	if err != nil {
		return TokenPair{}, platformerrors.Wrap(platformerrors.KindUnknown,
			"auth.authenticate", "failed to issue access token", err)
	}
	refreshToken, refreshExpiry, err := m.refreshCodec.Issue(username)
	if err != nil {
		return TokenPair{}, platformerrors.Wrap(platformerrors.KindUnknown,
			"auth.authenticate", "failed to issue refresh token", err)
	}

	if err := m.registry.Add(ctx, refreshToken, refreshExpiry); err != nil {
		m.logger.ErrorTag("auth", "failed to register refresh token: %v", err)
		return TokenPair{}, platformerrors.Wrap(platformerrors.KindStorage,
			"auth.authenticate", "failed to register refresh token", err)
	}

	m.publish(eventbus.EventAuthLogin, username)
	m.logger.InfoTag("auth", "issued token pair for %s", username)
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh exchanges a registered, valid refresh token for a new access
// token. A missing, unregistered or cryptographically invalid token all
// produce the same rejection; none is a fallback for another. The
// refresh token itself is not rotated.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (string, error) {
	reject := platformerrors.New(platformerrors.KindForbidden,
		"auth.refresh", "refresh token rejected")

	if refreshToken == "" {
		return "", reject
	}

	registered, err := m.registry.Contains(ctx, refreshToken)
	if err != nil {
		m.logger.ErrorTag("auth", "registry lookup failed: %v", err)
		return "", platformerrors.Wrap(platformerrors.KindStorage,
			"auth.refresh", "registry lookup failed", err)
	}
	if !registered {
		return "", reject
	}

	username, err := m.refreshCodec.Verify(refreshToken)
	if err != nil {
		m.logger.DebugTag("auth", "refresh token failed verification: %v", err)
		return "", reject
	}

	accessToken, _, err := m.accessCodec.Issue(username)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindUnknown,
			"auth.refresh", "failed to issue access token", err)
	}

	m.publish(eventbus.EventAuthRefreshed, username)
	return accessToken, nil
}

// Validate checks an access token and returns the embedded identity.
// Verification is stateless; validating the same token twice yields the
// same identity.
func (m *Manager) Validate(accessToken string) (string, error) {
	if accessToken == "" {
		return "", platformerrors.New(platformerrors.KindUnauthenticated,
			"auth.validate", "access token missing")
	}
	username, err := m.accessCodec.Verify(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return "", platformerrors.Wrap(platformerrors.KindForbidden,
				"auth.validate", "access token expired", err)
		}
		return "", platformerrors.Wrap(platformerrors.KindForbidden,
			"auth.validate", "access token invalid", err)
	}
	return username, nil
}

// Revoke removes a refresh token from the registry so it can no longer
// be exchanged. Revoking an unknown token is not an error.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return platformerrors.New(platformerrors.KindBadRequest,
			"auth.revoke", "refresh token required")
	}
	if err := m.registry.Revoke(ctx, refreshToken); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage,
			"auth.revoke", "failed to revoke refresh token", err)
	}
	if username, err := m.refreshCodec.Verify(refreshToken); err == nil {
		m.publish(eventbus.EventAuthRevoked, username)
	}
	return nil
}

// Stats exposes registry statistics for diagnostics.
func (m *Manager) Stats(ctx context.Context) (map[string]any, error) {
	return m.registry.Stats(ctx)
}

// Close stops the cleanup loop and releases the registry.
func (m *Manager) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.cleanupStop)
	})
	return m.registry.Close(context.Background())
}

func (m *Manager) publish(topic, username string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, eventbus.AuthEventData{Username: username})
}
