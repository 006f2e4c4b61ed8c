package account

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
	"paylink-server-go/internal/platform/storage"
)

// Service owns merchant credentials and profiles. It is the single
// credential-checking path in the system; nothing else reads the
// credential table.
type Service struct {
	db     *gorm.DB
	logger *logging.Logger
}

func NewService(db *gorm.DB, logger *logging.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Signup creates the credential and profile rows inside one
// transaction, so a failure cannot leave an orphaned credential with no
// profile.
func (s *Service) Signup(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return platformerrors.New(platformerrors.KindBadRequest, "account.signup",
			"username and password are required")
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "account.signup",
			"failed to hash password", err)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&storage.Credential{}).
			Where("username = ?", username).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return platformerrors.New(platformerrors.KindConflict, "account.signup",
				"username already exists")
		}

		if err := tx.Create(&storage.Credential{
			Username:     username,
			PasswordHash: passwordHash,
			CreatedAt:    now,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&storage.Profile{
			Username:  username,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	})
	if err != nil {
		if platformerrors.IsKind(err, platformerrors.KindConflict) {
			return err
		}
		s.logger.ErrorTag("account", "signup failed for %s: %v", username, err)
		return platformerrors.Wrap(platformerrors.KindStorage, "account.signup",
			"failed to create account", err)
	}

	s.logger.InfoTag("account", "merchant signed up: %s", username)
	return nil
}

// VerifyCredentials reports whether the username/password pair matches a
// stored credential. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	var cred storage.Credential
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, platformerrors.Wrap(platformerrors.KindStorage, "account.verify",
			"failed to look up credential", err)
	}

	ok, err := verifyPassword(password, cred.PasswordHash)
	if err != nil {
		return false, platformerrors.Wrap(platformerrors.KindStorage, "account.verify",
			"stored credential is unreadable", err)
	}
	return ok, nil
}

// SetBankDetails stores the last four digits of the account and routing
// numbers; the full numbers are never persisted.
func (s *Service) SetBankDetails(ctx context.Context, username, accountNumber, routingNumber string) error {
	if accountNumber == "" || routingNumber == "" {
		return platformerrors.New(platformerrors.KindBadRequest, "account.bank_details",
			"account and routing numbers are required")
	}

	result := s.db.WithContext(ctx).Model(&storage.Profile{}).
		Where("username = ?", username).
		Updates(map[string]any{
			"account_last4": last4(accountNumber),
			"routing_last4": last4(routingNumber),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		s.logger.ErrorTag("account", "bank details update failed for %s: %v", username, result.Error)
		return platformerrors.Wrap(platformerrors.KindStorage, "account.bank_details",
			"failed to update bank details", result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.New(platformerrors.KindNotFound, "account.bank_details",
			"profile not found")
	}
	return nil
}

// Profile returns the merchant profile for dashboards and payment-link
// resolution.
func (s *Service) Profile(ctx context.Context, username string) (storage.Profile, error) {
	var profile storage.Profile
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.Profile{}, platformerrors.New(platformerrors.KindNotFound,
				"account.profile", "profile not found")
		}
		return storage.Profile{}, platformerrors.Wrap(platformerrors.KindStorage,
			"account.profile", "failed to load profile", err)
	}
	return profile, nil
}

func last4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}
