package payment

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paylink-server-go/internal/domain/eventbus"
	"paylink-server-go/internal/domain/payment/coinbase"
	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
	"paylink-server-go/internal/platform/storage"
)

// ChargeCreator abstracts the payment processor so transport and tests
// can substitute a fake.
type ChargeCreator interface {
	CreateCharge(ctx context.Context, username string, amount float64, correlationID string) (coinbase.Charge, error)
}

// Service records completed payments reported by the processor and
// creates new charges on behalf of payers.
type Service struct {
	db      *gorm.DB
	charges ChargeCreator
	bus     *eventbus.Bus
	logger  *logging.Logger
}

func NewService(db *gorm.DB, charges ChargeCreator, bus *eventbus.Bus, logger *logging.Logger) *Service {
	return &Service{
		db:      db,
		charges: charges,
		bus:     bus,
		logger:  logger,
	}
}

// Record persists one completed payment. ChargeID carries a unique
// index, so a duplicate callback delivery is treated as already-recorded
// success rather than a second row.
func (s *Service) Record(ctx context.Context, username string, amount float64, chargeID string) error {
	if username == "" || chargeID == "" {
		return platformerrors.New(platformerrors.KindBadRequest, "payment.record",
			"username and charge id are required")
	}
	if amount <= 0 {
		return platformerrors.New(platformerrors.KindBadRequest, "payment.record",
			"amount must be positive")
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "charge_id"}},
			DoNothing: true,
		}).
		Create(&storage.PaymentRecord{
			Username: username,
			Amount:   amount,
			ChargeID: chargeID,
		})
	if result.Error != nil {
		s.logger.ErrorTag("payment", "failed to record payment %s for %s: %v",
			chargeID, username, result.Error)
		return platformerrors.Wrap(platformerrors.KindStorage, "payment.record",
			"failed to record payment", result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.DebugTag("payment", "duplicate callback for charge %s ignored", chargeID)
		return nil
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.EventPaymentRecorded, eventbus.PaymentEventData{
			Username: username,
			Amount:   amount,
			ChargeID: chargeID,
		})
	}
	s.logger.InfoTag("payment", "recorded payment of %.2f to %s (charge %s)",
		amount, username, chargeID)
	return nil
}

// List returns the merchant's payments, newest first.
func (s *Service) List(ctx context.Context, username string) ([]storage.PaymentRecord, error) {
	var records []storage.PaymentRecord
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "payment.list",
			"failed to load payments", err)
	}
	return records, nil
}

// CreateCharge asks the processor for a new hosted charge payable to the
// named merchant. The processor key never leaves the server.
func (s *Service) CreateCharge(ctx context.Context, username string, amount float64) (coinbase.Charge, error) {
	if s.charges == nil {
		return coinbase.Charge{}, platformerrors.New(platformerrors.KindPayment,
			"payment.create_charge", "payment processor not configured")
	}

	charge, err := s.charges.CreateCharge(ctx, username, amount, uuid.NewString())
	if err != nil {
		return coinbase.Charge{}, err
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.EventChargeCreated, eventbus.PaymentEventData{
			Username: username,
			Amount:   amount,
			ChargeID: charge.ID,
		})
	}
	s.logger.InfoTag("payment", "created charge %s for %s", charge.ID, username)
	return charge, nil
}
