package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"paylink-server-go/internal/domain/eventbus"
	"paylink-server-go/internal/platform/logging"
	"paylink-server-go/internal/platform/storage"
)

// Recorder persists bus events as domain event rows, giving the service
// an audit trail of logins, refreshes and payments.
type Recorder struct {
	db     *gorm.DB
	bus    *eventbus.Bus
	logger *logging.Logger
}

func NewRecorder(db *gorm.DB, bus *eventbus.Bus, logger *logging.Logger) *Recorder {
	return &Recorder{
		db:     db,
		bus:    bus,
		logger: logger,
	}
}

// Start subscribes the recorder to the audited topics. Handlers run
// asynchronously so publishing never blocks on the database.
func (r *Recorder) Start() error {
	if err := r.bus.SubscribeAsync(eventbus.EventAuthLogin, r.onAuthEvent(eventbus.EventAuthLogin)); err != nil {
		return err
	}
	if err := r.bus.SubscribeAsync(eventbus.EventAuthRefreshed, r.onAuthEvent(eventbus.EventAuthRefreshed)); err != nil {
		return err
	}
	if err := r.bus.SubscribeAsync(eventbus.EventAuthRevoked, r.onAuthEvent(eventbus.EventAuthRevoked)); err != nil {
		return err
	}
	if err := r.bus.SubscribeAsync(eventbus.EventPaymentRecorded, r.onPaymentEvent(eventbus.EventPaymentRecorded)); err != nil {
		return err
	}
	return r.bus.SubscribeAsync(eventbus.EventChargeCreated, r.onPaymentEvent(eventbus.EventChargeCreated))
}

func (r *Recorder) onAuthEvent(topic string) func(eventbus.AuthEventData) {
	return func(data eventbus.AuthEventData) {
		r.persist(topic, data.Username, data)
	}
}

func (r *Recorder) onPaymentEvent(topic string) func(eventbus.PaymentEventData) {
	return func(data eventbus.PaymentEventData) {
		r.persist(topic, data.Username, data)
	}
}

func (r *Recorder) persist(topic, username string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.WarnTag("audit", "failed to encode %s event: %v", topic, err)
		return
	}

	event := storage.DomainEvent{
		EventID:   uuid.NewString(),
		EventType: topic,
		Username:  username,
		Data:      data,
		CreatedAt: time.Now(),
	}
	if err := r.db.Create(&event).Error; err != nil {
		// Audit writes never fail the triggering request.
		r.logger.WarnTag("audit", "failed to persist %s event: %v", topic, err)
	}
}
