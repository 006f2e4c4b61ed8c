package storage

import (
	"time"

	"gorm.io/datatypes"
)

// Credential holds a merchant login. Passwords are stored as argon2id
// PHC strings, never in the clear.
type Credential struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null"                               json:"-"`
	CreatedAt    time.Time `                                              json:"created_at"`
}

// Profile carries the merchant metadata shown on the dashboard and used
// to resolve payment links. Only the last four digits of the bank
// account and routing numbers are ever retained.
type Profile struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	AccountLast4 string    `gorm:"type:varchar(4)"                        json:"account_last4"`
	RoutingLast4 string    `gorm:"type:varchar(4)"                        json:"routing_last4"`
	CreatedAt    time.Time `                                              json:"created_at"`
	UpdatedAt    time.Time `                                              json:"updated_at"`
}

// PaymentRecord is one completed payment reported by the processor
// callback. ChargeID is unique so duplicate callback deliveries land on
// the same row instead of producing duplicates.
type PaymentRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Username  string    `gorm:"type:varchar(255);index;not null" json:"username"`
	Amount    float64   `gorm:"not null"                         json:"amount"`
	ChargeID  string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"charge_id"`
	CreatedAt time.Time `                                        json:"created_at"`
}

// DomainEvent is the audit trail row persisted for bus events.
type DomainEvent struct {
	ID        uint           `gorm:"primaryKey"`
	EventID   string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	EventType string         `gorm:"index;not null"`
	Username  string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}
