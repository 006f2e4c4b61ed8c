package eventbus

// Topics published across the service.
const (
	EventAuthLogin       = "auth:login"
	EventAuthRefreshed   = "auth:refreshed"
	EventAuthRevoked     = "auth:revoked"
	EventPaymentRecorded = "payment:recorded"
	EventChargeCreated   = "payment:charge_created"
)

// AuthEventData accompanies the auth:* topics.
type AuthEventData struct {
	Username string `json:"username"`
}

// PaymentEventData accompanies the payment:* topics.
type PaymentEventData struct {
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
	ChargeID string  `json:"charge_id"`
}
