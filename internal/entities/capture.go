package entities

import "time"

// Lead is a completed booking request, written exactly once when the
// booking flow reaches its confirmation step. Never updated or deleted
// by the engine.
type Lead struct {
	ID        int64     `json:"id"`
	WaID      string    `json:"wa_id"`
	Name      string    `json:"name"`
	Reason    string    `json:"reason"`
	DatePref  string    `json:"date_pref"`
	TimePref  string    `json:"time_pref"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentRequest is a captured identity-validation request for the
// payments flow (CI or NIT typed by the user).
type PaymentRequest struct {
	ID         int64     `json:"id"`
	WaID       string    `json:"wa_id"`
	Identifier string    `json:"identifier"`
	CreatedAt  time.Time `json:"created_at"`
}

// Operator is a dashboard/ops login. Role management is handled by the
// surrounding platform; the engine only needs a gate for its ops API.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
