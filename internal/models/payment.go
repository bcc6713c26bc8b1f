package models

import (
	"encoding/json"
	"time"
)

// PaymentStatus values. created -> approved -> completed is the happy path;
// cancelled and failed are client-reported side exits. completed, cancelled
// and failed are terminal.
const (
	PaymentStatusCreated   = "created"
	PaymentStatusApproved  = "approved"
	PaymentStatusCompleted = "completed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusFailed    = "failed"
)

var paymentStatusRank = map[string]int{
	PaymentStatusCreated:  0,
	PaymentStatusApproved: 1,
	// terminal states all outrank approved; none can be left
	PaymentStatusCompleted: 2,
	PaymentStatusCancelled: 2,
	PaymentStatusFailed:    2,
}

// PaymentStatusTerminal reports whether a payment status admits no further
// transitions.
func PaymentStatusTerminal(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusCancelled, PaymentStatusFailed:
		return true
	}
	return false
}

// AdvancePaymentStatus returns the status a payment should hold after a write
// requesting next: terminal states are never exited, and status never moves
// backwards.
func AdvancePaymentStatus(current, next string) string {
	if PaymentStatusTerminal(current) {
		return current
	}
	if paymentStatusRank[next] > paymentStatusRank[current] {
		return next
	}
	return current
}

// Payment records one external payment transaction, keyed by the
// provider-issued payment id. Rows are created by the first callback seen for
// an id (approval or completion, in either order) and never deleted.
type Payment struct {
	PaymentID        string          `json:"paymentId"`
	Amount           float64         `json:"amount"`
	Memo             string          `json:"memo,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	UserEmail        string          `json:"userEmail,omitempty"`
	Status           string          `json:"status"`
	TxID             string          `json:"txid,omitempty"`
	ProviderResponse json.RawMessage `json:"providerResponse,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}
