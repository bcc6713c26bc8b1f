// Package store persists registrations and payments. Both workflows write
// both entity kinds during payment callbacks, so they share one store behind
// a single interface with a PostgreSQL and an in-memory implementation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/appraisells/backend/internal/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateEmail is returned when a create collides with an existing
// registration email. Handlers map it to a conflict response.
var ErrDuplicateEmail = errors.New("email already registered")

// PaymentApproval is the patch applied when an approval callback lands.
// The payment row is created if it does not exist yet.
type PaymentApproval struct {
	PaymentID        string
	UserEmail        string
	Amount           float64
	Memo             string
	Metadata         json.RawMessage
	ProviderResponse json.RawMessage
	ApprovedAt       time.Time
}

// PaymentCompletion is the patch applied when a completion callback lands.
// Completion may arrive before approval's write; the row is created on demand.
type PaymentCompletion struct {
	PaymentID        string
	UserEmail        string
	TxID             string
	ProviderResponse json.RawMessage
	CompletedAt      time.Time
}

// Store is the persistence contract for registrations and payments.
//
// All upserts are atomic (single statement, no read-then-write) and enforce
// the status invariants internally: registration status never moves backwards
// and terminal payment statuses are never exited.
type Store interface {
	Ping(ctx context.Context) error

	// UpsertProfile creates or overwrites the registration for reg's email
	// and reports whether a new record was created. Mutable profile fields
	// are replaced; status advances to profile_completed but never regresses.
	UpsertProfile(ctx context.Context, reg *models.Registration) (created bool, err error)

	// CreateRegistration inserts a registration and fails with
	// ErrDuplicateEmail if one already exists for the email.
	CreateRegistration(ctx context.Context, reg *models.Registration) error

	GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error)

	// MarkRegistrationPaymentApproved stamps the approval time and advances
	// status to payment_approved. ErrNotFound when no registration matches.
	MarkRegistrationPaymentApproved(ctx context.Context, email, paymentID string, at time.Time) error

	// MarkRegistrationPaymentCompleted sets the completed flag and timestamp
	// and advances status to completed. ErrNotFound when no registration
	// matches.
	MarkRegistrationPaymentCompleted(ctx context.Context, email, paymentID string, at time.Time) error

	CountRegistrations(ctx context.Context) (int, error)

	// RecordPaymentApproval upserts the payment to approved, creating the row
	// if absent, and returns the stored state.
	RecordPaymentApproval(ctx context.Context, p PaymentApproval) (*models.Payment, error)

	// RecordPaymentCompletion upserts the payment to completed, creating the
	// row if absent, and returns the stored state.
	RecordPaymentCompletion(ctx context.Context, p PaymentCompletion) (*models.Payment, error)

	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)

	CountPayments(ctx context.Context) (int, error)
}
