package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appraisells/backend/internal/models"
)

// Memory implements Store with mutex-guarded maps. It backs tests and local
// runs without a DATABASE_URL; it honors the same upsert and status-ordering
// semantics as the PostgreSQL store.
type Memory struct {
	mu            sync.Mutex
	registrations map[string]*models.Registration // keyed by email
	payments      map[string]*models.Payment      // keyed by payment id
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		registrations: make(map[string]*models.Registration),
		payments:      make(map[string]*models.Payment),
	}
}

// Ping always succeeds.
func (s *Memory) Ping(ctx context.Context) error { return nil }

// UpsertProfile creates or overwrites the registration for reg's email.
func (s *Memory) UpsertProfile(ctx context.Context, reg *models.Registration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.registrations[reg.PersonalInfo.Email]
	if !ok {
		reg.ID = uuid.New()
		reg.CreatedAt = now
		reg.UpdatedAt = now
		cp := *reg
		s.registrations[reg.PersonalInfo.Email] = &cp
		return true, nil
	}

	existing.PersonalInfo = reg.PersonalInfo
	existing.ShippingAddress = reg.ShippingAddress
	existing.Agreements = reg.Agreements
	if reg.PiUser.UID != "" {
		existing.PiUser.UID = reg.PiUser.UID
	}
	if reg.PiUser.Username != "" {
		existing.PiUser.Username = reg.PiUser.Username
	}
	existing.Status = models.AdvanceRegistrationStatus(existing.Status, reg.Status)
	existing.UpdatedAt = now

	reg.ID = existing.ID
	reg.Status = existing.Status
	reg.CreatedAt = existing.CreatedAt
	reg.UpdatedAt = existing.UpdatedAt
	return false, nil
}

// CreateRegistration inserts a registration, failing on a duplicate email.
func (s *Memory) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registrations[reg.PersonalInfo.Email]; ok {
		return ErrDuplicateEmail
	}
	now := time.Now().UTC()
	reg.ID = uuid.New()
	reg.CreatedAt = now
	reg.UpdatedAt = now
	cp := *reg
	s.registrations[reg.PersonalInfo.Email] = &cp
	return nil
}

// GetRegistrationByEmail returns a copy of the registration for an email.
func (s *Memory) GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

// MarkRegistrationPaymentApproved stamps approval on the registration.
func (s *Memory) MarkRegistrationPaymentApproved(ctx context.Context, email, paymentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[email]
	if !ok {
		return ErrNotFound
	}
	approvedAt := at
	reg.Payment.ApprovedAt = &approvedAt
	if paymentID != "" {
		reg.Payment.PaymentID = paymentID
	}
	reg.Status = models.AdvanceRegistrationStatus(reg.Status, models.RegistrationStatusPaymentApproved)
	reg.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkRegistrationPaymentCompleted marks the registration's payment complete.
func (s *Memory) MarkRegistrationPaymentCompleted(ctx context.Context, email, paymentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[email]
	if !ok {
		return ErrNotFound
	}
	completedAt := at
	reg.Payment.Completed = true
	reg.Payment.CompletedAt = &completedAt
	if paymentID != "" {
		reg.Payment.PaymentID = paymentID
	}
	reg.Status = models.AdvanceRegistrationStatus(reg.Status, models.RegistrationStatusCompleted)
	reg.UpdatedAt = time.Now().UTC()
	return nil
}

// CountRegistrations returns the number of registrations.
func (s *Memory) CountRegistrations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations), nil
}

// RecordPaymentApproval upserts the payment to approved.
func (s *Memory) RecordPaymentApproval(ctx context.Context, p PaymentApproval) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pay, ok := s.payments[p.PaymentID]
	if !ok {
		pay = &models.Payment{
			PaymentID: p.PaymentID,
			Amount:    p.Amount,
			Memo:      p.Memo,
			Metadata:  p.Metadata,
			CreatedAt: time.Now().UTC(),
		}
		s.payments[p.PaymentID] = pay
	}
	pay.Status = models.AdvancePaymentStatus(pay.Status, models.PaymentStatusApproved)
	if p.UserEmail != "" {
		pay.UserEmail = p.UserEmail
	}
	if p.ProviderResponse != nil {
		pay.ProviderResponse = p.ProviderResponse
	}
	approvedAt := p.ApprovedAt
	pay.ApprovedAt = &approvedAt

	cp := *pay
	return &cp, nil
}

// RecordPaymentCompletion upserts the payment to completed.
func (s *Memory) RecordPaymentCompletion(ctx context.Context, p PaymentCompletion) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pay, ok := s.payments[p.PaymentID]
	if !ok {
		pay = &models.Payment{
			PaymentID: p.PaymentID,
			CreatedAt: time.Now().UTC(),
		}
		s.payments[p.PaymentID] = pay
	}
	pay.Status = models.AdvancePaymentStatus(pay.Status, models.PaymentStatusCompleted)
	if pay.Status == models.PaymentStatusCompleted {
		pay.TxID = p.TxID
		completedAt := p.CompletedAt
		pay.CompletedAt = &completedAt
	}
	if p.UserEmail != "" {
		pay.UserEmail = p.UserEmail
	}
	if p.ProviderResponse != nil {
		pay.ProviderResponse = p.ProviderResponse
	}

	cp := *pay
	return &cp, nil
}

// GetPayment returns a copy of the payment for a payment id.
func (s *Memory) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pay, ok := s.payments[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pay
	return &cp, nil
}

// CountPayments returns the number of payments.
func (s *Memory) CountPayments(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments), nil
}
