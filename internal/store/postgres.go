package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appraisells/backend/internal/models"
)

const pgUniqueViolation = "23505"

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping verifies database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertProfile creates or overwrites the registration row for reg's email in
// a single statement. The xmax = 0 check distinguishes insert from update.
func (s *Postgres) UpsertProfile(ctx context.Context, reg *models.Registration) (bool, error) {
	const q = `INSERT INTO registrations (
			id, email, full_name, phone,
			address1, address2, city, state, zip_code, country,
			agree_shipping, agree_terms, agree_privacy,
			payment_id, payment_amount, pi_uid, pi_username, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (email) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			address1 = EXCLUDED.address1,
			address2 = EXCLUDED.address2,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip_code = EXCLUDED.zip_code,
			country = EXCLUDED.country,
			agree_shipping = EXCLUDED.agree_shipping,
			agree_terms = EXCLUDED.agree_terms,
			agree_privacy = EXCLUDED.agree_privacy,
			pi_uid = CASE WHEN EXCLUDED.pi_uid <> '' THEN EXCLUDED.pi_uid ELSE registrations.pi_uid END,
			pi_username = CASE WHEN EXCLUDED.pi_username <> '' THEN EXCLUDED.pi_username ELSE registrations.pi_username END,
			status = CASE WHEN registrations.status IN ('payment_approved', 'completed')
				THEN registrations.status ELSE EXCLUDED.status END,
			updated_at = NOW()
		RETURNING id, status, created_at, updated_at, (xmax = 0) AS inserted`

	var created bool
	err := s.pool.QueryRow(ctx, q,
		reg.PersonalInfo.Email, reg.PersonalInfo.FullName, reg.PersonalInfo.Phone,
		reg.ShippingAddress.Address1, reg.ShippingAddress.Address2, reg.ShippingAddress.City,
		reg.ShippingAddress.State, reg.ShippingAddress.ZipCode, reg.ShippingAddress.Country,
		reg.Agreements.Shipping, reg.Agreements.Terms, reg.Agreements.Privacy,
		reg.Payment.PaymentID, reg.Payment.Amount,
		reg.PiUser.UID, reg.PiUser.Username, reg.Status,
	).Scan(&reg.ID, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert profile: %w", err)
	}
	return created, nil
}

// CreateRegistration inserts a registration; duplicate email maps to
// ErrDuplicateEmail.
func (s *Postgres) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (
			id, email, full_name, phone,
			address1, address2, city, state, zip_code, country,
			agree_shipping, agree_terms, agree_privacy,
			payment_id, payment_amount, payment_completed, payment_completed_at,
			pi_uid, pi_username, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, q,
		reg.PersonalInfo.Email, reg.PersonalInfo.FullName, reg.PersonalInfo.Phone,
		reg.ShippingAddress.Address1, reg.ShippingAddress.Address2, reg.ShippingAddress.City,
		reg.ShippingAddress.State, reg.ShippingAddress.ZipCode, reg.ShippingAddress.Country,
		reg.Agreements.Shipping, reg.Agreements.Terms, reg.Agreements.Privacy,
		reg.Payment.PaymentID, reg.Payment.Amount, reg.Payment.Completed, reg.Payment.CompletedAt,
		reg.PiUser.UID, reg.PiUser.Username, reg.Status,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// GetRegistrationByEmail returns the registration for an email.
func (s *Postgres) GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error) {
	const q = `SELECT id, email, full_name, phone,
			address1, address2, city, state, zip_code, country,
			agree_shipping, agree_terms, agree_privacy,
			payment_id, payment_amount, payment_completed, payment_approved_at, payment_completed_at,
			pi_uid, pi_username, status, created_at, updated_at
		FROM registrations WHERE email = $1`

	var reg models.Registration
	err := s.pool.QueryRow(ctx, q, email).Scan(
		&reg.ID, &reg.PersonalInfo.Email, &reg.PersonalInfo.FullName, &reg.PersonalInfo.Phone,
		&reg.ShippingAddress.Address1, &reg.ShippingAddress.Address2, &reg.ShippingAddress.City,
		&reg.ShippingAddress.State, &reg.ShippingAddress.ZipCode, &reg.ShippingAddress.Country,
		&reg.Agreements.Shipping, &reg.Agreements.Terms, &reg.Agreements.Privacy,
		&reg.Payment.PaymentID, &reg.Payment.Amount, &reg.Payment.Completed,
		&reg.Payment.ApprovedAt, &reg.Payment.CompletedAt,
		&reg.PiUser.UID, &reg.PiUser.Username, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

// MarkRegistrationPaymentApproved stamps approval on the registration. The
// status CASE keeps later statuses in place.
func (s *Postgres) MarkRegistrationPaymentApproved(ctx context.Context, email, paymentID string, at time.Time) error {
	const q = `UPDATE registrations SET
			payment_approved_at = $2,
			payment_id = CASE WHEN $3 <> '' THEN $3 ELSE payment_id END,
			status = CASE WHEN status IN ('payment_approved', 'completed') THEN status ELSE 'payment_approved' END,
			updated_at = NOW()
		WHERE email = $1`

	tag, err := s.pool.Exec(ctx, q, email, at, paymentID)
	if err != nil {
		return fmt.Errorf("mark payment approved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRegistrationPaymentCompleted marks the registration's payment complete.
func (s *Postgres) MarkRegistrationPaymentCompleted(ctx context.Context, email, paymentID string, at time.Time) error {
	const q = `UPDATE registrations SET
			payment_completed = TRUE,
			payment_completed_at = $2,
			payment_id = CASE WHEN $3 <> '' THEN $3 ELSE payment_id END,
			status = 'completed',
			updated_at = NOW()
		WHERE email = $1`

	tag, err := s.pool.Exec(ctx, q, email, at, paymentID)
	if err != nil {
		return fmt.Errorf("mark payment completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountRegistrations returns the total number of registrations.
func (s *Postgres) CountRegistrations(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// RecordPaymentApproval upserts the payment to approved. Terminal statuses
// are left untouched; completion must never regress to approved.
func (s *Postgres) RecordPaymentApproval(ctx context.Context, p PaymentApproval) (*models.Payment, error) {
	const q = `INSERT INTO payments (payment_id, amount, memo, metadata, user_email, status, provider_response, approved_at)
		VALUES ($1, $2, $3, $4, $5, 'approved', $6, $7)
		ON CONFLICT (payment_id) DO UPDATE SET
			status = CASE WHEN payments.status IN ('completed', 'cancelled', 'failed')
				THEN payments.status ELSE 'approved' END,
			user_email = CASE WHEN EXCLUDED.user_email <> '' THEN EXCLUDED.user_email ELSE payments.user_email END,
			provider_response = COALESCE(EXCLUDED.provider_response, payments.provider_response),
			approved_at = EXCLUDED.approved_at
		RETURNING payment_id, amount, memo, metadata, user_email, status, txid, provider_response,
			created_at, approved_at, completed_at`

	return s.scanPayment(s.pool.QueryRow(ctx, q,
		p.PaymentID, p.Amount, p.Memo, p.Metadata, p.UserEmail, p.ProviderResponse, p.ApprovedAt))
}

// RecordPaymentCompletion upserts the payment to completed, creating the row
// when completion beats approval's write.
func (s *Postgres) RecordPaymentCompletion(ctx context.Context, p PaymentCompletion) (*models.Payment, error) {
	const q = `INSERT INTO payments (payment_id, user_email, status, txid, provider_response, completed_at)
		VALUES ($1, $2, 'completed', $3, $4, $5)
		ON CONFLICT (payment_id) DO UPDATE SET
			status = CASE WHEN payments.status IN ('cancelled', 'failed')
				THEN payments.status ELSE 'completed' END,
			user_email = CASE WHEN EXCLUDED.user_email <> '' THEN EXCLUDED.user_email ELSE payments.user_email END,
			txid = CASE WHEN payments.status IN ('cancelled', 'failed') THEN payments.txid ELSE EXCLUDED.txid END,
			provider_response = COALESCE(EXCLUDED.provider_response, payments.provider_response),
			completed_at = CASE WHEN payments.status IN ('cancelled', 'failed')
				THEN payments.completed_at ELSE EXCLUDED.completed_at END
		RETURNING payment_id, amount, memo, metadata, user_email, status, txid, provider_response,
			created_at, approved_at, completed_at`

	return s.scanPayment(s.pool.QueryRow(ctx, q,
		p.PaymentID, p.UserEmail, p.TxID, p.ProviderResponse, p.CompletedAt))
}

// GetPayment returns the payment for a provider payment id.
func (s *Postgres) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	const q = `SELECT payment_id, amount, memo, metadata, user_email, status, txid, provider_response,
			created_at, approved_at, completed_at
		FROM payments WHERE payment_id = $1`

	pay, err := s.scanPayment(s.pool.QueryRow(ctx, q, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return pay, nil
}

// CountPayments returns the total number of payments.
func (s *Postgres) CountPayments(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

func (s *Postgres) scanPayment(row pgx.Row) (*models.Payment, error) {
	var pay models.Payment
	err := row.Scan(
		&pay.PaymentID, &pay.Amount, &pay.Memo, &pay.Metadata, &pay.UserEmail,
		&pay.Status, &pay.TxID, &pay.ProviderResponse,
		&pay.CreatedAt, &pay.ApprovedAt, &pay.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pay, nil
}
