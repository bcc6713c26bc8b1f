package registrations

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appraisells/backend/internal/models"
	"github.com/appraisells/backend/internal/pigateway"
	"github.com/appraisells/backend/internal/store"
	"github.com/appraisells/backend/pkg/response"
)

// PaymentVerifier is the slice of the gateway the finalize path uses to
// double-check a payment with the provider before accepting it.
type PaymentVerifier interface {
	Verify(ctx context.Context, paymentID string) pigateway.Result
}

// placeholderPaymentID marks a registration whose payment has not started.
const placeholderPaymentID = "pending"

// registrationFee is the flat registration price in Pi.
const registrationFee = 1

// ProfileRequest is the body for POST /register-profile.
type ProfileRequest struct {
	PersonalInfo    *models.PersonalInfo   `json:"personalInfo"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	Agreements      models.Agreements      `json:"agreements"`
	PiUser          models.PiUser          `json:"piUser"`
}

// RegisterRequest is the body for POST /register-user (payment-gated flow).
type RegisterRequest struct {
	PersonalInfo    *models.PersonalInfo   `json:"personalInfo"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	Agreements      models.Agreements      `json:"agreements"`
	Payment         *PaymentRef            `json:"payment"`
	PiUser          models.PiUser          `json:"piUser"`
}

// PaymentRef links a registration to an already-completed payment.
type PaymentRef struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
}

// StatusView is the public registration summary returned by status lookups.
type StatusView struct {
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Status           string    `json:"status"`
	PaymentCompleted bool      `json:"paymentCompleted"`
	RegisteredAt     time.Time `json:"registeredAt"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	store    store.Store
	verifier PaymentVerifier
	cache    *StatusCache
	logger   *zap.Logger
}

// NewHandler creates a registrations handler. verifier and cache may be nil.
func NewHandler(st store.Store, verifier PaymentVerifier, cache *StatusCache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: st, verifier: verifier, cache: cache, logger: logger}
}

// RegisterProfile handles POST /register-profile. Creates the profile on
// first submission and overwrites it on later ones; payment comes separately.
func (h *Handler) RegisterProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.PersonalInfo == nil || req.PersonalInfo.Email == "" {
		response.BadRequest(c, "missing required personal information")
		return
	}

	reg := &models.Registration{
		PersonalInfo:    *req.PersonalInfo,
		ShippingAddress: req.ShippingAddress,
		Agreements:      req.Agreements,
		PiUser:          req.PiUser,
		Status:          models.RegistrationStatusProfileCompleted,
		Payment: models.PaymentSummary{
			PaymentID: placeholderPaymentID,
			Amount:    registrationFee,
		},
	}

	created, err := h.store.UpsertProfile(c.Request.Context(), reg)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			response.BadRequest(c, "email already registered")
			return
		}
		h.logger.Error("profile upsert failed", zap.Error(err), zap.String("email", req.PersonalInfo.Email))
		response.Internal(c, "profile registration failed")
		return
	}

	h.cache.Invalidate(c.Request.Context(), reg.PersonalInfo.Email)

	status := "updated"
	message := "Profile updated successfully"
	if created {
		status = "created"
		message = "Profile registration completed successfully"
	}
	h.logger.Info("profile registered",
		zap.String("email", reg.PersonalInfo.Email), zap.String("status", status))
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        message,
		"registrationId": reg.ID,
		"email":          reg.PersonalInfo.Email,
		"status":         status,
	})
}

// RegisterUser handles POST /register-user: the payment-first flow that
// requires a completed payment before the registration record exists.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.PersonalInfo == nil || req.PersonalInfo.Email == "" || req.Payment == nil || req.Payment.PaymentID == "" {
		response.BadRequest(c, "missing required registration data")
		return
	}

	pay, err := h.store.GetPayment(c.Request.Context(), req.Payment.PaymentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("payment lookup failed", zap.Error(err), zap.String("payment_id", req.Payment.PaymentID))
		response.Internal(c, "registration failed")
		return
	}
	if pay == nil || pay.Status != models.PaymentStatusCompleted {
		response.BadRequest(c, "payment not completed, please complete payment first")
		return
	}

	if h.verifier != nil {
		if res := h.verifier.Verify(c.Request.Context(), pay.PaymentID); !res.OK {
			h.logger.Warn("payment verification rejected",
				zap.String("payment_id", pay.PaymentID), zap.String("error", res.Err))
			response.BadRequest(c, "payment could not be verified")
			return
		}
	}

	now := time.Now().UTC()
	completedAt := now
	if pay.CompletedAt != nil {
		completedAt = *pay.CompletedAt
	}
	reg := &models.Registration{
		PersonalInfo:    *req.PersonalInfo,
		ShippingAddress: req.ShippingAddress,
		Agreements:      req.Agreements,
		PiUser:          req.PiUser,
		Status:          models.RegistrationStatusCompleted,
		Payment: models.PaymentSummary{
			PaymentID:   pay.PaymentID,
			Amount:      pay.Amount,
			Completed:   true,
			CompletedAt: &completedAt,
		},
	}

	if err := h.store.CreateRegistration(c.Request.Context(), reg); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			response.BadRequest(c, "email already registered")
			return
		}
		h.logger.Error("registration create failed", zap.Error(err), zap.String("email", req.PersonalInfo.Email))
		response.Internal(c, "registration failed")
		return
	}

	h.cache.Invalidate(c.Request.Context(), reg.PersonalInfo.Email)

	h.logger.Info("user registered", zap.String("email", reg.PersonalInfo.Email),
		zap.String("payment_id", pay.PaymentID))
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Registration completed successfully",
		"registrationId": reg.ID,
		"email":          reg.PersonalInfo.Email,
	})
}

// GetStatus handles GET /registration-status/:email.
func (h *Handler) GetStatus(c *gin.Context) {
	email := c.Param("email")
	if email == "" {
		response.BadRequest(c, "email required")
		return
	}

	if view, ok := h.cache.Get(c.Request.Context(), email); ok {
		c.JSON(http.StatusOK, gin.H{"success": true, "registration": view})
		return
	}

	reg, err := h.store.GetRegistrationByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		h.logger.Error("status lookup failed", zap.Error(err), zap.String("email", email))
		response.Internal(c, "failed to check registration status")
		return
	}

	view := StatusView{
		Email:            reg.PersonalInfo.Email,
		Name:             reg.PersonalInfo.FullName,
		Status:           reg.Status,
		PaymentCompleted: reg.Payment.Completed,
		RegisteredAt:     reg.CreatedAt,
	}
	h.cache.Set(c.Request.Context(), email, view)
	c.JSON(http.StatusOK, gin.H{"success": true, "registration": view})
}
