// Package payments implements the approval and completion callback
// checkpoints of the external payment flow. The Pi browser SDK retries and
// times out aggressively, so both handlers acknowledge before persisting:
// the gateway call decides the response, then bookkeeping runs in a detached
// goroutine whose failures are logged, never surfaced.
package payments

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appraisells/backend/internal/pigateway"
	"github.com/appraisells/backend/internal/registrations"
	"github.com/appraisells/backend/internal/store"
	"github.com/appraisells/backend/pkg/response"
)

// defaultFee is the flat registration price in Pi, used when a payment row is
// first created by a callback (the provider's create step happens client-side).
const defaultFee = 1

// Gateway is the slice of the provider client the payment workflow needs.
type Gateway interface {
	Approve(ctx context.Context, paymentID string) pigateway.Result
	Complete(ctx context.Context, paymentID, txid string) pigateway.Result
}

// ApproveRequest is the body for POST /approve-payment.
type ApproveRequest struct {
	PaymentID string `json:"paymentId"`
	UserEmail string `json:"userEmail"`
}

// CompleteRequest is the body for POST /complete-payment.
type CompleteRequest struct {
	PaymentID string `json:"paymentId"`
	UserEmail string `json:"userEmail"`
	TxID      string `json:"txid"`
}

// Handler handles payment callback endpoints.
type Handler struct {
	store          store.Store
	gateway        Gateway
	cache          *registrations.StatusCache
	logger         *zap.Logger
	persistTimeout time.Duration
	pending        sync.WaitGroup
}

// NewHandler creates a payments handler. cache may be nil.
func NewHandler(st store.Store, gw Gateway, cache *registrations.StatusCache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:          st,
		gateway:        gw,
		cache:          cache,
		logger:         logger,
		persistTimeout: 10 * time.Second,
	}
}

// ApprovePayment handles POST /approve-payment: the provider's
// ready-for-server-approval checkpoint.
func (h *Handler) ApprovePayment(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.PaymentID == "" {
		response.BadRequest(c, "payment id is required")
		return
	}

	res := h.gateway.Approve(c.Request.Context(), req.PaymentID)
	if !res.OK {
		// The only path that skips persistence: provider rejected and
		// sandbox bypass is off.
		h.logger.Warn("payment approval rejected",
			zap.String("payment_id", req.PaymentID), zap.String("error", res.Err))
		response.BadRequest(c, "payment approval failed: "+res.Err)
		return
	}

	now := time.Now().UTC()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Payment approved successfully",
		"paymentId":   req.PaymentID,
		"status":      "approved",
		"piApiStatus": res.Note,
		"timestamp":   now,
	})

	h.detach(func(ctx context.Context) {
		h.persistApproval(ctx, req, res, now)
	})
}

// CompletePayment handles POST /complete-payment: the provider's
// ready-for-server-completion checkpoint, carrying the blockchain txid.
func (h *Handler) CompletePayment(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.PaymentID == "" {
		response.BadRequest(c, "payment id is required")
		return
	}

	res := h.gateway.Complete(c.Request.Context(), req.PaymentID, req.TxID)
	if !res.OK {
		h.logger.Warn("payment completion rejected",
			zap.String("payment_id", req.PaymentID), zap.String("error", res.Err))
		response.BadRequest(c, "payment completion failed: "+res.Err)
		return
	}

	now := time.Now().UTC()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Payment completed successfully",
		"paymentId":   req.PaymentID,
		"status":      "completed",
		"txid":        req.TxID,
		"piApiStatus": res.Note,
		"timestamp":   now,
	})

	h.detach(func(ctx context.Context) {
		h.persistCompletion(ctx, req, res, now)
	})
}

// Drain blocks until all detached persistence tasks finish. Called during
// graceful shutdown so in-flight bookkeeping lands before exit.
func (h *Handler) Drain() {
	h.pending.Wait()
}

// detach runs a persistence task on its own context, decoupled from the
// already-answered request.
func (h *Handler) detach(task func(ctx context.Context)) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		defer cancel()
		task(ctx)
	}()
}

func (h *Handler) persistApproval(ctx context.Context, req ApproveRequest, res pigateway.Result, at time.Time) {
	_, err := h.store.RecordPaymentApproval(ctx, store.PaymentApproval{
		PaymentID:        req.PaymentID,
		UserEmail:        req.UserEmail,
		Amount:           defaultFee,
		ProviderResponse: res.Raw,
		ApprovedAt:       at,
	})
	if err != nil {
		h.logger.Error("payment approval persistence failed",
			zap.Error(err), zap.String("payment_id", req.PaymentID))
		return
	}

	if req.UserEmail == "" {
		return
	}
	err = h.store.MarkRegistrationPaymentApproved(ctx, req.UserEmail, req.PaymentID, at)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Approval may precede profile submission; nothing to update yet.
		h.logger.Debug("no registration for approved payment",
			zap.String("email", req.UserEmail), zap.String("payment_id", req.PaymentID))
	case err != nil:
		h.logger.Error("registration approval update failed",
			zap.Error(err), zap.String("email", req.UserEmail))
	default:
		h.cache.Invalidate(ctx, req.UserEmail)
	}
}

func (h *Handler) persistCompletion(ctx context.Context, req CompleteRequest, res pigateway.Result, at time.Time) {
	_, err := h.store.RecordPaymentCompletion(ctx, store.PaymentCompletion{
		PaymentID:        req.PaymentID,
		UserEmail:        req.UserEmail,
		TxID:             req.TxID,
		ProviderResponse: res.Raw,
		CompletedAt:      at,
	})
	if err != nil {
		h.logger.Error("payment completion persistence failed",
			zap.Error(err), zap.String("payment_id", req.PaymentID))
		return
	}

	if req.UserEmail == "" {
		return
	}
	err = h.store.MarkRegistrationPaymentCompleted(ctx, req.UserEmail, req.PaymentID, at)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.logger.Debug("no registration for completed payment",
			zap.String("email", req.UserEmail), zap.String("payment_id", req.PaymentID))
	case err != nil:
		h.logger.Error("registration completion update failed",
			zap.Error(err), zap.String("email", req.UserEmail))
	default:
		h.cache.Invalidate(ctx, req.UserEmail)
	}
}
