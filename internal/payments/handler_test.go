package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/appraisells/backend/internal/models"
	"github.com/appraisells/backend/internal/pigateway"
	"github.com/appraisells/backend/internal/registrations"
	"github.com/appraisells/backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGateway returns canned results, standing in for the Pi platform API.
type stubGateway struct {
	approve  pigateway.Result
	complete pigateway.Result
}

func (s *stubGateway) Approve(ctx context.Context, paymentID string) pigateway.Result {
	return s.approve
}

func (s *stubGateway) Complete(ctx context.Context, paymentID, txid string) pigateway.Result {
	return s.complete
}

func okGateway() *stubGateway {
	return &stubGateway{
		approve:  pigateway.Result{OK: true, Note: pigateway.NoteOK},
		complete: pigateway.Result{OK: true, Note: pigateway.NoteOK},
	}
}

func newRouter(st store.Store, gw Gateway) (*gin.Engine, *Handler) {
	h := NewHandler(st, gw, nil, nil)
	r := gin.New()
	r.POST("/approve-payment", h.ApprovePayment)
	r.POST("/complete-payment", h.CompletePayment)
	return r, h
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestApprovePayment_MissingID(t *testing.T) {
	r, _ := newRouter(store.NewMemory(), okGateway())

	rec := doJSON(t, r, http.MethodPost, "/approve-payment", map[string]any{"userEmail": "a@x.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApprovePayment_RespondsThenPersists(t *testing.T) {
	mem := store.NewMemory()
	r, h := newRouter(mem, okGateway())

	rec := doJSON(t, r, http.MethodPost, "/approve-payment",
		map[string]any{"paymentId": "p1", "userEmail": "a@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "approved" || body["paymentId"] != "p1" {
		t.Fatalf("unexpected response %v", body)
	}

	h.Drain()

	pay, err := mem.GetPayment(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if pay.Status != models.PaymentStatusApproved {
		t.Fatalf("expected approved, got %s", pay.Status)
	}
	if pay.UserEmail != "a@x.com" {
		t.Fatalf("expected user email recorded, got %q", pay.UserEmail)
	}
	if pay.ApprovedAt == nil {
		t.Fatal("expected approval timestamp")
	}
}

func TestApprovePayment_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	r, h := newRouter(mem, okGateway())

	for i := 0; i < 2; i++ {
		rec := doJSON(t, r, http.MethodPost, "/approve-payment", map[string]any{"paymentId": "p1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, rec.Code)
		}
	}
	h.Drain()

	n, _ := mem.CountPayments(context.Background())
	if n != 1 {
		t.Fatalf("expected 1 payment after duplicate approvals, got %d", n)
	}
}

func TestCompletePayment_BeforeApproval(t *testing.T) {
	mem := store.NewMemory()
	r, h := newRouter(mem, okGateway())

	rec := doJSON(t, r, http.MethodPost, "/complete-payment",
		map[string]any{"paymentId": "p1", "txid": "t1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	h.Drain()

	pay, err := mem.GetPayment(context.Background(), "p1")
	if err != nil {
		t.Fatalf("completion before approval should create the row: %v", err)
	}
	if pay.Status != models.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", pay.Status)
	}
	if pay.TxID != "t1" || pay.CompletedAt == nil {
		t.Fatalf("expected txid and completion timestamp, got %+v", pay)
	}
}

func TestDuplicateApproval_DoesNotRegressCompleted(t *testing.T) {
	mem := store.NewMemory()
	r, h := newRouter(mem, okGateway())

	doJSON(t, r, http.MethodPost, "/approve-payment", map[string]any{"paymentId": "p1"})
	doJSON(t, r, http.MethodPost, "/complete-payment", map[string]any{"paymentId": "p1", "txid": "t1"})
	h.Drain()

	doJSON(t, r, http.MethodPost, "/approve-payment", map[string]any{"paymentId": "p1"})
	h.Drain()

	pay, _ := mem.GetPayment(context.Background(), "p1")
	if pay.Status != models.PaymentStatusCompleted {
		t.Fatalf("duplicate approval regressed status to %s", pay.Status)
	}
	if pay.TxID != "t1" {
		t.Fatalf("duplicate approval dropped txid, got %q", pay.TxID)
	}
}

func TestGatewayRejection_NoPersistence(t *testing.T) {
	mem := store.NewMemory()
	gw := &stubGateway{
		approve:  pigateway.Result{OK: false, Err: "payment not found"},
		complete: pigateway.Result{OK: false, Err: "payment not found"},
	}
	r, h := newRouter(mem, gw)

	rec := doJSON(t, r, http.MethodPost, "/approve-payment", map[string]any{"paymentId": "p1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodPost, "/complete-payment", map[string]any{"paymentId": "p1", "txid": "t1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	h.Drain()

	if n, _ := mem.CountPayments(context.Background()); n != 0 {
		t.Fatalf("expected no persistence after gateway rejection, got %d payments", n)
	}
}

func TestGatewayBypass_StillPersists(t *testing.T) {
	mem := store.NewMemory()
	gw := &stubGateway{
		approve:  pigateway.Result{OK: true, Note: pigateway.NoteBypassed, Err: "provider unreachable"},
		complete: pigateway.Result{OK: true, Note: pigateway.NoteBypassed, Err: "provider unreachable"},
	}
	r, h := newRouter(mem, gw)

	rec := doJSON(t, r, http.MethodPost, "/approve-payment", map[string]any{"paymentId": "p1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under sandbox bypass, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["piApiStatus"] != pigateway.NoteBypassed {
		t.Fatalf("expected piApiStatus bypassed, got %v", body["piApiStatus"])
	}
	h.Drain()

	pay, err := mem.GetPayment(context.Background(), "p1")
	if err != nil {
		t.Fatalf("expected persistence under bypass: %v", err)
	}
	if pay.Status != models.PaymentStatusApproved {
		t.Fatalf("expected approved, got %s", pay.Status)
	}
}

func TestEndToEndRegistrationFlow(t *testing.T) {
	mem := store.NewMemory()
	regHandler := registrations.NewHandler(mem, nil, nil, nil)
	payHandler := NewHandler(mem, okGateway(), nil, nil)

	r := gin.New()
	r.POST("/register-profile", regHandler.RegisterProfile)
	r.GET("/registration-status/:email", regHandler.GetStatus)
	r.POST("/approve-payment", payHandler.ApprovePayment)
	r.POST("/complete-payment", payHandler.CompletePayment)

	// 1. Submit profile.
	rec := doJSON(t, r, http.MethodPost, "/register-profile", map[string]any{
		"personalInfo": map[string]any{"fullName": "Jane Doe", "email": "a@x.com"},
		"shippingAddress": map[string]any{
			"address1": "123 Market St", "city": "San Francisco", "state": "CA",
			"zipCode": "94105", "country": "US",
		},
		"agreements": map[string]any{"shipping": true, "terms": true, "privacy": true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register profile: %d: %s", rec.Code, rec.Body.String())
	}
	reg, _ := mem.GetRegistrationByEmail(context.Background(), "a@x.com")
	if reg.Status != models.RegistrationStatusProfileCompleted {
		t.Fatalf("after profile: expected profile_completed, got %s", reg.Status)
	}

	// 2. Approval callback.
	rec = doJSON(t, r, http.MethodPost, "/approve-payment",
		map[string]any{"paymentId": "p1", "userEmail": "a@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: %d: %s", rec.Code, rec.Body.String())
	}
	payHandler.Drain()

	pay, _ := mem.GetPayment(context.Background(), "p1")
	if pay.Status != models.PaymentStatusApproved {
		t.Fatalf("after approve: expected approved, got %s", pay.Status)
	}
	reg, _ = mem.GetRegistrationByEmail(context.Background(), "a@x.com")
	if reg.Status != models.RegistrationStatusPaymentApproved {
		t.Fatalf("after approve: expected payment_approved, got %s", reg.Status)
	}

	// 3. Completion callback.
	rec = doJSON(t, r, http.MethodPost, "/complete-payment",
		map[string]any{"paymentId": "p1", "userEmail": "a@x.com", "txid": "t1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d: %s", rec.Code, rec.Body.String())
	}
	payHandler.Drain()

	pay, _ = mem.GetPayment(context.Background(), "p1")
	if pay.Status != models.PaymentStatusCompleted || pay.TxID != "t1" {
		t.Fatalf("after complete: got status %s txid %q", pay.Status, pay.TxID)
	}
	reg, _ = mem.GetRegistrationByEmail(context.Background(), "a@x.com")
	if reg.Status != models.RegistrationStatusCompleted {
		t.Fatalf("after complete: expected completed, got %s", reg.Status)
	}
	if !reg.Payment.Completed || reg.Payment.PaymentID != "p1" {
		t.Fatalf("after complete: unexpected payment summary %+v", reg.Payment)
	}

	// 4. Status endpoint reflects the final state.
	rec = doJSON(t, r, http.MethodGet, "/registration-status/a@x.com", nil)
	var statusBody struct {
		Registration struct {
			Status           string `json:"status"`
			PaymentCompleted bool   `json:"paymentCompleted"`
		} `json:"registration"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &statusBody); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if statusBody.Registration.Status != models.RegistrationStatusCompleted || !statusBody.Registration.PaymentCompleted {
		t.Fatalf("unexpected status view %+v", statusBody.Registration)
	}
}
