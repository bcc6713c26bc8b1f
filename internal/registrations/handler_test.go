package registrations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/appraisells/backend/internal/models"
	"github.com/appraisells/backend/internal/pigateway"
	"github.com/appraisells/backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(st store.Store) *gin.Engine {
	h := NewHandler(st, nil, nil, nil)
	r := gin.New()
	r.POST("/register-profile", h.RegisterProfile)
	r.POST("/register-user", h.RegisterUser)
	r.GET("/registration-status/:email", h.GetStatus)
	return r
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

func profileBody(email string) map[string]any {
	return map[string]any{
		"personalInfo": map[string]any{"fullName": "Jane Doe", "email": email},
		"shippingAddress": map[string]any{
			"address1": "123 Market St", "city": "San Francisco", "state": "CA",
			"zipCode": "94105", "country": "US",
		},
		"agreements": map[string]any{"shipping": true, "terms": true, "privacy": true},
	}
}

func TestRegisterProfile_MissingPersonalInfo(t *testing.T) {
	r := newRouter(store.NewMemory())

	rec := doJSON(t, r, http.MethodPost, "/register-profile", map[string]any{
		"shippingAddress": map[string]any{"address1": "x"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterProfile_CreateThenUpdate(t *testing.T) {
	mem := store.NewMemory()
	r := newRouter(mem)

	rec := doJSON(t, r, http.MethodPost, "/register-profile", profileBody("a@x.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var first map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["status"] != "created" {
		t.Fatalf("expected status created, got %v", first["status"])
	}

	rec = doJSON(t, r, http.MethodPost, "/register-profile", profileBody("a@x.com"))
	var second map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second["status"] != "updated" {
		t.Fatalf("expected status updated, got %v", second["status"])
	}
	if first["registrationId"] != second["registrationId"] {
		t.Fatal("expected both submissions to hit the same record")
	}

	n, _ := mem.CountRegistrations(context.Background())
	if n != 1 {
		t.Fatalf("expected 1 registration, got %d", n)
	}
}

func TestRegisterUser_PaymentNotCompleted(t *testing.T) {
	mem := store.NewMemory()
	r := newRouter(mem)

	body := profileBody("a@x.com")
	body["payment"] = map[string]any{"paymentId": "p1"}

	// No payment recorded at all.
	rec := doJSON(t, r, http.MethodPost, "/register-user", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	// Approved but not completed.
	if _, err := mem.RecordPaymentApproval(context.Background(), store.PaymentApproval{
		PaymentID: "p1", ApprovedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	rec = doJSON(t, r, http.MethodPost, "/register-user", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for approved-only payment, got %d", rec.Code)
	}
}

func TestRegisterUser_SuccessAndDuplicate(t *testing.T) {
	mem := store.NewMemory()
	r := newRouter(mem)

	if _, err := mem.RecordPaymentCompletion(context.Background(), store.PaymentCompletion{
		PaymentID: "p1", TxID: "t1", CompletedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	body := profileBody("a@x.com")
	body["payment"] = map[string]any{"paymentId": "p1"}

	rec := doJSON(t, r, http.MethodPost, "/register-user", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	reg, err := mem.GetRegistrationByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if reg.Status != models.RegistrationStatusCompleted {
		t.Fatalf("expected completed, got %s", reg.Status)
	}
	if !reg.Payment.Completed || reg.Payment.PaymentID != "p1" {
		t.Fatalf("expected completed payment summary, got %+v", reg.Payment)
	}

	rec = doJSON(t, r, http.MethodPost, "/register-user", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on duplicate email, got %d", rec.Code)
	}
	n, _ := mem.CountRegistrations(context.Background())
	if n != 1 {
		t.Fatalf("expected 1 registration after duplicate, got %d", n)
	}
}

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(ctx context.Context, paymentID string) pigateway.Result {
	return pigateway.Result{OK: false, Err: "payment not found"}
}

func TestRegisterUser_VerifierRejects(t *testing.T) {
	mem := store.NewMemory()
	h := NewHandler(mem, rejectingVerifier{}, nil, nil)
	r := gin.New()
	r.POST("/register-user", h.RegisterUser)

	if _, err := mem.RecordPaymentCompletion(context.Background(), store.PaymentCompletion{
		PaymentID: "p1", TxID: "t1", CompletedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	body := profileBody("a@x.com")
	body["payment"] = map[string]any{"paymentId": "p1"}

	rec := doJSON(t, r, http.MethodPost, "/register-user", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when provider rejects verification, got %d", rec.Code)
	}
	if n, _ := mem.CountRegistrations(context.Background()); n != 0 {
		t.Fatalf("expected no registration, got %d", n)
	}
}

func TestRegisterUser_MissingFields(t *testing.T) {
	r := newRouter(store.NewMemory())

	body := profileBody("a@x.com") // no payment block
	rec := doJSON(t, r, http.MethodPost, "/register-user", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetStatus(t *testing.T) {
	mem := store.NewMemory()
	r := newRouter(mem)

	rec := doJSON(t, r, http.MethodGet, "/registration-status/ghost@x.com", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	doJSON(t, r, http.MethodPost, "/register-profile", profileBody("a@x.com"))

	rec = doJSON(t, r, http.MethodGet, "/registration-status/a@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success      bool       `json:"success"`
		Registration StatusView `json:"registration"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success")
	}
	if body.Registration.Status != models.RegistrationStatusProfileCompleted {
		t.Fatalf("expected profile_completed, got %s", body.Registration.Status)
	}
	if body.Registration.Name != "Jane Doe" || body.Registration.Email != "a@x.com" {
		t.Fatalf("unexpected view %+v", body.Registration)
	}
}
