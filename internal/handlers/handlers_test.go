package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/song-checkout/internal/checkout"
	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/payments"
	"github.com/imrishuroy/song-checkout/internal/pricing"
)

const webhookSecret = "whsec_test"

// fakeService is a scripted CheckoutService.
type fakeService struct {
	mu          sync.Mutex
	forms       []map[string]string
	verifyCalls int
	createErr   error
	verifyRes   *checkout.VerifyResult
	verifyErr   error
	list        []orders.Order
}

func (f *fakeService) CreateCheckout(ctx context.Context, formData map[string]string) (*checkout.CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forms = append(f.forms, formData)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &checkout.CheckoutResult{OrderID: "ORD-1", SessionID: "cs_test_1", RedirectURL: "https://checkout.example/cs_test_1"}, nil
}

func (f *fakeService) VerifyPayment(ctx context.Context, sessionRef, orderID string) (*checkout.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return f.verifyRes, f.verifyErr
}

func (f *fakeService) ListOrders(ctx context.Context) ([]orders.Order, error) {
	return f.list, nil
}

// memoryGuard runs each key once.
type memoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memoryGuard) Do(ctx context.Context, key, orderID string, fn func(ctx context.Context) error) (bool, error) {
	g.mu.Lock()
	if g.seen[key] {
		g.mu.Unlock()
		return false, nil
	}
	g.seen[key] = true
	g.mu.Unlock()
	return true, fn(ctx)
}

func newRouter(cfg HandlerConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if cfg.AdminUser == "" {
		cfg.AdminUser, cfg.AdminPassword = "admin", "s3cret"
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	r.Use(CORS())
	RegisterRoutes(r, cfg)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateCheckoutSession(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(HandlerConfig{Service: svc})

	w := do(r, postJSON("/create-checkout-session", `{"recipientName":"Alex","genre":"pop","voiceGender":"female","recipientType":"Sibling","amount":1,"unitAmount":1}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	var body map[string]string
	decode(t, w, &body)
	if body["id"] != "cs_test_1" || body["url"] != "https://checkout.example/cs_test_1" {
		t.Fatalf("unexpected body %v", body)
	}
	form := svc.forms[0]
	if _, ok := form["amount"]; ok {
		t.Fatal("client amount must not reach the service")
	}
	if _, ok := form["unitAmount"]; ok {
		t.Fatal("client unitAmount must not reach the service")
	}
	if form["recipientType"] != "Sibling" || form["recipientName"] != "Alex" {
		t.Fatalf("unexpected form %v", form)
	}
}

func TestCreateCheckoutSession_Errors(t *testing.T) {
	svc := &fakeService{createErr: errors.New("No API key provided")}
	r := newRouter(HandlerConfig{Service: svc})

	w := do(r, postJSON("/create-checkout-session", `{"recipientName":"Alex"}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["error"] != "No API key provided" {
		t.Fatalf("expected collaborator error text, got %v", body)
	}

	w = do(r, postJSON("/create-checkout-session", `{"email":"nope"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on invalid email, got %d", w.Code)
	}
	w = do(r, postJSON("/create-checkout-session", `not json`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on malformed body, got %d", w.Code)
	}
}

func TestVerifyPayment_MissingParams(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(HandlerConfig{Service: svc})

	for _, q := range []string{"?session_id=X", "?order_id=ORD-1", ""} {
		w := do(r, httptest.NewRequest(http.MethodGet, "/verify-payment"+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", q, w.Code)
		}
	}
	if svc.verifyCalls != 0 {
		t.Fatal("verification must not be attempted without both parameters")
	}
}

func TestVerifyPayment_Outcomes(t *testing.T) {
	amount := int64(9900)
	paidOrder := &orders.Order{ID: "ORD-1", Status: orders.StatusPaid, AmountTotal: &amount, PaymentSessionRef: "cs_test_1"}

	cases := []struct {
		name   string
		res    *checkout.VerifyResult
		err    error
		status int
		check  func(t *testing.T, body map[string]interface{})
	}{
		{
			name:   "paid",
			res:    &checkout.VerifyResult{Success: true, Order: paidOrder, Status: "paid"},
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				order := body["order"].(map[string]interface{})
				if body["success"] != true || order["status"] != "paid" || order["amountTotal"] != float64(9900) {
					t.Fatalf("unexpected body %v", body)
				}
			},
		},
		{
			name:   "unpaid",
			res:    &checkout.VerifyResult{Success: false, Status: "unpaid"},
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				if body["success"] != false || body["status"] != "unpaid" {
					t.Fatalf("unexpected body %v", body)
				}
			},
		},
		{
			name:   "reconciliation",
			err:    fmt.Errorf("%w: order ORD-1", checkout.ErrReconciliation),
			status: http.StatusConflict,
			check: func(t *testing.T, body map[string]interface{}) {
				if body["error"] != "reconciliation_error" || body["success"] != false {
					t.Fatalf("unexpected body %v", body)
				}
			},
		},
		{
			name:   "mismatch",
			err:    checkout.ErrSessionMismatch,
			status: http.StatusConflict,
		},
		{
			name:   "provider down",
			err:    errors.New("connection refused"),
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]interface{}) {
				if body["error"] != "connection refused" {
					t.Fatalf("unexpected body %v", body)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{verifyRes: tc.res, verifyErr: tc.err}
			r := newRouter(HandlerConfig{Service: svc})
			w := do(r, httptest.NewRequest(http.MethodGet, "/verify-payment?session_id=cs_test_1&order_id=ORD-1", nil))
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, w.Code, w.Body.String())
			}
			if tc.check != nil {
				var body map[string]interface{}
				decode(t, w, &body)
				tc.check(t, body)
			}
		})
	}
}

func TestAdminOrders_Auth(t *testing.T) {
	now := time.Now()
	svc := &fakeService{list: []orders.Order{
		{ID: "ORD-2", Status: orders.StatusPaid, CreatedAt: now},
		{ID: "ORD-1", Status: orders.StatusPendingPayment, CreatedAt: now.Add(-time.Hour)},
	}}
	r := newRouter(HandlerConfig{Service: svc, AdminUser: "admin", AdminPassword: "s3cret"})

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Basic realm="Admin"` {
		t.Fatalf("unexpected challenge %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.SetBasicAuth("admin", "wrong")
	if w := do(r, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.SetBasicAuth("admin", "s3cret")
	w = do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []orders.Order
	decode(t, w, &list)
	if len(list) != 2 || list[0].ID != "ORD-2" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestAdminOrders_EmptyIsArray(t *testing.T) {
	r := newRouter(HandlerConfig{Service: &fakeService{}})
	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.SetBasicAuth("admin", "s3cret")
	w := do(r, req)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %d %s", w.Code, w.Body.String())
	}
}

func TestBasicAuth_EmptyCredentialsNeverMatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", BasicAuth("", "", "Admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.SetBasicAuth("", "")
	if w := do(r, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("unconfigured credentials must reject, got %d", w.Code)
	}
}

func signedWebhook(payload string) *http.Request {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func TestStripeWebhook(t *testing.T) {
	svc := &fakeService{verifyRes: &checkout.VerifyResult{Success: true}}
	guard := &memoryGuard{seen: map[string]bool{}}
	r := newRouter(HandlerConfig{Service: svc, WebhookSecret: webhookSecret, Guard: guard})

	completed := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","object":"checkout.session","metadata":{"orderId":"ORD-1"}}}}`

	for i := 0; i < 2; i++ {
		w := do(r, signedWebhook(completed))
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d %s", i, w.Code, w.Body.String())
		}
	}
	if svc.verifyCalls != 1 {
		t.Fatalf("expected one verification across redeliveries, got %d", svc.verifyCalls)
	}

	bad := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(completed))
	bad.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	if w := do(r, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", w.Code)
	}

	ignored := `{"id":"evt_2","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`
	if w := do(r, signedWebhook(ignored)); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored event, got %d", w.Code)
	}
	if svc.verifyCalls != 1 {
		t.Fatal("ignored events must not verify")
	}
}

func TestStripeWebhook_ErrorClasses(t *testing.T) {
	payload := `{"id":"evt_9","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_9","object":"checkout.session","metadata":{"orderId":"ORD-9"}}}}`

	for _, permanentErr := range []error{
		checkout.ErrReconciliation,
		checkout.ErrSessionMismatch,
		fmt.Errorf("mark order paid: %w", orders.ErrStatusConflict),
	} {
		svc := &fakeService{verifyErr: permanentErr}
		r := newRouter(HandlerConfig{Service: svc, WebhookSecret: webhookSecret})
		if w := do(r, signedWebhook(payload)); w.Code != http.StatusOK {
			t.Fatalf("%v: permanent errors should be acknowledged, got %d", permanentErr, w.Code)
		}
	}

	svc := &fakeService{verifyErr: errors.New("timeout")}
	r := newRouter(HandlerConfig{Service: svc, WebhookSecret: webhookSecret})
	if w := do(r, signedWebhook(payload)); w.Code != http.StatusInternalServerError {
		t.Fatalf("transient errors should ask for redelivery, got %d", w.Code)
	}
}

func TestWebhookDisabledWithoutSecret(t *testing.T) {
	r := newRouter(HandlerConfig{Service: &fakeService{}})
	if w := do(r, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}"))); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(HandlerConfig{Service: &fakeService{}})
	req := httptest.NewRequest(http.MethodOptions, "/create-checkout-session", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := do(r, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d %v", w.Code, w.Header())
	}
}

func TestStaticPages(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>songs</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "css"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "css", "site.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := newRouter(HandlerConfig{Service: &fakeService{}, StaticDir: dir})

	for path, want := range map[string]string{"/": "<h1>songs</h1>", "/css/site.css": "body{}"} {
		w := do(r, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("%s: got %d %q", path, w.Code, w.Body.String())
		}
	}

	// net/http canonicalizes .../index.html to .../
	if w := do(r, httptest.NewRequest(http.MethodGet, "/index.html", nil)); w.Code != http.StatusMovedPermanently {
		t.Fatalf("expected redirect for /index.html, got %d", w.Code)
	}
}

// stubGateway stands in for Stripe in the end-to-end flow.
type stubGateway struct {
	mu       sync.Mutex
	amount   map[string]int64
	paid     map[string]bool
	metadata map[string]map[string]string
}

func (g *stubGateway) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := "cs_" + req.OrderID
	g.amount[id] = req.Amount
	g.metadata[id] = req.Metadata
	return &payments.Session{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (g *stubGateway) RetrieveSession(ctx context.Context, id string) (*payments.SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status := "unpaid"
	if g.paid[id] {
		status = payments.PaymentStatusPaid
	}
	return &payments.SessionStatus{ID: id, PaymentStatus: status, AmountTotal: g.amount[id], Metadata: g.metadata[id]}, nil
}

func TestCheckoutFlow_EndToEnd(t *testing.T) {
	policy, _ := pricing.Named(pricing.RecipientDiscount)
	gw := &stubGateway{amount: map[string]int64{}, paid: map[string]bool{}, metadata: map[string]map[string]string{}}
	svc := checkout.New(checkout.Deps{
		Store:   orders.NewFileStore(filepath.Join(t.TempDir(), "orders.json")),
		Gateway: gw,
		Policy:  policy,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Domain:  "http://localhost:3000",
	})
	r := newRouter(HandlerConfig{Service: svc})

	w := do(r, postJSON("/create-checkout-session", `{"recipientName":"Alex","genre":"pop","voiceGender":"female","recipientType":"Sibling","unitAmount":1}`))
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created map[string]string
	decode(t, w, &created)
	sessionID := created["id"]
	orderID := strings.TrimPrefix(sessionID, "cs_")
	if gw.amount[sessionID] != 9900 {
		t.Fatalf("expected sibling price 9900, got %d", gw.amount[sessionID])
	}

	verifyURL := "/verify-payment?session_id=" + sessionID + "&order_id=" + orderID
	w = do(r, httptest.NewRequest(http.MethodGet, verifyURL, nil))
	var pending map[string]interface{}
	decode(t, w, &pending)
	if pending["success"] != false || pending["status"] != "unpaid" {
		t.Fatalf("expected unpaid, got %v", pending)
	}

	gw.paid[sessionID] = true
	w = do(r, httptest.NewRequest(http.MethodGet, verifyURL, nil))
	var paid struct {
		Success bool         `json:"success"`
		Order   orders.Order `json:"order"`
	}
	decode(t, w, &paid)
	if !paid.Success || paid.Order.Status != orders.StatusPaid || paid.Order.AmountTotal == nil || *paid.Order.AmountTotal != 9900 {
		t.Fatalf("unexpected paid response %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.SetBasicAuth("admin", "s3cret")
	w = do(r, req)
	var list []orders.Order
	decode(t, w, &list)
	if len(list) != 1 || list[0].ID != orderID || list[0].Status != orders.StatusPaid {
		t.Fatalf("admin listing should include the paid order, got %+v", list)
	}
}
