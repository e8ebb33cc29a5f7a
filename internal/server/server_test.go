package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm-backend/internal/config"
	"crm-backend/internal/database"
	"crm-backend/internal/middleware"
	"crm-backend/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var jwtSecret = []byte("router-test-secret")

type harness struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	company  model.Company
	client   model.Client
	project  model.Project
	stranger model.Client
	manual   model.PaymentGateway
	auto     model.PaymentGateway
}

func newHarness(t *testing.T, env string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Server:    config.ServerConfig{Env: env, CORSOrigins: []string{"http://localhost:5173"}},
		JWTSecret: jwtSecret,
		Finance:   config.FinanceConfig{DefaultDueDays: 30},
	}

	h := &harness{t: t, db: db}
	h.router = NewRouter(NewApp(db, cfg, nil, nil), cfg, nil)

	h.company = model.Company{Name: "Acme", InvoicePrefix: "ACM"}
	h.create(&h.company)
	h.client = model.Client{CompanyID: h.company.ID, Name: "Globex", Email: "ap@globex.test"}
	h.create(&h.client)
	h.stranger = model.Client{CompanyID: h.company.ID, Name: "Initech", Email: "ap@initech.test"}
	h.create(&h.stranger)
	h.project = model.Project{CompanyID: h.company.ID, ClientID: h.client.ID, Name: "Portal",
		Budget: decimal.NewFromInt(1000), Status: model.ProjectStatusDraft}
	h.create(&h.project)
	h.manual = model.PaymentGateway{CompanyID: h.company.ID, Name: "Bank", Type: model.GatewayTypeBank, IsActive: true}
	h.create(&h.manual)
	h.auto = model.PaymentGateway{CompanyID: h.company.ID, Name: "Card", Type: model.GatewayTypeCard, IsActive: true, AutoApprove: true}
	h.create(&h.auto)
	return h
}

func (h *harness) create(v interface{}) {
	h.t.Helper()
	if err := h.db.Create(v).Error; err != nil {
		h.t.Fatalf("seed %T: %v", v, err)
	}
}

func (h *harness) token(role string, mutate ...func(*middleware.Claims)) string {
	h.t.Helper()
	claims := middleware.Claims{
		CompanyID: h.company.ID.String(),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	for _, m := range mutate {
		m(&claims)
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		h.t.Fatalf("sign: %v", err)
	}
	return s
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details"`
}

func (h *harness) do(method, path, token string, body interface{}) (int, envelope) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("encode: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		h.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
	return v
}

type invoiceBody struct {
	ID            string `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
	TotalAmount   string `json:"total_amount"`
	DueAmount     string `json:"due_amount"`
}

type paymentBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *harness) createInvoice(token, total string) invoiceBody {
	h.t.Helper()
	today := time.Now().UTC()
	code, env := h.do(http.MethodPost, "/api/finance/invoices", token, map[string]interface{}{
		"client_id":  h.client.ID.String(),
		"project_id": h.project.ID.String(),
		"issue_date": today.Format("2006-01-02"),
		"due_date":   today.AddDate(0, 0, 14).Format("2006-01-02"),
		"items": []map[string]string{
			{"description": "Design", "quantity": "1", "unit_price": total},
		},
	})
	if code != http.StatusCreated {
		h.t.Fatalf("create invoice: %d %+v", code, env)
	}
	return decode[invoiceBody](h.t, env.Data)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, "development")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "OK") {
		t.Fatalf("unexpected health response: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, "development")
	h.do(http.MethodGet, "/api/finance/invoices", h.token(model.RoleAdmin), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "finance_http_requests_total") {
		t.Fatal("expected the request counter in the exposition")
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, "development")
	admin := h.token(model.RoleAdmin)

	inv := h.createInvoice(admin, "300")
	if inv.Status != model.InvoiceStatusUnpaid || !strings.HasPrefix(inv.InvoiceNumber, "ACM-") {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	code, env := h.do(http.MethodGet, "/api/finance/invoices?status=UNPAID&limit=5", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d %+v", code, env)
	}
	page := decode[struct {
		Items []invoiceBody `json:"items"`
		Meta  struct {
			Page  int   `json:"page"`
			Limit int   `json:"limit"`
			Total int64 `json:"total"`
		} `json:"meta"`
	}](t, env.Data)
	if len(page.Items) != 1 || page.Meta.Total != 1 || page.Meta.Limit != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}

	code, env = h.do(http.MethodPost, "/api/payments", admin, map[string]string{
		"invoice_id":     inv.ID,
		"gateway_id":     h.manual.ID.String(),
		"amount":         "300",
		"transaction_id": "TXN-1",
	})
	if code != http.StatusCreated {
		t.Fatalf("create payment: %d %+v", code, env)
	}
	payment := decode[paymentBody](t, env.Data)
	if payment.Status != model.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", payment.Status)
	}

	// approve with no body
	code, env = h.do(http.MethodPut, "/api/payments/"+payment.ID+"/approve", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("approve: %d %+v", code, env)
	}

	code, env = h.do(http.MethodGet, "/api/finance/invoices/"+inv.ID, admin, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d %+v", code, env)
	}
	if got := decode[invoiceBody](t, env.Data); got.Status != model.InvoiceStatusPaid {
		t.Fatalf("expected PAID after approval, got %s", got.Status)
	}

	code, env = h.do(http.MethodGet, "/api/finance/invoices/"+inv.ID+"/payments", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("invoice payments: %d %+v", code, env)
	}
	if payments := decode[[]paymentBody](t, env.Data); len(payments) != 1 || payments[0].Status != model.PaymentStatusApproved {
		t.Fatalf("unexpected payments: %+v", payments)
	}

	code, env = h.do(http.MethodDelete, "/api/finance/invoices/"+inv.ID, admin, nil)
	if code != http.StatusConflict || env.Error != "CONFLICT" {
		t.Fatalf("expected conflict deleting a paid invoice, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodGet, "/api/finance/audit-logs?entity_id="+inv.ID, admin, nil)
	if code != http.StatusOK {
		t.Fatalf("audit logs: %d %+v", code, env)
	}
	logs := decode[struct {
		Items []struct {
			Action string `json:"action"`
		} `json:"items"`
	}](t, env.Data)
	if len(logs.Items) == 0 {
		t.Fatal("expected audit entries for the invoice")
	}
}

func TestValidationErrorsUseJSONFieldNames(t *testing.T) {
	h := newHarness(t, "development")

	code, env := h.do(http.MethodPost, "/api/payments", h.token(model.RoleStaff), map[string]string{
		"gateway_id": h.manual.ID.String(),
		"amount":     "10",
	})
	if code != http.StatusBadRequest || env.Error != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %d %+v", code, env)
	}
	fields, _ := env.Details["fields"].([]interface{})
	names := map[string]bool{}
	for _, f := range fields {
		if m, ok := f.(map[string]interface{}); ok {
			names[fmt.Sprint(m["field"])] = true
		}
	}
	if !names["invoice_id"] || !names["transaction_id"] {
		t.Fatalf("expected invoice_id and transaction_id field errors, got %v", env.Details)
	}
}

func TestPermissionsAreEnforced(t *testing.T) {
	h := newHarness(t, "development")
	admin := h.token(model.RoleAdmin)
	inv := h.createInvoice(admin, "50")

	code, env := h.do(http.MethodGet, "/api/finance/invoices", "", nil)
	if code != http.StatusUnauthorized || env.Error != "UNAUTHORIZED" {
		t.Fatalf("expected 401, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodDelete, "/api/finance/invoices/"+inv.ID, h.token(model.RoleManager), nil)
	if code != http.StatusForbidden || env.Error != "FORBIDDEN" {
		t.Fatalf("expected 403 for manager delete, got %d %+v", code, env)
	}

	code, _ = h.do(http.MethodGet, "/api/finance/invoices", h.token(model.RoleClient), nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for client invoice list, got %d", code)
	}

	otherTenant := h.token(model.RoleAdmin, func(c *middleware.Claims) { c.CompanyID = uuid.NewString() })
	code, env = h.do(http.MethodGet, "/api/finance/invoices/"+inv.ID, otherTenant, nil)
	if code != http.StatusNotFound || env.Error != "NOT_FOUND" {
		t.Fatalf("expected 404 across tenants, got %d %+v", code, env)
	}
}

func TestClientRoleAccess(t *testing.T) {
	h := newHarness(t, "development")
	inv := h.createInvoice(h.token(model.RoleAdmin), "80")

	owner := h.token(model.RoleClient, func(c *middleware.Claims) { c.ClientID = h.client.ID.String() })
	stranger := h.token(model.RoleClient, func(c *middleware.Claims) { c.ClientID = h.stranger.ID.String() })

	code, env := h.do(http.MethodGet, "/api/projects/"+h.project.ID.String()+"/detail", owner, nil)
	if code != http.StatusOK {
		t.Fatalf("owner project detail: %d %+v", code, env)
	}
	code, _ = h.do(http.MethodGet, "/api/projects/"+h.project.ID.String()+"/detail", stranger, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign client, got %d", code)
	}

	pay := map[string]string{
		"invoice_id":     inv.ID,
		"gateway_id":     h.auto.ID.String(),
		"amount":         "80",
		"transaction_id": "CARD-77",
	}
	code, _ = h.do(http.MethodPost, "/api/payments", stranger, pay)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 paying a foreign invoice, got %d", code)
	}
	code, env = h.do(http.MethodPost, "/api/payments", owner, pay)
	if code != http.StatusCreated {
		t.Fatalf("owner payment: %d %+v", code, env)
	}
	if p := decode[paymentBody](t, env.Data); p.Status != model.PaymentStatusApproved {
		t.Fatalf("expected auto-approved payment, got %s", p.Status)
	}

	code, env = h.do(http.MethodGet, "/api/payment-gateways/active", owner, nil)
	if code != http.StatusOK {
		t.Fatalf("gateways: %d %+v", code, env)
	}
	if gws := decode[[]map[string]interface{}](t, env.Data); len(gws) != 2 {
		t.Fatalf("expected 2 active gateways, got %d", len(gws))
	}
}

func TestProjectStatusOverHTTP(t *testing.T) {
	h := newHarness(t, "development")
	path := "/api/projects/" + h.project.ID.String() + "/status"

	code, env := h.do(http.MethodPut, path, h.token(model.RoleManager), map[string]string{"status": "ARCHIVED"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodPut, path, h.token(model.RoleManager), map[string]string{"status": model.ProjectStatusSubmitted})
	if code != http.StatusOK {
		t.Fatalf("update status: %d %+v", code, env)
	}

	code, _ = h.do(http.MethodPut, path, h.token(model.RoleStaff), map[string]string{"status": model.ProjectStatusInProgress})
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", code)
	}
}

func TestInternalErrorsAreHiddenInProduction(t *testing.T) {
	h := newHarness(t, "production")
	token := h.token(model.RoleAdmin)

	sqlDB, err := h.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()

	code, env := h.do(http.MethodGet, "/api/finance/invoices", token, nil)
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d %+v", code, env)
	}
	if env.Message != "Internal server error" || env.Details != nil {
		t.Fatalf("expected a generic message, got %+v", env)
	}
}
