package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"crm-backend/internal/apperror"
	"crm-backend/internal/database"
	"crm-backend/internal/model"
	"crm-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	// one connection keeps the shared in-memory database free of table locks
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type publishedEvent struct {
	companyID uuid.UUID
	name      string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(companyID uuid.UUID, event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{companyID: companyID, name: event})
}

func (p *recordingPublisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.name == name {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	company  model.Company
	client   model.Client
	project  model.Project
	manual   model.PaymentGateway
	auto     model.PaymentGateway
	inactive model.PaymentGateway
}

type testEnv struct {
	db         *gorm.DB
	ctx        context.Context
	clock      *testClock
	events     *recordingPublisher
	actorID    uuid.UUID
	numbers    *InvoiceNumberGenerator
	reconciler *Reconciler
	invoices   InvoiceService
	payments   PaymentService
	projects   ProjectService
	tenant     fixture
	other      fixture
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	env := &testEnv{
		db:      db,
		ctx:     context.Background(),
		clock:   &testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
		events:  &recordingPublisher{},
		actorID: uuid.New(),
	}

	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	clientRepo := repository.NewClientRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	env.numbers = NewInvoiceNumberGenerator(repository.NewCompanyRepository(db),
		repository.NewSequenceRepository(db), invoiceRepo, txManager, env.clock.Now)
	env.reconciler = NewReconciler(invoiceRepo, paymentRepo, auditRepo, txManager, env.events, env.clock.Now)
	env.invoices = NewInvoiceService(invoiceRepo, paymentRepo, clientRepo, projectRepo, auditRepo,
		env.numbers, env.reconciler, txManager, env.events, InvoiceOptions{Now: env.clock.Now})
	env.payments = NewPaymentService(paymentRepo, invoiceRepo, repository.NewGatewayRepository(db),
		auditRepo, env.reconciler, txManager, env.events, env.clock.Now)
	env.projects = NewProjectService(projectRepo, clientRepo, invoiceRepo, paymentRepo,
		repository.NewCampaignRepository(db), auditRepo, txManager, env.clock.Now)

	env.tenant = seedTenant(t, db, "Acme Studio", "INV", "billing@client.test")
	env.other = seedTenant(t, db, "Other Co", "OTH", "someone@else.test")
	return env
}

func seedTenant(t *testing.T, db *gorm.DB, name, prefix, clientEmail string) fixture {
	t.Helper()
	f := fixture{}

	f.company = model.Company{Name: name, InvoicePrefix: prefix}
	mustCreate(t, db, &f.company)

	f.client = model.Client{CompanyID: f.company.ID, Name: name + " Client", Email: clientEmail}
	mustCreate(t, db, &f.client)

	f.project = model.Project{
		CompanyID: f.company.ID,
		ClientID:  f.client.ID,
		Name:      name + " Website",
		Budget:    decimal.NewFromInt(5000),
		Status:    model.ProjectStatusDraft,
	}
	mustCreate(t, db, &f.project)

	f.manual = model.PaymentGateway{CompanyID: f.company.ID, Name: "Bank transfer", Type: model.GatewayTypeBank, IsActive: true}
	mustCreate(t, db, &f.manual)
	f.auto = model.PaymentGateway{CompanyID: f.company.ID, Name: "Card", Type: model.GatewayTypeCard, IsActive: true, AutoApprove: true}
	mustCreate(t, db, &f.auto)
	f.inactive = model.PaymentGateway{CompanyID: f.company.ID, Name: "Old wallet", Type: model.GatewayTypeMobileWallet}
	mustCreate(t, db, &f.inactive)

	return f
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}

func item(description, qty, price string) InvoiceItemRequest {
	return InvoiceItemRequest{Description: description, Quantity: qty, UnitPrice: price}
}

// createInvoice creates an invoice for the main tenant worth total, due in 30 days.
func (e *testEnv) createInvoice(t *testing.T, total string) InvoiceResponse {
	t.Helper()
	now := e.clock.Now()
	inv, err := e.invoices.CreateInvoice(e.ctx, e.tenant.company.ID, e.actorID, CreateInvoiceRequest{
		ClientID:  e.tenant.client.ID.String(),
		ProjectID: e.tenant.project.ID.String(),
		Items:     []InvoiceItemRequest{item("Consulting", "1", total)},
		IssueDate: now.Format(dateLayout),
		DueDate:   now.AddDate(0, 0, 30).Format(dateLayout),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

// pay records a payment through the manual gateway and optionally approves it.
func (e *testEnv) pay(t *testing.T, invoiceID, amount, txn string, approve bool) PaymentResponse {
	t.Helper()
	p, err := e.payments.CreatePayment(e.ctx, e.tenant.company.ID, e.actorID, CreatePaymentRequest{
		InvoiceID:     invoiceID,
		GatewayID:     e.tenant.manual.ID.String(),
		Amount:        amount,
		TransactionID: txn,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if !approve {
		return p
	}
	p, err = e.payments.ApprovePayment(e.ctx, e.tenant.company.ID, e.actorID, p.ID, ApprovePaymentRequest{})
	if err != nil {
		t.Fatalf("approve payment: %v", err)
	}
	return p
}

func (e *testEnv) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", m, err)
	}
	return n
}

func assertErrorIs(t *testing.T, err error, target *apperror.AppError) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", target.Code)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected %s error, got %v", target.Code, err)
	}
}

func assertDecimal(t *testing.T, field, got, want string) {
	t.Helper()
	g, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("%s: %q is not a decimal", field, got)
	}
	if !g.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: expected %s, got %s", field, want, got)
	}
}
