package server

import (
	"crm-backend/internal/config"
	"crm-backend/internal/repository"
	"crm-backend/internal/service"

	"gorm.io/gorm"
)

// App is the wired service graph (Repository -> Service) shared by the API server and finctl.
type App struct {
	DB         *gorm.DB
	Numbers    *service.InvoiceNumberGenerator
	Reconciler *service.Reconciler
	Invoices   service.InvoiceService
	Payments   service.PaymentService
	Gateways   service.GatewayService
	Projects   service.ProjectService
	Audit      service.AuditService
}

// NewApp builds every repository and service on db. A nil publisher drops events.
func NewApp(db *gorm.DB, cfg *config.Config, publisher service.EventPublisher, now service.Clock) *App {
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	clientRepo := repository.NewClientRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	numbers := service.NewInvoiceNumberGenerator(repository.NewCompanyRepository(db),
		repository.NewSequenceRepository(db), invoiceRepo, txManager, now)
	reconciler := service.NewReconciler(invoiceRepo, paymentRepo, auditRepo, txManager, publisher, now)

	return &App{
		DB:         db,
		Numbers:    numbers,
		Reconciler: reconciler,
		Invoices: service.NewInvoiceService(invoiceRepo, paymentRepo, clientRepo, projectRepo, auditRepo,
			numbers, reconciler, txManager, publisher, service.InvoiceOptions{
				DefaultDueDays: cfg.Finance.DefaultDueDays,
				Now:            now,
			}),
		Payments: service.NewPaymentService(paymentRepo, invoiceRepo, repository.NewGatewayRepository(db),
			auditRepo, reconciler, txManager, publisher, now),
		Gateways: service.NewGatewayService(repository.NewGatewayRepository(db)),
		Projects: service.NewProjectService(projectRepo, clientRepo, invoiceRepo, paymentRepo,
			repository.NewCampaignRepository(db), auditRepo, txManager, now),
		Audit: service.NewAuditService(auditRepo),
	}
}
