package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"crm-backend/internal/apperror"
	"crm-backend/internal/model"
	"crm-backend/internal/repository"
	"crm-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Viewer is the caller of a read that must respect client ownership.
type Viewer struct {
	UserID   uuid.UUID
	Role     string
	ClientID *uuid.UUID
	Email    string
}

// --- DTOs ---

type UpdateProjectStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=DRAFT SUBMITTED IN_PROGRESS COMPLETED CANCELLED"`
}

type ClientResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	ContactInfo json.RawMessage `json:"contact_info,omitempty" swaggertype:"object"`
	IsActive    bool            `json:"is_active"`
}

type ProjectResponse struct {
	ID          string  `json:"id"`
	ClientID    string  `json:"client_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Budget      string  `json:"budget"`
	Status      string  `json:"status"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	CreatedAt   string  `json:"created_at"`
}

type CampaignResponse struct {
	ID        string  `json:"id"`
	ProjectID *string `json:"project_id"`
	Name      string  `json:"name"`
	Channel   string  `json:"channel"`
	Status    string  `json:"status"`
	Budget    string  `json:"budget"`
}

type LeadResponse struct {
	ID         string  `json:"id"`
	ProjectID  *string `json:"project_id"`
	CampaignID *string `json:"campaign_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Source     string  `json:"source"`
	Status     string  `json:"status"`
}

// FinanceSummary totals exclude cancelled invoices.
type FinanceSummary struct {
	InvoiceCount     int    `json:"invoice_count"`
	PaidCount        int    `json:"paid_count"`
	UnpaidCount      int    `json:"unpaid_count"`
	OverdueCount     int    `json:"overdue_count"`
	CancelledCount   int    `json:"cancelled_count"`
	PendingPayments  int    `json:"pending_payments"`
	TotalInvoiced    string `json:"total_invoiced"`
	TotalPaid        string `json:"total_paid"`
	TotalOutstanding string `json:"total_outstanding"`
	CampaignCount    int    `json:"campaign_count"`
	LeadCount        int    `json:"lead_count"`
}

type ProjectDetailResponse struct {
	Project   ProjectResponse    `json:"project"`
	Client    *ClientResponse    `json:"client"`
	Invoices  []InvoiceResponse  `json:"invoices"`
	Payments  []PaymentResponse  `json:"payments"`
	Campaigns []CampaignResponse `json:"campaigns"`
	Leads     []LeadResponse     `json:"leads"`
	Summary   FinanceSummary     `json:"summary"`
}

type ClientDetailResponse struct {
	Client    ClientResponse     `json:"client"`
	Projects  []ProjectResponse  `json:"projects"`
	Invoices  []InvoiceResponse  `json:"invoices"`
	Payments  []PaymentResponse  `json:"payments"`
	Campaigns []CampaignResponse `json:"campaigns"`
	Leads     []LeadResponse     `json:"leads"`
	Summary   FinanceSummary     `json:"summary"`
}

// --- Interface ---

type ProjectService interface {
	GetProjectDetail(ctx context.Context, companyID uuid.UUID, viewer Viewer, projectID string) (ProjectDetailResponse, error)
	GetClientDetail(ctx context.Context, companyID uuid.UUID, viewer Viewer, clientID string) (ClientDetailResponse, error)
	UpdateProjectStatus(ctx context.Context, companyID, actorID uuid.UUID, projectID string, req UpdateProjectStatusRequest) (ProjectResponse, error)
}

type projectService struct {
	projectRepo  repository.ProjectRepository
	clientRepo   repository.ClientRepository
	invoiceRepo  repository.InvoiceRepository
	paymentRepo  repository.PaymentRepository
	campaignRepo repository.CampaignRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	now          Clock
}

func NewProjectService(
	projectRepo repository.ProjectRepository,
	clientRepo repository.ClientRepository,
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	campaignRepo repository.CampaignRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	now Clock,
) ProjectService {
	return &projectService{
		projectRepo:  projectRepo,
		clientRepo:   clientRepo,
		invoiceRepo:  invoiceRepo,
		paymentRepo:  paymentRepo,
		campaignRepo: campaignRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		now:          clockOrNow(now),
	}
}

// --- Implementation ---

// GetProjectDetail composes a project with its client, invoices, payments and marketing rows.
func (s *projectService) GetProjectDetail(ctx context.Context, companyID uuid.UUID, viewer Viewer, projectID string) (ProjectDetailResponse, error) {
	id, err := parseID("project id", projectID)
	if err != nil {
		return ProjectDetailResponse{}, err
	}

	project, err := s.projectRepo.FindByID(ctx, companyID, id)
	if err != nil {
		return ProjectDetailResponse{}, lookupErr(err, "Project")
	}
	if err := authorizeViewer(viewer, project.Client); err != nil {
		return ProjectDetailResponse{}, err
	}

	invoices, err := s.invoiceRepo.ListByProject(ctx, companyID, project.ID)
	if err != nil {
		return ProjectDetailResponse{}, apperror.Database(err)
	}

	finance, err := s.composeFinance(ctx, companyID, invoices, []uuid.UUID{project.ID})
	if err != nil {
		return ProjectDetailResponse{}, err
	}

	resp := ProjectDetailResponse{
		Project:   toProjectResponse(*project),
		Invoices:  finance.invoices,
		Payments:  finance.payments,
		Campaigns: finance.campaigns,
		Leads:     finance.leads,
		Summary:   finance.summary,
	}
	if project.Client != nil {
		client := toClientResponse(*project.Client)
		resp.Client = &client
	}
	return resp, nil
}

// GetClientDetail is GetProjectDetail across every project and invoice of one client.
func (s *projectService) GetClientDetail(ctx context.Context, companyID uuid.UUID, viewer Viewer, clientID string) (ClientDetailResponse, error) {
	id, err := parseID("client id", clientID)
	if err != nil {
		return ClientDetailResponse{}, err
	}

	client, err := s.clientRepo.FindByID(ctx, companyID, id)
	if err != nil {
		return ClientDetailResponse{}, lookupErr(err, "Client")
	}
	if err := authorizeViewer(viewer, client); err != nil {
		return ClientDetailResponse{}, err
	}

	projects, err := s.projectRepo.ListByClient(ctx, companyID, client.ID)
	if err != nil {
		return ClientDetailResponse{}, apperror.Database(err)
	}
	invoices, err := s.invoiceRepo.ListByClient(ctx, companyID, client.ID)
	if err != nil {
		return ClientDetailResponse{}, apperror.Database(err)
	}

	projectIDs := make([]uuid.UUID, 0, len(projects))
	projectResponses := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		projectIDs = append(projectIDs, p.ID)
		projectResponses = append(projectResponses, toProjectResponse(p))
	}

	finance, err := s.composeFinance(ctx, companyID, invoices, projectIDs)
	if err != nil {
		return ClientDetailResponse{}, err
	}

	return ClientDetailResponse{
		Client:    toClientResponse(*client),
		Projects:  projectResponses,
		Invoices:  finance.invoices,
		Payments:  finance.payments,
		Campaigns: finance.campaigns,
		Leads:     finance.leads,
		Summary:   finance.summary,
	}, nil
}

func (s *projectService) UpdateProjectStatus(ctx context.Context, companyID, actorID uuid.UUID, projectID string, req UpdateProjectStatusRequest) (ProjectResponse, error) {
	id, err := parseID("project id", projectID)
	if err != nil {
		return ProjectResponse{}, err
	}
	if !model.IsValidProjectStatus(req.Status) {
		return ProjectResponse{}, apperror.Validation("unknown project status %q", req.Status).
			WithDetails(map[string]interface{}{"field": "status"})
	}

	var project *model.Project
	var previous string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		project, findErr = s.projectRepo.FindByID(txCtx, companyID, id)
		if findErr != nil {
			return lookupErr(findErr, "Project")
		}
		previous = project.Status

		if !model.CanTransitionProject(project.Status, req.Status) {
			return apperror.InvalidState("project cannot move from %s to %s", project.Status, req.Status)
		}

		if err := s.projectRepo.UpdateStatus(txCtx, companyID, id, req.Status); err != nil {
			return apperror.Database(err)
		}
		project.Status = req.Status

		return recordAudit(txCtx, s.auditRepo, companyID, actorID, model.ActionUpdateProjectStatus,
			project.ID.String(), project.Name, map[string]interface{}{
				"from": previous,
				"to":   req.Status,
			})
	})
	if err != nil {
		return ProjectResponse{}, err
	}

	logger.FromContext(ctx).Info("Project status changed",
		zap.String("company_id", companyID.String()),
		zap.String("project_id", id.String()),
		zap.String("from", previous),
		zap.String("to", req.Status),
	)
	return toProjectResponse(*project), nil
}

// --- Helpers ---

// authorizeViewer lets staff roles through. A client-role viewer must own the record,
// matched by client id or, failing that, by e-mail.
func authorizeViewer(viewer Viewer, owner *model.Client) error {
	if viewer.Role != model.RoleClient {
		return nil
	}
	if owner != nil {
		if viewer.ClientID != nil && *viewer.ClientID == owner.ID {
			return nil
		}
		if viewer.Email != "" && owner.Email != "" && strings.EqualFold(viewer.Email, owner.Email) {
			return nil
		}
	}
	return apperror.Forbidden("you do not have access to this client's records")
}

type financeView struct {
	invoices  []InvoiceResponse
	payments  []PaymentResponse
	campaigns []CampaignResponse
	leads     []LeadResponse
	summary   FinanceSummary
}

func (s *projectService) composeFinance(ctx context.Context, companyID uuid.UUID, invoices []model.Invoice, projectIDs []uuid.UUID) (financeView, error) {
	invoiceIDs := make([]uuid.UUID, 0, len(invoices))
	byID := make(map[uuid.UUID]model.Invoice, len(invoices))
	for _, inv := range invoices {
		invoiceIDs = append(invoiceIDs, inv.ID)
		byID[inv.ID] = inv
	}

	payments, err := s.paymentRepo.ListByInvoices(ctx, companyID, invoiceIDs)
	if err != nil {
		return financeView{}, apperror.Database(err)
	}
	campaigns, err := s.campaignRepo.ListCampaignsByProjects(ctx, companyID, projectIDs)
	if err != nil {
		return financeView{}, apperror.Database(err)
	}
	leads, err := s.campaignRepo.ListLeadsByProjects(ctx, companyID, projectIDs)
	if err != nil {
		return financeView{}, apperror.Database(err)
	}

	paid := approvedTotals(payments)
	view := financeView{
		invoices:  make([]InvoiceResponse, 0, len(invoices)),
		payments:  make([]PaymentResponse, 0, len(payments)),
		campaigns: make([]CampaignResponse, 0, len(campaigns)),
		leads:     make([]LeadResponse, 0, len(leads)),
	}

	invoiced, settled, outstanding := decimal.Zero, decimal.Zero, decimal.Zero
	now := s.now()
	for _, inv := range invoices {
		inv.Status = effectiveStatus(inv, paid[inv.ID], now)
		byID[inv.ID] = inv
		view.invoices = append(view.invoices, toInvoiceResponse(inv, paid[inv.ID]))
		view.summary.InvoiceCount++
		switch inv.Status {
		case model.InvoiceStatusPaid:
			view.summary.PaidCount++
		case model.InvoiceStatusUnpaid:
			view.summary.UnpaidCount++
		case model.InvoiceStatusOverdue:
			view.summary.OverdueCount++
		case model.InvoiceStatusCancelled:
			view.summary.CancelledCount++
			continue
		}
		invoiced = invoiced.Add(inv.TotalAmount)
		settled = settled.Add(paid[inv.ID])
		if due := inv.TotalAmount.Sub(paid[inv.ID]); due.IsPositive() {
			outstanding = outstanding.Add(due)
		}
	}

	for _, p := range payments {
		resp := toPaymentResponse(p)
		if inv, ok := byID[p.InvoiceID]; ok {
			resp.InvoiceNumber = inv.InvoiceNumber
			resp.InvoiceStatus = inv.Status
		}
		view.payments = append(view.payments, resp)
		if p.Status == model.PaymentStatusPending {
			view.summary.PendingPayments++
		}
	}

	for _, c := range campaigns {
		view.campaigns = append(view.campaigns, CampaignResponse{
			ID:        c.ID.String(),
			ProjectID: uuidString(c.ProjectID),
			Name:      c.Name,
			Channel:   c.Channel,
			Status:    c.Status,
			Budget:    c.Budget.StringFixed(2),
		})
	}
	for _, l := range leads {
		view.leads = append(view.leads, LeadResponse{
			ID:         l.ID.String(),
			ProjectID:  uuidString(l.ProjectID),
			CampaignID: uuidString(l.CampaignID),
			Name:       l.Name,
			Email:      l.Email,
			Phone:      l.Phone,
			Source:     l.Source,
			Status:     l.Status,
		})
	}

	view.summary.TotalInvoiced = invoiced.StringFixed(2)
	view.summary.TotalPaid = settled.StringFixed(2)
	view.summary.TotalOutstanding = outstanding.StringFixed(2)
	view.summary.CampaignCount = len(campaigns)
	view.summary.LeadCount = len(leads)
	return view, nil
}

// --- Mapping ---

func toProjectResponse(p model.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID.String(),
		ClientID:    p.ClientID.String(),
		Name:        p.Name,
		Description: p.Description,
		Budget:      p.Budget.StringFixed(2),
		Status:      p.Status,
		StartDate:   timeString(p.StartDate),
		EndDate:     timeString(p.EndDate),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toClientResponse(c model.Client) ClientResponse {
	resp := ClientResponse{
		ID:       c.ID.String(),
		Name:     c.Name,
		Email:    c.Email,
		Phone:    c.Phone,
		IsActive: c.IsActive,
	}
	if len(c.ContactInfo) > 0 {
		resp.ContactInfo = json.RawMessage(c.ContactInfo)
	}
	return resp
}
