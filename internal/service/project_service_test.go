package service

import (
	"testing"

	"crm-backend/internal/apperror"
	"crm-backend/internal/model"
	"crm-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func staffViewer() Viewer {
	return Viewer{UserID: uuid.New(), Role: model.RoleStaff}
}

func seedMarketing(t *testing.T, env *testEnv) {
	t.Helper()
	projectID := env.tenant.project.ID
	campaign := model.Campaign{
		CompanyID: env.tenant.company.ID,
		ProjectID: &projectID,
		Name:      "Spring launch",
		Channel:   "EMAIL",
		Budget:    decimal.NewFromInt(300),
	}
	mustCreate(t, env.db, &campaign)
	mustCreate(t, env.db, &model.Lead{
		CompanyID:  env.tenant.company.ID,
		ProjectID:  &projectID,
		CampaignID: &campaign.ID,
		Name:       "Prospect One",
		Source:     "newsletter",
	})
	// unrelated rows in the same tenant stay out of the view
	mustCreate(t, env.db, &model.Campaign{CompanyID: env.tenant.company.ID, Name: "Brand awareness"})
}

func TestGetProjectDetail_ComposesFinance(t *testing.T) {
	env := newTestEnv(t)
	seedMarketing(t, env)

	paid := env.createInvoice(t, "1000")
	env.pay(t, paid.ID, "1000", "TXN-P1", true)
	open := env.createInvoice(t, "500")
	env.pay(t, open.ID, "200", "TXN-P2", true)
	env.pay(t, open.ID, "50", "TXN-P3", false)
	cancelled := env.createInvoice(t, "70")
	if _, err := env.invoices.CancelInvoice(env.ctx, env.tenant.company.ID, env.actorID, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	detail, err := env.projects.GetProjectDetail(env.ctx, env.tenant.company.ID, staffViewer(), env.tenant.project.ID.String())
	if err != nil {
		t.Fatalf("detail: %v", err)
	}

	if detail.Project.ID != env.tenant.project.ID.String() || detail.Client == nil || detail.Client.Email != env.tenant.client.Email {
		t.Fatalf("unexpected project/client: %+v / %+v", detail.Project, detail.Client)
	}
	if len(detail.Invoices) != 3 || len(detail.Payments) != 3 {
		t.Fatalf("expected 3 invoices and 3 payments, got %d and %d", len(detail.Invoices), len(detail.Payments))
	}
	for _, p := range detail.Payments {
		if p.InvoiceNumber == "" || p.GatewayName == "" {
			t.Fatalf("payments carry invoice number and gateway name: %+v", p)
		}
	}
	if len(detail.Campaigns) != 1 || len(detail.Leads) != 1 {
		t.Fatalf("expected the project's campaign and lead only, got %d and %d", len(detail.Campaigns), len(detail.Leads))
	}

	s := detail.Summary
	if s.InvoiceCount != 3 || s.PaidCount != 1 || s.UnpaidCount != 1 || s.CancelledCount != 1 || s.PendingPayments != 1 {
		t.Fatalf("unexpected summary counts: %+v", s)
	}
	assertDecimal(t, "total_invoiced", s.TotalInvoiced, "1500")
	assertDecimal(t, "total_paid", s.TotalPaid, "1200")
	assertDecimal(t, "total_outstanding", s.TotalOutstanding, "300")
}

func TestGetProjectDetail_TenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.projects.GetProjectDetail(env.ctx, env.other.company.ID, staffViewer(), env.tenant.project.ID.String())
	assertErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetProjectDetail_ClientOwnership(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.tenant.project.ID.String()
	ownID := env.tenant.client.ID
	strangerID := uuid.New()

	tests := []struct {
		name    string
		viewer  Viewer
		allowed bool
	}{
		{"owner by client id", Viewer{Role: model.RoleClient, ClientID: &ownID}, true},
		{"owner by email, any case", Viewer{Role: model.RoleClient, Email: "Billing@Client.TEST"}, true},
		{"other client", Viewer{Role: model.RoleClient, ClientID: &strangerID, Email: "x@y.test"}, false},
		{"client without identity", Viewer{Role: model.RoleClient}, false},
		{"manager", Viewer{Role: model.RoleManager}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.projects.GetProjectDetail(env.ctx, env.tenant.company.ID, tt.viewer, projectID)
			if tt.allowed && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if !tt.allowed {
				assertErrorIs(t, err, apperror.ErrForbidden)
			}
		})
	}
}

func TestGetClientDetail(t *testing.T) {
	env := newTestEnv(t)
	seedMarketing(t, env)

	second := model.Project{CompanyID: env.tenant.company.ID, ClientID: env.tenant.client.ID, Name: "Mobile app", Status: model.ProjectStatusDraft}
	mustCreate(t, env.db, &second)

	env.createInvoice(t, "400")
	if _, err := env.invoices.CreateInvoiceFromProject(env.ctx, env.tenant.company.ID, env.actorID, CreateInvoiceFromProjectRequest{
		ProjectID: second.ID.String(),
		Items:     []InvoiceItemRequest{item("Prototype", "1", "600")},
	}); err != nil {
		t.Fatalf("create from project: %v", err)
	}

	ownID := env.tenant.client.ID
	detail, err := env.projects.GetClientDetail(env.ctx, env.tenant.company.ID,
		Viewer{Role: model.RoleClient, ClientID: &ownID}, env.tenant.client.ID.String())
	if err != nil {
		t.Fatalf("client detail: %v", err)
	}
	if len(detail.Projects) != 2 || len(detail.Invoices) != 2 {
		t.Fatalf("expected 2 projects and 2 invoices, got %d and %d", len(detail.Projects), len(detail.Invoices))
	}
	assertDecimal(t, "total_invoiced", detail.Summary.TotalInvoiced, "1000")
	if detail.Summary.CampaignCount != 1 || detail.Summary.LeadCount != 1 {
		t.Fatalf("unexpected marketing counts: %+v", detail.Summary)
	}

	_, err = env.projects.GetClientDetail(env.ctx, env.tenant.company.ID,
		Viewer{Role: model.RoleClient, Email: "nobody@else.test"}, env.tenant.client.ID.String())
	assertErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.projects.GetClientDetail(env.ctx, env.other.company.ID, staffViewer(), env.tenant.client.ID.String())
	assertErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateProjectStatus(t *testing.T) {
	env := newTestEnv(t)
	id := env.tenant.project.ID.String()

	got, err := env.projects.UpdateProjectStatus(env.ctx, env.tenant.company.ID, env.actorID, id,
		UpdateProjectStatusRequest{Status: model.ProjectStatusSubmitted})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != model.ProjectStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", got.Status)
	}

	_, err = env.projects.UpdateProjectStatus(env.ctx, env.tenant.company.ID, env.actorID, id,
		UpdateProjectStatusRequest{Status: model.ProjectStatusCompleted})
	assertErrorIs(t, err, apperror.ErrInvalidState)

	_, err = env.projects.UpdateProjectStatus(env.ctx, env.tenant.company.ID, env.actorID, id,
		UpdateProjectStatusRequest{Status: "ARCHIVED"})
	assertErrorIs(t, err, apperror.ErrValidation)

	_, err = env.projects.UpdateProjectStatus(env.ctx, env.other.company.ID, env.actorID, id,
		UpdateProjectStatusRequest{Status: model.ProjectStatusCancelled})
	assertErrorIs(t, err, apperror.ErrNotFound)

	for _, next := range []string{model.ProjectStatusInProgress, model.ProjectStatusCompleted} {
		if _, err := env.projects.UpdateProjectStatus(env.ctx, env.tenant.company.ID, env.actorID, id,
			UpdateProjectStatusRequest{Status: next}); err != nil {
			t.Fatalf("move to %s: %v", next, err)
		}
	}
	_, err = env.projects.UpdateProjectStatus(env.ctx, env.tenant.company.ID, env.actorID, id,
		UpdateProjectStatusRequest{Status: model.ProjectStatusCancelled})
	assertErrorIs(t, err, apperror.ErrInvalidState)
}

func TestGatewayService_ListActive(t *testing.T) {
	env := newTestEnv(t)
	svc := NewGatewayService(repository.NewGatewayRepository(env.db))

	gateways, err := svc.ListActive(env.ctx, env.tenant.company.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(gateways) != 2 {
		t.Fatalf("expected the 2 active gateways, got %+v", gateways)
	}
	if gateways[0].Name != "Bank transfer" || gateways[1].Name != "Card" || !gateways[1].AutoApprove {
		t.Fatalf("unexpected gateways: %+v", gateways)
	}
}
