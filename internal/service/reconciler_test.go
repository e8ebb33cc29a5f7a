package service

import (
	"math/rand"
	"testing"
	"time"

	"crm-backend/internal/model"

	"github.com/shopspring/decimal"
)

func payment(status string, amount int64) model.Payment {
	return model.Payment{Status: status, Amount: decimal.NewFromInt(amount)}
}

func TestReconcileStatus(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)
	past := now.Add(-time.Hour)
	total := decimal.NewFromInt(2000)

	tests := []struct {
		name     string
		due      time.Time
		payments []model.Payment
		want     string
	}{
		{"no payments, due later", future, nil, model.InvoiceStatusUnpaid},
		{"no payments, due passed", past, nil, model.InvoiceStatusOverdue},
		{"due exactly now is not overdue", now, nil, model.InvoiceStatusUnpaid},
		{"partial approved", future, []model.Payment{payment(model.PaymentStatusApproved, 800)}, model.InvoiceStatusUnpaid},
		{"partial approved, overdue", past, []model.Payment{payment(model.PaymentStatusApproved, 800)}, model.InvoiceStatusOverdue},
		{"exact approved", past, []model.Payment{
			payment(model.PaymentStatusApproved, 800),
			payment(model.PaymentStatusApproved, 1200),
		}, model.InvoiceStatusPaid},
		{"overpaid", future, []model.Payment{payment(model.PaymentStatusApproved, 2500)}, model.InvoiceStatusPaid},
		{"pending does not count", future, []model.Payment{payment(model.PaymentStatusPending, 2000)}, model.InvoiceStatusUnpaid},
		{"rejected does not count", past, []model.Payment{payment(model.PaymentStatusRejected, 2000)}, model.InvoiceStatusOverdue},
		{"cancelled does not count", future, []model.Payment{payment(model.PaymentStatusCancelled, 2000)}, model.InvoiceStatusUnpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReconcileStatus(total, tt.due, tt.payments, now); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestReconcileStatus_RandomPaymentSets(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []string{
		model.PaymentStatusPending,
		model.PaymentStatusApproved,
		model.PaymentStatusRejected,
		model.PaymentStatusCancelled,
	}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		total := decimal.NewFromInt(int64(rng.Intn(5000) + 1))
		due := now.Add(time.Duration(rng.Intn(200)-100) * time.Hour)

		payments := make([]model.Payment, rng.Intn(6))
		approved := decimal.Zero
		for j := range payments {
			payments[j] = payment(statuses[rng.Intn(len(statuses))], int64(rng.Intn(3000)+1))
			if payments[j].Status == model.PaymentStatusApproved {
				approved = approved.Add(payments[j].Amount)
			}
		}

		want := model.InvoiceStatusUnpaid
		switch {
		case approved.GreaterThanOrEqual(total):
			want = model.InvoiceStatusPaid
		case due.Before(now):
			want = model.InvoiceStatusOverdue
		}

		got := ReconcileStatus(total, due, payments, now)
		if got != want {
			t.Fatalf("case %d: expected %s, got %s (total=%s approved=%s)", i, want, got, total, approved)
		}

		// order of payments and repeated evaluation must not matter
		rng.Shuffle(len(payments), func(a, b int) { payments[a], payments[b] = payments[b], payments[a] })
		if again := ReconcileStatus(total, due, payments, now); again != got {
			t.Fatalf("case %d: shuffled payments gave %s, first run %s", i, again, got)
		}
	}
}

func TestReconciler_LeavesCancelledInvoices(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, "500")

	if _, err := env.invoices.CancelInvoice(env.ctx, env.tenant.company.ID, env.actorID, inv.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	env.clock.Advance(90 * 24 * time.Hour)
	res, err := env.reconciler.Reconcile(env.ctx, env.tenant.company.ID, parseUUID(t, inv.ID), env.actorID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Changed() || res.To != model.InvoiceStatusCancelled {
		t.Fatalf("cancelled invoice must stay cancelled, got %+v", res)
	}
}

func TestReconcileTenant_MarksOverdueInvoices(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, "500")
	paid := env.createInvoice(t, "100")
	env.pay(t, paid.ID, "100", "TXN-PAID", true)

	env.clock.Advance(31 * 24 * time.Hour)

	changed, err := env.reconciler.ReconcileTenant(env.ctx, env.tenant.company.ID)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 invoice to change, got %d", changed)
	}

	got, err := env.invoices.GetInvoice(env.ctx, env.tenant.company.ID, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.InvoiceStatusOverdue {
		t.Fatalf("expected OVERDUE, got %s", got.Status)
	}
	if env.events.count(EventInvoiceStatusChanged) == 0 {
		t.Fatal("expected a status change event")
	}

	changed, err = env.reconciler.ReconcileAll(env.ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if changed != 0 {
		t.Fatalf("second sweep must be a no-op, changed %d", changed)
	}
}

func TestReconcileInvoice_Endpoint(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, "500")
	env.clock.Advance(45 * 24 * time.Hour)

	got, err := env.invoices.ReconcileInvoice(env.ctx, env.tenant.company.ID, env.actorID, inv.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got.Status != model.InvoiceStatusOverdue {
		t.Fatalf("expected OVERDUE, got %s", got.Status)
	}

	var logs []model.AuditLog
	if err := env.db.Where("action = ? AND entity_id = ?", model.ActionReconcileInvoice, inv.ID).Find(&logs).Error; err != nil {
		t.Fatalf("audit query: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one reconcile audit row, got %d", len(logs))
	}
}

func TestReads_ShowOverdueBeforeSweep(t *testing.T) {
	env := newTestEnv(t)
	open := env.createInvoice(t, "500")
	cancelled := env.createInvoice(t, "70")
	if _, err := env.invoices.CancelInvoice(env.ctx, env.tenant.company.ID, env.actorID, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	env.clock.Advance(31 * 24 * time.Hour)

	got, err := env.invoices.GetInvoice(env.ctx, env.tenant.company.ID, open.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.InvoiceStatusOverdue {
		t.Fatalf("expected OVERDUE on read, got %s", got.Status)
	}

	list, _, err := env.invoices.ListInvoices(env.ctx, env.tenant.company.ID, InvoiceFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	statuses := map[string]string{}
	for _, inv := range list {
		statuses[inv.ID] = inv.Status
	}
	if statuses[open.ID] != model.InvoiceStatusOverdue || statuses[cancelled.ID] != model.InvoiceStatusCancelled {
		t.Fatalf("unexpected listed statuses: %v", statuses)
	}

	detail, err := env.projects.GetProjectDetail(env.ctx, env.tenant.company.ID, staffViewer(), env.tenant.project.ID.String())
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Summary.OverdueCount != 1 || detail.Summary.UnpaidCount != 0 {
		t.Fatalf("unexpected summary counts: %+v", detail.Summary)
	}

	var stored model.Invoice
	if err := env.db.First(&stored, "id = ?", open.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != model.InvoiceStatusUnpaid {
		t.Fatalf("reads must not write status, stored %s", stored.Status)
	}
}
