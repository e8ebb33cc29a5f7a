package service

import (
	"context"
	"testing"

	"crm-backend/internal/apperror"

	"github.com/google/uuid"
)

func parseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", s, err)
	}
	return id
}

func TestFormatInvoiceNumber(t *testing.T) {
	tests := []struct {
		prefix string
		year   int
		seq    int64
		want   string
	}{
		{"INV", 2025, 1, "INV-2025-00001"},
		{"ACME", 2026, 42, "ACME-2026-00042"},
		{"", 2025, 7, "INV-2025-00007"},
		{"INV", 2025, 123456, "INV-2025-123456"},
	}
	for _, tt := range tests {
		if got := FormatInvoiceNumber(tt.prefix, tt.year, tt.seq); got != tt.want {
			t.Errorf("FormatInvoiceNumber(%q, %d, %d) = %q, want %q", tt.prefix, tt.year, tt.seq, got, tt.want)
		}
	}
}

func TestInvoiceNumberGenerator_MonotonicPerTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var numbers []string
	for i := 0; i < 3; i++ {
		n, err := env.numbers.Next(ctx, env.tenant.company.ID)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		numbers = append(numbers, n)
	}
	want := []string{"INV-2025-00001", "INV-2025-00002", "INV-2025-00003"}
	for i := range want {
		if numbers[i] != want[i] {
			t.Fatalf("number %d: expected %s, got %s", i, want[i], numbers[i])
		}
	}

	other, err := env.numbers.Next(ctx, env.other.company.ID)
	if err != nil {
		t.Fatalf("next other: %v", err)
	}
	if other != "OTH-2025-00001" {
		t.Fatalf("each tenant has its own counter, got %s", other)
	}
}

func TestInvoiceNumberGenerator_UnknownCompany(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.numbers.Next(context.Background(), uuid.New())
	assertErrorIs(t, err, apperror.ErrNotFound)
}

func TestInvoiceNumberGenerator_Reserve(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, "100")

	_, err := env.numbers.Reserve(env.ctx, env.tenant.company.ID, inv.InvoiceNumber)
	assertErrorIs(t, err, apperror.ErrConflict)

	// the same number is free in another tenant
	got, err := env.numbers.Reserve(env.ctx, env.other.company.ID, "  "+inv.InvoiceNumber+" ")
	if err != nil {
		t.Fatalf("reserve in other tenant: %v", err)
	}
	if got != inv.InvoiceNumber {
		t.Fatalf("expected trimmed number %q, got %q", inv.InvoiceNumber, got)
	}

	_, err = env.numbers.Reserve(env.ctx, env.tenant.company.ID, "   ")
	assertErrorIs(t, err, apperror.ErrValidation)
}
