package service

import (
	"errors"
	"strings"
	"time"

	"crm-backend/internal/apperror"
	"crm-backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Finance event names pushed to websocket clients
const (
	EventInvoiceCreated       = "invoice.created"
	EventInvoiceUpdated       = "invoice.updated"
	EventInvoiceRenewed       = "invoice.renewed"
	EventInvoiceDeleted       = "invoice.deleted"
	EventInvoiceCancelled     = "invoice.cancelled"
	EventInvoiceStatusChanged = "invoice.status_changed"
	EventPaymentCreated       = "payment.created"
	EventPaymentApproved      = "payment.approved"
	EventPaymentRejected      = "payment.rejected"
)

// EventPublisher fans finance events out to connected clients of one company.
type EventPublisher interface {
	Publish(companyID uuid.UUID, event string, data interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(uuid.UUID, string, interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

func clockOrNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

const dateLayout = "2006-01-02"

// parseID parses a UUID supplied by a caller, naming the field on failure.
func parseID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s", field).
			WithDetails(map[string]interface{}{"field": field})
	}
	return id, nil
}

// parseDate accepts either a calendar date or an RFC 3339 timestamp.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, apperror.Validation("invalid %s, expected YYYY-MM-DD or RFC 3339", field).
		WithDetails(map[string]interface{}{"field": field})
}

// parsePositiveAmount parses a strictly positive decimal that fits a decimal(18,4) column.
func parsePositiveAmount(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, apperror.Validation("invalid %s", field).
			WithDetails(map[string]interface{}{"field": field})
	}
	if !d.IsPositive() {
		return decimal.Zero, apperror.Validation("%s must be greater than 0", field).
			WithDetails(map[string]interface{}{"field": field})
	}
	if !d.Equal(d.Round(model.MoneyScale)) {
		return decimal.Zero, apperror.Validation("%s must have at most %d decimal places", field, model.MoneyScale).
			WithDetails(map[string]interface{}{"field": field})
	}
	if d.GreaterThanOrEqual(model.MaxMoney) {
		return decimal.Zero, apperror.Validation("%s must be less than %s", field, model.MaxMoney.String()).
			WithDetails(map[string]interface{}{"field": field})
	}
	return d, nil
}

// lookupErr maps a repository read error, turning a missing row into NotFound.
func lookupErr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(resource)
	}
	return apperror.Database(err)
}

// writeErr maps a repository write error, turning a unique violation into Conflict.
func writeErr(err error, conflictMsg string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.Conflict("%s", conflictMsg).WithError(err)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.Database(err)
}

func actorPtr(actorID uuid.UUID) *uuid.UUID {
	if actorID == uuid.Nil {
		return nil
	}
	id := actorID
	return &id
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return page, limit
}
