package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStatusTransition(t *testing.T) {
	before := testutil.ToFloat64(InvoiceStatusTransitions.WithLabelValues("UNPAID", "PAID"))
	RecordStatusTransition("UNPAID", "PAID")
	after := testutil.ToFloat64(InvoiceStatusTransitions.WithLabelValues("UNPAID", "PAID"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, grew by %v", after-before)
	}
}

func TestMiddleware_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected one request recorded, got %v", got)
	}
}
