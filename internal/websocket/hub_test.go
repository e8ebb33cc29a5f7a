package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm-backend/internal/middleware"
	"crm-backend/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var secret = []byte("ws-secret")

func token(t *testing.T, companyID uuid.UUID, role string) string {
	t.Helper()
	claims := middleware.Claims{
		CompanyID: companyID.String(),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func startServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	stop := make(chan struct{})
	go hub.Run(stop)

	auth := middleware.NewAuthenticator(secret)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, auth) })
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		close(stop)
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, tok string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
	return websocket.DefaultDialer.Dial(url, nil)
}

func waitForClients(t *testing.T, hub *Hub, companyID uuid.UUID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount(companyID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount(companyID))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_PublishIsTenantScoped(t *testing.T) {
	hub, srv := startServer(t)
	tenantA, tenantB := uuid.New(), uuid.New()

	connA, _, err := dial(t, srv, token(t, tenantA, model.RoleStaff))
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close()
	connB, _, err := dial(t, srv, token(t, tenantB, model.RoleAdmin))
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	waitForClients(t, hub, tenantA, 1)
	waitForClients(t, hub, tenantB, 1)

	hub.Publish(tenantA, "invoice.created", map[string]string{"invoice_number": "INV-2025-00001"})

	_ = connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := connA.ReadMessage()
	if err != nil {
		t.Fatalf("read A: %v", err)
	}
	var msg struct {
		Type      string            `json:"type"`
		CompanyID string            `json:"company_id"`
		Data      map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "invoice.created" || msg.CompanyID != tenantA.String() || msg.Data["invoice_number"] != "INV-2025-00001" {
		t.Fatalf("unexpected message: %s", raw)
	}

	_ = connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := connB.ReadMessage(); err == nil {
		t.Fatalf("tenant B received foreign event: %s", raw)
	}
}

func TestServeWs_Rejections(t *testing.T) {
	_, srv := startServer(t)

	tests := []struct {
		name string
		tok  string
		want int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"client role", token(t, uuid.New(), model.RoleClient), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := dial(t, srv, tt.tok)
			if err == nil {
				t.Fatal("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Fatalf("expected status %d, got %+v", tt.want, resp)
			}
		})
	}
}

func TestHub_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(uuid.New(), "payment.created", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}
