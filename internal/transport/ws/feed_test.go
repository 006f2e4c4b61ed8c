package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"paylink-server-go/internal/domain/eventbus"
	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
)

type staticValidator map[string]string

func (v staticValidator) Validate(accessToken string) (string, error) {
	if username, ok := v[accessToken]; ok {
		return username, nil
	}
	return "", platformerrors.New(platformerrors.KindForbidden, "test.validate", "token rejected")
}

func newTestFeed(t *testing.T) (*Feed, *eventbus.Bus, *httptest.Server) {
	t.Helper()

	logger, err := logging.New(logging.Config{Level: "error"})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})

	bus := eventbus.New()
	feed, err := NewFeed(staticValidator{"good-token": "merchant1"}, bus, logger)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	t.Cleanup(func() {
		_ = feed.Close()
	})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	if err := feed.Register(context.Background(), engine); err != nil {
		t.Fatalf("Register: %v", err)
	}

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)
	return feed, bus, server
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/payments" + query
}

func TestFeedPushesPaymentsToOwner(t *testing.T) {
	_, bus, server := newTestFeed(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?token=good-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	// Give the server a beat to store the session before publishing.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(eventbus.EventPaymentRecorded, eventbus.PaymentEventData{
		Username: "merchant1",
		Amount:   25.0,
		ChargeID: "charge-1",
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg PaymentMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read payment message: %v", err)
	}
	if msg.Type != "payment" || msg.Username != "merchant1" || msg.ChargeID != "charge-1" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestFeedDoesNotLeakOtherMerchantsPayments(t *testing.T) {
	_, bus, server := newTestFeed(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?token=good-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	time.Sleep(50 * time.Millisecond)

	bus.Publish(eventbus.EventPaymentRecorded, eventbus.PaymentEventData{
		Username: "someone-else",
		Amount:   99.0,
		ChargeID: "charge-9",
	})

	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg PaymentMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Errorf("expected no message for another merchant, got %+v", msg)
	}
}

func TestFeedRequiresToken(t *testing.T) {
	_, _, server := newTestFeed(t)

	resp, err := http.Get(server.URL + "/ws/payments")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestFeedRejectsInvalidToken(t *testing.T) {
	_, _, server := newTestFeed(t)

	resp, err := http.Get(server.URL + "/ws/payments?token=bogus")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for invalid token, got %d", resp.StatusCode)
	}
}
