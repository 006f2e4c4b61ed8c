package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"paylink-server-go/internal/domain/eventbus"
	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
	httptransport "paylink-server-go/internal/transport/http"
)

const writeTimeout = 10 * time.Second

// PaymentMessage is what the feed pushes to a connected dashboard.
type PaymentMessage struct {
	Type     string  `json:"type"`
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
	ChargeID string  `json:"charge_id"`
}

// Feed pushes recorded payments to the owning merchant's dashboard over
// a websocket, so the payment list updates without polling.
type Feed struct {
	validator httptransport.TokenValidator
	bus       *eventbus.Bus
	logger    *logging.Logger
	upgrader  websocket.Upgrader
	sessions  sync.Map // id -> *session
	closeOnce sync.Once
}

type session struct {
	id       string
	username string
	conn     *websocket.Conn
	mu       sync.Mutex
}

func NewFeed(validator httptransport.TokenValidator, bus *eventbus.Bus, logger *logging.Logger) (*Feed, error) {
	if validator == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "ws.new", "token validator is required")
	}
	if bus == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "ws.new", "event bus is required")
	}
	if logger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "ws.new", "logger is required")
	}

	return &Feed{
		validator: validator,
		bus:       bus,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}, nil
}

// Register wires the feed endpoint and subscribes to payment events.
func (f *Feed) Register(ctx context.Context, engine *gin.Engine) error {
	if err := f.bus.SubscribeAsync(eventbus.EventPaymentRecorded, f.onPaymentRecorded); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "ws.register",
			"failed to subscribe to payment events", err)
	}

	engine.GET("/ws/payments", f.handleUpgrade)
	f.logger.InfoTag("WS", "payment feed registered")
	return nil
}

// handleUpgrade authenticates the caller and upgrades the connection.
// Browsers cannot set headers on websocket dials, so the token is also
// accepted as a query parameter.
func (f *Feed) handleUpgrade(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authorization token required"})
		return
	}

	username, err := f.validator.Validate(token)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "invalid or expired token"})
		return
	}

	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.WarnTag("WS", "upgrade failed for %s: %v", username, err)
		return
	}

	sess := &session{
		id:       uuid.NewString(),
		username: username,
		conn:     conn,
	}
	f.sessions.Store(sess.id, sess)
	f.logger.InfoTag("WS", "payment feed connected: %s", username)

	go f.readLoop(sess)
}

// readLoop drains inbound frames so pings are answered and discovers
// when the peer goes away.
func (f *Feed) readLoop(sess *session) {
	defer func() {
		f.sessions.Delete(sess.id)
		_ = sess.conn.Close()
		f.logger.InfoTag("WS", "payment feed disconnected: %s", sess.username)
	}()

	for {
		if _, _, err := sess.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) onPaymentRecorded(data eventbus.PaymentEventData) {
	msg := PaymentMessage{
		Type:     "payment",
		Username: data.Username,
		Amount:   data.Amount,
		ChargeID: data.ChargeID,
	}

	f.sessions.Range(func(_, value any) bool {
		sess, ok := value.(*session)
		if !ok || sess.username != data.Username {
			return true
		}
		if err := sess.write(msg); err != nil {
			f.logger.WarnTag("WS", "push failed for %s: %v", sess.username, err)
			f.sessions.Delete(sess.id)
			_ = sess.conn.Close()
		}
		return true
	})
}

func (s *session) write(msg PaymentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

// Close terminates all active sessions and detaches from the bus.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		_ = f.bus.Unsubscribe(eventbus.EventPaymentRecorded, f.onPaymentRecorded)
		f.sessions.Range(func(key, value any) bool {
			if sess, ok := value.(*session); ok {
				_ = sess.conn.Close()
			}
			f.sessions.Delete(key)
			return true
		})
	})
	return nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
