package controller

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	socialredis "github.com/canopy-network/socialx/pkg/redis"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	wildcard = "*"

	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action   string `json:"action"`   // "subscribe" or "unsubscribe"
	Platform string `json:"platform"` // platform name, or "*" for all platforms
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "ingest.completed", "subscribed", "unsubscribed", "info", "error"
	Payload interface{} `json:"payload"` // Event-specific data
}

// clientSubscriptions tracks what platforms a client is subscribed to.
type clientSubscriptions struct {
	platforms *xsync.Map[string, struct{}]
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{platforms: xsync.NewMap[string, struct{}]()}
}

func (cs *clientSubscriptions) subscribe(platform string) {
	cs.platforms.Store(platform, struct{}{})
}

func (cs *clientSubscriptions) unsubscribe(platform string) {
	cs.platforms.Delete(platform)
}

// isSubscribed checks a platform. The wildcard matches all platforms.
func (cs *clientSubscriptions) isSubscribed(platform string) bool {
	if _, ok := cs.platforms.Load(wildcard); ok {
		return true
	}
	_, ok := cs.platforms.Load(platform)
	return ok
}

// normalizeTopic accepts the wildcard or a known platform, case-insensitively.
func normalizeTopic(raw string) (string, bool) {
	if raw == wildcard {
		return wildcard, true
	}
	c, ok := social.Lookup(raw)
	if !ok {
		return "", false
	}
	return string(c.Platform), true
}

// HandleWebSocket upgrades the connection and relays ingestion-completed events.
//
// Protocol:
// Client sends: {"action": "subscribe", "platform": "instagram"}
// Client sends: {"action": "subscribe", "platform": "*"}
// Client sends: {"action": "unsubscribe", "platform": "instagram"}
//
// Server sends:
// - {"type": "ingest.completed", "payload": {...}}
// - {"type": "subscribed", "payload": {"platform": "instagram"}}
// - {"type": "unsubscribed", "payload": {"platform": "instagram"}}
// - {"type": "error", "payload": {"message": "..."}}
//
// All goroutines recover from panics so one connection cannot take the server down.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		writeError(w, http.StatusServiceUnavailable, "real-time events not available (Redis disabled)")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newClientSubscriptions()
	send := make(chan ServerMessage, 256)
	done := make(chan struct{}, 3)

	guard := func(name string, fn func()) {
		defer func() { done <- struct{}{} }()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in WebSocket goroutine",
					zap.String("goroutine", name),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", r.RemoteAddr))
				cancel()
			}
		}()
		fn()
	}

	go guard("redis subscriber", func() { c.subscribeToRedis(ctx, send, subs) })
	go guard("ping ticker", func() { c.sendPings(ctx, conn) })
	go guard("message writer", func() { c.writeMessages(ctx, conn, send) })

	// blocks until the client goes away
	c.readClientMessages(ctx, conn, cancel, subs, send)

	cancel()
	for i := 0; i < 3; i++ {
		<-done
	}

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis pattern-subscribes to every platform's event channel and forwards the events
// the client asked for. Lost subscriptions are re-established with exponential backoff and the
// client is told while Redis is unavailable.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := c.attemptRedisSubscription(ctx, socialredis.EventPattern, send, subs, attempt)
		if ctx.Err() != nil {
			return
		}

		c.App.Logger.Warn("Redis subscription ended, will retry",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		if !trySend(ctx, send, ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attempt,
				"recoverable": true,
			},
		}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = calculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

// attemptRedisSubscription runs one subscription until it fails or ctx ends.
func (c *Controller) attemptRedisSubscription(ctx context.Context, pattern string, send chan<- ServerMessage, subs *clientSubscriptions, attempt int) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, pattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	if attempt > 1 {
		if !trySend(ctx, send, ServerMessage{
			Type:    "info",
			Payload: map[string]interface{}{"message": "Redis connection established", "attempt": attempt},
		}) {
			return ctx.Err()
		}
	}

	return c.processRedisMessages(ctx, pubsub.Channel(), send, subs)
}

// processRedisMessages forwards subscribed events until ch closes (nil) or ctx ends.
func (c *Controller) processRedisMessages(ctx context.Context, ch <-chan *redis.Message, send chan<- ServerMessage, subs *clientSubscriptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			platform, ok := socialredis.PlatformFromChannel(msg.Channel)
			if !ok {
				c.App.Logger.Warn("Unexpected event channel", zap.String("channel", msg.Channel))
				continue
			}
			if !subs.isSubscribed(platform) {
				continue
			}

			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			if !trySend(ctx, send, ServerMessage{Type: socialredis.EventIngestCompleted, Payload: payload}) {
				return ctx.Err()
			}
		}
	}
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// calculateNextBackoff grows current by factor with +/- jitterFactor jitter, bounded by
// [current, max].
func calculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	next = time.Duration(float64(next) + jitter)

	if next < current {
		next = current
	}
	if next > max {
		next = max
	}
	return next
}

// sendPings sends WebSocket ping frames; the client's pongs extend the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages is the only writer of data frames on conn.
func (c *Controller) writeMessages(ctx context.Context, conn *websocket.Conn, send <-chan ServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			b, err := json.Marshal(msg)
			if err != nil {
				c.App.Logger.Error("Failed to encode WebSocket message", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
				return
			}
		}
	}
}

// readClientMessages handles subscription requests until the connection closes.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for ctx.Err() == nil {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		if !trySend(ctx, send, c.handleClientMessage(data, subs)) {
			return
		}
	}
}

// handleClientMessage applies one client request and returns the reply.
func (c *Controller) handleClientMessage(data []byte, subs *clientSubscriptions) ServerMessage {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorMessage("invalid message")
	}

	switch msg.Action {
	case "subscribe", "unsubscribe":
	default:
		return errorMessage("unknown action: " + msg.Action)
	}
	if msg.Platform == "" {
		return errorMessage("platform is required")
	}
	topic, ok := normalizeTopic(msg.Platform)
	if !ok {
		return errorMessage(msgUnknownPlatform + ": " + msg.Platform)
	}

	if msg.Action == "subscribe" {
		subs.subscribe(topic)
		c.App.Logger.Debug("Client subscribed", zap.String("platform", topic))
		return ServerMessage{Type: "subscribed", Payload: map[string]string{"platform": topic}}
	}
	subs.unsubscribe(topic)
	c.App.Logger.Debug("Client unsubscribed", zap.String("platform", topic))
	return ServerMessage{Type: "unsubscribed", Payload: map[string]string{"platform": topic}}
}

func errorMessage(msg string) ServerMessage {
	return ServerMessage{Type: "error", Payload: map[string]string{"message": msg}}
}
