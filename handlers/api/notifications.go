package api

import (
	"bufio"
	"encoding/json"
	"sync"
	"time"

	"flashdeck/models"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	subscriberBuffer  = 10
	keepAliveInterval = 30 * time.Second
	subscriberLocal   = "notify_session"
)

// NotificationHub fans user notifications out to the live websocket and SSE
// connections of one browser session. Sessions never see each other's messages.
type NotificationHub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]chan models.Notification
	tickets  *Tickets
	metrics  *Metrics
}

// NewNotificationHub creates an empty hub; subscriptions are authorized with tickets
func NewNotificationHub(tickets *Tickets, metrics *Metrics) *NotificationHub {
	return &NotificationHub{
		sessions: make(map[string]map[string]chan models.Notification),
		tickets:  tickets,
		metrics:  metrics,
	}
}

// Publish delivers n to every live subscriber of sessionID and returns how
// many received it. Zero means the caller should keep it for the next page.
func (h *NotificationHub) Publish(sessionID string, n models.Notification) int {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for subscriberID, ch := range h.sessions[sessionID] {
		select {
		case ch <- n:
			delivered++
		default:
			utils.Log.Warn("Notification channel full for subscriber %s", subscriberID)
		}
	}
	if delivered > 0 {
		h.metrics.notification("live")
	} else {
		h.metrics.notification("deferred")
	}
	return delivered
}

// Subscribers returns the number of live connections for sessionID
func (h *NotificationHub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *NotificationHub) subscribe(sessionID string) (string, chan models.Notification) {
	subscriberID := uuid.New().String()
	ch := make(chan models.Notification, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]chan models.Notification)
	}
	h.sessions[sessionID][subscriberID] = ch
	return subscriberID, ch
}

func (h *NotificationHub) unsubscribe(sessionID, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.sessions[sessionID]
	if ch, ok := subs[subscriberID]; ok {
		delete(subs, subscriberID)
		close(ch)
	}
	if len(subs) == 0 {
		delete(h.sessions, sessionID)
	}
}

// Authorize checks the ticket query parameter and remembers the session it
// was issued for. It guards both the websocket and the SSE route.
func (h *NotificationHub) Authorize(c *fiber.Ctx) error {
	sessionID, err := h.tickets.Verify(c.Query("ticket"))
	if err != nil {
		return utils.UnauthorizedError("Invalid notification ticket", err)
	}
	c.Locals(subscriberLocal, sessionID)
	return c.Next()
}

// UpgradeWebSocket rejects plain HTTP requests on the websocket route
func (h *NotificationHub) UpgradeWebSocket(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket streams notifications as JSON messages
func (h *NotificationHub) HandleWebSocket(c *websocket.Conn) {
	sessionID, _ := c.Locals(subscriberLocal).(string)
	subscriberID, messageChan := h.subscribe(sessionID)

	// the client never sends anything; a read error means it went away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.unsubscribe(sessionID, subscriberID)
		c.Close()
		utils.Log.Debug("WebSocket subscriber disconnected: %s", subscriberID)
	}()

	utils.Log.Debug("WebSocket subscriber connected: %s", subscriberID)

	for {
		select {
		case notification := <-messageChan:
			if err := c.WriteJSON(notification); err != nil {
				utils.Log.Error("Failed to send WebSocket notification: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}

// HandleSSE streams notifications as Server-Sent Events
func (h *NotificationHub) HandleSSE(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	sessionID, _ := c.Locals(subscriberLocal).(string)
	subscriberID, messageChan := h.subscribe(sessionID)
	utils.Log.Debug("SSE subscriber connected: %s", subscriberID)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			h.unsubscribe(sessionID, subscriberID)
			utils.Log.Debug("SSE subscriber disconnected: %s", subscriberID)
		}()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case notification := <-messageChan:
				data, err := json.Marshal(notification)
				if err != nil {
					continue
				}
				w.WriteString("data: " + string(data) + "\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-ticker.C:
				w.WriteString(": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
