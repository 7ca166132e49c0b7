package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
	"github.com/klyp/klyp-go/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientBufferSize bounds events queued per websocket client; a slow client
// loses events rather than stalling the consumer goroutine
const clientBufferSize = 256

var streamedKinds = []domain.EventKind{
	domain.EventDownloadProgress,
	domain.EventDownloadComplete,
	domain.EventDownloadFailed,
	domain.EventDownloadStopped,
	domain.EventQueueUpdated,
	domain.EventSettingsChanged,
	domain.EventSearchComplete,
	domain.EventSearchFailed,
}

// EventStreamHandler pushes bus events to websocket clients so a frontend
// can mirror queue state without polling.
type EventStreamHandler struct {
	bus *eventbus.Bus
	log *zap.Logger
}

// NewEventStreamHandler creates a websocket event handler
func NewEventStreamHandler(bus *eventbus.Bus, log *zap.Logger) *EventStreamHandler {
	return &EventStreamHandler{bus: bus, log: log}
}

// HandleWebSocket handles GET /events. Subscriptions live for the
// connection; the subscriber callback never blocks the consumer goroutine.
func (h *EventStreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events := make(chan domain.Event, clientBufferSize)
	forward := func(event domain.Event) {
		select {
		case events <- event:
		default:
			// slow client: drop rather than block the consumer
		}
	}

	var subscriptions []string
	for _, kind := range streamedKinds {
		subscriptions = append(subscriptions, h.bus.Subscribe(kind, forward))
	}
	defer func() {
		for _, id := range subscriptions {
			h.bus.Unsubscribe(id)
		}
	}()

	h.log.Info("event stream client connected",
		zap.String("remote_addr", c.Request.RemoteAddr))

	// reader goroutine detects disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.log.Info("event stream client disconnected",
				zap.String("remote_addr", c.Request.RemoteAddr))
			return
		case event := <-events:
			if err := conn.WriteJSON(event); err != nil {
				h.log.Debug("failed to write event", zap.Error(err))
				return
			}
		}
	}
}
