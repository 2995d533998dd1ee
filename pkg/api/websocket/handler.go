package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	eventBufSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunReader loads run records
type RunReader interface {
	GetStatus(ctx context.Context, runID string) (*domain.RunState, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	runs     RunReader
	logger   *zap.Logger
}

// Message is the frame sent to clients
type Message struct {
	Kind  string           `json:"kind"`
	Run   *domain.RunState `json:"run,omitempty"`
	Event *domain.Event    `json:"event,omitempty"`
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, runs RunReader, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		runs:     runs,
		logger:   logger,
	}
}

// HandleRunStream streams events for a single run
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before reading the record so no event falls in between
	eventChan := make(chan domain.Event, eventBufSize)
	handler := func(_ context.Context, event domain.Event) error {
		if event.RunID != runID {
			return nil
		}
		// Block while the writer catches up. Each subscription has its own
		// delivery goroutine, so only this stream waits.
		select {
		case eventChan <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := h.eventBus.Subscribe(ctx, domain.TopicRunEvents, handler); err != nil {
		h.logger.Error("failed to subscribe to events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    "SUBSCRIBE_FAILED",
			"message": err.Error(),
		}})
		return
	}

	state, err := h.runs.GetStatus(ctx, runID)
	if err != nil {
		status := http.StatusInternalServerError
		code := "INTERNAL_ERROR"
		if errors.Is(err, ports.ErrRunNotFound) {
			status, code = http.StatusNotFound, "RUN_NOT_FOUND"
		}
		c.JSON(status, gin.H{"error": gin.H{
			"code":    code,
			"message": err.Error(),
		}})
		return
	}

	// Upgrade connection
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	// Detect client disconnects
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, Message{Kind: "snapshot", Run: state}); err != nil {
		return
	}
	if state.Status.IsTerminal() {
		h.close(conn, "run finished")
		return
	}

	// Send events to client
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			if err := h.write(conn, Message{Kind: "event", Event: &event}); err != nil {
				return
			}
			if event.Type.IsTerminal() {
				h.close(conn, "run finished")
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("failed to write message", zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) close(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
}
