package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/trackfetch-go/internal/domain"
	"go.uber.org/zap"
)

// Job event types
const (
	EventSnapshot     = "snapshot"
	EventJobUpdated   = "job_updated"
	EventJobCompleted = "job_completed"
	EventJobRemoved   = "job_removed"
)

// JobEvent is one message on the job stream
type JobEvent struct {
	Type  string       `json:"type"`
	Job   *domain.Job  `json:"job,omitempty"`
	Jobs  []domain.Job `json:"jobs,omitempty"`
	JobID string       `json:"job_id,omitempty"`
}

// JobEventHub fans orchestrator notifications out to websocket clients. It
// is registered as a job observer and never blocks the publisher: a client
// whose buffer is full misses events until it catches up.
type JobEventHub struct {
	snapshot func() []domain.Job
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

// NewJobEventHub creates a hub. snapshot provides the jobs sent to a client
// when it connects and may be nil.
func NewJobEventHub(snapshot func() []domain.Job, logger *zap.Logger) *JobEventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobEventHub{
		snapshot: snapshot,
		logger:   logger,
		clients:  make(map[chan []byte]struct{}),
	}
}

// OnJobUpdated broadcasts a job_updated event
func (h *JobEventHub) OnJobUpdated(job domain.Job) {
	h.broadcast(JobEvent{Type: EventJobUpdated, Job: &job})
}

// OnJobCompleted broadcasts a job_completed event
func (h *JobEventHub) OnJobCompleted(job domain.Job) {
	h.broadcast(JobEvent{Type: EventJobCompleted, Job: &job})
}

// OnJobRemoved broadcasts a job_removed event
func (h *JobEventHub) OnJobRemoved(id string) {
	h.broadcast(JobEvent{Type: EventJobRemoved, JobID: id})
}

// Clients returns the number of connected clients
func (h *JobEventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *JobEventHub) broadcast(event JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal job event", zap.Error(err))
		return
	}

	for send := range h.clients {
		select {
		case send <- data:
		default:
			h.logger.Debug("Dropping job event for slow client", zap.String("type", event.Type))
		}
	}
}

func (h *JobEventHub) subscribe() chan []byte {
	send := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[send] = struct{}{}
	h.mu.Unlock()
	return send
}

func (h *JobEventHub) unsubscribe(send chan []byte) {
	h.mu.Lock()
	delete(h.clients, send)
	h.mu.Unlock()
}

// HandleWebSocket handles GET /api/v1/jobs/events
func (h *JobEventHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	send := h.subscribe()
	defer h.unsubscribe(send)

	if h.snapshot != nil {
		if err := writeJSONMessage(conn, JobEvent{Type: EventSnapshot, Jobs: h.snapshot()}); err != nil {
			return
		}
	}

	done := readUntilClosed(conn)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
