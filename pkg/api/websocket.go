package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"transcription-queue/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketMessage struct {
	Type     string           `json:"type"`
	ClientID string           `json:"client_id,omitempty"`
	JobID    string           `json:"job_id,omitempty"`
	Job      *JobRequest      `json:"job,omitempty"`
	Data     json.RawMessage  `json:"data,omitempty"`
	Status   models.JobStatus `json:"status,omitempty"`
	Progress *int             `json:"progress,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// wsClient serialises writes from the read loop and job monitors.
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg WebSocketMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("WS %s: write failed: %v", c.id, err)
	}
}

func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := &wsClient{id: uuid.New().String(), conn: conn}
	log.Printf("WS %s: connected", client.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.send(WebSocketMessage{Type: "welcome", ClientID: client.id})

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case "submit":
			h.handleSubmit(ctx, client, &msg)
		case "subscribe":
			if msg.JobID == "" {
				client.send(WebSocketMessage{Type: "error", Error: "job_id is required"})
				continue
			}
			go h.monitorJob(ctx, client, msg.JobID)
		case "cancel":
			job, err := h.jobs.Cancel(msg.JobID)
			if err != nil {
				client.send(WebSocketMessage{Type: "error", JobID: msg.JobID, Error: err.Error()})
				continue
			}
			client.send(WebSocketMessage{Type: "cancel_accepted", JobID: job.ID, Status: job.Status})
		case "ping":
			client.send(WebSocketMessage{Type: "pong"})
		default:
			client.send(WebSocketMessage{Type: "error", Error: "Unknown message type"})
		}
	}
	log.Printf("WS %s: disconnected", client.id)
}

func (h *Handlers) handleSubmit(ctx context.Context, client *wsClient, msg *WebSocketMessage) {
	if msg.Job == nil {
		client.send(WebSocketMessage{Type: "error", Error: "job is required"})
		return
	}

	job, err := h.jobs.Submit(msg.Job.toJob())
	if err != nil {
		client.send(WebSocketMessage{Type: "error", Error: err.Error()})
		return
	}

	log.Printf("WS %s: queued job %s", client.id, job.ID)
	client.send(WebSocketMessage{Type: "job_queued", JobID: job.ID, Status: job.Status})

	go h.monitorJob(ctx, client, job.ID)
}

// monitorJob polls the status store and forwards every change until the
// job reaches a terminal state.
func (h *Handlers) monitorJob(ctx context.Context, client *wsClient, jobID string) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last models.StatusUpdate
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update, err := h.currentStatus(jobID)
			if err != nil {
				continue
			}
			if update.Status == last.Status && sameProgress(update.Progress, last.Progress) {
				continue
			}
			last = update

			client.send(WebSocketMessage{
				Type:     "status_update",
				JobID:    jobID,
				Status:   update.Status,
				Progress: update.Progress,
			})

			switch update.Status {
			case models.StatusDone:
				job, err := h.jobs.Job(jobID)
				if err != nil {
					client.send(WebSocketMessage{Type: "error", JobID: jobID, Error: err.Error()})
					return
				}
				data, err := json.Marshal(job)
				if err != nil {
					client.send(WebSocketMessage{Type: "error", JobID: jobID, Error: "failed to encode job: " + err.Error()})
					return
				}
				client.send(WebSocketMessage{Type: "job_complete", JobID: jobID, Status: update.Status, Data: data})
				return
			case models.StatusFailed:
				client.send(WebSocketMessage{Type: "job_failed", JobID: jobID, Status: update.Status, Error: update.Message})
				return
			case models.StatusCanceled:
				client.send(WebSocketMessage{Type: "job_canceled", JobID: jobID, Status: update.Status})
				return
			}
		}
	}
}

func sameProgress(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// currentStatus reads the status store, falling back to the job itself once
// a finished job's status has been evicted.
func (h *Handlers) currentStatus(jobID string) (models.StatusUpdate, error) {
	update, err := h.store.GetStatus(jobID)
	if err == nil {
		return update, nil
	}
	job, jobErr := h.jobs.Job(jobID)
	if jobErr != nil || !job.Status.Terminal() {
		return models.StatusUpdate{}, err
	}
	return models.StatusUpdate{
		JobID:     job.ID,
		Name:      job.Name,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Error,
		Timestamp: job.UpdatedAt,
	}, nil
}
