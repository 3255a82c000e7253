package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"transcription-queue/pkg/interval"
	"transcription-queue/pkg/models"
	"transcription-queue/pkg/pipeline"
	"transcription-queue/pkg/queue"
	"transcription-queue/pkg/storage"
	"transcription-queue/pkg/transcript"
)

// JobService is the part of the pipeline manager the API drives.
type JobService interface {
	Submit(job models.Job) (models.Job, error)
	SubmitBatch(jobs []models.Job) ([]models.Job, error)
	Cancel(id string) (models.Job, error)
	Jobs() []models.Job
	Job(id string) (*models.Job, error)
	History(limit int) ([]*models.Job, error)
}

type Handlers struct {
	jobs         JobService
	store        storage.MemoryStore
	transcripts  transcript.Store
	pollInterval time.Duration
}

func NewHandlers(jobs JobService, store storage.MemoryStore, transcripts transcript.Store) *Handlers {
	return &Handlers{
		jobs:         jobs,
		store:        store,
		transcripts:  transcripts,
		pollInterval: 500 * time.Millisecond,
	}
}

// NewRouter wires every endpoint onto a gorilla/mux router.
func NewRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/jobs", h.SubmitJobHandler).Methods("POST")
	router.HandleFunc("/jobs/batch", h.SubmitBatchHandler).Methods("POST")
	router.HandleFunc("/jobs", h.ListJobsHandler).Methods("GET")
	router.HandleFunc("/jobs/{id}", h.GetJobHandler).Methods("GET")
	router.HandleFunc("/jobs/{id}", h.CancelJobHandler).Methods("DELETE")
	router.HandleFunc("/status", h.ListStatusHandler).Methods("GET")
	router.HandleFunc("/history", h.ListHistoryHandler).Methods("GET")
	router.HandleFunc("/history/{id}", h.GetJobHandler).Methods("GET")
	router.HandleFunc("/transcripts/{name}", h.GetTranscriptHandler).Methods("GET")
	router.HandleFunc("/ws", h.WebSocketHandler)
	return router
}

// JobRequest is the body of POST /jobs and one element of POST /jobs/batch.
type JobRequest struct {
	Name                   string       `json:"name"`
	AudioFilePath          string       `json:"audio_file_path"`
	Task                   models.Task  `json:"task"`
	Model                  string       `json:"model"`
	Device                 string       `json:"device"`
	Language               string       `json:"language"`
	InitialPrompt          string       `json:"initial_prompt"`
	WordTimestamps         bool         `json:"word_timestamps"`
	PreDetectSpeech        bool         `json:"pre_detect_speech"`
	TimeIntervals          interval.Set `json:"time_intervals"`
	ExcludedTimeIntervals  interval.Set `json:"excluded_time_intervals"`
	ExistingTranscriptPath string       `json:"existing_transcript_path"`
	OutputPath             string       `json:"output_path"`
}

func (req JobRequest) toJob() models.Job {
	name := strings.TrimSpace(req.Name)
	if name == "" && req.AudioFilePath != "" {
		base := filepath.Base(req.AudioFilePath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return models.Job{
		Name:                   name,
		AudioFilePath:          req.AudioFilePath,
		Task:                   req.Task,
		Model:                  req.Model,
		Device:                 req.Device,
		Language:               req.Language,
		InitialPrompt:          req.InitialPrompt,
		WordTimestamps:         req.WordTimestamps,
		PreDetectSpeech:        req.PreDetectSpeech,
		TimeIntervals:          req.TimeIntervals,
		ExcludedTimeIntervals:  req.ExcludedTimeIntervals,
		ExistingTranscriptPath: req.ExistingTranscriptPath,
		OutputPath:             req.OutputPath,
	}
}

func (h *Handlers) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Submit(req.toJob())
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("API: Queued job %s for %s", job.ID, job.AudioFilePath)
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handlers) SubmitBatchHandler(w http.ResponseWriter, r *http.Request) {
	var reqs []JobRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(reqs) == 0 {
		http.Error(w, "at least one job is required", http.StatusBadRequest)
		return
	}

	jobs := make([]models.Job, 0, len(reqs))
	for _, req := range reqs {
		jobs = append(jobs, req.toJob())
	}

	queued, err := h.jobs.SubmitBatch(jobs)
	if err != nil && len(queued) == 0 {
		writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"jobs":  queued,
		"count": len(queued),
	}
	if err != nil {
		response["error"] = err.Error()
	}
	writeJSON(w, http.StatusAccepted, response)
}

func (h *Handlers) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.Jobs()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *Handlers) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.jobs.Job(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.jobs.Cancel(id)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("API: Cancel of job %s -> %s", id, job.Status)
	writeJSON(w, http.StatusOK, job)
}

// ListStatusHandler returns the latest status of recently active jobs.
func (h *Handlers) ListStatusHandler(w http.ResponseWriter, r *http.Request) {
	statuses := h.store.ListStatuses()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statuses": statuses,
		"count":    len(statuses),
	})
}

func (h *Handlers) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	jobs, err := h.jobs.History(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *Handlers) GetTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || strings.Contains(name, "..") {
		http.Error(w, "invalid transcript name", http.StatusBadRequest)
		return
	}

	doc, err := h.transcripts.Load(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrInvalidJob):
		status = http.StatusBadRequest
	case errors.Is(err, queue.ErrDuplicateJob), errors.Is(err, queue.ErrNotCancelable):
		status = http.StatusConflict
	case errors.Is(err, queue.ErrJobNotFound), errors.Is(err, storage.ErrJobNotFound), errors.Is(err, transcript.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Printf("API: Internal error: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
