package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"transcription-queue/pkg/audio"
	"transcription-queue/pkg/config"
	"transcription-queue/pkg/events"
	"transcription-queue/pkg/models"
	"transcription-queue/pkg/queue"
	"transcription-queue/pkg/speech"
	"transcription-queue/pkg/storage"
	"transcription-queue/pkg/transcribe"
	"transcription-queue/pkg/transcript"
)

// AudioLoader decodes a media file to mono samples.
type AudioLoader interface {
	Load(ctx context.Context, path string) (audio.Audio, error)
}

// ModelProvider hands out the loaded speech model, reloading when name or
// device change.
type ModelProvider interface {
	Get(ctx context.Context, name, device string, onPhase func(transcribe.LoadPhase)) (transcribe.Model, error)
}

type Dependencies struct {
	Queue       *queue.Queue
	Loader      AudioLoader
	Detector    speech.Detector
	Models      ModelProvider
	Engine      *transcribe.Engine
	Transcripts transcript.Store
	History     storage.DiskStore
	Sink        events.Sink
}

type Manager struct {
	config      config.PipelineConfig
	queue       *queue.Queue
	loader      AudioLoader
	detector    speech.Detector
	models      ModelProvider
	engine      *transcribe.Engine
	transcripts transcript.Store
	history     storage.DiskStore
	sink        events.Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg config.PipelineConfig, deps Dependencies) *Manager {
	if cfg.SpeechMinGap <= 0 {
		cfg.SpeechMinGap = speech.DefaultMinGap
	}
	engine := deps.Engine
	if engine == nil {
		engine = transcribe.NewEngine(cfg.SampleRate)
	}
	sink := deps.Sink
	if sink == nil {
		sink = events.LogSink{}
	}
	q := deps.Queue
	if q == nil {
		q = queue.New(queue.Options{})
	}

	return &Manager{
		config:      cfg,
		queue:       q,
		loader:      deps.Loader,
		detector:    deps.Detector,
		models:      deps.Models,
		engine:      engine,
		transcripts: deps.Transcripts,
		history:     deps.History,
		sink:        sink,
	}
}

// Start launches the single queue worker.
func (m *Manager) Start(ctx context.Context) error {
	if m.loader == nil || m.models == nil || m.transcripts == nil {
		return fmt.Errorf("pipeline is missing a loader, model provider or transcript store")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	log.Println("Pipeline Manager: Starting...")

	m.wg.Add(1)
	go m.runWorker()
	return nil
}

// Stop cancels the worker and waits for it. A job interrupted by Stop stays
// in the queue file and runs again after Resume.
func (m *Manager) Stop() {
	log.Println("Pipeline Manager: Stopping...")
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	log.Println("Pipeline Manager: Stopped.")
}

// Resume re-enqueues jobs persisted by a previous process.
func (m *Manager) Resume() (int, error) {
	n, err := m.queue.Resume()
	if err != nil {
		return 0, err
	}
	for _, job := range m.queue.Snapshot() {
		m.emit(job, "resumed")
	}
	return n, nil
}

func (m *Manager) Submit(job models.Job) (models.Job, error) {
	if err := validateJob(&job); err != nil {
		return models.Job{}, err
	}
	queued, err := m.queue.Enqueue(job)
	if err != nil {
		return models.Job{}, err
	}
	m.emit(queued, "")
	return queued, nil
}

// SubmitBatch validates every job before enqueueing any of them.
func (m *Manager) SubmitBatch(jobs []models.Job) ([]models.Job, error) {
	for i := range jobs {
		if err := validateJob(&jobs[i]); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}
	queued, err := m.queue.EnqueueBatch(jobs)
	for _, job := range queued {
		m.emit(job, "")
	}
	return queued, err
}

// Cancel removes a waiting job or asks the worker to drop the job it is
// preparing.
func (m *Manager) Cancel(id string) (models.Job, error) {
	job, err := m.queue.Cancel(id)
	if err != nil {
		return job, err
	}
	if job.Status == models.StatusCanceled {
		m.record(job)
		m.emit(job, "")
		return job, nil
	}
	m.emit(job, "cancel requested")
	return job, nil
}

// Jobs returns the active job followed by waiting jobs.
func (m *Manager) Jobs() []models.Job {
	return m.queue.Snapshot()
}

// Job looks a job up in the live queue, then in the history log.
func (m *Manager) Job(id string) (*models.Job, error) {
	if job, ok := m.queue.Get(id); ok {
		return &job, nil
	}
	if m.history == nil {
		return nil, storage.ErrJobNotFound
	}
	return m.history.GetJob(id)
}

func (m *Manager) History(limit int) ([]*models.Job, error) {
	if m.history == nil {
		return nil, nil
	}
	return m.history.ListJobs(limit)
}

func (m *Manager) emit(job models.Job, message string) {
	m.sink.Publish(models.StatusUpdate{
		JobID:     job.ID,
		Name:      job.Name,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (m *Manager) record(job models.Job) {
	if m.history == nil {
		return
	}
	if err := m.history.StoreJob(&job); err != nil {
		log.Printf("Pipeline Manager: Failed to record job %s in history: %v", job.ID, err)
	}
}

func validateJob(job *models.Job) error {
	if job.Task == "" {
		job.Task = models.TaskTranscribe
	}
	if !job.Task.Valid() {
		return fmt.Errorf("%w: unknown task %q", ErrInvalidJob, job.Task)
	}
	if job.AudioFilePath == "" {
		return fmt.Errorf("%w: audio file path is required", ErrInvalidJob)
	}
	if err := validateIntervals(job); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return nil
}
