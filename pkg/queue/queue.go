// Package queue holds the FIFO of transcription jobs waiting for the worker,
// plus the one job the worker is currently running.
package queue

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"transcription-queue/pkg/models"
)

const DefaultBatchDelay = time.Second

var (
	ErrDuplicateJob  = errors.New("job with the same id is already queued")
	ErrNotCancelable = errors.New("job can no longer be canceled")
	ErrJobNotFound   = errors.New("job not in queue")

	ErrCancelRequested = errors.New("cancel requested")
)

// Persister stores the live queue: the active job followed by waiting jobs.
type Persister interface {
	Load() ([]models.Job, error)
	Save(jobs []models.Job) error
}

type Options struct {
	// BatchDelay separates consecutive enqueues in EnqueueBatch so ids built
	// from second-resolution timestamps do not collide.
	BatchDelay time.Duration
	Store      Persister
}

type Queue struct {
	mu      sync.Mutex
	order   []string
	waiting map[string]*models.Job
	active  *models.Job
	cancel  bool

	wake       chan struct{}
	store      Persister
	batchDelay time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func New(opts Options) *Queue {
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	return &Queue{
		waiting:    make(map[string]*models.Job),
		wake:       make(chan struct{}, 1),
		store:      opts.Store,
		batchDelay: opts.BatchDelay,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Wake receives a value whenever jobs may be available.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) ping() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// JobID derives a queue id from the job name and a unix timestamp.
func JobID(name string, t time.Time) string {
	return fmt.Sprintf("%s-%d", name, t.Unix())
}

// Enqueue appends job to the queue, persists the queue and wakes the worker.
func (q *Queue) Enqueue(job models.Job) (models.Job, error) {
	if strings.TrimSpace(job.Name) == "" {
		return models.Job{}, fmt.Errorf("job name is required")
	}

	q.mu.Lock()
	now := q.now()
	job.ID = JobID(job.Name, now)
	if q.hasLocked(job.ID) {
		q.mu.Unlock()
		return models.Job{}, fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	job.Status = models.StatusWaiting
	job.Progress = nil
	job.Error = ""
	job.CreatedAt = now
	job.UpdatedAt = now
	q.appendLocked(job)
	q.saveLocked()
	q.mu.Unlock()

	log.Printf("Queue: Enqueued job %s (%s)", job.ID, job.AudioFilePath)
	q.ping()
	return job, nil
}

// EnqueueBatch enqueues jobs in order, pausing BatchDelay between them. It
// stops at the first error and returns the jobs enqueued so far.
func (q *Queue) EnqueueBatch(jobs []models.Job) ([]models.Job, error) {
	queued := make([]models.Job, 0, len(jobs))
	for i, job := range jobs {
		if i > 0 {
			q.sleep(q.batchDelay)
		}
		j, err := q.Enqueue(job)
		if err != nil {
			return queued, err
		}
		queued = append(queued, j)
	}
	return queued, nil
}

// Resume re-enqueues every persisted job with its original id. The queue
// file is not rewritten.
func (q *Queue) Resume() (int, error) {
	if q.store == nil {
		return 0, nil
	}
	jobs, err := q.store.Load()
	if err != nil {
		return 0, fmt.Errorf("failed to load queue: %w", err)
	}

	q.mu.Lock()
	count := 0
	for _, job := range jobs {
		if job.ID == "" || q.hasLocked(job.ID) {
			log.Printf("Queue: Skipping persisted job %q", job.ID)
			continue
		}
		job.Status = models.StatusWaiting
		job.Progress = nil
		job.Error = ""
		job.UpdatedAt = q.now()
		q.appendLocked(job)
		count++
	}
	q.mu.Unlock()

	if count > 0 {
		log.Printf("Queue: Resumed %d job(s)", count)
		q.ping()
	}
	return count, nil
}

// Next claims the oldest waiting job as the active job in the preparing
// state. ok is false when nothing is waiting or a job is already active.
func (q *Queue) Next() (job models.Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active != nil || len(q.order) == 0 {
		return models.Job{}, false
	}

	id := q.order[0]
	q.order = q.order[1:]
	claimed := q.waiting[id]
	delete(q.waiting, id)

	claimed.Status = models.StatusPreparing
	claimed.UpdatedAt = q.now()
	q.active = claimed
	q.cancel = false
	q.saveLocked()
	return *claimed, true
}

// Update records the worker's view of the active job. Moving a job with a
// pending cancel out of preparing fails with ErrCancelRequested.
func (q *Queue) Update(job models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil || q.active.ID != job.ID {
		return fmt.Errorf("%w: %s is not active", ErrJobNotFound, job.ID)
	}
	if q.cancel && q.active.Status == models.StatusPreparing &&
		job.Status != models.StatusPreparing && !job.Status.Terminal() {
		return ErrCancelRequested
	}
	*q.active = job
	return nil
}

// Finish releases the active job.
func (q *Queue) Finish(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil || q.active.ID != id {
		return
	}
	q.active = nil
	q.cancel = false
	q.saveLocked()
}

// Cancel removes a waiting job, or flags the active job if it has not
// started transcribing yet.
func (q *Queue) Cancel(id string) (models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.waiting[id]; ok {
		delete(q.waiting, id)
		for i, queued := range q.order {
			if queued == id {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
		job.Status = models.StatusCanceled
		job.UpdatedAt = q.now()
		q.saveLocked()
		log.Printf("Queue: Canceled waiting job %s", id)
		return *job, nil
	}

	if q.active != nil && q.active.ID == id {
		if q.active.Status != models.StatusPreparing {
			return *q.active, fmt.Errorf("%w: %s is %s", ErrNotCancelable, id, q.active.Status)
		}
		q.cancel = true
		log.Printf("Queue: Cancel requested for active job %s", id)
		return *q.active, nil
	}

	return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// CancelRequested reports whether Cancel flagged the active job id.
func (q *Queue) CancelRequested(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancel && q.active != nil && q.active.ID == id
}

// Get returns the active or waiting job with id.
func (q *Queue) Get(id string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active != nil && q.active.ID == id {
		return *q.active, true
	}
	if job, ok := q.waiting[id]; ok {
		return *job, true
	}
	return models.Job{}, false
}

// Snapshot returns the active job (if any) followed by waiting jobs in FIFO
// order.
func (q *Queue) Snapshot() []models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.order)
	if q.active != nil {
		n++
	}
	return n
}

func (q *Queue) snapshotLocked() []models.Job {
	jobs := make([]models.Job, 0, len(q.order)+1)
	if q.active != nil {
		jobs = append(jobs, *q.active)
	}
	for _, id := range q.order {
		jobs = append(jobs, *q.waiting[id])
	}
	return jobs
}

func (q *Queue) hasLocked(id string) bool {
	if q.active != nil && q.active.ID == id {
		return true
	}
	_, ok := q.waiting[id]
	return ok
}

func (q *Queue) appendLocked(job models.Job) {
	stored := job
	q.waiting[job.ID] = &stored
	q.order = append(q.order, job.ID)
}

func (q *Queue) saveLocked() {
	if q.store == nil {
		return
	}
	if err := q.store.Save(q.snapshotLocked()); err != nil {
		log.Printf("Queue: Failed to persist queue: %v", err)
	}
}
