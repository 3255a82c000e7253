package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"

	"transcription-queue/pkg/models"
)

// runWorker is the only goroutine that runs jobs. It sleeps on the queue's
// wake channel and drains the queue each time it is pinged.
func (m *Manager) runWorker() {
	defer m.wg.Done()
	log.Println("Worker: Running.")

	for {
		select {
		case <-m.queue.Wake():
			m.drain()

		case <-m.ctx.Done():
			log.Println("Worker: Shutting down.")
			return
		}
	}
}

func (m *Manager) drain() {
	for m.ctx.Err() == nil {
		job, ok := m.queue.Next()
		if !ok {
			return
		}
		m.processJob(job)
	}
}

// processJob runs one job to a terminal state. Nothing here escapes to the
// worker loop, panics included.
func (m *Manager) processJob(job models.Job) {
	log.Printf("Worker: Starting job %s (%s)", job.ID, job.AudioFilePath)
	m.emit(job, "")

	ctx := m.ctx
	if m.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ProcessingTimeout)
		defer cancel()
	}

	run := &jobRun{m: m, job: job}
	err := m.safeRun(ctx, run)

	switch {
	case err == nil:
		m.finish(run.job, "")
	case errors.Is(err, errCanceled):
		run.job.Status = models.StatusCanceled
		run.job.Progress = nil
		m.finish(run.job, "canceled before transcription started")
	case m.ctx.Err() != nil:
		// shutdown: leave the job in the queue file so Resume runs it again
		log.Printf("Worker: Job %s interrupted by shutdown", job.ID)
	default:
		log.Printf("Worker: Job %s failed: %v", job.ID, err)
		run.job.Status = models.StatusFailed
		run.job.Progress = nil
		run.job.Error = err.Error()
		m.finish(run.job, err.Error())
	}
}

func (m *Manager) safeRun(ctx context.Context, run *jobRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker: Panic in job %s: %v\n%s", run.job.ID, r, debug.Stack())
			err = &JobError{Stage: string(run.job.Status), Message: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return run.execute(ctx)
}

// finish moves a terminal job from the live queue to the history log.
func (m *Manager) finish(job models.Job, message string) {
	m.queue.Update(job)
	m.record(job)
	m.queue.Finish(job.ID)
	m.emit(job, message)
	log.Printf("Worker: Job %s %s", job.ID, job.Status)
}
