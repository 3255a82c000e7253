package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"transcription-queue/pkg/audio"
	"transcription-queue/pkg/interval"
	"transcription-queue/pkg/models"
	"transcription-queue/pkg/queue"
	"transcription-queue/pkg/speech"
	"transcription-queue/pkg/transcribe"
	"transcription-queue/pkg/transcript"
)

// jobRun carries one job through its stages on the worker goroutine.
type jobRun struct {
	m   *Manager
	job models.Job
}

func (r *jobRun) execute(ctx context.Context) error {
	m := r.m

	// Stage: preparing
	if err := validateJob(&r.job); err != nil {
		return r.stageError("invalid job", err)
	}
	if m.queue.CancelRequested(r.job.ID) {
		return errCanceled
	}

	data, err := m.loader.Load(ctx, r.job.AudioFilePath)
	if err != nil {
		return r.stageError("failed to load audio", err)
	}
	if m.queue.CancelRequested(r.job.ID) {
		return errCanceled
	}
	duration := data.Duration()
	log.Printf("Stage: Loaded %s (%.2fs)", r.job.AudioFilePath, duration)

	existing := r.loadExisting()

	intervals, err := r.effectiveIntervals(data)
	if err != nil {
		return err
	}

	// Stage: model
	name, device := r.job.Model, r.job.Device
	if name == "" {
		name = m.config.DefaultModel
		r.job.Model = name
	}
	if device == "" {
		device = m.config.DefaultDevice
		r.job.Device = device
	}
	var phaseErr error
	model, err := m.models.Get(ctx, name, device, func(phase transcribe.LoadPhase) {
		status := models.StatusLoadingModel
		if phase == transcribe.PhaseDownloading {
			status = models.StatusDownloadingModel
		}
		if err := r.setStatus(status, nil); err != nil && phaseErr == nil {
			phaseErr = err
		}
	})
	if phaseErr != nil {
		return phaseErr
	}
	if err != nil {
		return r.stageError("failed to load model", err)
	}

	// Stage: transcribing
	status := models.StatusTranscribing
	if existing != nil {
		status = models.StatusRetranscribing
	}
	if err := r.setStatus(status, models.Percent(0)); err != nil {
		return err
	}

	chunks := audio.Segment(data.Samples, data.SampleRate, intervals)
	opts := transcribe.Options{
		Task:           r.job.Task,
		Language:       r.job.Language,
		InitialPrompt:  r.job.InitialPrompt,
		WordTimestamps: r.job.WordTimestamps,
		Device:         device,
		ModelName:      name,
	}
	lastPct := 0
	segments, err := m.engine.TranscribeChunks(ctx, model, chunks, transcript.NextID(existing), opts, func(processed, total float64) {
		pct := 100
		if total > 0 {
			pct = int(math.Round(processed / total * 100))
		}
		if pct == lastPct {
			return
		}
		lastPct = pct
		_ = r.setStatus(status, models.Percent(pct))
	})
	if err != nil {
		return r.stageError("transcription failed", err)
	}

	// Stage: saving files
	if err := r.setStatus(models.StatusSaving, nil); err != nil {
		return err
	}

	var doc models.Document
	if existing != nil {
		replaced := intervals
		if len(replaced) == 0 {
			replaced = interval.Set{{Start: 0, End: duration}}
		}
		doc = transcript.Merge(*existing, segments, replaced)
	} else {
		doc = transcript.Build(segments)
	}
	doc.Name = r.job.Name
	doc.AudioFilePath = r.job.AudioFilePath
	if lang := strings.TrimSpace(r.job.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		doc.Language = lang
	}

	out := r.outputPath()
	if err := m.transcripts.Save(out, &doc); err != nil {
		return r.stageError("failed to save transcript", err)
	}
	r.job.OutputPath = out
	log.Printf("Stage: Saved %d segment(s) to %s", len(doc.Segments), out)

	return r.setStatus(models.StatusDone, models.Percent(100))
}

// effectiveIntervals merges the requested intervals, narrows them to
// detected speech and removes exclusions. An empty set means the whole file.
func (r *jobRun) effectiveIntervals(data audio.Audio) (interval.Set, error) {
	m := r.m
	intervals := interval.CombineClose(r.job.TimeIntervals, 0)

	if r.job.PreDetectSpeech {
		if err := r.setStatus(models.StatusDetectingSpeech, nil); err != nil {
			return nil, err
		}
		if m.detector == nil {
			return nil, r.stageError("speech detection is not configured", nil)
		}
		detected, err := speech.DetectSpeech(m.detector, data.Samples, data.SampleRate, m.config.SpeechMinGap)
		if err != nil {
			return nil, r.stageError("speech detection failed", err)
		}
		intervals = interval.Intersect(detected, intervals)
		if len(intervals) == 0 {
			return nil, r.stageError("no speech in the requested audio", ErrNoSpeech)
		}
		log.Printf("Stage: Detected %d speech interval(s) in job %s", len(intervals), r.job.ID)
	}

	if len(r.job.ExcludedTimeIntervals) > 0 {
		base := intervals
		if len(base) == 0 {
			base = interval.Set{{Start: 0, End: data.Duration()}}
		}
		intervals = interval.Subtract(base, interval.CombineClose(r.job.ExcludedTimeIntervals, 0))
		if len(intervals) == 0 {
			return nil, r.stageError("nothing left to transcribe after exclusions", ErrInvalidJob)
		}
	}
	return intervals, nil
}

// loadExisting returns nil when the job is a fresh transcription or the
// existing transcript cannot be read.
func (r *jobRun) loadExisting() *models.Document {
	path := r.job.ExistingTranscriptPath
	if path == "" {
		return nil
	}
	doc, err := r.m.transcripts.Load(path)
	if err != nil {
		log.Printf("Stage: Ignoring existing transcript %s for job %s: %v", path, r.job.ID, err)
		return nil
	}
	return doc
}

func (r *jobRun) outputPath() string {
	switch {
	case r.job.OutputPath != "":
		return r.job.OutputPath
	case r.job.ExistingTranscriptPath != "":
		return r.job.ExistingTranscriptPath
	default:
		return transcript.DefaultOutputPath(r.job.AudioFilePath)
	}
}

// setStatus moves the job along the state machine and reports it.
func (r *jobRun) setStatus(status models.JobStatus, progress *int) error {
	if status != r.job.Status && !models.ValidTransition(r.job.Status, status) {
		return &JobError{Stage: string(r.job.Status), Message: fmt.Sprintf("invalid transition to %s", status)}
	}

	next := r.job
	next.Status = status
	next.Progress = progress
	next.UpdatedAt = time.Now()
	if err := r.m.queue.Update(next); err != nil {
		if errors.Is(err, queue.ErrCancelRequested) {
			return errCanceled
		}
		log.Printf("Stage: Failed to update job %s: %v", r.job.ID, err)
	}

	r.job = next
	r.m.emit(r.job, "")
	return nil
}

func (r *jobRun) stageError(message string, err error) error {
	return &JobError{Stage: string(r.job.Status), Message: message, Err: err}
}

func validateIntervals(job *models.Job) error {
	if err := interval.Validate(job.TimeIntervals); err != nil {
		return fmt.Errorf("time intervals: %w", err)
	}
	if err := interval.Validate(job.ExcludedTimeIntervals); err != nil {
		return fmt.Errorf("excluded time intervals: %w", err)
	}
	return nil
}
