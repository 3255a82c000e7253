// Package events fans job status updates out to interested sinks.
package events

import (
	"log"

	"transcription-queue/pkg/models"
)

// Sink receives every job status transition.
type Sink interface {
	Publish(update models.StatusUpdate)
}

type SinkFunc func(update models.StatusUpdate)

func (f SinkFunc) Publish(update models.StatusUpdate) { f(update) }

// Multi delivers each update to all sinks in order.
type Multi []Sink

func (m Multi) Publish(update models.StatusUpdate) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(update)
		}
	}
}

// LogSink writes updates with the standard logger.
type LogSink struct{}

func (LogSink) Publish(update models.StatusUpdate) {
	switch {
	case update.Message != "" && update.Progress != nil:
		log.Printf("Job %s: %s (%d%%): %s", update.JobID, update.Status, *update.Progress, update.Message)
	case update.Message != "":
		log.Printf("Job %s: %s: %s", update.JobID, update.Status, update.Message)
	case update.Progress != nil:
		log.Printf("Job %s: %s (%d%%)", update.JobID, update.Status, *update.Progress)
	default:
		log.Printf("Job %s: %s", update.JobID, update.Status)
	}
}
