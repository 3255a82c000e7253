package transcribe

import (
	"context"

	"transcription-queue/pkg/models"
)

// Options are passed through to the speech model unchanged.
type Options struct {
	Task           models.Task
	Language       string
	InitialPrompt  string
	WordTimestamps bool
	Device         string
	ModelName      string
}

// Result is the model output for one chunk. Segment times are chunk-local,
// starting at 0.
type Result struct {
	Text     string
	Language string
	Segments []models.Segment
}

// Model is a loaded speech-recognition model.
type Model interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error)
}

// Backend opens models by name and device. onDownload is called before the
// backend fetches model weights it does not have locally.
type Backend interface {
	Name() string
	Open(ctx context.Context, name, device string, onDownload func()) (Model, error)
}
