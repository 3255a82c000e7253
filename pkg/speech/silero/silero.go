// Package silero adapts the Silero ONNX voice-activity model to
// speech.Detector. It needs cgo and the onnxruntime shared library.
package silero

import (
	"fmt"
	"sync"

	vad "github.com/streamer45/silero-vad-go/speech"

	"transcription-queue/pkg/speech"
)

// Config configures the Silero VAD model.
type Config struct {
	ModelPath            string
	Threshold            float32
	MinSilenceDurationMs int
	SpeechPadMs          int
}

// Detector runs the Silero ONNX VAD model. A detector instance is bound
// to one sample rate, so it is recreated when the rate changes.
type Detector struct {
	cfg Config

	mu         sync.Mutex
	detector   *vad.Detector
	sampleRate int
}

func New(cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.MinSilenceDurationMs <= 0 {
		cfg.MinSilenceDurationMs = 100
	}
	if cfg.SpeechPadMs <= 0 {
		cfg.SpeechPadMs = 30
	}
	return &Detector{cfg: cfg}
}

// Detect returns speech regions as sample offsets.
func (d *Detector) Detect(samples []float32, sampleRate int) ([]speech.Span, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureDetector(sampleRate); err != nil {
		return nil, err
	}
	defer d.detector.Reset()

	segments, err := d.detector.Detect(samples)
	if err != nil {
		return nil, fmt.Errorf("silero detect: %w", err)
	}

	total := len(samples)
	spans := make([]speech.Span, 0, len(segments))
	for _, seg := range segments {
		end := seg.SpeechEndAt
		// an open segment at EOF is reported with a zero end
		if end <= 0 {
			end = float64(total) / float64(sampleRate)
		}
		spans = append(spans, speech.Span{
			StartSample: int(seg.SpeechStartAt * float64(sampleRate)),
			EndSample:   min(int(end*float64(sampleRate)), total),
		})
	}
	return spans, nil
}

func (d *Detector) ensureDetector(sampleRate int) error {
	if d.detector != nil && d.sampleRate == sampleRate {
		return nil
	}
	if d.detector != nil {
		_ = d.detector.Destroy()
		d.detector = nil
	}

	det, err := vad.NewDetector(vad.DetectorConfig{
		ModelPath:            d.cfg.ModelPath,
		SampleRate:           sampleRate,
		Threshold:            d.cfg.Threshold,
		MinSilenceDurationMs: d.cfg.MinSilenceDurationMs,
		SpeechPadMs:          d.cfg.SpeechPadMs,
	})
	if err != nil {
		return fmt.Errorf("load silero model %s: %w", d.cfg.ModelPath, err)
	}
	d.detector = det
	d.sampleRate = sampleRate
	return nil
}

// Close releases the ONNX session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detector == nil {
		return nil
	}
	err := d.detector.Destroy()
	d.detector = nil
	return err
}

var _ speech.Detector = (*Detector)(nil)
