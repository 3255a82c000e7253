package speech

import (
	"fmt"

	"transcription-queue/pkg/interval"
)

const (
	// DefaultMinGap is the pause, in seconds, below which two speech spans
	// are treated as one.
	DefaultMinGap = 3.0

	// snapToStart pulls a first span starting this close to 0 back to 0.
	snapToStart = 1.0
)

// Span is a detected speech region in samples.
type Span struct {
	StartSample int
	EndSample   int
}

// Detector wraps a voice-activity-detection model.
type Detector interface {
	Detect(samples []float32, sampleRate int) ([]Span, error)
}

// DetectSpeech runs det and returns the speech spans in seconds, merged so
// that pauses up to minGap do not split one spoken thought into many chunks.
func DetectSpeech(det Detector, samples []float32, sampleRate int, minGap float64) (interval.Set, error) {
	if det == nil {
		return nil, fmt.Errorf("speech detector is not configured")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	spans, err := det.Detect(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("detect speech: %w", err)
	}

	raw := make(interval.Set, 0, len(spans))
	for _, s := range spans {
		if s.EndSample <= s.StartSample {
			continue
		}
		raw = append(raw, interval.Interval{
			Start: float64(s.StartSample) / float64(sampleRate),
			End:   float64(s.EndSample) / float64(sampleRate),
		})
	}

	merged := interval.CombineClose(raw, minGap)
	if len(merged) > 0 && merged[0].Start < snapToStart {
		merged[0].Start = 0
	}
	return merged, nil
}
