package audio

import (
	"fmt"

	"transcription-queue/pkg/interval"
)

// Audio is a decoded mono buffer.
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// Chunk is one contiguous slice of audio handed to the speech model.
type Chunk struct {
	Start      float64
	End        float64
	Samples    []float32
	SampleRate int
}

// Duration returns End - Start.
func (c Chunk) Duration() float64 {
	return c.End - c.Start
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk %.3f-%.3f (%d samples)", c.Start, c.End, len(c.Samples))
}

// Segment slices samples into chunks for the given intervals. Without
// intervals the whole buffer becomes a single chunk. Intervals are expected
// sorted and non-overlapping; ends past the audio are clamped and intervals
// starting after it are skipped.
func Segment(samples []float32, sampleRate int, intervals interval.Set) []Chunk {
	if sampleRate <= 0 {
		return nil
	}

	duration := float64(len(samples)) / float64(sampleRate)
	if len(intervals) == 0 {
		return []Chunk{{Start: 0, End: duration, Samples: samples, SampleRate: sampleRate}}
	}

	chunks := make([]Chunk, 0, len(intervals))
	for _, iv := range interval.Sort(intervals) {
		start := max(iv.Start, 0)
		end := min(iv.End, duration)
		if end <= start {
			continue
		}

		from := int(start * float64(sampleRate))
		to := min(int(end*float64(sampleRate)), len(samples))
		if to <= from {
			continue
		}

		chunks = append(chunks, Chunk{
			Start:      start,
			End:        end,
			Samples:    samples[from:to],
			SampleRate: sampleRate,
		})
	}
	return chunks
}
