package audio

import (
	"math"
	"testing"

	"transcription-queue/pkg/interval"
)

func makeSamples(seconds, sampleRate int) []float32 {
	samples := make([]float32, seconds*sampleRate)
	for i := range samples {
		samples[i] = float32(i)
	}
	return samples
}

// TestSegmentWholeFileWithoutIntervals checks the transcribe-everything default.
func TestSegmentWholeFileWithoutIntervals(t *testing.T) {
	samples := makeSamples(12, 100)

	chunks := Segment(samples, 100, nil)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Start != 0 || chunks[0].End != 12 {
		t.Fatalf("chunk = %s, want 0-12", chunks[0])
	}
	if len(chunks[0].Samples) != len(samples) {
		t.Fatalf("samples = %d, want %d", len(chunks[0].Samples), len(samples))
	}
}

// TestSegmentRequestedMinusExcluded checks the [5,15] minus [8,10] scenario.
func TestSegmentRequestedMinusExcluded(t *testing.T) {
	samples := makeSamples(30, 100)
	intervals := interval.Subtract(interval.Set{{Start: 5, End: 15}}, interval.Set{{Start: 8, End: 10}})

	chunks := Segment(samples, 100, intervals)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}

	want := []struct{ start, end float64 }{{5, 8}, {10, 15}}
	for i, w := range want {
		c := chunks[i]
		if c.Start != w.start || c.End != w.end {
			t.Fatalf("chunk %d = %s, want %.0f-%.0f", i, c, w.start, w.end)
		}
		if got, wantLen := len(c.Samples), int((w.end-w.start)*100); got != wantLen {
			t.Fatalf("chunk %d samples = %d, want %d", i, got, wantLen)
		}
		if first := c.Samples[0]; first != float32(w.start*100) {
			t.Fatalf("chunk %d first sample = %v, want %v", i, first, w.start*100)
		}
	}
}

// TestSegmentClampsToDuration checks intervals running past the end.
func TestSegmentClampsToDuration(t *testing.T) {
	samples := makeSamples(10, 100)

	chunks := Segment(samples, 100, interval.Set{{Start: 8, End: 20}, {Start: 12, End: 14}})
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].End != 10 {
		t.Fatalf("end = %v, want 10", chunks[0].End)
	}
	if len(chunks[0].Samples) != 200 {
		t.Fatalf("samples = %d, want 200", len(chunks[0].Samples))
	}
}

// TestSegmentOrdersChunks checks ascending, non-overlapping output.
func TestSegmentOrdersChunks(t *testing.T) {
	samples := makeSamples(20, 10)

	chunks := Segment(samples, 10, interval.Set{{Start: 12, End: 14}, {Start: 1, End: 3}})
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Start != 1 || chunks[1].Start != 12 {
		t.Fatalf("chunks out of order: %s, %s", chunks[0], chunks[1])
	}
	if chunks[0].End > chunks[1].Start {
		t.Fatalf("chunks overlap: %s, %s", chunks[0], chunks[1])
	}
}

// TestSegmentChunksCarrySampleRate checks every chunk knows its own rate.
func TestSegmentChunksCarrySampleRate(t *testing.T) {
	samples := makeSamples(10, 8000)

	for _, intervals := range []interval.Set{nil, {{Start: 1, End: 2}, {Start: 4, End: 6}}} {
		for _, c := range Segment(samples, 8000, intervals) {
			if c.SampleRate != 8000 {
				t.Fatalf("%s rate = %d, want 8000", c, c.SampleRate)
			}
			if got := float64(len(c.Samples)) / float64(c.SampleRate); math.Abs(got-c.Duration()) > 1e-9 {
				t.Fatalf("%s holds %vs of audio, want %v", c, got, c.Duration())
			}
		}
	}
}
