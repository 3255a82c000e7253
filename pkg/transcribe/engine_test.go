package transcribe

import (
	"context"
	"errors"
	"testing"

	"transcription-queue/pkg/audio"
	"transcription-queue/pkg/models"
)

// scriptedModel returns one canned result per call.
type scriptedModel struct {
	results []*Result
	err     error
	calls   int
	opts    []Options
}

func (m *scriptedModel) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error) {
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return nil, m.err
	}
	i := m.calls
	m.calls++
	if i >= len(m.results) {
		return &Result{}, nil
	}
	return m.results[i], nil
}

func TestTranscribeChunksOffsetsAndIDs(t *testing.T) {
	model := &scriptedModel{results: []*Result{
		{Segments: []models.Segment{
			{Start: 0, End: 2, Text: " first "},
			{Start: 2, End: 2.5, Text: "   "},
			{Start: 2.5, End: 3.4, Text: "second"},
		}},
		{Segments: []models.Segment{
			{Start: 0.5, End: 1.5, Text: "third"},
		}},
	}}
	chunks := []audio.Chunk{{Start: 5, End: 8}, {Start: 10, End: 15}}

	segments, err := NewEngine(0).TranscribeChunks(context.Background(), model, chunks, 7, Options{Language: "en"}, nil)
	if err != nil {
		t.Fatalf("TranscribeChunks() error = %v", err)
	}

	want := []models.Segment{
		{ID: 7, Start: 5, End: 7, Text: "first"},
		{ID: 8, Start: 7.5, End: 8, Text: "second"},
		{ID: 9, Start: 10.5, End: 11.5, Text: "third"},
	}
	if len(segments) != len(want) {
		t.Fatalf("segments = %d, want %d: %+v", len(segments), len(want), segments)
	}
	for i := range want {
		got := segments[i]
		if got.ID != want[i].ID || got.Start != want[i].Start || got.End != want[i].End || got.Text != want[i].Text {
			t.Fatalf("segment %d = %+v, want %+v", i, got, want[i])
		}
	}
	for _, opts := range model.opts {
		if opts.Language != "en" {
			t.Fatalf("options not carried through: %+v", opts)
		}
	}
}

func TestTranscribeChunksDropsDegenerateSegments(t *testing.T) {
	model := &scriptedModel{results: []*Result{
		{Segments: []models.Segment{{Start: 3.5, End: 4, Text: "overrun"}}},
	}}
	chunks := []audio.Chunk{{Start: 0, End: 3}}

	segments, err := NewEngine(0).TranscribeChunks(context.Background(), model, chunks, 0, Options{}, nil)
	if err != nil {
		t.Fatalf("TranscribeChunks() error = %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("segments = %+v, want none", segments)
	}
}

func TestTranscribeChunksClampsToChunk(t *testing.T) {
	model := &scriptedModel{results: []*Result{
		{Segments: []models.Segment{
			{Start: 0, End: 1, Text: "alpha"},
			{Start: 1, End: 3.4, Text: "beta", Words: []models.Word{{Word: "beta", Start: 1, End: 1.5}}},
		}},
	}}
	chunks := []audio.Chunk{{Start: 10, End: 13}}

	segments, err := NewEngine(0).TranscribeChunks(context.Background(), model, chunks, 0, Options{}, nil)
	if err != nil {
		t.Fatalf("TranscribeChunks() error = %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(segments))
	}
	if segments[0].Start != 10 || segments[0].End != 11 || segments[0].ID != 0 {
		t.Fatalf("segment 0 = %+v", segments[0])
	}
	if segments[1].Start != 11 || segments[1].End != 13 || segments[1].ID != 1 {
		t.Fatalf("segment 1 = %+v, want clamped to 13", segments[1])
	}
	if w := segments[1].Words[0]; w.Start != 11 || w.End != 11.5 {
		t.Fatalf("word = %+v, want offset by chunk start", w)
	}
}

func TestTranscribeChunksReportsProgress(t *testing.T) {
	model := &scriptedModel{}
	chunks := []audio.Chunk{{Start: 0, End: 2}, {Start: 5, End: 11}}

	var reports [][2]float64
	_, err := NewEngine(0).TranscribeChunks(context.Background(), model, chunks, 0, Options{}, func(processed, total float64) {
		reports = append(reports, [2]float64{processed, total})
	})
	if err != nil {
		t.Fatalf("TranscribeChunks() error = %v", err)
	}

	want := [][2]float64{{2, 8}, {8, 8}}
	if len(reports) != len(want) {
		t.Fatalf("reports = %v, want %v", reports, want)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Fatalf("report %d = %v, want %v", i, reports[i], want[i])
		}
	}
}

func TestTranscribeChunksPropagatesModelError(t *testing.T) {
	boom := errors.New("out of memory")
	model := &scriptedModel{err: boom}

	segments, err := NewEngine(0).TranscribeChunks(context.Background(), model, []audio.Chunk{{Start: 0, End: 1}}, 0, Options{}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if segments != nil {
		t.Fatalf("segments = %+v, want nil", segments)
	}
}

func TestTranscribeChunksRequiresModel(t *testing.T) {
	if _, err := NewEngine(0).TranscribeChunks(context.Background(), nil, nil, 0, Options{}, nil); err == nil {
		t.Fatal("expected error for nil model")
	}
}

// halfModel answers with one segment over the second half of the audio it
// was given, timed by the sample rate it was told.
type halfModel struct {
	rates []int
}

func (m *halfModel) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error) {
	m.rates = append(m.rates, sampleRate)
	duration := float64(len(samples)) / float64(sampleRate)
	return &Result{Segments: []models.Segment{{Start: duration / 2, End: duration, Text: "second half"}}}, nil
}

func TestTranscribeChunksUsesChunkSampleRate(t *testing.T) {
	model := &halfModel{}
	chunks := []audio.Chunk{{Start: 0, End: 10, Samples: make([]float32, 10*16000), SampleRate: 16000}}

	segments, err := NewEngine(8000).TranscribeChunks(context.Background(), model, chunks, 0, Options{}, nil)
	if err != nil {
		t.Fatalf("TranscribeChunks() error = %v", err)
	}
	if len(model.rates) != 1 || model.rates[0] != 16000 {
		t.Fatalf("model rates = %v, want [16000]", model.rates)
	}
	if len(segments) != 1 || segments[0].Start != 5 || segments[0].End != 10 {
		t.Fatalf("segments = %+v, want one segment 5-10", segments)
	}
}

func TestTranscribeChunksFallsBackToEngineRate(t *testing.T) {
	model := &halfModel{}
	chunks := []audio.Chunk{{Start: 0, End: 2, Samples: make([]float32, 2*8000)}}

	if _, err := NewEngine(8000).TranscribeChunks(context.Background(), model, chunks, 0, Options{}, nil); err != nil {
		t.Fatalf("TranscribeChunks() error = %v", err)
	}
	if len(model.rates) != 1 || model.rates[0] != 8000 {
		t.Fatalf("model rates = %v, want [8000]", model.rates)
	}
}
