package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"transcription-queue/pkg/models"
)

func TestOpenAIModelTranscribe(t *testing.T) {
	var gotPath string
	var gotFields map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFields = r.MultipartForm.Value
		if files := r.MultipartForm.File["file"]; len(files) != 1 {
			t.Errorf("file parts = %d, want 1", len(files))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(verboseResponse{
			Text:     "hello world",
			Language: "english",
			Segments: []verboseSegment{{ID: 0, Start: 0, End: 1.2, Text: " hello world"}},
			Words: []verboseWord{
				{Word: "hello", Start: 0, End: 0.5},
				{Word: "world", Start: 0.6, End: 1.1},
			},
		})
	}))
	defer server.Close()

	backend := NewOpenAIBackend("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	model, err := backend.Open(context.Background(), "", "cpu", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	result, err := model.Transcribe(context.Background(), make([]float32, 1600), 16000, Options{
		Task:           models.TaskTranscribe,
		Language:       "en",
		InitialPrompt:  "Names: Ada",
		WordTimestamps: true,
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if gotPath != "/audio/transcriptions" {
		t.Fatalf("path = %q", gotPath)
	}
	if got := gotFields["model"]; len(got) != 1 || got[0] != defaultOpenAIModel {
		t.Fatalf("model field = %v", got)
	}
	if got := gotFields["language"]; len(got) != 1 || got[0] != "en" {
		t.Fatalf("language field = %v", got)
	}
	if got := gotFields["prompt"]; len(got) != 1 || got[0] != "Names: Ada" {
		t.Fatalf("prompt field = %v", got)
	}
	if got := gotFields["timestamp_granularities[]"]; len(got) != 2 {
		t.Fatalf("granularities = %v, want segment and word", got)
	}

	if len(result.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(result.Segments))
	}
	if words := result.Segments[0].Words; len(words) != 2 || words[1].Word != "world" {
		t.Fatalf("words = %+v", words)
	}
}

func TestOpenAIModelTranslateUsesTranslationsEndpoint(t *testing.T) {
	var gotPath string
	var gotFields map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseMultipartForm(1 << 20)
		gotFields = r.MultipartForm.Value
		_, _ = w.Write([]byte(`{"text":"hi","segments":[{"id":0,"start":0,"end":1,"text":"hi"}]}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend("k", WithBaseURL(server.URL))
	model, err := backend.Open(context.Background(), "whisper-1", "", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := model.Transcribe(context.Background(), make([]float32, 160), 16000, Options{Task: models.TaskTranslate, Language: "de"}); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if gotPath != "/audio/translations" {
		t.Fatalf("path = %q, want /audio/translations", gotPath)
	}
	if _, ok := gotFields["language"]; ok {
		t.Fatal("language must not be sent for translations")
	}
}

func TestOpenAIModelAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	model, err := NewOpenAIBackend("k", WithBaseURL(server.URL)).Open(context.Background(), "", "", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, err = model.Transcribe(context.Background(), make([]float32, 160), 16000, Options{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("error = %v, want API error 429", err)
	}
}

func TestOpenAIBackendRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIBackend("").Open(context.Background(), "", "", nil); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestOpenAIModelSplitsOversizedAudio(t *testing.T) {
	var uploads []int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, r.MultipartForm.File["file"][0].Size)
		n := len(uploads)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(verboseResponse{
			Text:     "part",
			Language: "english",
			Segments: []verboseSegment{{Start: 0.5, End: 1, Text: fmt.Sprintf("part %d", n), Words: []verboseWord{{Word: "part", Start: 0.5, End: 0.7}}}},
		})
	}))
	defer server.Close()

	backend := NewOpenAIBackend("k", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	// one second of 1 kHz audio per upload
	backend.MaxUploadBytes = wavHeaderBytes + 2*1000
	model, err := backend.Open(context.Background(), "", "", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	result, err := model.Transcribe(context.Background(), make([]float32, 2500), 1000, Options{})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if len(uploads) != 3 {
		t.Fatalf("uploads = %d, want 3", len(uploads))
	}
	for i, size := range uploads {
		if size > int64(backend.MaxUploadBytes) {
			t.Fatalf("upload %d = %d bytes, over limit %d", i, size, backend.MaxUploadBytes)
		}
	}
	wantStarts := []float64{0.5, 1.5, 2.5}
	if len(result.Segments) != len(wantStarts) {
		t.Fatalf("segments = %+v", result.Segments)
	}
	for i, want := range wantStarts {
		seg := result.Segments[i]
		if seg.Start != want || seg.End != want+0.5 || seg.Text != fmt.Sprintf("part %d", i+1) {
			t.Fatalf("segment %d = %+v, want start %v", i, seg, want)
		}
		if seg.Words[0].Start != want {
			t.Fatalf("word %d = %+v, want start %v", i, seg.Words[0], want)
		}
	}
	if result.Text != "part part part" || result.Language != "english" {
		t.Fatalf("result text = %q language = %q", result.Text, result.Language)
	}
}

func TestOpenAIModelSendsSmallAudioInOneUpload(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"text":"hi","segments":[{"id":0,"start":0,"end":1,"text":"hi"}]}`))
	}))
	defer server.Close()

	model, err := NewOpenAIBackend("k", WithBaseURL(server.URL)).Open(context.Background(), "", "", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := model.Transcribe(context.Background(), make([]float32, 16000*60), 16000, Options{}); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("uploads = %d, want 1", calls)
	}
}
