package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"transcription-queue/pkg/audio"
	"transcription-queue/pkg/models"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "whisper-1"
	defaultHTTPTimeout   = 30 * time.Minute

	// the API rejects uploads over 25 MB
	defaultMaxUploadBytes = 24 << 20
	wavHeaderBytes        = 44
)

// OpenAIBackend talks to an OpenAI-compatible audio API.
type OpenAIBackend struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	// MaxUploadBytes bounds one uploaded WAV file. Longer audio is sent in
	// consecutive parts.
	MaxUploadBytes int
}

type OpenAIOption func(*OpenAIBackend)

func WithBaseURL(baseURL string) OpenAIOption {
	return func(b *OpenAIBackend) {
		if strings.TrimSpace(baseURL) != "" {
			b.BaseURL = strings.TrimSpace(baseURL)
		}
	}
}

func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(b *OpenAIBackend) {
		if client != nil {
			b.HTTPClient = client
		}
	}
}

// NewOpenAIBackend reads OPENAI_API_KEY when apiKey is empty.
func NewOpenAIBackend(apiKey string, opts ...OpenAIOption) *OpenAIBackend {
	if strings.TrimSpace(apiKey) == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	b := &OpenAIBackend{
		APIKey:         strings.TrimSpace(apiKey),
		BaseURL:        defaultOpenAIBaseURL,
		HTTPClient:     &http.Client{Timeout: defaultHTTPTimeout},
		MaxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *OpenAIBackend) Name() string { return "openai" }

// Open returns a handle for a hosted model. Nothing is downloaded.
func (b *OpenAIBackend) Open(ctx context.Context, name, device string, onDownload func()) (Model, error) {
	if b.APIKey == "" {
		return nil, errors.New("openai: API key is required (set OPENAI_API_KEY)")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultOpenAIModel
	}
	return &openAIModel{backend: b, name: name}, nil
}

type openAIModel struct {
	backend *OpenAIBackend
	name    string
}

type verboseResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language,omitempty"`
	Duration float64          `json:"duration,omitempty"`
	Segments []verboseSegment `json:"segments,omitempty"`
	Words    []verboseWord    `json:"words,omitempty"`
}

type verboseSegment struct {
	ID    int           `json:"id"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []verboseWord `json:"words,omitempty"`
}

type verboseWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcribe uploads samples as 16-bit WAV, splitting them into parts that
// fit the upload limit. Part results are shifted to chunk-local time.
func (m *openAIModel) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("openai: invalid sample rate %d", sampleRate)
	}
	partSamples := maxPartSamples(m.backend.MaxUploadBytes)
	if len(samples) <= partSamples {
		return m.transcribePart(ctx, samples, sampleRate, opts)
	}

	combined := &Result{}
	var texts []string
	for from := 0; from < len(samples); from += partSamples {
		to := min(from+partSamples, len(samples))
		offset := float64(from) / float64(sampleRate)

		part, err := m.transcribePart(ctx, samples[from:to], sampleRate, opts)
		if err != nil {
			return nil, fmt.Errorf("openai: part at %.3fs: %w", offset, err)
		}
		if combined.Language == "" {
			combined.Language = part.Language
		}
		if text := strings.TrimSpace(part.Text); text != "" {
			texts = append(texts, text)
		}
		for _, seg := range part.Segments {
			combined.Segments = append(combined.Segments, shiftSegment(seg, offset))
		}
	}
	combined.Text = strings.Join(texts, " ")
	return combined, nil
}

// maxPartSamples returns how many mono 16-bit samples fit in maxBytes of WAV.
func maxPartSamples(maxBytes int) int {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return max((maxBytes-wavHeaderBytes)/2, 1)
}

func shiftSegment(seg models.Segment, offset float64) models.Segment {
	seg.Start += offset
	seg.End += offset
	if len(seg.Words) > 0 {
		words := make([]models.Word, len(seg.Words))
		for i, w := range seg.Words {
			w.Start += offset
			w.End += offset
			words[i] = w
		}
		seg.Words = words
	}
	return seg
}

func (m *openAIModel) transcribePart(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error) {
	wavData, err := encodeWAVBytes(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	body, contentType, err := buildTranscriptionForm(m.name, wavData, opts)
	if err != nil {
		return nil, err
	}

	endpoint := "/audio/transcriptions"
	if opts.Task == models.TaskTranslate {
		endpoint = "/audio/translations"
	}
	url := strings.TrimRight(m.backend.BaseURL, "/") + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.backend.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := m.backend.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai: API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	return toResult(parsed), nil
}

func buildTranscriptionForm(model string, wavData []byte, opts Options) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"model", model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if opts.WordTimestamps {
		fields = append(fields, [2]string{"timestamp_granularities[]", "word"})
	}
	if lang := normalizeLanguage(opts.Language); lang != "" && opts.Task != models.TaskTranslate {
		fields = append(fields, [2]string{"language", lang})
	}
	if prompt := strings.TrimSpace(opts.InitialPrompt); prompt != "" {
		fields = append(fields, [2]string{"prompt", prompt})
	}

	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("openai: write %s field: %w", f[0], err)
		}
	}

	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, "", fmt.Errorf("openai: create file form field: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("openai: write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("openai: close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func toResult(resp verboseResponse) *Result {
	result := &Result{Text: resp.Text, Language: resp.Language}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, models.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
			Words: toWords(seg.Words),
		})
	}

	// word granularity without segments comes back at the top level
	if len(result.Segments) == 0 && len(resp.Words) > 0 {
		result.Segments = []models.Segment{{
			Start: resp.Words[0].Start,
			End:   resp.Words[len(resp.Words)-1].End,
			Text:  resp.Text,
			Words: toWords(resp.Words),
		}}
	} else if len(resp.Words) > 0 {
		attachWords(result.Segments, toWords(resp.Words))
	}
	return result
}

func toWords(in []verboseWord) []models.Word {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Word, 0, len(in))
	for _, w := range in {
		out = append(out, models.Word{Word: w.Word, Start: w.Start, End: w.End})
	}
	return out
}

// attachWords distributes top-level words to the segment containing their start.
func attachWords(segments []models.Segment, words []models.Word) {
	for _, w := range words {
		for i := range segments {
			if w.Start >= segments[i].Start && w.Start < segments[i].End {
				segments[i].Words = append(segments[i].Words, w)
				break
			}
		}
	}
}

// encodeWAVBytes writes samples through a temp file since the WAV encoder
// needs to seek back and patch the header.
func encodeWAVBytes(samples []float32, sampleRate int) ([]byte, error) {
	tmp, err := os.CreateTemp("", "chunk_*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := audio.EncodeWAV(tmp, samples, sampleRate); err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return io.ReadAll(tmp)
}

// normalizeLanguage maps "auto" and empty language to no override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}
