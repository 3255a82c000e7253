package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"transcription-queue/pkg/audio"
	"transcription-queue/pkg/command"
	"transcription-queue/pkg/models"
)

const (
	defaultModelBaseURL  = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	defaultWhisperModel  = "base"
	modelDownloadTimeout = 2 * time.Hour
)

// WhisperCPPBackend runs the whisper.cpp CLI against ggml model files kept
// in ModelDir, downloading missing models on first use.
type WhisperCPPBackend struct {
	BinaryPath   string
	ModelDir     string
	ModelBaseURL string
	HTTPClient   *http.Client

	runner    command.Runner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
}

func NewWhisperCPPBackend(binaryPath, modelDir string, runner command.Runner) *WhisperCPPBackend {
	if strings.TrimSpace(binaryPath) == "" {
		binaryPath = "whisper-cli"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &WhisperCPPBackend{
		BinaryPath:   binaryPath,
		ModelDir:     modelDir,
		ModelBaseURL: defaultModelBaseURL,
		HTTPClient:   &http.Client{Timeout: modelDownloadTimeout},
		runner:       runner,
		mkdirTemp:    os.MkdirTemp,
		removeAll:    os.RemoveAll,
	}
}

func (b *WhisperCPPBackend) Name() string { return "whispercpp" }

// Open resolves the model file, downloading it when absent.
func (b *WhisperCPPBackend) Open(ctx context.Context, name, device string, onDownload func()) (Model, error) {
	path, err := b.resolveModelPath(name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("check model file: %w", err)
		}
		if onDownload != nil {
			onDownload()
		}
		url := strings.TrimRight(b.ModelBaseURL, "/") + "/" + filepath.Base(path)
		log.Printf("Whisper: Downloading model %s from %s", name, url)
		if err := b.download(ctx, url, path); err != nil {
			return nil, fmt.Errorf("download model %s: %w", name, err)
		}
	}

	return &whisperCPPModel{backend: b, modelPath: path, device: device}, nil
}

// resolveModelPath maps a model name such as "base.en" to ggml-base.en.bin.
// Names that already point at a .bin/.gguf file are used as-is. An empty
// name selects the base model.
func (b *WhisperCPPBackend) resolveModelPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultWhisperModel
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".bin" || ext == ".gguf" {
		if filepath.IsAbs(name) {
			return name, nil
		}
		return filepath.Join(b.ModelDir, name), nil
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid model name: %s", name)
	}
	return filepath.Join(b.ModelDir, "ggml-"+name+".bin"), nil
}

func (b *WhisperCPPBackend) download(ctx context.Context, sourceURL, destinationPath string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	tmpPath := destinationPath + ".download"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write model file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close model file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded model into place: %w", err)
	}
	return nil
}

type whisperCPPModel struct {
	backend   *WhisperCPPBackend
	modelPath string
	device    string
}

type whisperCPPOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (m *whisperCPPModel) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error) {
	b := m.backend
	tempDir, err := b.mkdirTemp("", "whisper-chunk-*")
	if err != nil {
		return nil, fmt.Errorf("create temporary workspace: %w", err)
	}
	defer func() { _ = b.removeAll(tempDir) }()

	wavPath := filepath.Join(tempDir, "chunk.wav")
	f, err := os.Create(wavPath)
	if err != nil {
		return nil, fmt.Errorf("create chunk file: %w", err)
	}
	encodeErr := audio.EncodeWAV(f, samples, sampleRate)
	closeErr := f.Close()
	if encodeErr != nil {
		return nil, encodeErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close chunk file: %w", closeErr)
	}

	outBase := filepath.Join(tempDir, "chunk")
	args := buildWhisperArgs(m.modelPath, wavPath, outBase, m.device, opts)
	result, err := b.runner.Run(ctx, b.BinaryPath, args...)
	if err != nil {
		return nil, &command.Error{Message: "whisper.cpp transcription failed", Result: result, Err: err}
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, &command.Error{Message: "whisper.cpp completed but JSON output is missing", Result: result, Err: err}
	}

	var parsed whisperCPPOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse whisper.cpp output: %w", err)
	}

	out := &Result{Language: parsed.Result.Language}
	texts := make([]string, 0, len(parsed.Transcription))
	for _, seg := range parsed.Transcription {
		out.Segments = append(out.Segments, models.Segment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  seg.Text,
		})
		texts = append(texts, strings.TrimSpace(seg.Text))
	}
	out.Text = strings.Join(texts, " ")
	return out, nil
}

// buildWhisperArgs builds whisper.cpp args for JSON transcript export.
func buildWhisperArgs(modelPath, audioPath, outBase, device string, opts Options) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}
	if lang := normalizeLanguage(opts.Language); lang != "" {
		args = append(args, "-l", lang)
	}
	if opts.Task == models.TaskTranslate {
		args = append(args, "-tr")
	}
	if prompt := strings.TrimSpace(opts.InitialPrompt); prompt != "" {
		args = append(args, "--prompt", prompt)
	}
	if strings.EqualFold(strings.TrimSpace(device), "cpu") {
		args = append(args, "-ng")
	}
	return args
}
