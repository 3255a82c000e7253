package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"transcription-queue/pkg/command"
)

// DefaultSampleRate is what the speech and VAD models expect.
const DefaultSampleRate = 16000

// LoadError reports an unusable input file. It is an input error: the job
// fails before any model is touched.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Message, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader converts media files to mono PCM with ffmpeg and decodes them.
type Loader struct {
	ffmpegPath string
	sampleRate int
	runner     command.Runner
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
}

// NewLoader returns a loader resampling to sampleRate, or DefaultSampleRate
// when sampleRate is not positive.
func NewLoader(ffmpegPath string, sampleRate int, runner command.Runner) *Loader {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Loader{
		ffmpegPath: ffmpegPath,
		sampleRate: sampleRate,
		runner:     runner,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
	}
}

// Load returns the file's audio track as mono samples at the loader's rate.
func (l *Loader) Load(ctx context.Context, path string) (Audio, error) {
	if strings.TrimSpace(path) == "" {
		return Audio{}, &LoadError{Path: path, Message: "audio file path is required"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Audio{}, &LoadError{Path: path, Message: "cannot access audio file", Err: err}
	}
	if info.IsDir() {
		return Audio{}, &LoadError{Path: path, Message: "audio path is a directory"}
	}

	tempDir, err := l.mkdirTemp("", "transcription-queue-*")
	if err != nil {
		return Audio{}, fmt.Errorf("create temporary workspace: %w", err)
	}
	defer func() { _ = l.removeAll(tempDir) }()

	outPath := filepath.Join(tempDir, "audio-mono.wav")
	args := buildFFmpegArgs(path, outPath, l.sampleRate)
	result, err := l.runner.Run(ctx, l.ffmpegPath, args...)
	if err != nil {
		return Audio{}, &LoadError{
			Path:    path,
			Message: "ffmpeg audio conversion failed",
			Err:     &command.Error{Message: "ffmpeg", Result: result, Err: err},
		}
	}

	f, err := os.Open(outPath)
	if err != nil {
		return Audio{}, &LoadError{Path: path, Message: "ffmpeg completed but output file is missing", Err: err}
	}
	defer f.Close()

	decoded, err := DecodeWAV(f)
	if err != nil {
		return Audio{}, &LoadError{Path: path, Message: "cannot decode converted audio", Err: err}
	}
	if len(decoded.Samples) == 0 {
		return Audio{}, &LoadError{Path: path, Message: "audio file contains no samples"}
	}
	return decoded, nil
}

// buildFFmpegArgs builds conversion args for mono 16-bit PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string, sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
}
