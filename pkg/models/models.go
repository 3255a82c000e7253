package models

import (
	"time"

	"transcription-queue/pkg/interval"
)

// Task selects what the speech model does with the audio.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

func (t Task) Valid() bool {
	return t == TaskTranscribe || t == TaskTranslate
}

type JobStatus string

const (
	StatusWaiting          JobStatus = "waiting"
	StatusPreparing        JobStatus = "preparing"
	StatusDetectingSpeech  JobStatus = "pre-detecting speech"
	StatusLoadingModel     JobStatus = "loading model"
	StatusDownloadingModel JobStatus = "downloading model"
	StatusTranscribing     JobStatus = "transcribing"
	StatusRetranscribing   JobStatus = "re-transcribing"
	StatusSaving           JobStatus = "saving files"
	StatusDone             JobStatus = "done"
	StatusFailed           JobStatus = "failed"
	StatusCanceled         JobStatus = "canceled"
)

var allStatuses = []JobStatus{
	StatusWaiting,
	StatusPreparing,
	StatusDetectingSpeech,
	StatusLoadingModel,
	StatusDownloadingModel,
	StatusTranscribing,
	StatusRetranscribing,
	StatusSaving,
	StatusDone,
	StatusFailed,
	StatusCanceled,
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCanceled
}

// ValidTransition enforces the job state machine edges.
func ValidTransition(from, to JobStatus) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	if to == StatusFailed {
		return true
	}

	switch from {
	case StatusWaiting:
		return to == StatusPreparing || to == StatusCanceled
	case StatusPreparing:
		return to == StatusDetectingSpeech || to == StatusLoadingModel || to == StatusDownloadingModel ||
			to == StatusTranscribing || to == StatusRetranscribing || to == StatusCanceled
	case StatusDetectingSpeech:
		return to == StatusLoadingModel || to == StatusDownloadingModel ||
			to == StatusTranscribing || to == StatusRetranscribing
	case StatusLoadingModel:
		return to == StatusDownloadingModel || to == StatusTranscribing || to == StatusRetranscribing
	case StatusDownloadingModel:
		return to == StatusLoadingModel || to == StatusTranscribing || to == StatusRetranscribing
	case StatusTranscribing, StatusRetranscribing:
		return to == StatusSaving
	case StatusSaving:
		return to == StatusDone
	default:
		return false
	}
}

// Job is one queued request to transcribe a file.
type Job struct {
	ID                     string       `json:"id"`
	Name                   string       `json:"name"`
	AudioFilePath          string       `json:"audio_file_path"`
	Task                   Task         `json:"task"`
	Model                  string       `json:"model"`
	Device                 string       `json:"device"`
	Language               string       `json:"language,omitempty"`
	InitialPrompt          string       `json:"initial_prompt,omitempty"`
	WordTimestamps         bool         `json:"word_timestamps,omitempty"`
	PreDetectSpeech        bool         `json:"pre_detect_speech,omitempty"`
	TimeIntervals          interval.Set `json:"time_intervals,omitempty"`
	ExcludedTimeIntervals  interval.Set `json:"excluded_time_intervals,omitempty"`
	ExistingTranscriptPath string       `json:"existing_transcript_path,omitempty"`
	OutputPath             string       `json:"output_path,omitempty"`
	Status                 JobStatus    `json:"status"`
	Progress               *int         `json:"progress"`
	Error                  string       `json:"error,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// Word is a word-level timestamp inside a segment.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Document is the transcript shape exchanged with the document store.
type Document struct {
	Name          string    `json:"name,omitempty"`
	AudioFilePath string    `json:"audio_file_path,omitempty"`
	Language      string    `json:"language,omitempty"`
	Segments      []Segment `json:"segments"`
	Text          string    `json:"text"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusUpdate is one (job, status, progress) report sent to status sinks.
type StatusUpdate struct {
	JobID     string    `json:"job_id"`
	Name      string    `json:"name,omitempty"`
	Status    JobStatus `json:"status"`
	Progress  *int      `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Percent returns a progress pointer clamped to 0..100.
func Percent(v int) *int {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}
