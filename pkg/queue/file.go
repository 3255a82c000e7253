package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"transcription-queue/pkg/models"
	"transcription-queue/pkg/storage"
)

// FileStore persists the queue as a JSON object of job id -> job. Key order
// is the queue order.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(jobs []models.Job) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, job := range jobs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(job.ID)
		if err != nil {
			return fmt.Errorf("failed to marshal job id: %w", err)
		}
		value, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("failed to format queue: %w", err)
	}
	return storage.WriteFileAtomic(s.path, out.Bytes())
}

// Load reads the queue back in file order. A missing file is an empty queue.
func (s *FileStore) Load() ([]models.Job, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse queue file: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("failed to parse queue file: expected object")
	}

	var jobs []models.Job
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse queue file: %w", err)
		}
		key, _ := tok.(string)

		var job models.Job
		if err := dec.Decode(&job); err != nil {
			return nil, fmt.Errorf("failed to parse job %s: %w", key, err)
		}
		if job.ID == "" {
			job.ID = key
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
