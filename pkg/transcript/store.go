package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"transcription-queue/pkg/models"
	"transcription-queue/pkg/storage"
)

var ErrNotFound = errors.New("transcript not found")

// Store reads and writes transcript documents by name.
type Store interface {
	Load(name string) (*models.Document, error)
	Save(name string, doc *models.Document) error
}

// FileStore keeps each document as a JSON file. Relative names resolve
// against Dir; absolute names are used as-is.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Path(name string) string {
	if filepath.IsAbs(name) || s.Dir == "" {
		return name
	}
	return filepath.Join(s.Dir, name)
}

func (s *FileStore) Load(name string) (*models.Document, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", name, err)
	}
	return &doc, nil
}

// Save replaces the document atomically.
func (s *FileStore) Save(name string, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("nil transcript document")
	}
	path := s.Path(name)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return storage.WriteFileAtomic(path, data)
}

// DefaultOutputPath puts the transcript next to the audio file.
func DefaultOutputPath(audioPath string) string {
	ext := filepath.Ext(audioPath)
	return strings.TrimSuffix(audioPath, ext) + ".transcription.json"
}
