package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"transcription-queue/pkg/models"
)

// CassandraStore keeps documents in a single table:
//
//	CREATE TABLE transcripts (
//	    name text PRIMARY KEY,
//	    audio_file_path text,
//	    language text,
//	    transcript_text text,
//	    segments text,
//	    updated_at timestamp
//	)
type CassandraStore struct {
	session *gocql.Session
	table   string
}

// ConnectCassandra opens a session against keyspace.
func ConnectCassandra(hosts []string, keyspace string) (*gocql.Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	return session, nil
}

func NewCassandraStore(session *gocql.Session, table string) *CassandraStore {
	if table == "" {
		table = "transcripts"
	}
	return &CassandraStore{session: session, table: table}
}

func (s *CassandraStore) Load(name string) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT audio_file_path, language, transcript_text, segments, updated_at
		FROM %s
		WHERE name = ?
	`, s.table)

	var (
		doc          = models.Document{Name: name}
		segmentsJSON string
	)
	err := s.session.Query(query, name).Scan(&doc.AudioFilePath, &doc.Language, &doc.Text, &segmentsJSON, &doc.UpdatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching transcript: %w", err)
	}

	if segmentsJSON != "" {
		if err := json.Unmarshal([]byte(segmentsJSON), &doc.Segments); err != nil {
			return nil, fmt.Errorf("failed to parse segments of %s: %w", name, err)
		}
	}
	return &doc, nil
}

func (s *CassandraStore) Save(name string, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("nil transcript document")
	}
	segments, err := json.Marshal(doc.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, audio_file_path, language, transcript_text, segments, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.table)

	return s.session.Query(query,
		name, doc.AudioFilePath, doc.Language, doc.Text, string(segments), doc.UpdatedAt,
	).Exec()
}

// Close releases the underlying session.
func (s *CassandraStore) Close() {
	s.session.Close()
}
