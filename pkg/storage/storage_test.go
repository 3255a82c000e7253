package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"transcription-queue/pkg/models"
)

func TestDiskStoreJobHistory(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	defer store.Close()

	base := time.Unix(1700000000, 0)
	for i, status := range []models.JobStatus{models.StatusDone, models.StatusFailed, models.StatusCanceled} {
		job := &models.Job{
			ID:        "job-" + string(rune('a'+i)),
			Name:      "job",
			Status:    status,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.StoreJob(job); err != nil {
			t.Fatalf("StoreJob() error = %v", err)
		}
	}

	job, err := store.GetJob("job-b")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Status != models.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}

	jobs, err := store.ListJobs(2)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-c" || jobs[1].ID != "job-b" {
		t.Fatalf("ListJobs(2) = %v", jobs)
	}

	if _, err := store.GetJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStoreKeepsLatestStatus(t *testing.T) {
	store := NewMemoryStore(0)
	now := time.Now()

	store.Publish(models.StatusUpdate{JobID: "a", Status: models.StatusWaiting, Timestamp: now})
	store.Publish(models.StatusUpdate{JobID: "b", Status: models.StatusWaiting, Timestamp: now.Add(time.Second)})
	store.Publish(models.StatusUpdate{JobID: "a", Status: models.StatusTranscribing, Timestamp: now.Add(2 * time.Second)})

	got, err := store.GetStatus("a")
	if err != nil || got.Status != models.StatusTranscribing {
		t.Fatalf("GetStatus(a) = %+v, %v", got, err)
	}

	list := store.ListStatuses()
	if len(list) != 2 || list[0].JobID != "a" {
		t.Fatalf("ListStatuses() = %+v", list)
	}

	if _, err := store.GetStatus("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("GetStatus(missing) error = %v", err)
	}
}

func TestMemoryStoreEvictsOldTerminalStatuses(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	start := time.Now()

	store.Publish(models.StatusUpdate{JobID: "done", Status: models.StatusDone, Timestamp: start})
	store.Publish(models.StatusUpdate{JobID: "slow", Status: models.StatusTranscribing, Timestamp: start})

	if _, err := store.GetStatus("done"); err != nil {
		t.Fatalf("terminal status evicted inside retention: %v", err)
	}

	store.Publish(models.StatusUpdate{JobID: "failed", Status: models.StatusFailed, Timestamp: start.Add(90 * time.Second)})
	store.Publish(models.StatusUpdate{JobID: "next", Status: models.StatusWaiting, Timestamp: start.Add(2 * time.Minute)})

	if _, err := store.GetStatus("done"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("GetStatus(done) error = %v, want evicted", err)
	}
	if _, err := store.GetStatus("slow"); err != nil {
		t.Fatalf("running job evicted: %v", err)
	}
	if _, err := store.GetStatus("failed"); err != nil {
		t.Fatalf("failed job evicted early: %v", err)
	}
	if n := len(store.ListStatuses()); n != 3 {
		t.Fatalf("statuses = %d, want 3", n)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "state.json")

	if err := WriteFileAtomic(path, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != `{"v":2}` {
		t.Fatalf("content = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
