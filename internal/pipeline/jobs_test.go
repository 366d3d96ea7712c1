package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewJob(t *testing.T) {
	job := NewJob("dump.xml", "/tmp/dump.xml", false)
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Fatalf("expected uuid job id, got %q: %v", job.ID, err)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.Source() != "/tmp/dump.xml" {
		t.Errorf("unexpected source %q", job.Source())
	}
	if other := NewJob("dump.xml", "", false); other.ID == job.ID {
		t.Error("expected distinct job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusReading, "reading dump"},
		{StatusConverting, "converting pages"},
		{StatusAggregating, "rebuilding change log"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
	if !job.Snapshot().Done() {
		t.Error("expected completed job to be done")
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("Main Page: disk full")
	job.AddError("Other: disk full")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "Main Page: disk full" {
		t.Errorf("expected first error %q, got %q", "Main Page: disk full", snap.Progress.Errors[0])
	}

	// The snapshot must not alias the live error slice.
	snap.Progress.Errors[0] = "mutated"
	if job.Snapshot().Progress.Errors[0] != "Main Page: disk full" {
		t.Error("snapshot errors alias job state")
	}
}

func TestJob_Counters(t *testing.T) {
	job := &Job{ID: "count-test", UpdatedAt: time.Now()}
	job.IncrPagesSeen()
	job.IncrPagesSeen()
	job.AddPage(3, 1, 2)
	job.AddPage(1, 0, 0)
	job.IncrMedia()
	job.SetChangeEntries(4)

	p := job.Snapshot().Progress
	if p.PagesSeen != 2 || p.PagesWritten != 2 {
		t.Errorf("expected 2 pages seen and written, got %d/%d", p.PagesSeen, p.PagesWritten)
	}
	if p.Revisions != 4 || p.AtticSkipped != 1 || p.Warnings != 2 {
		t.Errorf("unexpected revision counters %+v", p)
	}
	if p.Media != 1 || p.ChangeEntries != 4 {
		t.Errorf("unexpected media/change counters %+v", p)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Done() {
		t.Error("expected fresh job not to be done")
	}
}

func TestJob_ReleaseSource(t *testing.T) {
	dir := t.TempDir()
	owned := filepath.Join(dir, "upload.xml")
	kept := filepath.Join(dir, "local.xml")
	for _, p := range []string{owned, kept} {
		if err := os.WriteFile(p, []byte("<mediawiki/>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := NewJob("upload.xml", owned, true).releaseSource(); err != nil {
		t.Fatalf("release owned: %v", err)
	}
	if _, err := os.Stat(owned); !os.IsNotExist(err) {
		t.Error("expected spooled upload to be removed")
	}

	if err := NewJob("local.xml", kept, false).releaseSource(); err != nil {
		t.Fatalf("release kept: %v", err)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Error("expected caller-owned source to survive")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
