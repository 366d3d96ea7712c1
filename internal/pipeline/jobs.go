package pipeline

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an import job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusReading     JobStatus = "reading"
	StatusConverting  JobStatus = "converting"
	StatusAggregating JobStatus = "aggregating"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusPartial     JobStatus = "partial"
)

// Job tracks the state of a single import: one dump file or one
// directory of markup files.
type Job struct {
	mu sync.Mutex

	ID       string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	Progress Progress `json:"progress"`

	DumpHash  string    `json:"dump_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	source     string
	ownsSource bool
	errors     []string
}

// Progress tracks processing progress.
type Progress struct {
	PagesSeen     int      `json:"pages_seen"`
	PagesWritten  int      `json:"pages_written"`
	Revisions     int      `json:"revisions"`
	AtticSkipped  int      `json:"attic_skipped"`
	Media         int      `json:"media"`
	Warnings      int      `json:"warnings"`
	ChangeEntries int      `json:"change_entries"`
	Errors        []string `json:"errors"`
}

// NewJob creates a queued job reading from source, a dump file or a
// directory. When owned is set the source is a spooled upload that is
// removed once the job finishes.
func NewJob(filename, source string, owned bool) *Job {
	now := time.Now()
	return &Job{
		ID:         uuid.NewString(),
		Status:     StatusQueued,
		Phase:      "queued",
		Filename:   filename,
		CreatedAt:  now,
		UpdatedAt:  now,
		source:     source,
		ownsSource: owned,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// IncrPagesSeen counts a document handed to a lane.
func (j *Job) IncrPagesSeen() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesSeen++
	j.UpdatedAt = time.Now()
}

// AddPage records one persisted document.
func (j *Job) AddPage(revisions, atticSkipped, warnings int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesWritten++
	j.Progress.Revisions += revisions
	j.Progress.AtticSkipped += atticSkipped
	j.Progress.Warnings += warnings
	j.UpdatedAt = time.Now()
}

// IncrMedia counts one stored media file.
func (j *Job) IncrMedia() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Media++
	j.UpdatedAt = time.Now()
}

// SetChangeEntries records the size of the rebuilt page aggregate.
func (j *Job) SetChangeEntries(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChangeEntries = n
	j.UpdatedAt = time.Now()
}

// SetDumpHash records the digest of the input dump.
func (j *Job) SetDumpHash(h string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DumpHash = h
}

// Source returns the dump path or directory the job reads.
func (j *Job) Source() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.source
}

// releaseSource removes a spooled upload once the job is done with it.
func (j *Job) releaseSource() error {
	j.mu.Lock()
	src, owned := j.source, j.ownsSource
	j.ownsSource = false
	j.mu.Unlock()
	if !owned || src == "" {
		return nil
	}
	return os.Remove(src)
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Filename  string    `json:"filename"`
	DumpHash  string    `json:"dump_hash,omitempty"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:        j.ID,
		Status:    j.Status,
		Phase:     j.Phase,
		Filename:  j.Filename,
		DumpHash:  j.DumpHash,
		Progress:  p,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// Done reports whether the job reached a final state.
func (s JobSnapshot) Done() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	}
	return false
}
