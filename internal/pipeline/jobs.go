package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jmcalloway/webgest/internal/chunker"
)

// JobStatus represents the state of a batch ingestion job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
)

// Job tracks one asynchronous batch of source URLs.
type Job struct {
	mu sync.Mutex

	ID         string    `json:"job_id"`
	Collection string    `json:"collection"`
	Status     JobStatus `json:"status"`

	Progress Progress `json:"progress"`
	Results  []Result `json:"results"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	locators []string
	policy   chunker.Policy
}

// Progress summarizes how far a batch has come.
type Progress struct {
	TotalSources     int `json:"total_sources"`
	SourcesProcessed int `json:"sources_processed"`
	SourcesFailed    int `json:"sources_failed"`
	ChunksCreated    int `json:"chunks_created"`
}

// NewJob builds a queued job for a batch of locators.
func NewJob(locators []string, collection string, policy chunker.Policy) *Job {
	now := time.Now()
	return &Job{
		ID:         newJobID(),
		Collection: collection,
		Status:     StatusQueued,
		Progress:   Progress{TotalSources: len(locators)},
		Results:    make([]Result, len(locators)),
		CreatedAt:  now,
		UpdatedAt:  now,
		locators:   locators,
		policy:     policy,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.UpdatedAt = time.Now()
}

// RecordResult stores the result for one source and updates progress.
func (j *Job) RecordResult(i int, r Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Results[i] = r
	j.Progress.SourcesProcessed++
	if r.Success {
		j.Progress.ChunksCreated += r.ChunksCreated
	} else {
		j.Progress.SourcesFailed++
	}
	j.UpdatedAt = time.Now()
}

// Finish derives the terminal status from the recorded results.
func (j *Job) Finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.Progress.SourcesFailed == 0:
		j.Status = StatusCompleted
	case j.Progress.SourcesFailed == j.Progress.TotalSources:
		j.Status = StatusFailed
	default:
		j.Status = StatusPartial
	}
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID         string    `json:"job_id"`
	Collection string    `json:"collection"`
	Status     JobStatus `json:"status"`
	Progress   Progress  `json:"progress"`
	Results    []Result  `json:"results"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]Result, len(j.Results))
	copy(results, j.Results)
	return JobSnapshot{
		ID:         j.ID,
		Collection: j.Collection,
		Status:     j.Status,
		Progress:   j.Progress,
		Results:    results,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
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

// Cleanup removes jobs idle for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		idle := now.Sub(job.UpdatedAt)
		job.mu.Unlock()
		if idle > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func newJobID() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
