package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// DefaultCapacity is the soft cap on tracked jobs. Active jobs are
	// never evicted, so the tracker refuses new work past the cap when
	// every slot is active.
	DefaultCapacity = 1000

	// DefaultTTL is how long terminal jobs stay readable for polling.
	DefaultTTL = 24 * time.Hour

	// DefaultListLimit bounds List when the caller passes no limit.
	DefaultListLimit = 20

	sweepInterval = time.Minute
)

// Tracker is the in-memory async job registry. Jobs do not survive a
// restart; callers polling a jobId from before a restart get NotFound
// and must republish.
type Tracker struct {
	mu       sync.Mutex
	jobs     map[string]*types.Job
	capacity int
	ttl      time.Duration
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// NewTracker creates a tracker. Zero capacity or ttl select the
// defaults.
func NewTracker(capacity int, ttl time.Duration) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		jobs:     make(map[string]*types.Job),
		capacity: capacity,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("jobs"),
	}
}

// Start begins the TTL sweep loop.
func (t *Tracker) Start() {
	go t.run()
}

// Stop stops the sweep loop.
func (t *Tracker) Stop() {
	close(t.stopCh)
}

func (t *Tracker) run() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := t.sweep(); removed > 0 {
				t.logger.Debug().Int("removed", removed).Msg("Expired terminal jobs")
			}
		case <-t.stopCh:
			return
		}
	}
}

// Create registers a new queued job for owner. When the tracker is at
// capacity it evicts the oldest terminal job to make room; if every
// tracked job is still active the create is refused.
func (t *Tracker) Create(kind, owner string) (*types.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.jobs) >= t.capacity {
		if !t.evictOldestTerminal() {
			return nil, fmt.Errorf("job tracker full with %d active jobs: %w",
				len(t.jobs), types.ErrCapacityExceeded)
		}
	}

	now := time.Now().UTC()
	job := &types.Job{
		JobID:     uuid.New().String(),
		Kind:      kind,
		Owner:     owner,
		Status:    types.JobQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.jobs[job.JobID] = job

	t.logger.Debug().
		Str("jobId", job.JobID).
		Str("kind", kind).
		Msg("Job created")

	return cloneJob(job), nil
}

// Update advances a job's progress and step. The first update moves a
// queued job to processing. Progress is clamped to [0,100] and never
// moves backwards.
func (t *Tracker) Update(jobID string, progress int, step string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.active(jobID)
	if err != nil {
		return err
	}

	if job.Status == types.JobQueued {
		job.Status = types.JobProcessing
	}
	if progress > 100 {
		progress = 100
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	if step != "" {
		job.CurrentStep = step
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete marks a job successful with its publish result.
func (t *Tracker) Complete(jobID string, result *types.PublishResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.active(jobID)
	if err != nil {
		return err
	}

	job.Status = types.JobComplete
	job.Progress = 100
	job.CurrentStep = ""
	job.Result = result
	job.UpdatedAt = time.Now().UTC()

	t.logger.Info().
		Str("jobId", jobID).
		Str("kind", job.Kind).
		Msg("Job complete")
	return nil
}

// Fail marks a job failed with its error.
func (t *Tracker) Fail(jobID string, jobErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.active(jobID)
	if err != nil {
		return err
	}

	job.Status = types.JobFailed
	job.CurrentStep = ""
	if jobErr != nil {
		job.Error = jobErr.Error()
	}
	job.UpdatedAt = time.Now().UTC()

	t.logger.Warn().
		Str("jobId", jobID).
		Str("kind", job.Kind).
		Str("error", job.Error).
		Msg("Job failed")
	return nil
}

// Cancel marks an active job cancelled. Workers observe the flag
// between pipeline steps via Cancelled.
func (t *Tracker) Cancel(jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.active(jobID)
	if err != nil {
		return err
	}

	job.Status = types.JobCancelled
	job.CurrentStep = ""
	job.UpdatedAt = time.Now().UTC()

	t.logger.Info().Str("jobId", jobID).Msg("Job cancelled")
	return nil
}

// Cancelled reports whether a job has been cancelled. Unknown jobs
// read as cancelled so orphaned workers stop.
func (t *Tracker) Cancelled(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return true
	}
	return job.Status == types.JobCancelled
}

// Get returns a copy of a tracked job.
func (t *Tracker) Get(jobID string) (*types.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
	}
	return cloneJob(job), nil
}

// List returns the most recently created jobs, newest first. A
// non-empty forUser restricts to that owner's jobs; limit <= 0 selects
// the default.
func (t *Tracker) List(forUser string, limit int) []*types.Job {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	t.mu.Lock()
	matched := make([]*types.Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		if forUser != "" && job.Owner != forUser {
			continue
		}
		matched = append(matched, job)
	}
	t.mu.Unlock()

	sortJobsNewestFirst(matched)

	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*types.Job, len(matched))
	for i, job := range matched {
		out[i] = cloneJob(job)
	}
	return out
}

// CountByStatus reports job counts for the metrics collector. Every
// status appears so gauges reset when their last job expires.
func (t *Tracker) CountByStatus() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := map[string]int{
		string(types.JobQueued):     0,
		string(types.JobProcessing): 0,
		string(types.JobComplete):   0,
		string(types.JobFailed):     0,
		string(types.JobCancelled):  0,
	}
	for _, job := range t.jobs {
		counts[string(job.Status)]++
	}
	return counts
}

// active returns the tracked job or an error if it is missing or
// already terminal.
func (t *Tracker) active(jobID string) (*types.Job, error) {
	job, ok := t.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job %s already %s: %w", jobID, job.Status, types.ErrConflict)
	}
	return job, nil
}

// sweep removes terminal jobs older than the TTL and returns how many
// it removed. The TTL is measured from the job's last update, which
// for a terminal job is the moment it finished.
func (t *Tracker) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().UTC().Add(-t.ttl)
	removed := 0
	for id, job := range t.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// evictOldestTerminal removes the oldest terminal job. Callers hold
// the mutex.
func (t *Tracker) evictOldestTerminal() bool {
	var oldestID string
	var oldestAt time.Time
	for id, job := range t.jobs {
		if !job.Status.Terminal() {
			continue
		}
		if oldestID == "" || job.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = job.CreatedAt
		}
	}
	if oldestID == "" {
		return false
	}
	delete(t.jobs, oldestID)
	t.logger.Debug().Str("jobId", oldestID).Msg("Evicted terminal job at capacity")
	return true
}

func sortJobsNewestFirst(jobs []*types.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].JobID < jobs[j].JobID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

func cloneJob(job *types.Job) *types.Job {
	out := *job
	if job.Result != nil {
		result := *job.Result
		if job.Result.Destinations != nil {
			result.Destinations = append([]types.DestinationResult(nil), job.Result.Destinations...)
		}
		out.Result = &result
	}
	return &out
}
