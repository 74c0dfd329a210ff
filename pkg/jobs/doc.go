/*
Package jobs provides the in-memory registry for asynchronous publish jobs.

Long publishes (multi-stage records that chain external calls) return a jobId
immediately and run in the background. This package tracks each job's status,
progress, and terminal result so callers can poll until the record's DID is
known. Jobs are deliberately ephemeral: they live in one process, expire
after a TTL once terminal, and do not survive a restart.

# Architecture

	┌────────────┐  Create/Get/List/Cancel  ┌──────────────────┐
	│  pkg/api   │ ───────────────────────▶ │     Tracker      │
	└────────────┘                          │  map[jobId]*Job  │
	                                        │   (one mutex)    │
	┌────────────┐  Update/Complete/Fail    │                  │
	│ pkg/publish│ ───────────────────────▶ │  ┌────────────┐  │
	│  workers   │ ◀─────────────────────── │  │ TTL sweep  │  │
	└────────────┘   Cancelled(jobId)?      │  │ goroutine  │  │
	                                        │  └────────────┘  │
	                                        └──────────────────┘

## Job Lifecycle

	queued ──Update──▶ processing ──Complete──▶ complete
	   │                   │       ──Fail─────▶ failed
	   └──────Cancel───────┴───────Cancel─────▶ cancelled

Terminal states (complete, failed, cancelled) are final. Any further
mutation, including a second Cancel, returns ErrConflict; the API maps
that to 409.

## Progress Semantics

Progress is an integer in [0,100] and never moves backwards. Workers may
retry a step and report a lower number; the tracker keeps the maximum, so
pollers always observe a non-decreasing sequence. Complete forces 100.

# Capacity and Expiry

The tracker holds a soft cap of jobs (default 1000):

  - At capacity, Create evicts the oldest terminal job to make room.
  - If every tracked job is active, Create fails with ErrCapacityExceeded
    (the API maps it to 503). Active jobs are never evicted.
  - A background sweep removes terminal jobs older than the TTL (default
    24h, configured by JOB_TTL_MS). The TTL runs from the moment the job
    reached its terminal state.

A caller polling an expired or pre-restart jobId gets ErrNotFound and must
republish.

# Usage

	tracker := jobs.NewTracker(0, 0) // defaults: 1000 jobs, 24h TTL
	tracker.Start()
	defer tracker.Stop()

	// API handler: accept the publish, hand back the jobId.
	job, err := tracker.Create("publish", creatorDID)
	if err != nil {
		// ErrCapacityExceeded → 503
	}

	// Worker goroutine: report progress between steps.
	go func() {
		steps := []string{"validating", "signing", "uploading", "indexing"}
		for i, step := range steps {
			if tracker.Cancelled(job.JobID) {
				return // cooperative cancel between steps
			}
			_ = tracker.Update(job.JobID, (i*100)/len(steps), step)
			// ... do the step ...
		}
		_ = tracker.Complete(job.JobID, result)
	}()

	// Poller: GET /jobs/{jobId}
	got, err := tracker.Get(job.JobID)

# Integration Points

  - pkg/publish drives job state: Update per pipeline step, Complete with
    the PublishResult, Fail with the pipeline error. Workers check
    Cancelled between steps and stop quietly when it reads true.
  - pkg/api serves GET /jobs/{jobId}, GET /jobs?limit= (scoped to the
    authenticated owner), and DELETE /jobs/{jobId} (Cancel).
  - pkg/metrics reads CountByStatus through its JobCounter interface; the
    collector exports burrow_jobs_total{status=...} gauges. Every status
    key is always present so a gauge drops to zero when its last job
    expires instead of going stale.

# Concurrency

One mutex guards the whole map. Contention is low: jobs are created at
publish rate, polled at human rate, and swept once a minute. All reads
return copies, so callers can never mutate tracked state through a
returned *Job.

# Limitations

  - No persistence. A restart forgets all jobs, including active ones;
    the publishes themselves may still have reached their destination.
  - Cancellation is cooperative. A worker blocked inside a single step
    finishes that step before noticing the flag.
  - List sorts by creation time only; there is no filtering by status or
    kind (pollers that need one job use Get).

# See Also

  - pkg/publish - Runs the pipelines that jobs track
  - pkg/api - HTTP surface for polling and cancellation
  - pkg/metrics - Exports job counts by status
*/
package jobs
