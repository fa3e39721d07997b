package enrich

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cratedig/internal/events"
)

// JobState tracks the lifecycle of one background job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobError     JobState = "error"
)

// Job is a transient progress record for one scheduled batch of lookups.
// Jobs live in memory only and are dropped after the retention window.
type Job struct {
	ID        string
	Label     string
	State     JobState
	Completed int
	Total     int
	Message   string
	UpdatedAt time.Time
}

func (j Job) terminal() bool {
	return j.State == JobCompleted || j.State == JobError
}

// jobTracker owns the job table and publishes progress events on every
// transition.
type jobTracker struct {
	bus       *events.Bus
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*Job
}

func newJobTracker(bus *events.Bus, retention time.Duration) *jobTracker {
	if retention <= 0 {
		retention = 30 * time.Second
	}
	return &jobTracker{
		bus:       bus,
		retention: retention,
		now:       time.Now,
		jobs:      make(map[string]*Job),
	}
}

func (t *jobTracker) create(label string, total int) string {
	id := uuid.NewString()
	t.mu.Lock()
	t.jobs[id] = &Job{
		ID:        id,
		Label:     label,
		State:     JobQueued,
		Total:     total,
		UpdatedAt: t.now(),
	}
	job := *t.jobs[id]
	t.mu.Unlock()
	t.publish(job)
	return id
}

// advance marks one unit of work done. The job completes when the counter
// reaches its total.
func (t *jobTracker) advance(id, message string) {
	t.update(id, func(job *Job) {
		job.State = JobRunning
		job.Completed++
		job.Message = message
		if job.Total > 0 && job.Completed >= job.Total {
			job.State = JobCompleted
		}
	})
}

func (t *jobTracker) start(id string) {
	t.update(id, func(job *Job) {
		if job.State == JobQueued {
			job.State = JobRunning
		}
	})
}

func (t *jobTracker) fail(id, message string) {
	t.update(id, func(job *Job) {
		job.State = JobError
		job.Message = message
	})
}

func (t *jobTracker) update(id string, apply func(*Job)) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	apply(job)
	job.UpdatedAt = t.now()
	snapshot := *job
	t.mu.Unlock()
	t.publish(snapshot)
}

// snapshot returns current jobs, oldest first, expiring terminal jobs past
// the retention window along the way.
func (t *jobTracker) snapshot() []Job {
	cutoff := t.now().Add(-t.retention)
	t.mu.Lock()
	result := make([]Job, 0, len(t.jobs))
	for id, job := range t.jobs {
		if job.terminal() && job.UpdatedAt.Before(cutoff) {
			delete(t.jobs, id)
			continue
		}
		result = append(result, *job)
	}
	t.mu.Unlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result
}

func (t *jobTracker) publish(job Job) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.TopicJob, events.JobPayload{
		ID:        job.ID,
		Label:     job.Label,
		State:     string(job.State),
		Completed: job.Completed,
		Total:     job.Total,
		Message:   job.Message,
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
