// Package jobs tracks long-running asynchronous operations as in-memory Job
// records with streamed progress. Job history intentionally does not survive
// a manager restart.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"asactl/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher receives every progress append and terminal transition. A failing
// or panicking publisher never fails the job it observes.
type Publisher func(event domain.JobEvent)

type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.Job
	order   []string
	publish Publisher
	logger  zerolog.Logger
}

func NewManager(logger zerolog.Logger, publish Publisher) *Manager {
	return &Manager{
		jobs:    make(map[string]*domain.Job),
		publish: publish,
		logger:  logger.With().Str("component", "jobs").Logger(),
	}
}

func (m *Manager) CreateJob(jobType string, metadata map[string]string) *domain.Job {
	now := time.Now()
	job := &domain.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    domain.JobPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.mu.Unlock()

	return m.snapshot(job.ID)
}

// allowed transitions; everything else is rejected. Terminal states have no
// exits.
var transitions = map[string][]string{
	domain.JobPending: {domain.JobRunning, domain.JobFailed},
	domain.JobRunning: {domain.JobCompleted, domain.JobFailed},
}

func canTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SetStatus moves a job forward through its state machine. Result and error
// are only recorded alongside a terminal transition.
func (m *Manager) SetStatus(id, status string, result any, errMsg string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job %q not found", id)
	}

	if !canTransition(job.Status, status) {
		from := job.Status
		m.mu.Unlock()
		return fmt.Errorf("invalid job transition %s -> %s", from, status)
	}

	job.Status = status
	job.UpdatedAt = time.Now()
	terminal := job.Terminal()
	if terminal {
		job.Result = result
		job.Error = errMsg
		job.Percent = 100
	}
	event := m.eventLocked(job, "")
	m.mu.Unlock()

	if terminal || status == domain.JobRunning {
		m.emit(event)
	}
	return nil
}

// AddProgress appends an ordered progress message and publishes it. A
// negative percent means "no new figure"; the job keeps its last one.
func (m *Manager) AddProgress(id, message string, percent float64) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job %q not found", id)
	}
	if job.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("job %q already %s", id, job.Status)
	}

	job.Progress = append(job.Progress, message)
	if percent >= 0 {
		job.Percent = percent
	}
	job.UpdatedAt = time.Now()
	event := m.eventLocked(job, message)
	m.mu.Unlock()

	m.emit(event)
	return nil
}

func (m *Manager) GetJob(id string) (*domain.Job, error) {
	job := m.snapshot(id)
	if job == nil {
		return nil, fmt.Errorf("job %q not found", id)
	}
	return job, nil
}

func (m *Manager) ListJobs() []domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *copyJob(m.jobs[id]))
	}
	return out
}

// Run executes fn as the body of the job: pending -> running, then a terminal
// transition from fn's outcome. The sink passed to fn appends job progress.
// Intended to be called on its own goroutine; the caller keeps the job id.
func (m *Manager) Run(id string, fn func(sink domain.ProgressSink) (any, error)) {
	if err := m.SetStatus(id, domain.JobRunning, nil, ""); err != nil {
		m.logger.Error().Err(err).Str("job", id).Msg("could not start job")
		return
	}

	sink := func(message string, percent float64) {
		if message == "" {
			return
		}
		if err := m.AddProgress(id, message, percent); err != nil {
			m.logger.Warn().Err(err).Str("job", id).Msg("could not record progress")
		}
	}

	result, err := fn(sink)
	if err != nil {
		m.logger.Error().Err(err).Str("job", id).Msg("job failed")
		_ = m.SetStatus(id, domain.JobFailed, result, err.Error())
		return
	}
	_ = m.SetStatus(id, domain.JobCompleted, result, "")
}

func (m *Manager) snapshot(id string) *domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	return copyJob(job)
}

func copyJob(job *domain.Job) *domain.Job {
	dup := *job
	dup.Progress = append([]string(nil), job.Progress...)
	return &dup
}

func (m *Manager) eventLocked(job *domain.Job, message string) domain.JobEvent {
	return domain.JobEvent{
		JobID:    job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Percent,
		Message:  message,
		Result:   job.Result,
		Error:    job.Error,
	}
}

// emit invokes the publisher outside the job lock and absorbs panics; an
// observer must never take a job down with it.
func (m *Manager) emit(event domain.JobEvent) {
	if m.publish == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn().Interface("panic", r).Str("job", event.JobID).Msg("job publisher panicked")
		}
	}()
	m.publish(event)
}
