package jobs

import (
	"errors"
	"sync"
	"testing"

	"asactl/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.JobEvent
}

func (r *eventRecorder) record(event domain.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []domain.JobEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobEvent(nil), r.events...)
}

func newTestManager(rec *eventRecorder) *Manager {
	var publish Publisher
	if rec != nil {
		publish = rec.record
	}
	return NewManager(zerolog.Nop(), publish)
}

func TestCreateJobPending(t *testing.T) {
	m := newTestManager(nil)

	job := m.CreateJob("cluster-create", map[string]string{"cluster": "main"})
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, "main", job.Metadata["cluster"])
	assert.False(t, job.Terminal())
}

func TestForwardOnlyTransitions(t *testing.T) {
	m := newTestManager(nil)
	job := m.CreateJob("t", nil)

	// pending cannot jump straight to completed.
	require.Error(t, m.SetStatus(job.ID, domain.JobCompleted, nil, ""))

	require.NoError(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))
	// no going back.
	require.Error(t, m.SetStatus(job.ID, domain.JobPending, nil, ""))

	require.NoError(t, m.SetStatus(job.ID, domain.JobCompleted, "done", ""))

	// terminal states have no exits.
	require.Error(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))
	require.Error(t, m.SetStatus(job.ID, domain.JobFailed, nil, "boom"))

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, "done", got.Result)
}

func TestPendingCanFail(t *testing.T) {
	m := newTestManager(nil)
	job := m.CreateJob("t", nil)

	require.NoError(t, m.SetStatus(job.ID, domain.JobFailed, nil, "rejected"))

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "rejected", got.Error)
}

func TestProgressOrderedAndRejectedWhenTerminal(t *testing.T) {
	m := newTestManager(nil)
	job := m.CreateJob("t", nil)
	require.NoError(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))

	require.NoError(t, m.AddProgress(job.ID, "step one", 10))
	require.NoError(t, m.AddProgress(job.ID, "step two", 20))
	require.NoError(t, m.AddProgress(job.ID, "step three", 30))

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"step one", "step two", "step three"}, got.Progress)

	require.NoError(t, m.SetStatus(job.ID, domain.JobCompleted, nil, ""))
	assert.Error(t, m.AddProgress(job.ID, "too late", 90))
}

func TestPublisherReceivesEvents(t *testing.T) {
	rec := &eventRecorder{}
	m := newTestManager(rec)
	job := m.CreateJob("t", nil)

	require.NoError(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))
	require.NoError(t, m.AddProgress(job.ID, "working", 40))
	require.NoError(t, m.SetStatus(job.ID, domain.JobCompleted, 42, ""))

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, domain.JobRunning, events[0].Status)
	assert.Equal(t, "working", events[1].Message)
	assert.Equal(t, float64(40), events[1].Progress)
	assert.Equal(t, domain.JobCompleted, events[2].Status)
	assert.Equal(t, float64(100), events[2].Progress)
}

func TestProgressPercentFlowsToEvents(t *testing.T) {
	rec := &eventRecorder{}
	m := newTestManager(rec)
	job := m.CreateJob("t", nil)
	require.NoError(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))

	require.NoError(t, m.AddProgress(job.ID, "downloading", 25))
	require.NoError(t, m.AddProgress(job.ID, "validating file set", -1))
	require.NoError(t, m.AddProgress(job.ID, "installing", 80))

	events := rec.all()
	require.Len(t, events, 4)
	assert.Equal(t, float64(25), events[1].Progress)
	// indeterminate updates keep the last reported figure.
	assert.Equal(t, float64(25), events[2].Progress)
	assert.Equal(t, float64(80), events[3].Progress)

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(80), got.Percent)
}

func TestConcurrentProgressAndCompletion(t *testing.T) {
	rec := &eventRecorder{}
	m := newTestManager(rec)
	job := m.CreateJob("t", nil)
	require.NoError(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = m.AddProgress(job.ID, "tick", float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		_ = m.SetStatus(job.ID, domain.JobCompleted, nil, "")
	}()
	wg.Wait()

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)

	terminal := 0
	for _, event := range rec.all() {
		if event.Status == domain.JobCompleted {
			terminal++
			assert.Equal(t, float64(100), event.Progress)
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestPanickingPublisherDoesNotFailJob(t *testing.T) {
	m := NewManager(zerolog.Nop(), func(domain.JobEvent) {
		panic("observer bug")
	})
	job := m.CreateJob("t", nil)

	require.NoError(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))
	require.NoError(t, m.AddProgress(job.ID, "still fine", -1))
	require.NoError(t, m.SetStatus(job.ID, domain.JobCompleted, nil, ""))

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
}

func TestRunHelper(t *testing.T) {
	m := newTestManager(nil)

	ok := m.CreateJob("ok", nil)
	m.Run(ok.ID, func(sink domain.ProgressSink) (any, error) {
		sink("halfway", 50)
		return "result", nil
	})

	got, err := m.GetJob(ok.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, "result", got.Result)
	assert.Equal(t, []string{"halfway"}, got.Progress)

	bad := m.CreateJob("bad", nil)
	m.Run(bad.ID, func(sink domain.ProgressSink) (any, error) {
		return nil, errors.New("exploded")
	})

	got, err = m.GetJob(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Equal(t, "exploded", got.Error)
}

func TestListJobsInsertionOrder(t *testing.T) {
	m := newTestManager(nil)
	first := m.CreateJob("first", nil)
	second := m.CreateJob("second", nil)

	list := m.ListJobs()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestSnapshotIsolation(t *testing.T) {
	m := newTestManager(nil)
	job := m.CreateJob("t", nil)
	require.NoError(t, m.SetStatus(job.ID, domain.JobRunning, nil, ""))
	require.NoError(t, m.AddProgress(job.ID, "one", 10))

	snap, err := m.GetJob(job.ID)
	require.NoError(t, err)
	snap.Progress[0] = "tampered"

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, got.Progress)
}
