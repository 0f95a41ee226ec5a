package shutdown

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"asactl/internal/domain"
	"asactl/internal/rcon"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo backs the service with in-memory records. Unused repository
// methods panic via the embedded nil interface.
type fakeRepo struct {
	domain.Repository

	mu       sync.Mutex
	servers  map[string]*domain.ServerConfig
	policies map[string]*domain.AutoShutdownPolicy
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		servers:  make(map[string]*domain.ServerConfig),
		policies: make(map[string]*domain.AutoShutdownPolicy),
	}
}

func (r *fakeRepo) GetServerByName(name string) (*domain.ServerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servers[name], nil
}

func (r *fakeRepo) GetPolicy(serverName string) (*domain.AutoShutdownPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policies[serverName], nil
}

func (r *fakeRepo) SetPolicy(p *domain.AutoShutdownPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dup := *p
	r.policies[p.ServerName] = &dup
	return nil
}

func (r *fakeRepo) DeletePolicy(serverName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.policies, serverName)
	return nil
}

// fakeExec scripts RCON answers and records every command it sees.
type fakeExec struct {
	mu       sync.Mutex
	players  string
	commands []string
	saveHang chan struct{}
}

func (e *fakeExec) Execute(host string, port int, password string, command string) (string, error) {
	e.mu.Lock()
	e.commands = append(e.commands, command)
	players := e.players
	hang := e.saveHang
	e.mu.Unlock()

	if command == rcon.CmdSaveWorld && hang != nil {
		<-hang
	}
	if command == rcon.CmdListPlayers {
		return players, nil
	}
	return "ok", nil
}

func (e *fakeExec) sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

func testSetup(t *testing.T) (*fakeRepo, *fakeExec) {
	t.Helper()
	repo := newFakeRepo()
	repo.servers["island"] = &domain.ServerConfig{
		Name:          "island",
		RconPort:      27777,
		AdminPassword: "hunter2",
	}
	return repo, &fakeExec{players: "No Players Connected"}
}

func TestInitializeValidatesTimeout(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	err := svc.Initialize(&domain.AutoShutdownPolicy{ServerName: "island", EmptyTimeoutMin: 0})
	assert.Error(t, err)
}

func TestInitializeDefaultsPollInterval(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	policy := &domain.AutoShutdownPolicy{ServerName: "island", EmptyTimeoutMin: 30}
	require.NoError(t, svc.Initialize(policy))
	assert.Equal(t, 60, policy.PollIntervalSec)

	stored, err := repo.GetPolicy("island")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 60, stored.PollIntervalSec)
}

func TestStartMonitoringRequiresEnabledPolicy(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	assert.Error(t, svc.StartMonitoring("island"))

	require.NoError(t, repo.SetPolicy(&domain.AutoShutdownPolicy{
		ServerName: "island", Enabled: false, EmptyTimeoutMin: 30, PollIntervalSec: 60,
	}))
	assert.Error(t, svc.StartMonitoring("island"))
}

func TestStartMonitoringUnknownServer(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	require.NoError(t, repo.SetPolicy(&domain.AutoShutdownPolicy{
		ServerName: "ghost", Enabled: true, EmptyTimeoutMin: 30, PollIntervalSec: 60,
	}))
	assert.Error(t, svc.StartMonitoring("ghost"))
}

func TestStopMonitoringIdempotent(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	require.NoError(t, svc.Initialize(&domain.AutoShutdownPolicy{
		ServerName: "island", Enabled: true, EmptyTimeoutMin: 30, PollIntervalSec: 60,
	}))

	svc.StopMonitoring("island")
	svc.StopMonitoring("island")
	svc.StopMonitoring("never-watched")
}

func TestWarningBroadcastOnceWhenIdle(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	// One-minute timeout with a one-minute warning offset: the warning is due
	// on the very first empty poll, and must not repeat on later polls.
	require.NoError(t, svc.Initialize(&domain.AutoShutdownPolicy{
		ServerName:      "island",
		Enabled:         true,
		EmptyTimeoutMin: 1,
		WarningMinutes:  []int{1},
		PollIntervalSec: 1,
	}))
	defer svc.ClearAllTimers()

	require.Eventually(t, func() bool {
		return countPrefix(exec.sent(), "ServerChat ") == 1
	}, 5*time.Second, 100*time.Millisecond)

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 1, countPrefix(exec.sent(), "ServerChat "))
}

func TestOccupiedServerResetsClock(t *testing.T) {
	repo, exec := testSetup(t)
	exec.players = "1. Alice, 0002aabbccdd\n"
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	require.NoError(t, svc.Initialize(&domain.AutoShutdownPolicy{
		ServerName:      "island",
		Enabled:         true,
		EmptyTimeoutMin: 1,
		WarningMinutes:  []int{1},
		PollIntervalSec: 1,
	}))
	defer svc.ClearAllTimers()

	time.Sleep(2500 * time.Millisecond)
	assert.Zero(t, countPrefix(exec.sent(), "ServerChat "))
}

func TestDisableInSharedStoreStopsMonitor(t *testing.T) {
	repo, exec := testSetup(t)
	var requested atomic.Int32
	daemon := NewService(zerolog.Nop(), repo, exec, func(string) { requested.Add(1) })

	require.NoError(t, daemon.Initialize(&domain.AutoShutdownPolicy{
		ServerName: "island", Enabled: true, EmptyTimeoutMin: 1, PollIntervalSec: 1,
	}))
	defer daemon.ClearAllTimers()

	// A second process flips the shared policy off; it has no access to the
	// daemon's in-memory monitors, only to the store.
	cli := NewService(zerolog.Nop(), repo, exec, nil)
	require.NoError(t, cli.Initialize(&domain.AutoShutdownPolicy{
		ServerName: "island", Enabled: false, EmptyTimeoutMin: 1, PollIntervalSec: 1,
	}))

	require.Eventually(t, func() bool {
		daemon.mu.Lock()
		defer daemon.mu.Unlock()
		return len(daemon.monitors) == 0
	}, 5*time.Second, 100*time.Millisecond)

	polls := countPrefix(exec.sent(), rcon.CmdListPlayers)
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, polls, countPrefix(exec.sent(), rcon.CmdListPlayers))
	assert.Zero(t, requested.Load())
}

func TestRemovedPolicyStopsMonitor(t *testing.T) {
	repo, exec := testSetup(t)
	var requested atomic.Int32
	svc := NewService(zerolog.Nop(), repo, exec, func(string) { requested.Add(1) })

	require.NoError(t, svc.Initialize(&domain.AutoShutdownPolicy{
		ServerName: "island", Enabled: true, EmptyTimeoutMin: 1, PollIntervalSec: 1,
	}))
	defer svc.ClearAllTimers()

	require.NoError(t, repo.DeletePolicy("island"))

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.monitors) == 0
	}, 5*time.Second, 100*time.Millisecond)
	assert.Zero(t, requested.Load())
}

func TestReleaseMonitorIgnoresForeignChannel(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	fresh := make(chan struct{})
	svc.mu.Lock()
	svc.monitors["island"] = fresh
	svc.mu.Unlock()

	// An exiting monitor still holding a stale channel must not tear down
	// the replacement that registered after it.
	stale := make(chan struct{})
	svc.releaseMonitor("island", stale)

	svc.mu.Lock()
	cur, ok := svc.monitors["island"]
	svc.mu.Unlock()
	require.True(t, ok)
	assert.True(t, cur == fresh)
	select {
	case <-fresh:
		t.Fatal("fresh monitor channel was closed")
	default:
	}

	svc.releaseMonitor("island", fresh)
	svc.mu.Lock()
	_, ok = svc.monitors["island"]
	svc.mu.Unlock()
	assert.False(t, ok)
}

func TestSaveWorldBeforeShutdown(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	require.NoError(t, svc.SaveWorldBeforeShutdown("island", 5))
	assert.Contains(t, exec.sent(), rcon.CmdSaveWorld)
}

func TestSaveWorldTimeoutReported(t *testing.T) {
	repo, exec := testSetup(t)
	exec.saveHang = make(chan struct{})
	defer close(exec.saveHang)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	err := svc.SaveWorldBeforeShutdown("island", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not acknowledge")
}

func TestSaveWorldUnknownServer(t *testing.T) {
	repo, exec := testSetup(t)
	svc := NewService(zerolog.Nop(), repo, exec, nil)

	assert.Error(t, svc.SaveWorldBeforeShutdown("ghost", 1))
}

func countPrefix(commands []string, prefix string) int {
	n := 0
	for _, c := range commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
