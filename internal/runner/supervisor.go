// Package runner supervises dedicated-server OS processes: launching,
// re-discovering, stopping, and reporting on them.
package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"asactl/internal/domain"
	"asactl/internal/provision"
	"asactl/internal/rcon"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrNotRunning is the sentinel for operations that need a live process.
var ErrNotRunning = errors.New("server process is not running")

// StopOutcome tells the caller how a stop concluded. Stopping a server whose
// process already vanished is a no-process outcome, not an error.
type StopOutcome string

const (
	StopClean     StopOutcome = "stopped"
	StopForced    StopOutcome = "killed"
	StopNoProcess StopOutcome = "no-process"
)

const rconHost = "127.0.0.1"

type Supervisor struct {
	ServersPath string
	StopTimeout time.Duration

	store  domain.Repository
	rcon   rcon.Executor
	finder ProcessFinder
	logger zerolog.Logger

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	lastStop map[string]time.Time
	launched map[string]time.Time
}

func NewSupervisor(logger zerolog.Logger, store domain.Repository, rconClient rcon.Executor, finder ProcessFinder, serversPath string, stopTimeout time.Duration) *Supervisor {
	if stopTimeout <= 0 {
		stopTimeout = 60 * time.Second
	}
	return &Supervisor{
		ServersPath: serversPath,
		StopTimeout: stopTimeout,
		store:       store,
		rcon:        rconClient,
		finder:      finder,
		logger:      logger.With().Str("component", "supervisor").Logger(),
		locks:       make(map[string]*sync.Mutex),
		lastStop:    make(map[string]time.Time),
		launched:    make(map[string]time.Time),
	}
}

// lockFor serializes start/stop/restart per server name. Overlapping control
// calls for the same server queue up instead of racing.
func (s *Supervisor) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[name]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[name] = l
	return l
}

// Start launches the generated script and returns as soon as the process is
// spawned. The long server boot proceeds in the background and is observed
// through status polls, never awaited here.
func (s *Supervisor) Start(name string) error {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	srv, err := s.store.GetServerByName(name)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("server %q not found", name)
	}

	if info, err := s.finder.Find(name); err != nil {
		return err
	} else if info != nil {
		return fmt.Errorf("server %q is already running (pid %d)", name, info.PID)
	}

	script := provision.ScriptPath(s.ServersPath, name)
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("launch script missing for %q; provision the server first: %w", name, err)
	}

	cmd := exec.Command(script)
	cmd.Dir = provision.ServerDir(s.ServersPath, name)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", name, err)
	}

	// The child is re-discovered via the process table; no handle is kept.
	go cmd.Wait()

	s.mu.Lock()
	s.launched[name] = time.Now()
	delete(s.lastStop, name)
	s.mu.Unlock()

	if err := s.store.UpdateStatus(name, domain.StatusStarting); err != nil {
		s.logger.Warn().Err(err).Str("server", name).Msg("could not update status")
	}
	s.logger.Info().Str("server", name).Int("pid", cmd.Process.Pid).Msg("server launched")

	go s.watchStartup(name)

	return nil
}

// watchStartup flips STARTING to RUNNING once the process is observed in the
// table. Gives up quietly after a bound; status polls take over from there.
func (s *Supervisor) watchStartup(name string) {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		time.Sleep(2 * time.Second)
		info, err := s.finder.Find(name)
		if err != nil {
			continue
		}
		if info != nil {
			if err := s.store.UpdateStatus(name, domain.StatusRunning); err != nil {
				s.logger.Warn().Err(err).Str("server", name).Msg("could not update status")
			}
			return
		}
	}
}

func (s *Supervisor) IsRunning(name string) (bool, error) {
	info, err := s.finder.Find(name)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// GetStats reports uptime, resident memory and CPU for the matched process.
func (s *Supervisor) GetStats(name string) (*domain.ServerStats, error) {
	info, err := s.finder.Find(name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNotRunning
	}

	p, err := process.NewProcess(info.PID)
	if err != nil {
		return nil, fmt.Errorf("could not open process %d: %w", info.PID, err)
	}

	stats := &domain.ServerStats{
		PID:    info.PID,
		Uptime: time.Since(info.StartedAt),
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPU = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSS = mem.RSS
	}
	return stats, nil
}

// Stop prefers the graceful path: save the world over RCON, ask the server
// to exit, wait out the timeout, then kill. A missing process is an outcome,
// not an error.
func (s *Supervisor) Stop(name string) error {
	_, err := s.StopWithOutcome(name)
	return err
}

func (s *Supervisor) StopWithOutcome(name string) (StopOutcome, error) {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	srv, err := s.store.GetServerByName(name)
	if err != nil {
		return "", err
	}
	if srv == nil {
		return "", fmt.Errorf("server %q not found", name)
	}

	s.mu.Lock()
	s.lastStop[name] = time.Now()
	s.mu.Unlock()

	info, err := s.finder.Find(name)
	if err != nil {
		return "", err
	}
	if info == nil {
		if err := s.store.UpdateStatus(name, domain.StatusStopped); err != nil {
			s.logger.Warn().Err(err).Str("server", name).Msg("could not update status")
		}
		return StopNoProcess, nil
	}

	if err := s.store.UpdateStatus(name, domain.StatusStopping); err != nil {
		s.logger.Warn().Err(err).Str("server", name).Msg("could not update status")
	}

	if _, err := s.rcon.Execute(rconHost, srv.RconPort, srv.AdminPassword, rcon.CmdSaveWorld); err != nil {
		s.logger.Warn().Err(err).Str("server", name).Msg("save before stop failed; stopping anyway")
	}
	if _, err := s.rcon.Execute(rconHost, srv.RconPort, srv.AdminPassword, rcon.CmdDoExit); err != nil {
		s.logger.Warn().Err(err).Str("server", name).Msg("graceful exit command failed")
	}

	outcome := StopClean
	if !s.waitForExit(name, s.StopTimeout) {
		s.logger.Warn().Str("server", name).Dur("timeout", s.StopTimeout).Msg("graceful stop timed out; killing process")
		p, err := process.NewProcess(info.PID)
		if err == nil {
			if killErr := p.Kill(); killErr != nil {
				return "", fmt.Errorf("failed to kill %q (pid %d): %w", name, info.PID, killErr)
			}
		}
		outcome = StopForced
	}

	if err := s.store.UpdateStatus(name, domain.StatusStopped); err != nil {
		s.logger.Warn().Err(err).Str("server", name).Msg("could not update status")
	}
	s.logger.Info().Str("server", name).Str("outcome", string(outcome)).Msg("server stopped")
	return outcome, nil
}

func (s *Supervisor) waitForExit(name string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		info, err := s.finder.Find(name)
		if err == nil && info == nil {
			return true
		}
		time.Sleep(time.Second)
	}
	return false
}

func (s *Supervisor) Restart(name string) error {
	if _, err := s.StopWithOutcome(name); err != nil {
		return err
	}
	return s.Start(name)
}

// GetStatus combines process presence with a live RCON probe. When the
// process is up but RCON is unreachable (still booting, usually), the result
// degrades to process-only information instead of failing.
func (s *Supervisor) GetStatus(name string) (*domain.ServerStatus, error) {
	srv, err := s.store.GetServerByName(name)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, fmt.Errorf("server %q not found", name)
	}

	status := &domain.ServerStatus{Name: name}

	info, err := s.finder.Find(name)
	if err != nil {
		return nil, err
	}

	if info == nil {
		status.Status = s.inferStoppedStatus(name, srv.Status)
		return status, nil
	}

	status.PID = info.PID
	status.Status = domain.StatusRunning
	status.UptimeSeconds = int64(time.Since(info.StartedAt).Seconds())

	if out, err := s.rcon.Execute(rconHost, srv.RconPort, srv.AdminPassword, rcon.CmdListPlayers); err == nil {
		status.RconReachable = true
		status.Players = rcon.ParsePlayerCount(out)
	}
	if status.RconReachable {
		if out, err := s.rcon.Execute(rconHost, srv.RconPort, srv.AdminPassword, rcon.CmdGetDayTime); err == nil {
			status.Day = rcon.ParseDay(out)
		}
	}

	return status, nil
}

// inferStoppedStatus distinguishes a crash from a clean stop by checking for
// an explicit stop request preceding process disappearance. Best-effort only:
// a crash racing a stop request still reads as clean.
func (s *Supervisor) inferStoppedStatus(name, recorded string) string {
	s.mu.Lock()
	_, stopRequested := s.lastStop[name]
	s.mu.Unlock()

	if recorded == domain.StatusRunning || recorded == domain.StatusStarting {
		if !stopRequested {
			return domain.StatusCrashed
		}
	}
	return domain.StatusStopped
}

// ResetStatuses reconciles recorded statuses with observed processes after a
// manager restart.
func (s *Supervisor) ResetStatuses() error {
	servers, err := s.store.ListServers()
	if err != nil {
		return err
	}

	for i := range servers {
		srv := &servers[i]
		running, err := s.IsRunning(srv.Name)
		if err != nil {
			s.logger.Warn().Err(err).Str("server", srv.Name).Msg("could not probe process state")
			continue
		}

		want := domain.StatusStopped
		if running {
			want = domain.StatusRunning
		}
		if srv.Status != want {
			if err := s.store.UpdateStatus(srv.Name, want); err != nil {
				s.logger.Warn().Err(err).Str("server", srv.Name).Msg("could not reconcile status")
			}
		}
	}
	return nil
}
