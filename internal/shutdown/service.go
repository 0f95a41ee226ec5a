// Package shutdown implements idle-based automatic shutdown: per-server
// timers that watch occupancy over RCON, broadcast staged warnings, save the
// world, and then hand the actual stop to the process layer.
package shutdown

import (
	"fmt"
	"sync"
	"time"

	"asactl/internal/domain"
	"asactl/internal/rcon"

	"github.com/rs/zerolog"
)

const rconHost = "127.0.0.1"

// Requester is invoked when a server's idle deadline expires. The process
// layer performs the stop; this service only decides when.
type Requester func(serverName string)

type Service struct {
	store   domain.Repository
	rcon    rcon.Executor
	request Requester
	logger  zerolog.Logger

	mu       sync.Mutex
	monitors map[string]chan struct{}
}

func NewService(logger zerolog.Logger, store domain.Repository, rconClient rcon.Executor, request Requester) *Service {
	return &Service{
		store:    store,
		rcon:     rconClient,
		request:  request,
		logger:   logger.With().Str("component", "autoshutdown").Logger(),
		monitors: make(map[string]chan struct{}),
	}
}

// Initialize persists the policy and reconciles monitoring with its Enabled
// flag.
func (s *Service) Initialize(policy *domain.AutoShutdownPolicy) error {
	if policy.EmptyTimeoutMin <= 0 {
		return fmt.Errorf("empty timeout must be positive")
	}
	if policy.PollIntervalSec <= 0 {
		policy.PollIntervalSec = 60
	}

	if err := s.store.SetPolicy(policy); err != nil {
		return err
	}

	if policy.Enabled {
		return s.StartMonitoring(policy.ServerName)
	}
	s.StopMonitoring(policy.ServerName)
	return nil
}

// StartMonitoring begins watching one server. Restarting an already-watched
// server resets its timer.
func (s *Service) StartMonitoring(serverName string) error {
	policy, err := s.store.GetPolicy(serverName)
	if err != nil {
		return err
	}
	if policy == nil || !policy.Enabled {
		return fmt.Errorf("no enabled auto-shutdown policy for %q", serverName)
	}

	srv, err := s.store.GetServerByName(serverName)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("server %q not found", serverName)
	}

	s.mu.Lock()
	if stop, ok := s.monitors[serverName]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.monitors[serverName] = stop
	s.mu.Unlock()

	go s.monitor(srv, policy, stop)

	s.logger.Info().Str("server", serverName).Int("timeoutMin", policy.EmptyTimeoutMin).Msg("auto-shutdown monitoring started")
	return nil
}

// StopMonitoring clears a server's timer. No error when none exists.
func (s *Service) StopMonitoring(serverName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.monitors[serverName]; ok {
		close(stop)
		delete(s.monitors, serverName)
		s.logger.Info().Str("server", serverName).Msg("auto-shutdown monitoring stopped")
	}
}

// releaseMonitor is a monitor's self-cleanup. It only removes the entry when
// the registered channel is still this monitor's own; a restart that raced in
// keeps its fresh monitor untouched.
func (s *Service) releaseMonitor(serverName string, stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.monitors[serverName]; ok && cur == stop {
		close(cur)
		delete(s.monitors, serverName)
	}
}

// ClearAllTimers is the global emergency stop for every monitor.
func (s *Service) ClearAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, stop := range s.monitors {
		close(stop)
		delete(s.monitors, name)
	}
	s.logger.Info().Msg("all auto-shutdown timers cleared")
}

func (s *Service) monitor(srv *domain.ServerConfig, policy *domain.AutoShutdownPolicy, stop chan struct{}) {
	interval := time.Duration(policy.PollIntervalSec) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var emptySince time.Time
	warned := make(map[int]bool)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// Re-read the persisted policy so a disable or delete from any
		// process sharing the store reaches this monitor by the next poll.
		current, err := s.store.GetPolicy(srv.Name)
		if err != nil {
			s.logger.Warn().Err(err).Str("server", srv.Name).Msg("policy re-read failed")
			continue
		}
		if current == nil || !current.Enabled {
			s.logger.Info().Str("server", srv.Name).Msg("policy disabled or removed; monitor exiting")
			s.releaseMonitor(srv.Name, stop)
			return
		}
		policy = current
		timeout := time.Duration(policy.EmptyTimeoutMin) * time.Minute

		out, err := s.rcon.Execute(rconHost, srv.RconPort, srv.AdminPassword, rcon.CmdListPlayers)
		if err != nil {
			// Unreachable usually means booting or already down; the
			// occupancy clock only runs on live answers.
			s.logger.Debug().Err(err).Str("server", srv.Name).Msg("occupancy poll failed")
			continue
		}

		if rcon.ParsePlayerCount(out) > 0 {
			emptySince = time.Time{}
			warned = make(map[int]bool)
			continue
		}

		now := time.Now()
		if emptySince.IsZero() {
			emptySince = now
		}

		deadline := emptySince.Add(timeout)
		remaining := deadline.Sub(now)

		for _, minutes := range policy.WarningMinutes {
			if warned[minutes] {
				continue
			}
			if remaining <= time.Duration(minutes)*time.Minute {
				warned[minutes] = true
				s.broadcast(srv, fmt.Sprintf("Server is empty and will shut down in %d minutes.", minutes))
			}
		}

		if remaining > 0 {
			continue
		}

		if policy.SaveBeforeShutdown {
			if err := s.SaveWorldBeforeShutdown(srv.Name, policy.SaveTimeoutSec); err != nil {
				s.logger.Warn().Err(err).Str("server", srv.Name).Msg("save did not complete; shutting down anyway")
			}
		}

		s.logger.Info().Str("server", srv.Name).Msg("idle deadline reached; requesting shutdown")
		s.releaseMonitor(srv.Name, stop)
		if s.request != nil {
			s.request(srv.Name)
		}
		return
	}
}

func (s *Service) broadcast(srv *domain.ServerConfig, message string) {
	if _, err := s.rcon.Execute(rconHost, srv.RconPort, srv.AdminPassword, rcon.CmdBroadcast(message)); err != nil {
		s.logger.Warn().Err(err).Str("server", srv.Name).Msg("warning broadcast failed")
	}
}

// SaveWorldBeforeShutdown issues SaveWorld and waits for the acknowledgement,
// bounded by timeoutSeconds. On timeout the caller proceeds to shutdown; an
// unsaved stop beats a hung one.
func (s *Service) SaveWorldBeforeShutdown(serverName string, timeoutSeconds int) error {
	srv, err := s.store.GetServerByName(serverName)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("server %q not found", serverName)
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.rcon.Execute(rconHost, srv.RconPort, srv.AdminPassword, rcon.CmdSaveWorld)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(time.Duration(timeoutSeconds) * time.Second):
		return fmt.Errorf("world save did not acknowledge within %ds", timeoutSeconds)
	}
}
