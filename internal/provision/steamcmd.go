package provision

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"asactl/internal/domain"

	"github.com/rs/zerolog"
)

// ErrInstallInProgress is returned when a second binary install/update is
// attempted while one is already running. Concurrent SteamCMD runs against
// the same install directory corrupt it.
var ErrInstallInProgress = errors.New("binary install already in progress")

const defaultAppID = "2430930" // ARK: Survival Ascended dedicated server

// SteamCmd drives the external SteamCMD tool to install or update the shared
// server binaries. One instance guards the install directory for the whole
// fleet; every install path goes through the same lock no matter which
// server or cluster triggered it.
type SteamCmd struct {
	Path         string // steamcmd executable
	BinariesPath string // shared install dir
	AppID        string

	logger zerolog.Logger
	mu     sync.Mutex
}

func NewSteamCmd(logger zerolog.Logger, path, binariesPath, appID string) *SteamCmd {
	if appID == "" {
		appID = defaultAppID
	}
	return &SteamCmd{
		Path:         path,
		BinariesPath: binariesPath,
		AppID:        appID,
		logger:       logger.With().Str("component", "steamcmd").Logger(),
	}
}

// EnsureInstalled runs an install only when the server executable is absent.
func (s *SteamCmd) EnsureInstalled(sink domain.ProgressSink) error {
	if _, err := os.Stat(s.exePath()); err == nil {
		return nil
	}
	return s.InstallOrUpdate(sink)
}

// InstallOrUpdate runs `steamcmd +app_update <id> validate`. Rejected with
// ErrInstallInProgress when another install holds the lock.
func (s *SteamCmd) InstallOrUpdate(sink domain.ProgressSink) error {
	if !s.mu.TryLock() {
		return ErrInstallInProgress
	}
	defer s.mu.Unlock()

	if sink == nil {
		sink = domain.NopSink
	}

	if err := os.MkdirAll(s.BinariesPath, 0755); err != nil {
		return fmt.Errorf("could not create binaries directory: %w", err)
	}

	cmd := exec.Command(s.Path,
		"+force_install_dir", s.BinariesPath,
		"+login", "anonymous",
		"+app_update", s.AppID, "validate",
		"+quit",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start steamcmd: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Debug().Str("line", line).Msg("steamcmd output")
		sink(line, -1)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("steamcmd failed: %w", err)
	}

	if _, err := os.Stat(s.exePath()); err != nil {
		return fmt.Errorf("steamcmd finished but server executable missing at %s", s.exePath())
	}

	sink("server binaries up to date", 100)
	return nil
}

// exePath is where SteamCMD places the dedicated-server executable.
func (s *SteamCmd) exePath() string {
	return ServerExePath(s.BinariesPath)
}
