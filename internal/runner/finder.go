package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo describes an observed server process. The supervisor holds no
// durable child handle across its own restarts, so processes are re-identified
// by scanning the OS process table.
type ProcessInfo struct {
	PID       int32
	StartedAt time.Time
}

// ProcessFinder locates the OS process backing a named server. The matching
// strategy is pluggable so the heuristic can be hardened or replaced per
// platform without touching the supervisor's control logic.
type ProcessFinder interface {
	// Find returns nil (not an error) when no matching process exists.
	Find(serverName string) (*ProcessInfo, error)
}

// GopsutilFinder matches processes by executable name, then disambiguates by
// looking for the server's SessionName token in the command line. All fleet
// members share one executable, so the command line is the only distinguishing
// signal. This is inherently heuristic: a process whose arguments happen to
// contain the token would be misattributed.
type GopsutilFinder struct {
	// ExeName is the dedicated-server executable base name.
	ExeName string
}

func NewGopsutilFinder(exeName string) *GopsutilFinder {
	return &GopsutilFinder{ExeName: exeName}
}

func (f *GopsutilFinder) Find(serverName string) (*ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("could not list processes: %w", err)
	}

	token := "SessionName=" + serverName

	var matches []*process.Process
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if !strings.EqualFold(name, f.ExeName) && !strings.EqualFold(strings.TrimSuffix(name, ".exe"), strings.TrimSuffix(f.ExeName, ".exe")) {
			continue
		}

		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, token) {
			matches = append(matches, p)
		}
	}

	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("ambiguous process match: %d processes claim server %q", len(matches), serverName)
	}

	p := matches[0]
	createMs, err := p.CreateTime()
	if err != nil {
		return nil, fmt.Errorf("could not read process start time: %w", err)
	}

	return &ProcessInfo{
		PID:       p.Pid,
		StartedAt: time.UnixMilli(createMs),
	}, nil
}
