package domain

import "time"

// Server statuses as reported by the supervisor. CRASHED is best-effort:
// the supervisor can only infer a crash from process disappearance without
// a preceding stop request.
const (
	StatusStopped  = "STOPPED"
	StatusStarting = "STARTING"
	StatusRunning  = "RUNNING"
	StatusStopping = "STOPPING"
	StatusCrashed  = "CRASHED"
)

// ServerConfig is the persisted definition of one ARK: Survival Ascended
// dedicated server. Name is the fleet-wide unique key. AdminPassword doubles
// as the RCON password; the two are never allowed to diverge.
type ServerConfig struct {
	Name              string    `json:"name"`
	Map               string    `json:"map"`
	GamePort          int       `json:"gamePort"`
	QueryPort         int       `json:"queryPort"`
	RconPort          int       `json:"rconPort"`
	MaxPlayers        int       `json:"maxPlayers"`
	AdminPassword     string    `json:"adminPassword"`
	ServerPassword    string    `json:"serverPassword,omitempty"`
	Mods              []string  `json:"mods"`
	ExcludeSharedMods bool      `json:"excludeSharedMods"`
	DisableBattlEye   bool      `json:"disableBattlEye"`
	DynamicConfigURL  string    `json:"dynamicConfigUrl,omitempty"`
	ClusterID         *string   `json:"clusterId,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Ports returns the three ports a server occupies. Triples must be pairwise
// disjoint across the fleet.
func (s *ServerConfig) Ports() [3]int {
	return [3]int{s.GamePort, s.QueryPort, s.RconPort}
}

// ClusterConfig groups 1-10 servers that share save-data cross-linking.
// Member ports are derived sequentially from BasePort at creation time.
type ClusterConfig struct {
	Name            string    `json:"name"`
	ClusterPassword string    `json:"clusterPassword,omitempty"`
	BasePort        int       `json:"basePort"`
	XPMultiplier    float64   `json:"xpMultiplier"`
	TamingSpeed     float64   `json:"tamingSpeed"`
	HarvestAmount   float64   `json:"harvestAmount"`
	CreatedAt       time.Time `json:"created_at"`
}

// AutoShutdownPolicy configures idle shutdown for one server.
type AutoShutdownPolicy struct {
	ServerName         string `json:"serverName"`
	Enabled            bool   `json:"enabled"`
	EmptyTimeoutMin    int    `json:"emptyTimeoutMinutes"`
	SaveBeforeShutdown bool   `json:"saveBeforeShutdown"`
	SaveTimeoutSec     int    `json:"saveTimeoutSeconds"`
	WarningMinutes     []int  `json:"warningMinutes"`
	PollIntervalSec    int    `json:"pollIntervalSeconds"`
}

// ServerStats is a live resource snapshot of a running server process.
type ServerStats struct {
	PID    int32         `json:"pid"`
	Uptime time.Duration `json:"uptime"`
	CPU    float64       `json:"cpu"`
	RSS    uint64        `json:"rss"`
}

// ServerStatus combines process presence with a live RCON probe. Players and
// Day are only meaningful when RconReachable is true.
type ServerStatus struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	PID           int32  `json:"pid,omitempty"`
	RconReachable bool   `json:"rconReachable"`
	Players       int    `json:"players"`
	Day           int    `json:"day"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// MemberResult is the per-member outcome of a cluster-wide operation.
// Cluster operations never collapse to a single pass/fail.
type MemberResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ProgressSink receives progress from a long-running operation. It is passed
// explicitly through every provisioning call so concurrent jobs never share
// callback state. percent is 0-100; callers may pass -1 for "unchanged".
type ProgressSink func(message string, percent float64)

// NopSink discards progress. Useful for synchronous callers and tests.
func NopSink(string, float64) {}
