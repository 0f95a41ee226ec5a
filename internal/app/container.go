package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"asactl/internal/cluster"
	"asactl/internal/config"
	"asactl/internal/domain"
	"asactl/internal/jobs"
	"asactl/internal/provision"
	"asactl/internal/rcon"
	"asactl/internal/runner"
	"asactl/internal/shutdown"
	"asactl/internal/storage"
	"asactl/internal/ws"

	"github.com/rs/zerolog"
)

// Container is the composition root. Built once per process; components get
// their collaborators by reference from here, never from package globals.
type Container struct {
	Config       *config.Config
	Store        *storage.GormStore
	Rcon         *rcon.Client
	Supervisor   *runner.Supervisor
	Provisioner  *provision.Provisioner
	Backups      *provision.BackupManager
	Coordinator  *cluster.Coordinator
	Jobs         *jobs.Manager
	AutoShutdown *shutdown.Service
	Hub          *ws.Hub
}

// Build wires the full component graph from an app config.
func Build(logger zerolog.Logger, cfg *config.Config) (*Container, error) {
	for _, path := range []string{cfg.ServersPath, cfg.ClusterDataPath, cfg.BackupsPath, cfg.BinariesPath} {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("could not create directory %q: %w", path, err)
		}
	}

	store, err := storage.NewGormStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	policy, err := provision.LoadModPolicy(cfg.ModPolicyPath)
	if err != nil {
		return nil, err
	}
	defaults, err := provision.LoadIniDefaults(cfg.IniDefaultsPath)
	if err != nil {
		return nil, err
	}

	rconClient := rcon.NewClient(
		time.Duration(cfg.RconDialSec)*time.Second,
		time.Duration(cfg.RconReadSec)*time.Second,
	)

	finder := runner.NewGopsutilFinder("ArkAscendedServer.exe")
	supervisor := runner.NewSupervisor(logger, store, rconClient, finder, cfg.ServersPath,
		time.Duration(cfg.StopTimeoutSec)*time.Second)

	appID, err := store.GetSetting("steam_app_id")
	if err != nil {
		return nil, err
	}
	steam := provision.NewSteamCmd(logger, cfg.SteamCmdPath, cfg.BinariesPath, appID)

	provisioner := provision.NewProvisioner(logger, store, steam, policy, defaults, supervisor,
		cfg.ServersPath, cfg.ClusterDataPath, cfg.BinariesPath)
	backups := provision.NewBackupManager(logger, store, supervisor, cfg.ServersPath, cfg.BackupsPath)
	coordinator := cluster.NewCoordinator(logger, store, supervisor)

	hub := ws.NewHub(logger, 256)
	go hub.Run()

	jobManager := jobs.NewManager(logger, func(event domain.JobEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		hub.Broadcast(data)
	})

	autoShutdown := shutdown.NewService(logger, store, rconClient, func(serverName string) {
		if err := supervisor.Stop(serverName); err != nil {
			logger.Error().Err(err).Str("server", serverName).Msg("auto-shutdown stop failed")
		}
	})

	return &Container{
		Config:       cfg,
		Store:        store,
		Rcon:         rconClient,
		Supervisor:   supervisor,
		Provisioner:  provisioner,
		Backups:      backups,
		Coordinator:  coordinator,
		Jobs:         jobManager,
		AutoShutdown: autoShutdown,
		Hub:          hub,
	}, nil
}
