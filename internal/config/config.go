package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	defaultConfigName     = "config.json"
	defaultServersDir     = "servers"
	defaultClustersDir    = "clusters"
	defaultBackupsDir     = "backups"
	defaultBinariesDir    = "binaries"
	defaultDatabaseFile   = "manager.db"
	defaultModPolicyFile  = "modpolicy.yaml"
	defaultIniDefaults    = "defaults.yaml"
	defaultPort           = 23010
	defaultSteamCmd       = "steamcmd"
	defaultStopTimeout    = 60
	defaultRconDialSecs   = 5
	defaultRconReadSecs   = 10
)

type Config struct {
	ServersPath     string `json:"servers_path"`
	ClusterDataPath string `json:"cluster_data_path"`
	BackupsPath     string `json:"backups_path"`
	BinariesPath    string `json:"binaries_path"`
	DatabasePath    string `json:"database_path"`
	ModPolicyPath   string `json:"mod_policy_path"`
	IniDefaultsPath string `json:"ini_defaults_path"`
	SteamCmdPath    string `json:"steamcmd_path"`
	Port            int    `json:"port"`
	StopTimeoutSec  int    `json:"stop_timeout_seconds"`
	RconDialSec     int    `json:"rcon_dial_timeout_seconds"`
	RconReadSec     int    `json:"rcon_read_timeout_seconds"`
}

// Dir returns the manager's config directory, overridable for development.
func Dir() (string, error) {
	if dir := os.Getenv("ASACTL_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "asactl"), nil
}

func LoadConfig(configDir string) (*Config, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, defaultConfigName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return createDefaultConfig(configPath, configDir)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults(configDir)
	return &cfg, nil
}

func (cfg *Config) applyDefaults(configDir string) {
	if cfg.ServersPath == "" {
		cfg.ServersPath = filepath.Join(configDir, defaultServersDir)
	}
	if cfg.ClusterDataPath == "" {
		cfg.ClusterDataPath = filepath.Join(configDir, defaultClustersDir)
	}
	if cfg.BackupsPath == "" {
		cfg.BackupsPath = filepath.Join(configDir, defaultBackupsDir)
	}
	if cfg.BinariesPath == "" {
		cfg.BinariesPath = filepath.Join(configDir, defaultBinariesDir)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(configDir, defaultDatabaseFile)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.SteamCmdPath == "" {
		cfg.SteamCmdPath = defaultSteamCmd
	}
	if cfg.StopTimeoutSec == 0 {
		cfg.StopTimeoutSec = defaultStopTimeout
	}
	if cfg.RconDialSec == 0 {
		cfg.RconDialSec = defaultRconDialSecs
	}
	if cfg.RconReadSec == 0 {
		cfg.RconReadSec = defaultRconReadSecs
	}
	if cfg.ModPolicyPath == "" {
		cfg.ModPolicyPath = filepath.Join(configDir, defaultModPolicyFile)
	}
	if cfg.IniDefaultsPath == "" {
		cfg.IniDefaultsPath = filepath.Join(configDir, defaultIniDefaults)
	}
}

func createDefaultConfig(configPath, configDir string) (*Config, error) {
	cfg := Config{
		ServersPath:     filepath.Join(configDir, defaultServersDir),
		ClusterDataPath: filepath.Join(configDir, defaultClustersDir),
		BackupsPath:     filepath.Join(configDir, defaultBackupsDir),
		BinariesPath:    filepath.Join(configDir, defaultBinariesDir),
		DatabasePath:    filepath.Join(configDir, defaultDatabaseFile),
		ModPolicyPath:   filepath.Join(configDir, defaultModPolicyFile),
		IniDefaultsPath: filepath.Join(configDir, defaultIniDefaults),
		SteamCmdPath:    defaultSteamCmd,
		Port:            defaultPort,
		StopTimeoutSec:  defaultStopTimeout,
		RconDialSec:     defaultRconDialSecs,
		RconReadSec:     defaultRconReadSecs,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return nil, err
	}

	return &cfg, nil
}
