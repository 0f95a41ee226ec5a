package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"asactl/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Server struct {
	Name              string `gorm:"primaryKey"`
	Map               string
	GamePort          int
	QueryPort         int
	RconPort          int
	MaxPlayers        int
	AdminPassword     string
	ServerPassword    string
	Mods              string
	ExcludeSharedMods bool
	DisableBattlEye   bool
	DynamicConfigURL  string
	ClusterID         *string
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Cluster struct {
	Name            string `gorm:"primaryKey"`
	ClusterPassword string
	BasePort        int
	XPMultiplier    float64
	TamingSpeed     float64
	HarvestAmount   float64
	CreatedAt       time.Time
}

type AutoShutdownPolicy struct {
	ServerName         string `gorm:"primaryKey"`
	Enabled            bool
	EmptyTimeoutMin    int
	SaveBeforeShutdown bool
	SaveTimeoutSec     int
	WarningMinutes     string
	PollIntervalSec    int
}

type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	newLogger := gormlogger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		gormlogger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Error,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Server{}, &Cluster{}, &AutoShutdownPolicy{}, &Setting{})
	if err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	store := &GormStore{db: db}

	if err := store.initDefaultSettings(); err != nil {
		return nil, fmt.Errorf("error initializing settings: %w", err)
	}

	return store, nil
}

func (s *GormStore) initDefaultSettings() error {
	defaults := map[string]string{
		"query_port_base": "27015",
		"rcon_port_base":  "27020",
		"steam_app_id":    "2430930",
	}

	for key, value := range defaults {
		var setting Setting
		result := s.db.First(&setting, "key = ?", key)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				if err := s.db.Create(&Setting{Key: key, Value: value}).Error; err != nil {
					return err
				}
			} else {
				return result.Error
			}
		}
	}

	return nil
}

func toRecord(srv *domain.ServerConfig) *Server {
	return &Server{
		Name:              srv.Name,
		Map:               srv.Map,
		GamePort:          srv.GamePort,
		QueryPort:         srv.QueryPort,
		RconPort:          srv.RconPort,
		MaxPlayers:        srv.MaxPlayers,
		AdminPassword:     srv.AdminPassword,
		ServerPassword:    srv.ServerPassword,
		Mods:              strings.Join(srv.Mods, ","),
		ExcludeSharedMods: srv.ExcludeSharedMods,
		DisableBattlEye:   srv.DisableBattlEye,
		DynamicConfigURL:  srv.DynamicConfigURL,
		ClusterID:         srv.ClusterID,
		Status:            srv.Status,
		CreatedAt:         srv.CreatedAt,
		UpdatedAt:         srv.UpdatedAt,
	}
}

func toDomain(gs *Server) domain.ServerConfig {
	var mods []string
	if gs.Mods != "" {
		mods = strings.Split(gs.Mods, ",")
	}
	return domain.ServerConfig{
		Name:              gs.Name,
		Map:               gs.Map,
		GamePort:          gs.GamePort,
		QueryPort:         gs.QueryPort,
		RconPort:          gs.RconPort,
		MaxPlayers:        gs.MaxPlayers,
		AdminPassword:     gs.AdminPassword,
		ServerPassword:    gs.ServerPassword,
		Mods:              mods,
		ExcludeSharedMods: gs.ExcludeSharedMods,
		DisableBattlEye:   gs.DisableBattlEye,
		DynamicConfigURL:  gs.DynamicConfigURL,
		ClusterID:         gs.ClusterID,
		Status:            gs.Status,
		CreatedAt:         gs.CreatedAt,
		UpdatedAt:         gs.UpdatedAt,
	}
}

func (s *GormStore) SaveServer(srv *domain.ServerConfig) error {
	return s.db.Create(toRecord(srv)).Error
}

func (s *GormStore) UpdateServer(srv *domain.ServerConfig) error {
	srv.UpdatedAt = time.Now()
	return s.db.Save(toRecord(srv)).Error
}

func (s *GormStore) ListServers() ([]domain.ServerConfig, error) {
	var records []Server
	if err := s.db.Order("name").Find(&records).Error; err != nil {
		return nil, err
	}

	var servers []domain.ServerConfig
	for i := range records {
		servers = append(servers, toDomain(&records[i]))
	}
	return servers, nil
}

func (s *GormStore) ListClusterMembers(clusterName string) ([]domain.ServerConfig, error) {
	var records []Server
	if err := s.db.Where("cluster_id = ?", clusterName).Order("game_port").Find(&records).Error; err != nil {
		return nil, err
	}

	var servers []domain.ServerConfig
	for i := range records {
		servers = append(servers, toDomain(&records[i]))
	}
	return servers, nil
}

func (s *GormStore) GetServerByName(name string) (*domain.ServerConfig, error) {
	var record Server
	result := s.db.First(&record, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying server: %w", result.Error)
	}

	srv := toDomain(&record)
	return &srv, nil
}

func (s *GormStore) DeleteServer(name string) error {
	return s.db.Delete(&Server{}, "name = ?", name).Error
}

func (s *GormStore) UpdateStatus(name string, status string) error {
	return s.db.Model(&Server{}).Where("name = ?", name).Update("status", status).Error
}

// ReservePorts persists the given servers only if none of their ports collide
// with each other or with any already-persisted server. The check and the
// insert run in one transaction so concurrent creation requests cannot both
// claim the same port.
func (s *GormStore) ReservePorts(servers []*domain.ServerConfig) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing []Server
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}

		used := make(map[int]string)
		for i := range existing {
			rec := &existing[i]
			for _, p := range []int{rec.GamePort, rec.QueryPort, rec.RconPort} {
				used[p] = rec.Name
			}
		}

		for _, srv := range servers {
			var existingName Server
			result := tx.First(&existingName, "name = ?", srv.Name)
			if result.Error == nil {
				return fmt.Errorf("server %q already exists", srv.Name)
			}
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return result.Error
			}

			for _, p := range srv.Ports() {
				if owner, taken := used[p]; taken {
					return fmt.Errorf("port %d for server %q collides with server %q", p, srv.Name, owner)
				}
				used[p] = srv.Name
			}
		}

		for _, srv := range servers {
			if err := tx.Create(toRecord(srv)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) SaveCluster(c *domain.ClusterConfig) error {
	return s.db.Create(&Cluster{
		Name:            c.Name,
		ClusterPassword: c.ClusterPassword,
		BasePort:        c.BasePort,
		XPMultiplier:    c.XPMultiplier,
		TamingSpeed:     c.TamingSpeed,
		HarvestAmount:   c.HarvestAmount,
		CreatedAt:       c.CreatedAt,
	}).Error
}

func (s *GormStore) GetClusterByName(name string) (*domain.ClusterConfig, error) {
	var record Cluster
	result := s.db.First(&record, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying cluster: %w", result.Error)
	}

	return &domain.ClusterConfig{
		Name:            record.Name,
		ClusterPassword: record.ClusterPassword,
		BasePort:        record.BasePort,
		XPMultiplier:    record.XPMultiplier,
		TamingSpeed:     record.TamingSpeed,
		HarvestAmount:   record.HarvestAmount,
		CreatedAt:       record.CreatedAt,
	}, nil
}

func (s *GormStore) ListClusters() ([]domain.ClusterConfig, error) {
	var records []Cluster
	if err := s.db.Order("name").Find(&records).Error; err != nil {
		return nil, err
	}

	var clusters []domain.ClusterConfig
	for _, r := range records {
		clusters = append(clusters, domain.ClusterConfig{
			Name:            r.Name,
			ClusterPassword: r.ClusterPassword,
			BasePort:        r.BasePort,
			XPMultiplier:    r.XPMultiplier,
			TamingSpeed:     r.TamingSpeed,
			HarvestAmount:   r.HarvestAmount,
			CreatedAt:       r.CreatedAt,
		})
	}
	return clusters, nil
}

func (s *GormStore) DeleteCluster(name string) error {
	return s.db.Delete(&Cluster{}, "name = ?", name).Error
}

func (s *GormStore) GetPolicy(serverName string) (*domain.AutoShutdownPolicy, error) {
	var record AutoShutdownPolicy
	result := s.db.First(&record, "server_name = ?", serverName)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	p := policyToDomain(&record)
	return &p, nil
}

func (s *GormStore) SetPolicy(p *domain.AutoShutdownPolicy) error {
	minutes := make([]string, len(p.WarningMinutes))
	for i, m := range p.WarningMinutes {
		minutes[i] = strconv.Itoa(m)
	}
	return s.db.Save(&AutoShutdownPolicy{
		ServerName:         p.ServerName,
		Enabled:            p.Enabled,
		EmptyTimeoutMin:    p.EmptyTimeoutMin,
		SaveBeforeShutdown: p.SaveBeforeShutdown,
		SaveTimeoutSec:     p.SaveTimeoutSec,
		WarningMinutes:     strings.Join(minutes, ","),
		PollIntervalSec:    p.PollIntervalSec,
	}).Error
}

func (s *GormStore) ListPolicies() ([]domain.AutoShutdownPolicy, error) {
	var records []AutoShutdownPolicy
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}

	var policies []domain.AutoShutdownPolicy
	for i := range records {
		policies = append(policies, policyToDomain(&records[i]))
	}
	return policies, nil
}

func (s *GormStore) DeletePolicy(serverName string) error {
	return s.db.Delete(&AutoShutdownPolicy{}, "server_name = ?", serverName).Error
}

func policyToDomain(record *AutoShutdownPolicy) domain.AutoShutdownPolicy {
	var minutes []int
	if record.WarningMinutes != "" {
		for _, part := range strings.Split(record.WarningMinutes, ",") {
			if m, err := strconv.Atoi(part); err == nil {
				minutes = append(minutes, m)
			}
		}
	}
	return domain.AutoShutdownPolicy{
		ServerName:         record.ServerName,
		Enabled:            record.Enabled,
		EmptyTimeoutMin:    record.EmptyTimeoutMin,
		SaveBeforeShutdown: record.SaveBeforeShutdown,
		SaveTimeoutSec:     record.SaveTimeoutSec,
		WarningMinutes:     minutes,
		PollIntervalSec:    record.PollIntervalSec,
	}
}

func (s *GormStore) GetSetting(key string) (string, error) {
	var setting Setting
	result := s.db.First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("setting not found: %s", key)
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStore) SetSetting(key string, value string) error {
	var setting Setting
	result := s.db.First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return s.db.Create(&Setting{Key: key, Value: value}).Error
		}
		return result.Error
	}

	return s.db.Model(&setting).Update("value", value).Error
}
