// Package provision generates everything a server process needs on disk
// before it can run: directory trees, INI config files, launch scripts, and
// the shared game binaries.
package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"asactl/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Cluster member ports are derived from the cluster base port: member i gets
// game = base+i, query = base+queryPortOffset+i, rcon = base+rconPortOffset+i.
// The offsets keep the three ranges disjoint for clusters of up to 10 members.
const (
	queryPortOffset = 18000
	rconPortOffset  = 20000

	maxClusterMembers = 10
)

// Stopper is the slice of the process supervisor the provisioner needs:
// delete must never remove files under a live process.
type Stopper interface {
	IsRunning(name string) (bool, error)
	Stop(name string) error
}

type Provisioner struct {
	ServersPath     string
	ClusterDataPath string
	BinariesPath    string

	Store    domain.Repository
	Steam    *SteamCmd
	Policy   *ModPolicy
	Defaults *IniDefaults

	stopper  Stopper
	logger   zerolog.Logger
	validate *validator.Validate
}

func NewProvisioner(logger zerolog.Logger, store domain.Repository, steam *SteamCmd, policy *ModPolicy, defaults *IniDefaults, stopper Stopper, serversPath, clusterDataPath, binariesPath string) *Provisioner {
	if policy == nil {
		policy = &ModPolicy{}
	}
	if defaults == nil {
		defaults = &IniDefaults{}
	}
	return &Provisioner{
		ServersPath:     serversPath,
		ClusterDataPath: clusterDataPath,
		BinariesPath:    binariesPath,
		Store:           store,
		Steam:           steam,
		Policy:          policy,
		Defaults:        defaults,
		stopper:         stopper,
		logger:          logger.With().Str("component", "provisioner").Logger(),
		validate:        validator.New(),
	}
}

type CreateServerInput struct {
	Name              string   `validate:"required,max=50"`
	Map               string   `validate:"required"`
	GamePort          int      `validate:"required,min=1024,max=45535"`
	QueryPort         int      `validate:"omitempty,min=1024,max=65535"`
	RconPort          int      `validate:"omitempty,min=1024,max=65535"`
	MaxPlayers        int      `validate:"omitempty,min=1,max=200"`
	AdminPassword     string   `validate:"required,min=4"`
	ServerPassword    string   `validate:"omitempty"`
	Mods              []string `validate:"dive,numeric"`
	ExcludeSharedMods bool
	DisableBattlEye   bool
	DynamicConfigURL  string  `validate:"omitempty,url"`
	ClusterID         *string `validate:"-"`
}

func checkName(name string) error {
	if strings.ContainsAny(name, "\\/:*?\"<>| ") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid server name %q: contains forbidden characters", name)
	}
	return nil
}

func (in *CreateServerInput) toConfig() *domain.ServerConfig {
	now := time.Now()
	srv := &domain.ServerConfig{
		Name:              in.Name,
		Map:               in.Map,
		GamePort:          in.GamePort,
		QueryPort:         in.QueryPort,
		RconPort:          in.RconPort,
		MaxPlayers:        in.MaxPlayers,
		AdminPassword:     in.AdminPassword,
		ServerPassword:    in.ServerPassword,
		Mods:              in.Mods,
		ExcludeSharedMods: in.ExcludeSharedMods,
		DisableBattlEye:   in.DisableBattlEye,
		DynamicConfigURL:  in.DynamicConfigURL,
		ClusterID:         in.ClusterID,
		Status:            domain.StatusStopped,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if srv.QueryPort == 0 {
		srv.QueryPort = srv.GamePort + queryPortOffset
	}
	if srv.RconPort == 0 {
		srv.RconPort = srv.GamePort + rconPortOffset
	}
	if srv.MaxPlayers == 0 {
		srv.MaxPlayers = 70
	}
	return srv
}

// CreateServer validates, reserves ports transactionally, persists the
// record, and materializes the on-disk tree. A filesystem failure rolls the
// record back.
func (p *Provisioner) CreateServer(input CreateServerInput, sink domain.ProgressSink) (*domain.ServerConfig, error) {
	if sink == nil {
		sink = domain.NopSink
	}
	if err := p.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid server input: %w", err)
	}
	if err := checkName(input.Name); err != nil {
		return nil, err
	}

	srv := input.toConfig()

	var cluster *domain.ClusterConfig
	if srv.ClusterID != nil {
		var err error
		cluster, err = p.Store.GetClusterByName(*srv.ClusterID)
		if err != nil {
			return nil, err
		}
		if cluster == nil {
			return nil, fmt.Errorf("cluster %q not found", *srv.ClusterID)
		}
	}

	sink(fmt.Sprintf("reserving ports for %s", srv.Name), 10)
	if err := p.Store.ReservePorts([]*domain.ServerConfig{srv}); err != nil {
		return nil, err
	}

	sink(fmt.Sprintf("writing server files for %s", srv.Name), 50)
	if err := p.materialize(srv, cluster); err != nil {
		_ = os.RemoveAll(ServerDir(p.ServersPath, srv.Name))
		_ = p.Store.DeleteServer(srv.Name)
		return nil, err
	}

	sink(fmt.Sprintf("server %s created", srv.Name), 100)
	p.logger.Info().Str("server", srv.Name).Int("gamePort", srv.GamePort).Msg("server created")
	return srv, nil
}

type CreateClusterInput struct {
	Name            string   `validate:"required,max=50"`
	ClusterPassword string   `validate:"omitempty"`
	BasePort        int      `validate:"required,min=1024,max=45535"`
	AdminPassword   string   `validate:"required,min=4"`
	MaxPlayers      int      `validate:"omitempty,min=1,max=200"`
	Maps            []string `validate:"required,min=1,max=10,dive,required"`
	Mods            []string `validate:"dive,numeric"`
	XPMultiplier    float64  `validate:"omitempty,gt=0"`
	TamingSpeed     float64  `validate:"omitempty,gt=0"`
	HarvestAmount   float64  `validate:"omitempty,gt=0"`
	DisableBattlEye bool
}

// memberName derives a stable member name from the cluster name and map.
func memberName(clusterName, mapName string, index int) string {
	short := strings.ToLower(strings.TrimSuffix(mapName, "_WP"))
	return fmt.Sprintf("%s-%02d-%s", clusterName, index+1, short)
}

// CreateCluster creates 1-10 member servers with sequentially derived ports.
// Port reservation is all-or-nothing; file materialization reports a
// per-member outcome and never collapses into a single flag.
func (p *Provisioner) CreateCluster(input CreateClusterInput, sink domain.ProgressSink) ([]domain.MemberResult, error) {
	if sink == nil {
		sink = domain.NopSink
	}
	if err := p.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid cluster input: %w", err)
	}
	if err := checkName(input.Name); err != nil {
		return nil, err
	}
	if len(input.Maps) > maxClusterMembers {
		return nil, fmt.Errorf("cluster size %d exceeds maximum of %d", len(input.Maps), maxClusterMembers)
	}

	existing, err := p.Store.GetClusterByName(input.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("cluster %q already exists", input.Name)
	}

	cluster := &domain.ClusterConfig{
		Name:            input.Name,
		ClusterPassword: input.ClusterPassword,
		BasePort:        input.BasePort,
		XPMultiplier:    input.XPMultiplier,
		TamingSpeed:     input.TamingSpeed,
		HarvestAmount:   input.HarvestAmount,
		CreatedAt:       time.Now(),
	}

	clusterID := cluster.Name
	members := make([]*domain.ServerConfig, len(input.Maps))
	for i, mapName := range input.Maps {
		in := CreateServerInput{
			Name:            memberName(cluster.Name, mapName, i),
			Map:             mapName,
			GamePort:        input.BasePort + i,
			QueryPort:       input.BasePort + queryPortOffset + i,
			RconPort:        input.BasePort + rconPortOffset + i,
			MaxPlayers:      input.MaxPlayers,
			AdminPassword:   input.AdminPassword,
			ServerPassword:  input.ClusterPassword,
			Mods:            input.Mods,
			DisableBattlEye: input.DisableBattlEye,
			ClusterID:       &clusterID,
		}
		members[i] = in.toConfig()
	}

	sink(fmt.Sprintf("reserving ports for %d members", len(members)), 10)
	if err := p.Store.ReservePorts(members); err != nil {
		return nil, err
	}
	if err := p.Store.SaveCluster(cluster); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(p.ClusterDataPath, cluster.Name), 0755); err != nil {
		return nil, fmt.Errorf("could not create cluster data directory: %w", err)
	}

	results := make([]domain.MemberResult, len(members))
	var g errgroup.Group
	g.SetLimit(4)

	for i := range members {
		g.Go(func() error {
			srv := members[i]
			sink(fmt.Sprintf("provisioning member %s", srv.Name), -1)

			if err := p.materialize(srv, cluster); err != nil {
				p.logger.Error().Err(err).Str("server", srv.Name).Msg("member provisioning failed")
				_ = os.RemoveAll(ServerDir(p.ServersPath, srv.Name))
				_ = p.Store.DeleteServer(srv.Name)
				results[i] = domain.MemberResult{Name: srv.Name, Error: err.Error()}
				return nil
			}

			results[i] = domain.MemberResult{Name: srv.Name, Success: true}
			return nil
		})
	}
	_ = g.Wait()

	sink(fmt.Sprintf("cluster %s created", cluster.Name), 100)
	return results, nil
}

type UpdateServerInput struct {
	Map               *string  `validate:"omitempty,min=1"`
	MaxPlayers        *int     `validate:"omitempty,min=1,max=200"`
	AdminPassword     *string  `validate:"omitempty,min=4"`
	ServerPassword    *string  `validate:"-"`
	Mods              []string `validate:"dive,numeric"`
	ModsSet           bool
	ExcludeSharedMods *bool
	DisableBattlEye   *bool
	DynamicConfigURL  *string `validate:"omitempty,url"`
}

// UpdateServerSettings patches a server config and re-derives its launch
// script and config files. Ports are immutable after creation; changing them
// would invalidate the fleet-wide reservation.
func (p *Provisioner) UpdateServerSettings(name string, input UpdateServerInput) (*domain.ServerConfig, error) {
	if err := p.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid update input: %w", err)
	}

	srv, err := p.Store.GetServerByName(name)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, fmt.Errorf("server %q not found", name)
	}

	if input.Map != nil {
		srv.Map = *input.Map
	}
	if input.MaxPlayers != nil {
		srv.MaxPlayers = *input.MaxPlayers
	}
	if input.AdminPassword != nil {
		// Admin password doubles as RCON password; both change together.
		srv.AdminPassword = *input.AdminPassword
	}
	if input.ServerPassword != nil {
		srv.ServerPassword = *input.ServerPassword
	}
	if input.ModsSet {
		srv.Mods = input.Mods
	}
	if input.ExcludeSharedMods != nil {
		srv.ExcludeSharedMods = *input.ExcludeSharedMods
	}
	if input.DisableBattlEye != nil {
		srv.DisableBattlEye = *input.DisableBattlEye
	}
	if input.DynamicConfigURL != nil {
		srv.DynamicConfigURL = *input.DynamicConfigURL
	}

	if err := p.Store.UpdateServer(srv); err != nil {
		return nil, err
	}

	cluster, err := p.clusterOf(srv)
	if err != nil {
		return nil, err
	}
	if err := p.materialize(srv, cluster); err != nil {
		return nil, err
	}

	p.logger.Info().Str("server", srv.Name).Msg("server settings updated")
	return srv, nil
}

// DeleteServer stops the process if needed, then removes files and record.
func (p *Provisioner) DeleteServer(name string) error {
	srv, err := p.Store.GetServerByName(name)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("server %q not found", name)
	}

	if p.stopper != nil {
		running, err := p.stopper.IsRunning(name)
		if err != nil {
			return fmt.Errorf("could not determine process state for %s: %w", name, err)
		}
		if running {
			if err := p.stopper.Stop(name); err != nil {
				return fmt.Errorf("could not stop %s before delete: %w", name, err)
			}
		}
	}

	if err := os.RemoveAll(ServerDir(p.ServersPath, name)); err != nil {
		return fmt.Errorf("error deleting server files: %w", err)
	}
	if err := p.Store.DeleteServer(name); err != nil {
		return fmt.Errorf("error deleting server record: %w", err)
	}
	_ = p.Store.DeletePolicy(name)

	p.logger.Info().Str("server", name).Msg("server deleted")
	return nil
}

// DeleteCluster cascades: every member is stopped and deleted (per-member
// outcome), then the cluster data directory and record are removed.
func (p *Provisioner) DeleteCluster(name string) ([]domain.MemberResult, error) {
	cluster, err := p.Store.GetClusterByName(name)
	if err != nil {
		return nil, err
	}
	if cluster == nil {
		return nil, fmt.Errorf("cluster %q not found", name)
	}

	members, err := p.Store.ListClusterMembers(name)
	if err != nil {
		return nil, err
	}

	results := make([]domain.MemberResult, len(members))
	failed := false
	for i := range members {
		if err := p.DeleteServer(members[i].Name); err != nil {
			results[i] = domain.MemberResult{Name: members[i].Name, Error: err.Error()}
			failed = true
			continue
		}
		results[i] = domain.MemberResult{Name: members[i].Name, Success: true}
	}

	if failed {
		return results, fmt.Errorf("cluster %q partially deleted; see member results", name)
	}

	if err := os.RemoveAll(filepath.Join(p.ClusterDataPath, name)); err != nil {
		return results, fmt.Errorf("error deleting cluster data: %w", err)
	}
	if err := p.Store.DeleteCluster(name); err != nil {
		return results, fmt.Errorf("error deleting cluster record: %w", err)
	}

	p.logger.Info().Str("cluster", name).Msg("cluster deleted")
	return results, nil
}

// RegenerateStartScript rewrites the launch script from the stored config.
// Idempotent: an unchanged config produces byte-identical output, and the
// save-game tree is never touched.
func (p *Provisioner) RegenerateStartScript(name string) (string, error) {
	srv, err := p.Store.GetServerByName(name)
	if err != nil {
		return "", err
	}
	if srv == nil {
		return "", fmt.Errorf("server %q not found", name)
	}

	cluster, err := p.clusterOf(srv)
	if err != nil {
		return "", err
	}

	return writeScript(ServerDir(p.ServersPath, srv.Name), srv, p.launchOptions(srv, cluster))
}

// InstallBinaries installs or updates the shared game binaries. Serialized
// by the SteamCmd lock regardless of caller.
func (p *Provisioner) InstallBinaries(sink domain.ProgressSink) error {
	return p.Steam.InstallOrUpdate(sink)
}

func (p *Provisioner) clusterOf(srv *domain.ServerConfig) (*domain.ClusterConfig, error) {
	if srv.ClusterID == nil {
		return nil, nil
	}
	return p.Store.GetClusterByName(*srv.ClusterID)
}

func (p *Provisioner) launchOptions(srv *domain.ServerConfig, cluster *domain.ClusterConfig) launchOptions {
	opts := launchOptions{
		ExePath: ServerExePath(p.BinariesPath),
		Mods:    p.Policy.ResolveMods(srv),
	}
	if cluster != nil {
		opts.ClusterID = cluster.Name
		opts.ClusterDataPath = filepath.Join(p.ClusterDataPath, cluster.Name)
	}
	return opts
}

// materialize writes the full on-disk tree for a server. It creates save
// directories when absent but never removes or rewrites their contents.
func (p *Provisioner) materialize(srv *domain.ServerConfig, cluster *domain.ClusterConfig) error {
	dir := ServerDir(p.ServersPath, srv.Name)

	for _, sub := range []string{
		ConfigDir(dir),
		filepath.Join(SavedDir(dir), "SavedArks"),
	} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return fmt.Errorf("filesystem error: %w", err)
		}
	}

	user := buildUserSettings(srv, cluster, p.Defaults)
	if err := user.write(filepath.Join(ConfigDir(dir), "GameUserSettings.ini")); err != nil {
		return err
	}

	game := buildGameSettings(srv, p.Defaults)
	if err := game.write(filepath.Join(ConfigDir(dir), "Game.ini")); err != nil {
		return err
	}

	if _, err := writeScript(dir, srv, p.launchOptions(srv, cluster)); err != nil {
		return err
	}

	return nil
}
