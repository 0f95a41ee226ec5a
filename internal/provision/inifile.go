package provision

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"

	"asactl/internal/domain"

	"gopkg.in/yaml.v3"
)

// IniDefaults carries the operator's global INI defaults plus the servers
// opted out of them. Precedence when materializing a server's files:
// per-server values > cluster defaults > global defaults.
type IniDefaults struct {
	// Game maps Game.ini section -> key -> value.
	Game map[string]map[string]string `yaml:"game"`
	// User maps GameUserSettings.ini section -> key -> value.
	User map[string]map[string]string `yaml:"user"`
	// ExcludeServers lists server names that skip global defaults entirely.
	ExcludeServers []string `yaml:"exclude_servers"`
}

// LoadIniDefaults reads the defaults file; missing file means no defaults.
func LoadIniDefaults(path string) (*IniDefaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &IniDefaults{}, nil
		}
		return nil, fmt.Errorf("could not read ini defaults: %w", err)
	}

	var defaults IniDefaults
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("could not parse ini defaults: %w", err)
	}
	return &defaults, nil
}

func (d *IniDefaults) excluded(serverName string) bool {
	for _, name := range d.ExcludeServers {
		if name == serverName {
			return true
		}
	}
	return false
}

// iniFile is an ordered set of sections written deterministically so that
// regenerating an unchanged config produces byte-identical output.
type iniFile struct {
	sections map[string]map[string]string
}

func newIniFile() *iniFile {
	return &iniFile{sections: make(map[string]map[string]string)}
}

func (f *iniFile) set(section, key, value string) {
	if f.sections[section] == nil {
		f.sections[section] = make(map[string]string)
	}
	f.sections[section][key] = value
}

func (f *iniFile) merge(layer map[string]map[string]string) {
	for section, kv := range layer {
		for k, v := range kv {
			f.set(section, k, v)
		}
	}
}

func (f *iniFile) write(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	defer file.Close()

	names := make([]string, 0, len(f.sections))
	for name := range f.sections {
		names = append(names, name)
	}
	sort.Strings(names)

	w := bufio.NewWriter(file)
	for i, name := range names {
		if i > 0 {
			w.WriteString("\n")
		}
		fmt.Fprintf(w, "[%s]\n", name)

		keys := make([]string, 0, len(f.sections[name]))
		for k := range f.sections[name] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s=%s\n", k, f.sections[name][k])
		}
	}
	return w.Flush()
}

const (
	sectionServerSettings  = "ServerSettings"
	sectionSessionSettings = "SessionSettings"
	sectionGameSession     = "/Script/Engine.GameSession"
	sectionGameMode        = "/script/shootergame.shootergamemode"
)

// buildUserSettings assembles GameUserSettings.ini for one server.
func buildUserSettings(srv *domain.ServerConfig, cluster *domain.ClusterConfig, defaults *IniDefaults) *iniFile {
	f := newIniFile()

	if defaults != nil && !defaults.excluded(srv.Name) {
		f.merge(defaults.User)
	}

	if cluster != nil {
		if cluster.XPMultiplier > 0 {
			f.set(sectionServerSettings, "XPMultiplier", formatFloat(cluster.XPMultiplier))
		}
		if cluster.TamingSpeed > 0 {
			f.set(sectionServerSettings, "TamingSpeedMultiplier", formatFloat(cluster.TamingSpeed))
		}
		if cluster.HarvestAmount > 0 {
			f.set(sectionServerSettings, "HarvestAmountMultiplier", formatFloat(cluster.HarvestAmount))
		}
	}

	f.set(sectionServerSettings, "ServerAdminPassword", srv.AdminPassword)
	// Invariant: the RCON password is always the admin password.
	f.set(sectionServerSettings, "RCONEnabled", "True")
	f.set(sectionServerSettings, "RCONPort", strconv.Itoa(srv.RconPort))
	if srv.ServerPassword != "" {
		f.set(sectionServerSettings, "ServerPassword", srv.ServerPassword)
	}

	f.set(sectionSessionSettings, "SessionName", srv.Name)
	f.set(sectionSessionSettings, "Port", strconv.Itoa(srv.GamePort))
	f.set(sectionSessionSettings, "QueryPort", strconv.Itoa(srv.QueryPort))

	f.set(sectionGameSession, "MaxPlayers", strconv.Itoa(srv.MaxPlayers))

	return f
}

// buildGameSettings assembles Game.ini for one server.
func buildGameSettings(srv *domain.ServerConfig, defaults *IniDefaults) *iniFile {
	f := newIniFile()

	if defaults != nil && !defaults.excluded(srv.Name) {
		f.merge(defaults.Game)
	}

	if _, ok := f.sections[sectionGameMode]; !ok {
		f.set(sectionGameMode, "bAutoPvETimer", "False")
	}

	return f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
