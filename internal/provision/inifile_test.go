package provision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"asactl/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *domain.ServerConfig {
	return &domain.ServerConfig{
		Name:          "island",
		Map:           "TheIsland_WP",
		GamePort:      7777,
		QueryPort:     25777,
		RconPort:      27777,
		MaxPlayers:    70,
		AdminPassword: "hunter2",
	}
}

func writeIni(t *testing.T, f *iniFile) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.ini")
	require.NoError(t, f.write(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestUserSettingsCore(t *testing.T) {
	out := writeIni(t, buildUserSettings(testServer(), nil, nil))

	assert.Contains(t, out, "[ServerSettings]")
	assert.Contains(t, out, "ServerAdminPassword=hunter2")
	assert.Contains(t, out, "RCONEnabled=True")
	assert.Contains(t, out, "RCONPort=27777")
	assert.Contains(t, out, "SessionName=island")
	assert.Contains(t, out, "Port=7777")
	assert.Contains(t, out, "QueryPort=25777")
	assert.Contains(t, out, "MaxPlayers=70")
	assert.NotContains(t, out, "ServerPassword=")
}

func TestUserSettingsClusterMultipliers(t *testing.T) {
	cluster := &domain.ClusterConfig{Name: "c", XPMultiplier: 2, TamingSpeed: 3.5}
	out := writeIni(t, buildUserSettings(testServer(), cluster, nil))

	assert.Contains(t, out, "XPMultiplier=2")
	assert.Contains(t, out, "TamingSpeedMultiplier=3.5")
	assert.NotContains(t, out, "HarvestAmountMultiplier")
}

func TestUserSettingsPrecedence(t *testing.T) {
	defaults := &IniDefaults{User: map[string]map[string]string{
		"ServerSettings": {
			"RCONPort":       "1",
			"DifficultyOffset": "1.0",
		},
	}}

	out := writeIni(t, buildUserSettings(testServer(), nil, defaults))

	// Per-server value wins over the global default.
	assert.Contains(t, out, "RCONPort=27777")
	assert.NotContains(t, out, "RCONPort=1\n")
	// Unrelated defaults survive.
	assert.Contains(t, out, "DifficultyOffset=1.0")
}

func TestUserSettingsExcludedServerSkipsDefaults(t *testing.T) {
	defaults := &IniDefaults{
		User:           map[string]map[string]string{"ServerSettings": {"DifficultyOffset": "1.0"}},
		ExcludeServers: []string{"island"},
	}

	out := writeIni(t, buildUserSettings(testServer(), nil, defaults))
	assert.NotContains(t, out, "DifficultyOffset")
}

func TestIniWriteDeterministic(t *testing.T) {
	build := func() string {
		f := newIniFile()
		f.set("B", "z", "1")
		f.set("B", "a", "2")
		f.set("A", "m", "3")
		return writeIni(t, f)
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}

	// Sections and keys come out sorted.
	assert.Less(t, strings.Index(first, "[A]"), strings.Index(first, "[B]"))
	assert.Less(t, strings.Index(first, "a=2"), strings.Index(first, "z=1"))
}

func TestGameSettingsDefaultSection(t *testing.T) {
	out := writeIni(t, buildGameSettings(testServer(), nil))
	assert.Contains(t, out, "[/script/shootergame.shootergamemode]")
	assert.Contains(t, out, "bAutoPvETimer=False")
}

func TestLoadIniDefaultsMissingFile(t *testing.T) {
	defaults, err := LoadIniDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, defaults.Game)
	assert.Empty(t, defaults.User)
}
