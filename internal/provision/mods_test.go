package provision

import (
	"os"
	"path/filepath"
	"testing"

	"asactl/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModsUnionDedup(t *testing.T) {
	policy := &ModPolicy{SharedMods: []string{"100", "200"}}
	srv := &domain.ServerConfig{Name: "island", Mods: []string{"200", "300"}}

	assert.Equal(t, []string{"100", "200", "300"}, policy.ResolveMods(srv))
}

func TestResolveModsServerExcludesShared(t *testing.T) {
	policy := &ModPolicy{SharedMods: []string{"100"}}
	srv := &domain.ServerConfig{Name: "island", Mods: []string{"300"}, ExcludeSharedMods: true}

	assert.Equal(t, []string{"300"}, policy.ResolveMods(srv))
}

func TestResolveModsRules(t *testing.T) {
	policy, err := loadPolicyFromYAML(t, `
shared_mods: ["100"]
rules:
  - pattern: "^event-"
    mods: ["900", "901"]
  - pattern: "-pve$"
    mods: ["500"]
    exclude_shared: true
`)
	require.NoError(t, err)

	// Matching rule adds its mods on top of shared mods.
	event := &domain.ServerConfig{Name: "event-island", Mods: []string{"300"}}
	assert.Equal(t, []string{"100", "300", "900", "901"}, policy.ResolveMods(event))

	// A rule with exclude_shared drops the shared list for matching servers.
	pve := &domain.ServerConfig{Name: "island-pve", Mods: []string{"300"}}
	assert.Equal(t, []string{"300", "500"}, policy.ResolveMods(pve))

	// Non-matching server only gets shared mods.
	plain := &domain.ServerConfig{Name: "island"}
	assert.Equal(t, []string{"100"}, policy.ResolveMods(plain))
}

func TestLoadModPolicyMissingFile(t *testing.T) {
	policy, err := LoadModPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, policy.SharedMods)
	assert.Empty(t, policy.Rules)
}

func TestLoadModPolicyBadPattern(t *testing.T) {
	_, err := loadPolicyFromYAML(t, `
rules:
  - pattern: "["
`)
	assert.Error(t, err)
}

func loadPolicyFromYAML(t *testing.T, body string) (*ModPolicy, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modpolicy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return LoadModPolicy(path)
}
