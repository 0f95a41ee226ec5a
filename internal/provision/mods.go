package provision

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"asactl/internal/domain"

	"gopkg.in/yaml.v3"
)

// ModPolicy is the operator-editable rule set for mod assignment. SharedMods
// apply fleet-wide unless a server opts out; Rules attach extra mods to
// servers whose name matches a pattern (e.g. event servers that always need
// a specific map mod).
type ModPolicy struct {
	SharedMods []string        `yaml:"shared_mods"`
	Rules      []ModPolicyRule `yaml:"rules"`
}

type ModPolicyRule struct {
	Pattern       string   `yaml:"pattern"`
	Mods          []string `yaml:"mods"`
	ExcludeShared bool     `yaml:"exclude_shared"`

	re *regexp.Regexp
}

// LoadModPolicy reads the policy file; a missing file is an empty policy,
// not an error.
func LoadModPolicy(path string) (*ModPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ModPolicy{}, nil
		}
		return nil, fmt.Errorf("could not read mod policy: %w", err)
	}

	var policy ModPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("could not parse mod policy: %w", err)
	}

	for i := range policy.Rules {
		re, err := regexp.Compile(policy.Rules[i].Pattern)
		if err != nil {
			return nil, fmt.Errorf("bad mod policy pattern %q: %w", policy.Rules[i].Pattern, err)
		}
		policy.Rules[i].re = re
	}

	return &policy, nil
}

// ResolveMods computes the final mod list for a server:
// dedup(union(shared, rule mods, server mods)), or server+rule mods only when
// shared mods are excluded either by the server or a matching rule. The
// result is sorted so script regeneration stays byte-stable.
func (p *ModPolicy) ResolveMods(srv *domain.ServerConfig) []string {
	excludeShared := srv.ExcludeSharedMods

	set := make(map[string]struct{})
	for _, m := range srv.Mods {
		set[m] = struct{}{}
	}

	for i := range p.Rules {
		rule := &p.Rules[i]
		if rule.re == nil || !rule.re.MatchString(srv.Name) {
			continue
		}
		for _, m := range rule.Mods {
			set[m] = struct{}{}
		}
		if rule.ExcludeShared {
			excludeShared = true
		}
	}

	if !excludeShared {
		for _, m := range p.SharedMods {
			set[m] = struct{}{}
		}
	}

	mods := make([]string, 0, len(set))
	for m := range set {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	return mods
}
