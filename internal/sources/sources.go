// Package sources holds per-domain knowledge used during normalization and
// image resolution: display names, editorial labels, trust, image selectors
// and placeholders.
package sources

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the table key of the fallback profile.
const DefaultKey = "default"

// Placeholder is the image used when no other strategy finds one.
type Placeholder struct {
	URL     string `yaml:"url"`
	Alt     string `yaml:"alt"`
	Caption string `yaml:"caption"`
}

// Profile describes one source domain.
type Profile struct {
	Name           string      `yaml:"name"`
	TeamLabel      string      `yaml:"team_label"`
	Trusted        bool        `yaml:"trusted"`
	// GenericAuthors are matched as case-sensitive substrings.
	GenericAuthors []string    `yaml:"generic_authors"`
	ImageSelectors []string    `yaml:"image_selectors"`
	Placeholder    Placeholder `yaml:"placeholder"`
}

// Team returns the editorial label used in place of generic author names.
func (p Profile) Team() string {
	if p.TeamLabel != "" {
		return p.TeamLabel
	}
	if p.Name != "" {
		return p.Name + " Team"
	}
	return "Editorial Team"
}

// Table is a domain keyed profile lookup with a default entry.
type Table struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// FileConfig is the YAML layout of a domain profiles file.
//
//	domains:
//	  example.com:
//	    name: Example
//	    trusted: true
type FileConfig struct {
	Domains map[string]Profile `yaml:"domains"`
}

// NewTable builds a table from profiles. A default entry is always present.
func NewTable(profiles map[string]Profile) *Table {
	t := &Table{profiles: make(map[string]Profile, len(profiles)+1)}
	t.profiles[DefaultKey] = defaultProfile
	for domain, p := range profiles {
		t.Set(domain, p)
	}
	return t
}

// Default returns a table with the built-in profiles.
func Default() *Table {
	return NewTable(builtin)
}

// LoadFile merges profiles from a YAML file into the table, overriding
// existing entries for the same domain.
func (t *Table) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read domain profiles: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("decode domain profiles: %w", err)
	}
	for domain, p := range cfg.Domains {
		t.Set(domain, p)
	}
	return nil
}

// Set registers or replaces the profile for domain.
func (t *Table) Set(domain string, p Profile) {
	key := normalizeDomain(domain)
	if key == "" {
		return
	}
	t.mu.Lock()
	t.profiles[key] = p
	t.mu.Unlock()
}

// Lookup returns the profile for domain and whether a specific entry exists.
// A leading "www." is ignored, so "www.iot-now.com" and "iot-now.com" share
// one entry.
func (t *Table) Lookup(domain string) (Profile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.profiles[normalizeDomain(domain)]; ok {
		return p, true
	}
	return t.profiles[DefaultKey], false
}

// Get returns the profile for domain, falling back to the default entry with
// the domain as display name.
func (t *Table) Get(domain string) Profile {
	p, ok := t.Lookup(domain)
	if !ok {
		def := p
		def.Name = domain
		def.TeamLabel = ""
		return withDefaults(def, p)
	}
	return withDefaults(p, t.defaultProfile())
}

// DisplayName maps a domain to a human readable source name.
func (t *Table) DisplayName(domain string) string {
	if p, ok := t.Lookup(domain); ok && p.Name != "" {
		return p.Name
	}
	return domain
}

// Trusted reports whether the domain is on the trusted-source allowlist.
func (t *Table) Trusted(domain string) bool {
	p, ok := t.Lookup(domain)
	return ok && p.Trusted
}

func (t *Table) defaultProfile() Profile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.profiles[DefaultKey]
}

// withDefaults fills empty selector and placeholder fields from def.
func withDefaults(p, def Profile) Profile {
	if len(p.ImageSelectors) == 0 {
		p.ImageSelectors = def.ImageSelectors
	}
	if p.Placeholder.URL == "" {
		p.Placeholder = def.Placeholder
	}
	return p
}

func normalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(d, "www.")
}
