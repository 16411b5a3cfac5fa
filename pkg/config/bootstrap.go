package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"frameworks/network/internal/peer"
)

// Bootstrap is the optional static cluster file a tracker or node can be
// pointed at via BOOTSTRAP_FILE, layered underneath the process's env-var
// configuration. It exists for deployments that want a checked-in seed of
// tracker URLs and known peer addresses instead of (or alongside) discovery
// through live tracker status exchange.
type Bootstrap struct {
	// Trackers lists WebSocket URLs a node should dial at startup, in
	// addition to any supplied via the TRACKERS env var.
	Trackers []string `yaml:"trackers"`

	// Peers seeds a peer book with known id -> address mappings before the
	// endpoint starts accepting traffic, so a process can answer
	// AddressOf/IDOf lookups for peers it hasn't heard from yet.
	Peers []BootstrapPeer `yaml:"peers"`
}

// BootstrapPeer is one statically known peer.
type BootstrapPeer struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// LoadBootstrap reads and parses a bootstrap YAML file. A missing path is
// not an error: it returns a zero Bootstrap, so callers can unconditionally
// merge its contents with env-derived configuration.
func LoadBootstrap(path string) (Bootstrap, error) {
	if path == "" {
		return Bootstrap{}, nil
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Bootstrap{}, nil
	}
	if err != nil {
		return Bootstrap{}, fmt.Errorf("config: reading bootstrap file %q: %w", path, err)
	}

	var cfg Bootstrap
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Bootstrap{}, fmt.Errorf("config: parsing bootstrap file %q: %w", path, err)
	}
	return cfg, nil
}

// SeedBook writes every bootstrap peer into book via Put, so later
// AddressOf/IDOf lookups succeed for peers the process hasn't connected to
// yet.
func (c Bootstrap) SeedBook(book *peer.Book) {
	for _, p := range c.Peers {
		if p.ID == "" || p.Address == "" {
			continue
		}
		book.Put(p.ID, p.Address)
	}
}

// MergeTrackerURLs appends the bootstrap file's tracker URLs to urls,
// skipping any already present.
func (c Bootstrap) MergeTrackerURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[u] = struct{}{}
	}
	out := urls
	for _, u := range c.Trackers {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
