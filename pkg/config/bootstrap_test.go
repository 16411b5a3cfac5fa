package config

import (
	"os"
	"path/filepath"
	"testing"

	"frameworks/network/internal/peer"
)

func TestLoadBootstrap_UnsetPathIsNotAnError(t *testing.T) {
	cfg, err := LoadBootstrap("")
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	if len(cfg.Trackers) != 0 || len(cfg.Peers) != 0 {
		t.Fatalf("expected zero-value Bootstrap, got %+v", cfg)
	}
}

func TestLoadBootstrap_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadBootstrap(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	if len(cfg.Trackers) != 0 {
		t.Fatalf("expected zero-value Bootstrap for a missing file, got %+v", cfg)
	}
}

func TestLoadBootstrap_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	contents := "trackers:\n  - ws://tracker-a:32400/ws\npeers:\n  - id: node-1\n    address: ws://node-1:33371/ws\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadBootstrap(path)
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	if len(cfg.Trackers) != 1 || cfg.Trackers[0] != "ws://tracker-a:32400/ws" {
		t.Fatalf("unexpected trackers: %+v", cfg.Trackers)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].ID != "node-1" || cfg.Peers[0].Address != "ws://node-1:33371/ws" {
		t.Fatalf("unexpected peers: %+v", cfg.Peers)
	}
}

func TestBootstrap_SeedBook(t *testing.T) {
	cfg := Bootstrap{Peers: []BootstrapPeer{
		{ID: "node-1", Address: "ws://node-1:1"},
		{ID: "", Address: "ws://ignored:1"},
	}}
	book := peer.NewBook()
	cfg.SeedBook(book)

	addr, err := book.AddressOf("node-1")
	if err != nil || addr != "ws://node-1:1" {
		t.Fatalf("expected node-1 seeded, got addr=%q err=%v", addr, err)
	}
	if _, err := book.AddressOf("ignored"); err == nil {
		t.Fatalf("expected no entry for a peer with a blank id")
	}
}

func TestBootstrap_MergeTrackerURLs(t *testing.T) {
	cfg := Bootstrap{Trackers: []string{"ws://b:1", "ws://a:1"}}
	got := cfg.MergeTrackerURLs([]string{"ws://a:1"})
	if len(got) != 2 || got[0] != "ws://a:1" || got[1] != "ws://b:1" {
		t.Fatalf("unexpected merged urls: %+v", got)
	}
}
