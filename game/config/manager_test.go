package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/qiaoqiao/match3-server/game/engine"
)

func createValidConfig(name string) *engine.GameConfig {
	return &engine.GameConfig{
		Name:        name,
		Description: "Test configuration",
		Mode:        "classic",
		Rows:        6,
		Columns:     6,
		Moves:       15,
		TileKinds:   5,
	}
}

func writeConfigFile(t *testing.T, dir, name string, config *engine.GameConfig) {
	t.Helper()
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := NewManager(filepath.Join(t.TempDir(), "nope"))
		if err == nil {
			t.Error("Expected error for missing directory")
		}
	})

	t.Run("empty directory falls back to built-in classic", func(t *testing.T) {
		m, err := NewManager(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		def := m.GetDefault()
		if def == nil || def.Name != "classic" || def.Rows != engine.DefaultRows {
			t.Errorf("Unexpected default config: %+v", def)
		}
	})

	t.Run("prefers classic.json", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "aaa", createValidConfig("aaa"))
		classic := createValidConfig("My Classic")
		classic.Rows = 9
		writeConfigFile(t, dir, "classic", classic)

		m, err := NewManager(dir)
		if err != nil {
			t.Fatal(err)
		}
		if m.GetDefault().Rows != 9 {
			t.Errorf("Expected classic.json as default, got %+v", m.GetDefault())
		}
	})

	t.Run("first valid preset without classic", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "blitz", createValidConfig("blitz"))

		m, err := NewManager(dir)
		if err != nil {
			t.Fatal(err)
		}
		if m.GetDefault().Name != "blitz" {
			t.Errorf("Expected blitz as default, got %s", m.GetDefault().Name)
		}
	})
}

func TestManager_LoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "easy", createValidConfig("easy"))

	invalid := createValidConfig("broken")
	invalid.TileKinds = 2
	writeConfigFile(t, dir, "broken", invalid)

	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		config  string
		wantErr error
	}{
		{"by name", "easy", nil},
		{"with extension", "easy.json", nil},
		{"missing", "hard", ErrConfigNotFound},
		{"path traversal", "../easy", ErrConfigNotFound},
		{"invalid values", "broken", ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := m.LoadConfig(tt.config)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if config.Name != "easy" {
					t.Errorf("Expected easy, got %s", config.Name)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("unparseable", func(t *testing.T) {
		if _, err := m.LoadConfig("garbage"); err == nil {
			t.Error("Expected parse error")
		}
	})
}

func TestManager_ListConfigs(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "zen", createValidConfig("zen"))
	writeConfigFile(t, dir, "blitz", createValidConfig("blitz"))
	bad := createValidConfig("bad")
	bad.Moves = 0
	writeConfigFile(t, dir, "bad", bad)
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0755); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	configs, err := m.ListConfigs()
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 2 {
		t.Fatalf("Expected 2 valid configs, got %d", len(configs))
	}
	if configs[0].ConfigID != "blitz" || configs[1].ConfigID != "zen" {
		t.Errorf("Expected sorted ids, got %s, %s", configs[0].ConfigID, configs[1].ConfigID)
	}
	if configs[0].Filename != "blitz.json" || configs[0].Rows != 6 || configs[0].Moves != 15 {
		t.Errorf("Unexpected config info %+v", configs[0])
	}
}

func TestManager_SaveAndRefresh(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.SaveConfig("custom", createValidConfig("custom")); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "custom.json")); err != nil {
		t.Errorf("Expected file on disk: %v", err)
	}

	bad := createValidConfig("bad")
	bad.Rows = 1
	if err := m.SaveConfig("bad", bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}

	// Change the file behind the cache
	changed := createValidConfig("custom")
	changed.Moves = 99
	writeConfigFile(t, dir, "custom", changed)

	cached, _ := m.LoadConfig("custom")
	if cached.Moves != 15 {
		t.Errorf("Expected cached value 15, got %d", cached.Moves)
	}

	if err := m.RefreshCache(); err != nil {
		t.Fatal(err)
	}
	fresh, _ := m.LoadConfig("custom")
	if fresh.Moves != 99 {
		t.Errorf("Expected refreshed value 99, got %d", fresh.Moves)
	}
	if m.GetDefault().Name != "custom" {
		t.Errorf("Expected custom to become default, got %s", m.GetDefault().Name)
	}

	if err := m.SetDefault("missing"); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "classic", createValidConfig("classic"))
	writeConfigFile(t, dir, "blitz", createValidConfig("blitz"))

	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "classic"
			if i%2 == 0 {
				name = "blitz"
			}
			if _, err := m.LoadConfig(name); err != nil {
				t.Errorf("LoadConfig(%s): %v", name, err)
			}
			if i%5 == 0 {
				_ = m.RefreshCache()
			}
			_ = m.GetDefault()
		}(i)
	}
	wg.Wait()
}
