package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"AutoFlip/pkg/pageturn"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.DisableStructural || cfg.TapPadding != 50 || cfg.ReplayDepth != 10 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoflip.json")
	writeFile(t, path, `{
		"verticalWhitelist": ["com.video"],
		"strategyPriority": {"com.epub": ["granularity"]},
		"disableStructural": false,
		"keepAwake": {"enabled": true, "apps": ["com.reader"]}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DisableStructural {
		t.Error("disableStructural should be overridden")
	}
	if cfg.TapPadding != 50 || cfg.QueueSize != 256 {
		t.Error("unspecified keys should keep their defaults")
	}
	if len(cfg.StrategyPriority) != 2 {
		t.Errorf("priority should merge with the default entry, got %v", cfg.StrategyPriority)
	}
	if !cfg.KeepAwake.Enabled || cfg.KeepAwake.Apps[0] != "com.reader" {
		t.Errorf("unexpected keepAwake %+v", cfg.KeepAwake)
	}

	policy := cfg.Policy()
	if !policy.VerticalAllowed("com.video") {
		t.Error("policy should carry the vertical whitelist")
	}
	if got := policy.StrategiesFor("com.epub"); len(got) != 1 || got[0] != pageturn.GranularityStrategy {
		t.Errorf("policy strategies = %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad json", `{`, "failed to parse"},
		{"unknown strategy", `{"strategyPriority": {"*": ["flip"]}}`, "unknown strategy"},
		{"negative padding", `{"tapPadding": -1}`, "tapPadding"},
		{"zero poll", `{"pollIntervalMs": 0}`, "pollIntervalMs"},
		{"auto turn without interval", `{"autoTurn": {"enabled": true, "intervalMs": 0}}`, "autoTurn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "autoflip.json")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("AUTOFLIP_SERIAL", "emulator-5554")
	t.Setenv("AUTOFLIP_LOG_LEVEL", "debug")
	t.Setenv("AUTOFLIP_ADB_PATH", "/opt/adb")

	env, err := LoadEnv()
	if err != nil {
		t.Fatal(err)
	}
	if env.ConfigPath != DefaultPath {
		t.Errorf("default config path = %q", env.ConfigPath)
	}

	cfg := Default()
	cfg.ApplyEnv(env)
	if cfg.Serial != "emulator-5554" || cfg.Log.Level != "debug" || cfg.AdbPath != "/opt/adb" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	if cfg.PollInterval() != 500*time.Millisecond || cfg.ContentPollInterval() != 0 || cfg.AutoTurnInterval() != 30*time.Second {
		t.Error("unexpected interval conversions")
	}
}

// ========================================
// Watcher Tests
// ========================================

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoflip.json")
	writeFile(t, path, `{"tapPadding": 10}`)

	var mu sync.Mutex
	var reloaded []*Config
	w := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		reloaded = append(reloaded, cfg)
		mu.Unlock()
	})
	w.debounce = 20 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.json"), `{}`)
	writeFile(t, path, `{"tapPadding": 80}`)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(reloaded)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reloaded) == 0 {
		t.Fatal("config change was not observed")
	}
	if got := reloaded[len(reloaded)-1].TapPadding; got != 80 {
		t.Errorf("reloaded tapPadding = %d, want 80", got)
	}
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoflip.json")

	calls := make(chan struct{}, 10)
	w := NewWatcher(path, func(*Config) { calls <- struct{}{} })
	w.debounce = 10 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, `{"tapPadding": -5}`)
	time.Sleep(150 * time.Millisecond)
	w.Stop()
	w.Stop()

	if len(calls) != 0 {
		t.Error("invalid config should not be delivered")
	}
}

func TestDirWatcherMissingDir(t *testing.T) {
	w := NewDirWatcher(filepath.Join(t.TempDir(), "nope"), nil, func() {})
	if err := w.Start(); err == nil {
		w.Stop()
		t.Error("expected error watching a missing directory")
	}
}
