package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/pageturn"
)

// ========================================
// Config - 配置 (JSON 文件 + 环境变量)
// ========================================

const DefaultPath = "autoflip.json"

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "AUTOFLIP"

// Env holds process settings read from the environment
type Env struct {
	ConfigPath string `envconfig:"CONFIG" default:"autoflip.json"`
	AdbPath    string `envconfig:"ADB_PATH"`
	Serial     string `envconfig:"SERIAL"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
}

// LoadEnv reads AUTOFLIP_* variables
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("failed to load environment: %w", err)
	}
	return env, nil
}

// AutoTurnConfig 定时翻页
type AutoTurnConfig struct {
	Enabled    bool     `json:"enabled"`
	Apps       []string `json:"apps"`
	IntervalMs int      `json:"intervalMs"`
	Forward    bool     `json:"forward"`
	Vertical   bool     `json:"vertical"`
}

// KeepAwakeConfig 阅读时保持亮屏
type KeepAwakeConfig struct {
	Enabled bool     `json:"enabled"`
	Apps    []string `json:"apps"`
}

// Config is the on-disk configuration. The engine only reads it.
type Config struct {
	ExcludedAppIDs    []string            `json:"excludedAppIds"`
	VerticalWhitelist []string            `json:"verticalWhitelist"`
	StrategyPriority  map[string][]string `json:"strategyPriority"`
	DisableStructural bool                `json:"disableStructural"`
	TapPadding        int                 `json:"tapPadding"`

	ReplayDepth           int `json:"replayDepth"` // 0 disables replay
	QueueSize             int `json:"queueSize"`
	PollIntervalMs        int `json:"pollIntervalMs"`
	ContentPollIntervalMs int `json:"contentPollIntervalMs"` // 0 disables content polling

	AdbPath     string `json:"adbPath,omitempty"`
	Serial      string `json:"serial,omitempty"`
	ScriptDir   string `json:"scriptDir,omitempty"`
	JournalPath string `json:"journalPath,omitempty"`

	AutoTurn  AutoTurnConfig    `json:"autoTurn"`
	KeepAwake KeepAwakeConfig   `json:"keepAwake"`
	Log       logging.LogConfig `json:"log"`
}

// Default 默认配置
func Default() *Config {
	policy := pageturn.DefaultPolicy()
	return &Config{
		ExcludedAppIDs:        []string{"com.android.systemui"},
		StrategyPriority:      policy.Priority,
		DisableStructural:     policy.DisableStructural,
		TapPadding:            policy.TapPadding,
		ReplayDepth:           10,
		QueueSize:             256,
		PollIntervalMs:        500,
		ContentPollIntervalMs: 0,
		AutoTurn: AutoTurnConfig{
			IntervalMs: 30000,
			Forward:    true,
		},
		Log: logging.DefaultLogConfig(),
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.TapPadding < 0 {
		return fmt.Errorf("tapPadding must not be negative")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queueSize must be positive")
	}
	if c.ReplayDepth < 0 {
		return fmt.Errorf("replayDepth must not be negative")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("pollIntervalMs must be positive")
	}
	if c.ContentPollIntervalMs < 0 {
		return fmt.Errorf("contentPollIntervalMs must not be negative")
	}
	for pkg, names := range c.StrategyPriority {
		for _, name := range names {
			if _, ok := pageturn.StrategyByName(name); !ok {
				return fmt.Errorf("strategyPriority[%s]: unknown strategy %q", pkg, name)
			}
		}
	}
	if c.AutoTurn.Enabled && c.AutoTurn.IntervalMs <= 0 {
		return fmt.Errorf("autoTurn.intervalMs must be positive")
	}
	return nil
}

// ApplyEnv lets environment settings override the file
func (c *Config) ApplyEnv(env Env) {
	if env.AdbPath != "" {
		c.AdbPath = env.AdbPath
	}
	if env.Serial != "" {
		c.Serial = env.Serial
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
}

// Policy derives the page-turn policy
func (c *Config) Policy() pageturn.Policy {
	return pageturn.Policy{
		DisableStructural: c.DisableStructural,
		Priority:          c.StrategyPriority,
		VerticalWhitelist: c.VerticalWhitelist,
		TapPadding:        c.TapPadding,
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) ContentPollInterval() time.Duration {
	return time.Duration(c.ContentPollIntervalMs) * time.Millisecond
}

func (c *Config) AutoTurnInterval() time.Duration {
	return time.Duration(c.AutoTurn.IntervalMs) * time.Millisecond
}
