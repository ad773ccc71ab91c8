package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"AutoFlip/pkg/config"
	"AutoFlip/pkg/trigger"
)

// ========================================
// Script triggers - 脚本触发器 (热加载)
// ========================================

// TriggerHost is where script triggers get registered
type TriggerHost interface {
	RegisterTrigger(t trigger.Trigger) error
	UnregisterTrigger(t trigger.Trigger) bool
}

// ScriptManager keeps the triggers of a script directory registered and
// reloads them when a .js file changes.
type ScriptManager struct {
	dir     string
	host    TriggerHost
	actions trigger.Actions

	mu      sync.Mutex
	loaded  []*trigger.ScriptTrigger
	watcher *config.DirWatcher
}

func NewScriptManager(dir string, host TriggerHost, actions trigger.Actions) *ScriptManager {
	return &ScriptManager{dir: dir, host: host, actions: actions}
}

// Start loads the directory and watches it
func (s *ScriptManager) Start() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	s.Reload()

	w := config.NewDirWatcher(s.dir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".js")
	}, s.Reload)
	if err := w.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Stop stops watching and unregisters every script trigger
func (s *ScriptManager) Stop() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
}

// Reload replaces all script triggers with the directory's current content.
// Scripts that fail to load are logged and skipped.
func (s *ScriptManager) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unloadLocked()

	triggers, errs := trigger.LoadScriptDir(s.dir, s.actions)
	for _, err := range errs {
		LogWarn("scripts").Err(err).Msg("Script skipped")
	}
	for _, t := range triggers {
		if err := s.host.RegisterTrigger(t); err != nil {
			LogWarn("scripts").Err(err).Str("source", t.Source()).Msg("Script trigger not registered")
			continue
		}
		s.loaded = append(s.loaded, t)
	}
	LogInfo("scripts").Str("dir", s.dir).Int("loaded", len(s.loaded)).Int("failed", len(errs)).Msg("Scripts loaded")
}

func (s *ScriptManager) unloadLocked() {
	for _, t := range s.loaded {
		s.host.UnregisterTrigger(t)
	}
	s.loaded = nil
}

// Loaded returns the registered script triggers
func (s *ScriptManager) Loaded() []*trigger.ScriptTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*trigger.ScriptTrigger(nil), s.loaded...)
}
