package trigger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"AutoFlip/pkg/types"
)

type fakeActions struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeActions) record(s string) bool {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
	return true
}

func (f *fakeActions) TurnPage(forward bool) bool {
	if forward {
		return f.record("turn:next")
	}
	return f.record("turn:prev")
}

func (f *fakeActions) TurnPageVertically(forward bool) bool {
	if forward {
		return f.record("vturn:next")
	}
	return f.record("vturn:prev")
}

func (f *fakeActions) PressBack() bool  { return f.record("back") }
func (f *fakeActions) PressHome() bool  { return f.record("home") }
func (f *fakeActions) VolumeUp() bool   { return f.record("volume:up") }
func (f *fakeActions) VolumeDown() bool { return f.record("volume:down") }

func (f *fakeActions) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

const readerScript = `
var trigger = {
  tag: "reader-helper",
  apps: ["com.reader", "com.viewer"],
  onActivate: function () { setState("active", true); volumeDown(); },
  onDeactivate: function () { setState("active", false); },
  onEvent: function (event) {
    if (jsonPath(event, "kind") === "content_changed" && event.contentChangeMask === 1) {
      turnPage(true);
    }
  },
  onActivityChanged: function (from, to) {
    setState("activity", to);
    if (to === "SettingsActivity") { pressBack(); }
  },
};
`

// ========================================
// ScriptTrigger Tests
// ========================================

func TestScriptTriggerLifecycle(t *testing.T) {
	actions := &fakeActions{}
	st, err := NewScriptTrigger("reader.js", readerScript, actions)
	if err != nil {
		t.Fatalf("NewScriptTrigger failed: %v", err)
	}

	if st.Tag() != "reader-helper" {
		t.Errorf("tag = %q", st.Tag())
	}
	if got := st.InterestAppIDs(); len(got) != 2 || got[0] != "com.reader" {
		t.Errorf("apps = %v", got)
	}
	if st.Source() != "reader.js" {
		t.Errorf("source = %q", st.Source())
	}

	st.Activate()
	if st.State()["active"] != true {
		t.Error("onActivate should have set state")
	}

	st.OnEvent(types.UIChangeEvent{Kind: types.KindContentChanged, ContentChangeMask: 1})
	st.OnEvent(types.UIChangeEvent{Kind: types.KindContentChanged, ContentChangeMask: 2})
	st.OnActivityChanged("ReaderActivity", "SettingsActivity")
	if st.State()["activity"] != "SettingsActivity" {
		t.Errorf("activity state = %v", st.State()["activity"])
	}

	st.Deactivate()
	if st.State()["active"] != false {
		t.Error("onDeactivate should have cleared state")
	}

	want := []string{"volume:down", "turn:next", "back"}
	if got := actions.recorded(); !equalStrings(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
}

func TestScriptTriggerInRegistry(t *testing.T) {
	actions := &fakeActions{}
	st, err := NewScriptTrigger("reader.js", readerScript, actions)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(nil)
	r.Register(st)
	r.Recompute("com.viewer")

	if !r.IsActive(st) {
		t.Error("script trigger should be active for com.viewer")
	}
	if infos := r.Infos(); infos[0].Source != "reader.js" {
		t.Errorf("source = %q, want reader.js", infos[0].Source)
	}
}

func TestScriptTriggerErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{"syntax error", "var trigger = {", "failed to run"},
		{"no trigger object", "var x = 1;", "trigger object not found"},
		{"missing apps", "var trigger = { tag: 'x' };", "apps is required"},
		{"empty apps", "var trigger = { apps: [] };", "apps is empty"},
		{"callback not a function", "var trigger = { apps: ['a'], onEvent: 42 };", "onEvent is not a function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScriptTrigger("bad.js", tt.code, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestScriptTriggerDefaults(t *testing.T) {
	st, err := NewScriptTrigger("/scripts/kindle.js", "var trigger = { apps: ['com.amazon.kindle'] };", nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Tag() != "kindle" {
		t.Errorf("default tag = %q, want kindle", st.Tag())
	}
	// 无回调时不应出错
	st.Activate()
	st.OnEvent(types.UIChangeEvent{})
	st.OnActivityChanged("a", "b")
	st.Deactivate()
}

func TestScriptHelpersWithoutActions(t *testing.T) {
	code := `var trigger = { apps: ['a'], onActivate: function () { setState("turned", turnPage(true)); } };`
	st, err := NewScriptTrigger("noop.js", code, nil)
	if err != nil {
		t.Fatal(err)
	}
	st.Activate()
	if st.State()["turned"] != false {
		t.Errorf("turnPage without actions should return false, got %v", st.State()["turned"])
	}
}

func TestScriptCallbackTimeout(t *testing.T) {
	code := `var trigger = { apps: ['a'], onActivate: function () { while (true) {} } };`
	st, err := NewScriptTrigger("loop.js", code, nil)
	if err != nil {
		t.Fatal(err)
	}
	st.timeout = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		st.Activate()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runaway script was not interrupted")
	}
}

func TestLoadScriptDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b_reader.js": readerScript,
		"a_simple.js": "var trigger = { apps: ['com.simple'] };",
		"broken.js":   "var trigger = {",
		"notes.txt":   "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	triggers, errs := LoadScriptDir(dir, &fakeActions{})
	if len(errs) != 1 {
		t.Errorf("expected 1 load error, got %v", errs)
	}
	if len(triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(triggers))
	}
	if triggers[0].Tag() != "a_simple" || triggers[1].Tag() != "reader-helper" {
		t.Errorf("unexpected order: %s, %s", triggers[0].Tag(), triggers[1].Tag())
	}
}
