package trigger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// ========================================
// ScriptTrigger - JavaScript 触发器
// ========================================

// DefaultScriptTimeout bounds a single script callback
const DefaultScriptTimeout = 2 * time.Second

// ScriptTrigger is a trigger written in JavaScript. The script defines a
// global object:
//
//	var trigger = {
//	  tag: "kindle-volume",
//	  apps: ["com.amazon.kindle"],
//	  onActivate: function () {},
//	  onDeactivate: function () {},
//	  onEvent: function (event) {},
//	  onActivityChanged: function (from, to) {},
//	};
//
// Only apps is required.
type ScriptTrigger struct {
	source string
	tag    string
	apps   []string

	// goja.Runtime 不是线程安全的, 同一 VM 必须串行访问
	mu                sync.Mutex
	vm                *goja.Runtime
	onActivate        goja.Callable
	onDeactivate      goja.Callable
	onEvent           goja.Callable
	onActivityChanged goja.Callable
	state             map[string]interface{}
	timeout           time.Duration
}

// NewScriptTrigger compiles code. source names the script in logs and trigger info.
func NewScriptTrigger(source, code string, actions Actions) (*ScriptTrigger, error) {
	st := &ScriptTrigger{
		source:  source,
		vm:      goja.New(),
		state:   make(map[string]interface{}),
		timeout: DefaultScriptTimeout,
	}

	// 注入辅助函数
	st.injectHelpers(actions)

	timer := time.AfterFunc(st.timeout, func() {
		st.vm.Interrupt("timeout")
	})
	_, err := st.vm.RunString(code)
	timer.Stop()
	if err != nil {
		return nil, fmt.Errorf("script %s failed to run: %w", source, err)
	}

	triggerVal := st.vm.Get("trigger")
	if triggerVal == nil || goja.IsUndefined(triggerVal) || goja.IsNull(triggerVal) {
		return nil, fmt.Errorf("script %s: trigger object not found", source)
	}
	obj := triggerVal.ToObject(st.vm)

	appsVal := obj.Get("apps")
	if appsVal == nil || goja.IsUndefined(appsVal) {
		return nil, fmt.Errorf("script %s: trigger.apps is required", source)
	}
	if err := st.vm.ExportTo(appsVal, &st.apps); err != nil {
		return nil, fmt.Errorf("script %s: trigger.apps must be a list of app ids: %w", source, err)
	}
	if len(st.apps) == 0 {
		return nil, fmt.Errorf("script %s: trigger.apps is empty", source)
	}

	if tagVal := obj.Get("tag"); tagVal != nil && !goja.IsUndefined(tagVal) && !goja.IsNull(tagVal) {
		st.tag = tagVal.String()
	}
	if st.tag == "" {
		st.tag = defaultScriptTag(source)
	}

	if st.onActivate, err = optionalFunc(obj, "onActivate"); err != nil {
		return nil, fmt.Errorf("script %s: %w", source, err)
	}
	if st.onDeactivate, err = optionalFunc(obj, "onDeactivate"); err != nil {
		return nil, fmt.Errorf("script %s: %w", source, err)
	}
	if st.onEvent, err = optionalFunc(obj, "onEvent"); err != nil {
		return nil, fmt.Errorf("script %s: %w", source, err)
	}
	if st.onActivityChanged, err = optionalFunc(obj, "onActivityChanged"); err != nil {
		return nil, fmt.Errorf("script %s: %w", source, err)
	}
	return st, nil
}

func optionalFunc(obj *goja.Object, name string) (goja.Callable, error) {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", name)
	}
	return fn, nil
}

func defaultScriptTag(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "script-" + uuid.New().String()[:8]
	}
	return base
}

// LoadScriptFile 从文件加载脚本触发器
func LoadScriptFile(path string, actions Actions) (*ScriptTrigger, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return NewScriptTrigger(path, string(code), actions)
}

// LoadScriptDir loads every *.js file in dir, sorted by name. A script that
// fails to load is reported in errs and skipped.
func LoadScriptDir(dir string, actions Actions) (triggers []*ScriptTrigger, errs []error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.js"))
	if err != nil {
		return nil, []error{err}
	}
	sort.Strings(paths)
	for _, path := range paths {
		st, err := LoadScriptFile(path, actions)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		triggers = append(triggers, st)
	}
	return triggers, errs
}

func (s *ScriptTrigger) Tag() string              { return s.tag }
func (s *ScriptTrigger) InterestAppIDs() []string { return s.apps }
func (s *ScriptTrigger) Source() string           { return s.source }

func (s *ScriptTrigger) Activate() {
	s.call("onActivate", s.onActivate)
}

func (s *ScriptTrigger) Deactivate() {
	s.call("onDeactivate", s.onDeactivate)
}

func (s *ScriptTrigger) OnEvent(ev types.UIChangeEvent) {
	if s.onEvent == nil {
		return
	}
	s.call("onEvent", s.onEvent, eventObject(ev))
}

func (s *ScriptTrigger) OnActivityChanged(from, to string) {
	s.call("onActivityChanged", s.onActivityChanged, from, to)
}

// State returns a copy of the values the script stored with setState
func (s *ScriptTrigger) State() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

func (s *ScriptTrigger) call(name string, fn goja.Callable, args ...interface{}) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// 清除上次超时可能留下的 interrupt 状态
	s.vm.ClearInterrupt()
	timer := time.AfterFunc(s.timeout, func() {
		s.vm.Interrupt("timeout")
	})
	defer timer.Stop()

	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = s.vm.ToValue(a)
	}
	if _, err := fn(goja.Undefined(), values...); err != nil {
		logging.LogWarn("script").
			Str("tag", s.tag).
			Str("source", s.source).
			Str("callback", name).
			Err(err).
			Msg("Script callback failed")
	}
}

func eventObject(ev types.UIChangeEvent) map[string]interface{} {
	return map[string]interface{}{
		"id":                ev.ID,
		"kind":              ev.Kind.String(),
		"timestamp":         ev.TimestampMs,
		"appId":             ev.AppID,
		"className":         ev.ClassName,
		"contentChangeMask": ev.ContentChangeMask,
		"windowChangeMask":  ev.WindowChangeMask,
	}
}

// injectHelpers 注入辅助函数到 VM 全局
func (s *ScriptTrigger) injectHelpers(actions Actions) {
	act := func(f func(Actions) bool) bool {
		if actions == nil {
			return false
		}
		return f(actions)
	}

	s.vm.Set("turnPage", func(forward bool) bool {
		return act(func(a Actions) bool { return a.TurnPage(forward) })
	})
	s.vm.Set("turnPageVertically", func(forward bool) bool {
		return act(func(a Actions) bool { return a.TurnPageVertically(forward) })
	})
	s.vm.Set("pressBack", func() bool {
		return act(Actions.PressBack)
	})
	s.vm.Set("pressHome", func() bool {
		return act(Actions.PressHome)
	})
	s.vm.Set("volumeUp", func() bool {
		return act(Actions.VolumeUp)
	})
	s.vm.Set("volumeDown", func() bool {
		return act(Actions.VolumeDown)
	})

	// log(message, level?)
	s.vm.Set("log", func(message string, level ...string) {
		event := logging.LogInfo("script")
		if len(level) > 0 {
			switch level[0] {
			case "debug":
				event = logging.LogDebug("script")
			case "warn":
				event = logging.LogWarn("script")
			case "error":
				event = logging.LogError("script")
			}
		}
		event.Str("tag", s.tag).Msg(message)
	})

	// jsonPath: gjson 查询
	s.vm.Set("jsonPath", func(obj interface{}, path string) interface{} {
		jsonBytes, err := json.Marshal(obj)
		if err != nil {
			return nil
		}
		result := gjson.GetBytes(jsonBytes, path)
		if !result.Exists() {
			return nil
		}
		return result.Value()
	})

	// setState / getState 在回调内调用, 此时已持有 s.mu
	s.vm.Set("setState", func(key string, value interface{}) {
		s.state[key] = value
	})
	s.vm.Set("getState", func(key string) interface{} {
		return s.state[key]
	})
}
