package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"AutoFlip/pkg/types"
)

// deviceIDPattern 用于验证 deviceId 格式
// 支持以下格式:
// - USB 序列号: 字母数字下划线，如 "1234567890ABCDEF", "emulator-5554"
// - 无线设备: IP:端口，如 "192.168.1.100:5555"
// - mDNS 设备: 如 "adb-xxxxx._adb-tls-connect._tcp."
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// ValidateDeviceID 验证 deviceId 格式是否安全
func ValidateDeviceID(deviceId string) error {
	if deviceId == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(deviceId) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceId) {
		return fmt.Errorf("invalid device ID format: contains illegal characters")
	}
	return nil
}

// ========================================
// ADB command runner
// ========================================

// CommandRunner runs one adb invocation and returns its trimmed output
type CommandRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// Adb runs the adb binary at Path
type Adb struct {
	Path string
}

// ResolveAdbPath prefers an explicit path, then adb found in PATH
func ResolveAdbPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("adb not found at %s: %w", explicit, err)
		}
		return explicit, nil
	}
	path, err := exec.LookPath("adb")
	if err != nil {
		return "", fmt.Errorf("adb not found in PATH, set adbPath or AUTOFLIP_ADB_PATH")
	}
	return path, nil
}

// newAdbCommand creates an exec.Cmd with a clean environment to avoid proxy issues
func (a *Adb) newAdbCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, a.Path, args...)

	env := os.Environ()
	newEnv := make([]string, 0, len(env))
	proxyVars := []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}

	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			newEnv = append(newEnv, e)
		}
	}
	cmd.Env = newEnv
	return cmd
}

func (a *Adb) Run(ctx context.Context, args ...string) (string, error) {
	if a.Path == "" {
		return "", fmt.Errorf("ADB path is not initialized")
	}
	output, err := a.newAdbCommand(ctx, args...).CombinedOutput()
	res := string(output)
	if err != nil {
		return res, fmt.Errorf("adb %s failed: %w, output: %s", strings.Join(args, " "), err, strings.TrimSpace(res))
	}
	return strings.TrimSpace(res), nil
}

// ========================================
// Device discovery
// ========================================

// GetDevices returns the devices adb currently knows about
func GetDevices(ctx context.Context, adb CommandRunner) ([]types.Device, error) {
	output, err := adb.Run(ctx, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to run adb devices: %w", err)
	}
	return parseDevices(output), nil
}

// parseDevices parses `adb devices -l` output
func parseDevices(output string) []types.Device {
	var devices []types.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		d := types.Device{ID: parts[0], Serial: parts[0], State: parts[1], Type: "wired"}
		if strings.Contains(d.ID, ":") || strings.Contains(d.ID, "._adb-tls-connect.") {
			d.Type = "wireless"
		}
		for _, p := range parts[2:] {
			kv := strings.SplitN(p, ":", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "model":
				d.Model = strings.ReplaceAll(kv[1], "_", " ")
			case "device":
				if d.Brand == "" {
					d.Brand = kv[1]
				}
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// pickDevice returns the wanted serial if it is online, otherwise the first
// online device when no serial was requested.
func pickDevice(devices []types.Device, serial string) (types.Device, bool) {
	for _, d := range devices {
		if !d.Online() {
			continue
		}
		if serial == "" || d.ID == serial {
			return d, true
		}
	}
	return types.Device{}, false
}

// ========================================
// DeviceWatcher - 设备连接监控
// ========================================

// DeviceWatcher polls adb and reports when the chosen device comes and goes
type DeviceWatcher struct {
	adb          CommandRunner
	serial       string
	interval     time.Duration
	onConnect    func(types.Device)
	onDisconnect func(types.Device)

	mu      sync.Mutex
	current *types.Device
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDeviceWatcher watches serial ("" = first online device)
func NewDeviceWatcher(adb CommandRunner, serial string, interval time.Duration, onConnect, onDisconnect func(types.Device)) *DeviceWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &DeviceWatcher{
		adb:          adb,
		serial:       serial,
		interval:     interval,
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
	}
}

func (w *DeviceWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
}

// Stop ends polling. A connected device is reported as disconnected.
func (w *DeviceWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	w.mu.Lock()
	last := w.current
	w.current = nil
	w.mu.Unlock()
	if last != nil && w.onDisconnect != nil {
		w.onDisconnect(*last)
	}
}

// Current returns the connected device, if any
func (w *DeviceWatcher) Current() (types.Device, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return types.Device{}, false
	}
	return *w.current, true
}

func (w *DeviceWatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *DeviceWatcher) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	devices, err := GetDevices(checkCtx, w.adb)
	if err != nil {
		if ctx.Err() == nil {
			LogWarn("device").Err(err).Msg("Device poll failed")
		}
		return
	}
	found, ok := pickDevice(devices, w.serial)

	w.mu.Lock()
	prev := w.current
	switch {
	case ok && prev != nil && prev.ID == found.ID:
		w.mu.Unlock()
		return
	case ok:
		w.current = &found
	default:
		w.current = nil
	}
	w.mu.Unlock()

	if prev != nil && (!ok || prev.ID != found.ID) {
		LogInfo("device").Str("device", prev.ID).Msg("Device disconnected")
		if w.onDisconnect != nil {
			w.onDisconnect(*prev)
		}
	}
	if ok {
		LogInfo("device").Str("device", found.ID).Str("model", found.Model).Msg("Device connected")
		if w.onConnect != nil {
			w.onConnect(found)
		}
	}
}
