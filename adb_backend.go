package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"AutoFlip/pkg/action"
	"AutoFlip/pkg/types"
)

// Android key codes used by the backend
const (
	keyHome       = 3
	keyBack       = 4
	keyVolumeUp   = 24
	keyVolumeDown = 25
	keyPageUp     = 92
	keyPageDown   = 93
)

const (
	dumpFile       = "/data/local/tmp/view.xml"
	commandTimeout = 5 * time.Second
	dumpTimeout    = 15 * time.Second
)

// ========================================
// AdbBackend - 基于 adb 的仪表后端
// ========================================

// AdbBackend drives one device over adb. It implements action.Backend,
// action.DeviceActions and action.WakeLockProvider.
type AdbBackend struct {
	adb     CommandRunner
	serial  string
	limiter *rate.Limiter // uiautomator dumps are slow and flaky when overlapped
}

var (
	_ action.Backend          = (*AdbBackend)(nil)
	_ action.DeviceActions    = (*AdbBackend)(nil)
	_ action.WakeLockProvider = (*AdbBackend)(nil)
)

// NewAdbBackend allows at most one UI dump per minDumpInterval
func NewAdbBackend(adb CommandRunner, serial string, minDumpInterval time.Duration) *AdbBackend {
	limit := rate.Inf
	if minDumpInterval > 0 {
		limit = rate.Every(minDumpInterval)
	}
	return &AdbBackend{
		adb:     adb,
		serial:  serial,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (b *AdbBackend) Serial() string {
	return b.serial
}

func (b *AdbBackend) shell(ctx context.Context, command string) (string, error) {
	if err := ValidateDeviceID(b.serial); err != nil {
		return "", fmt.Errorf("invalid device ID: %w", err)
	}
	return b.adb.Run(ctx, "-s", b.serial, "shell", command)
}

func (b *AdbBackend) shellTimeout(command string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, err := b.shell(ctx, command)
	return err
}

// ========================================
// Foreground
// ========================================

var resumedActivityPattern = regexp.MustCompile(`u0 ([^/\s]+)/([^\s}]+)`)

// parseCurrentActivity parses
// mResumedActivity: ActivityRecord{xxx u0 com.example/.MainActivity t123}
func parseCurrentActivity(output string) (activity, pkg string) {
	match := resumedActivityPattern.FindStringSubmatch(output)
	if len(match) >= 3 {
		return match[2], match[1]
	}
	return "", ""
}

// qualifyActivity expands ".MainActivity" against its package
func qualifyActivity(pkg, activity string) string {
	if strings.HasPrefix(activity, ".") {
		return pkg + activity
	}
	return activity
}

// CurrentActivity returns the resumed package and fully-qualified activity
func (b *AdbBackend) CurrentActivity(ctx context.Context) (pkg, activity string, err error) {
	output, err := b.shell(ctx, "dumpsys activity activities | grep mResumedActivity")
	if err != nil {
		return "", "", err
	}
	activity, pkg = parseCurrentActivity(output)
	return pkg, qualifyActivity(pkg, activity), nil
}

func (b *AdbBackend) FocusedAppID() string {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	pkg, _, err := b.CurrentActivity(ctx)
	if err != nil {
		LogDebug("adb").Err(err).Msg("Failed to resolve foreground app")
		return ""
	}
	return pkg
}

// ========================================
// UI hierarchy
// ========================================

// DumpHierarchy dumps the active window and returns the raw XML
func (b *AdbBackend) DumpHierarchy(ctx context.Context) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("dump throttled: %w", err)
	}

	var xmlContent string
	var err error
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			// Cleanup on retry: kill any existing uiautomator processes
			_, _ = b.shell(ctx, "pkill uiautomator")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
		xmlContent, err = b.shell(ctx, fmt.Sprintf("uiautomator dump %s && cat %s", dumpFile, dumpFile))
		if err == nil && strings.Contains(xmlContent, "<?xml") {
			return xmlContent, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		LogDebug("adb").Int("retry", i+1).Int("maxRetries", maxRetries).Err(err).Msg("UI dump retry")
	}
	return "", fmt.Errorf("failed to dump UI after %d attempts: %v", maxRetries, err)
}

// Root dumps and parses the active window. nil when unavailable.
func (b *AdbBackend) Root() types.UINode {
	ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
	defer cancel()

	raw, err := b.DumpHierarchy(ctx)
	if err != nil {
		LogWarn("adb").Err(err).Msg("UI dump failed")
		return nil
	}
	root, err := ParseHierarchy(raw)
	if err != nil {
		LogWarn("adb").Err(err).Msg("UI parse failed")
		return nil
	}
	return newAdbNode(b, root)
}

// ========================================
// Input
// ========================================

// DispatchGesture replays strokes in order. Single-point strokes become
// taps, longer paths become a swipe from first to last point.
func (b *AdbBackend) DispatchGesture(strokes []types.Stroke) bool {
	if len(strokes) == 0 {
		return false
	}
	for _, s := range strokes {
		if s.StartDelayMs > 0 {
			time.Sleep(time.Duration(s.StartDelayMs) * time.Millisecond)
		}
		var err error
		switch len(s.Path) {
		case 0:
			return false
		case 1:
			err = b.tap(s.Path[0])
		default:
			err = b.swipe(s.Path[0], s.Path[len(s.Path)-1], s.DurationMs)
		}
		if err != nil {
			LogWarn("adb").Err(err).Msg("Gesture dispatch failed")
			return false
		}
	}
	return true
}

func (b *AdbBackend) tap(p types.Point) error {
	return b.shellTimeout(fmt.Sprintf("input tap %d %d", p.X, p.Y))
}

func (b *AdbBackend) swipe(from, to types.Point, durationMs int64) error {
	return b.shellTimeout(fmt.Sprintf("input swipe %d %d %d %d %d", from.X, from.Y, to.X, to.Y, durationMs))
}

func (b *AdbBackend) keyEvent(code int) error {
	return b.shellTimeout("input keyevent " + strconv.Itoa(code))
}

func (b *AdbBackend) PerformGlobalAction(a types.GlobalAction) bool {
	var err error
	switch a {
	case types.GlobalHome:
		err = b.keyEvent(keyHome)
	case types.GlobalBack:
		err = b.keyEvent(keyBack)
	default:
		return false
	}
	if err != nil {
		LogWarn("adb").Err(err).Str("action", a.String()).Msg("Global action failed")
		return false
	}
	return true
}

func (b *AdbBackend) VolumeUp() error {
	return b.keyEvent(keyVolumeUp)
}

func (b *AdbBackend) VolumeDown() error {
	return b.keyEvent(keyVolumeDown)
}

// ========================================
// Wake lock
// ========================================

type stayOnHandle struct {
	backend *AdbBackend
}

func (h stayOnHandle) Release() error {
	return h.backend.shellTimeout("svc power stayon false")
}

// AcquireWakeLock keeps the screen on while the device is powered
func (b *AdbBackend) AcquireWakeLock() (action.WakeHandle, error) {
	if err := b.shellTimeout("svc power stayon true"); err != nil {
		return nil, fmt.Errorf("failed to keep screen on: %w", err)
	}
	return stayOnHandle{backend: b}, nil
}
