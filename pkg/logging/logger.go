package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ========================================
// Structured Logger - 结构化日志系统
// ========================================

// Logger 全局日志实例
var Logger zerolog.Logger

var (
	logFile   *os.File
	logFileMu sync.Mutex
)

// LogConfig 日志配置
type LogConfig struct {
	Level    string `json:"level"`   // debug, info, warn, error
	Console  bool   `json:"console"` // 是否输出到控制台
	NoColor  bool   `json:"noColor"`
	FilePath string `json:"filePath,omitempty"` // 追加写入, 不做轮转
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:   "info",
		Console: true,
	}
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// InitLogger 初始化日志系统
func InitLogger(config LogConfig) error {
	var writers []io.Writer

	if config.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			NoColor:    config.NoColor,
		})
	}

	if config.FilePath != "" {
		f, err := openLogFile(config.FilePath)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	// 如果没有配置任何输出，默认输出到控制台
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	SetLevel(ParseLevel(config.Level))
	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()

	return nil
}

// SetOutput replaces the global logger with one writing JSON lines to w.
// Used by tests to capture log output.
func SetOutput(w io.Writer, level zerolog.Level) {
	SetLevel(level)
	Logger = zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel changes the minimum level of the global logger.
// Safe to call while other goroutines are logging.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logFileMu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logFileMu.Unlock()
	return f, nil
}

// CloseLogger 关闭日志文件
func CloseLogger() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// ========================================
// 便捷日志函数
// ========================================

// LogDebug 输出 Debug 级别日志
func LogDebug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

// LogInfo 输出 Info 级别日志
func LogInfo(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

// LogWarn 输出 Warn 级别日志
func LogWarn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

// LogError 输出 Error 级别日志
func LogError(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

// LogPanic 记录 panic 信息
func LogPanic(module string, recovered interface{}, stack string) {
	Logger.Error().
		Str("module", module).
		Str("category", "panic").
		Interface("recovered", recovered).
		Str("stack", stack).
		Msg("Panic recovered")
}

// ========================================
// 性能日志
// ========================================

// OperationTimer 操作计时器
type OperationTimer struct {
	module    string
	operation string
	startTime time.Time
	fields    map[string]string
}

// StartOperation 开始计时
func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{
		module:    module,
		operation: operation,
		startTime: time.Now(),
		fields:    make(map[string]string),
	}
}

// AddDetail 添加详细信息
func (t *OperationTimer) AddDetail(key, value string) *OperationTimer {
	t.fields[key] = value
	return t
}

// End 结束计时并记录日志
func (t *OperationTimer) End() {
	t.emit(Logger.Debug(), nil)
}

// EndWithError 结束计时并记录错误
func (t *OperationTimer) EndWithError(err error) {
	t.emit(Logger.Warn(), err)
}

func (t *OperationTimer) emit(event *zerolog.Event, err error) {
	duration := time.Since(t.startTime)
	event = event.
		Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Int64("duration_ms", duration.Milliseconds())
	for k, v := range t.fields {
		event = event.Str(k, v)
	}
	if err != nil {
		event.Err(err).Msg("Operation failed")
		return
	}
	event.Msg("Operation completed")
}

func init() {
	// 默认初始化 (控制台输出)
	_ = InitLogger(DefaultLogConfig())
}
