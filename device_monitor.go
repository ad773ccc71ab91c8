package main

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"AutoFlip/pkg/types"
)

// ========================================
// FocusMonitor - 前台应用监控
// 轮询 resumed activity, 变化时产生 window-state 事件
// ========================================

// ActivitySource reports the device's foreground
type ActivitySource interface {
	CurrentActivity(ctx context.Context) (pkg, activity string, err error)
	DumpHierarchy(ctx context.Context) (string, error)
}

// EventSink accepts raw backend events without blocking
type EventSink interface {
	Ingest(raw types.RawEvent) bool
}

// FocusMonitor turns adb polling into the event stream an on-device
// accessibility service would deliver.
type FocusMonitor struct {
	source          ActivitySource
	sink            EventSink
	interval        time.Duration
	contentInterval time.Duration // 0 disables content polling
	now             func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 状态缓存
	stateMu      sync.Mutex
	lastPackage  string
	lastActivity string
	lastDigest   uint64
}

func NewFocusMonitor(source ActivitySource, sink EventSink, interval, contentInterval time.Duration) *FocusMonitor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &FocusMonitor{
		source:          source,
		sink:            sink,
		interval:        interval,
		contentInterval: contentInterval,
		now:             time.Now,
	}
}

// Start 启动监控
func (m *FocusMonitor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.pollActivity()

	if m.contentInterval > 0 {
		m.wg.Add(1)
		go m.pollContent()
	}
}

// Stop 停止监控
func (m *FocusMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
}

func (m *FocusMonitor) pollActivity() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// 立即执行一次
	m.checkCurrentActivity()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkCurrentActivity()
		}
	}
}

func (m *FocusMonitor) pollContent() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.contentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkContent()
		}
	}
}

// checkCurrentActivity 检查当前 Activity
func (m *FocusMonitor) checkCurrentActivity() {
	ctx, cancel := context.WithTimeout(m.ctx, 3*time.Second)
	defer cancel()

	pkg, activity, err := m.source.CurrentActivity(ctx)
	if err != nil || pkg == "" {
		return
	}

	m.stateMu.Lock()
	changed := m.lastPackage != pkg || m.lastActivity != activity
	m.lastPackage = pkg
	m.lastActivity = activity
	m.stateMu.Unlock()

	if changed {
		m.sink.Ingest(types.RawEvent{
			Type:        types.TypeWindowStateChanged,
			Time:        m.now().UnixMilli(),
			PackageName: pkg,
			ClassName:   activity,
		})
	}
}

// checkContent emits a content change when the dump differs from the last one
func (m *FocusMonitor) checkContent() {
	ctx, cancel := context.WithTimeout(m.ctx, dumpTimeout)
	defer cancel()

	raw, err := m.source.DumpHierarchy(ctx)
	if err != nil {
		return
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(raw))
	digest := h.Sum64()

	m.stateMu.Lock()
	changed := m.lastDigest != 0 && m.lastDigest != digest
	m.lastDigest = digest
	pkg := m.lastPackage
	m.stateMu.Unlock()

	if changed {
		m.sink.Ingest(types.RawEvent{
			Type:        types.TypeWindowContentChanged,
			Time:        m.now().UnixMilli(),
			PackageName: pkg,
		})
	}
}
