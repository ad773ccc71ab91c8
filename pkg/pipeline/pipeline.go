package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// ========================================
// Pipeline - 事件摄取与分发
// ========================================

const (
	DefaultQueueSize   = 256
	DefaultReplayDepth = 10
)

// Options 管道参数
type Options struct {
	QueueSize   int
	ReplayDepth int // 0 = default, negative disables replay
}

// Stats 管道统计
type Stats struct {
	Ingested    int64 `json:"ingested"`
	Dropped     int64 `json:"dropped"`
	Published   int64 `json:"published"`
	Subscribers int   `json:"subscribers"`
}

// Pipeline accepts raw backend events without blocking, normalizes them and
// publishes them onto a replaying Stream from a single distribution worker.
type Pipeline struct {
	eventChan chan types.UIChangeEvent
	stream    *Stream

	ingested  atomic.Int64
	dropped   atomic.Int64
	published atomic.Int64

	stopChan  chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New 创建事件管道
func New(opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	switch {
	case opts.ReplayDepth == 0:
		opts.ReplayDepth = DefaultReplayDepth
	case opts.ReplayDepth < 0:
		opts.ReplayDepth = 0 // 关闭回放
	}
	return &Pipeline{
		eventChan: make(chan types.UIChangeEvent, opts.QueueSize),
		stream:    NewStream(opts.ReplayDepth),
		stopChan:  make(chan struct{}),
	}
}

// Ingest normalizes raw and enqueues it. Returns false when the event was dropped.
func (p *Pipeline) Ingest(raw types.RawEvent) bool {
	return p.IngestEvent(types.FromRaw(raw))
}

// IngestEvent enqueues an already normalized event
func (p *Pipeline) IngestEvent(ev types.UIChangeEvent) bool {
	select {
	case <-p.stopChan:
		p.dropped.Add(1)
		return false
	default:
	}

	select {
	case p.eventChan <- ev:
		p.ingested.Add(1)
		return true
	default:
		p.dropped.Add(1)
		// 窗口切换事件丢失会导致焦点状态过期
		log := logging.LogWarn("pipeline")
		if ev.Kind == types.KindWindowStateChanged {
			log = logging.LogError("pipeline")
		}
		log.Str("kind", ev.Kind.String()).
			Str("appId", ev.AppID).
			Int("queueSize", cap(p.eventChan)).
			Msg("Event queue full, event dropped")
		return false
	}
}

// Start 启动分发协程
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.processEvents(ctx)
	})
}

// Stop drains the queue, stops the distribution worker and closes every subscription
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		p.stream.Close()
		logging.LogDebug("pipeline").
			Int64("ingested", p.ingested.Load()).
			Int64("dropped", p.dropped.Load()).
			Int64("published", p.published.Load()).
			Msg("Pipeline stopped")
	})
}

// processEvents 事件分发主循环
func (p *Pipeline) processEvents(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case ev := <-p.eventChan:
			p.publish(ev)
		case <-ctx.Done():
			return
		case <-p.stopChan:
			// 处理剩余事件
			for {
				select {
				case ev := <-p.eventChan:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) publish(ev types.UIChangeEvent) {
	p.stream.Publish(ev)
	p.published.Add(1)
}

// Stream exposes the underlying multicast stream
func (p *Pipeline) Stream() *Stream {
	return p.stream
}

// Subscribe is shorthand for Stream().Subscribe
func (p *Pipeline) Subscribe(filter Filter, discipline Discipline, handler Handler) *Subscription {
	return p.stream.Subscribe(filter, discipline, handler)
}

// View is a filtered projection of a Stream
type View struct {
	stream *Stream
	filter Filter
}

func (v View) Subscribe(discipline Discipline, handler Handler) *Subscription {
	return v.stream.Subscribe(v.filter, discipline, handler)
}

// KindFilter accepts events of the given kind
func KindFilter(kind types.EventKind) Filter {
	return func(ev types.UIChangeEvent) bool { return ev.Kind == kind }
}

// WindowStateChanges 窗口状态变化事件
func (p *Pipeline) WindowStateChanges() View {
	return View{stream: p.stream, filter: KindFilter(types.KindWindowStateChanged)}
}

// ContentChanges 窗口内容变化事件
func (p *Pipeline) ContentChanges() View {
	return View{stream: p.stream, filter: KindFilter(types.KindContentChanged)}
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Ingested:    p.ingested.Load(),
		Dropped:     p.dropped.Load(),
		Published:   p.published.Load(),
		Subscribers: p.stream.Subscribers(),
	}
}
