package pipeline

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// ========================================
// Stream - 多播事件流 (带回放缓冲)
// ========================================

// Discipline selects how a subscription copes with events arriving faster
// than its handler consumes them.
type Discipline int

const (
	// Sequential delivers every event in order. The per-subscriber queue is unbounded.
	Sequential Discipline = iota
	// LatestWins keeps one pending event. A newer event replaces an undelivered
	// one and cancels the context of the handler currently running.
	LatestWins
)

func (d Discipline) String() string {
	if d == LatestWins {
		return "latest_wins"
	}
	return "sequential"
}

// Handler consumes one event. ctx is cancelled when the event is superseded
// (LatestWins) or the stream closes.
type Handler func(ctx context.Context, ev types.UIChangeEvent)

// Filter selects which events a subscription sees. nil accepts everything.
type Filter func(ev types.UIChangeEvent) bool

// RingBuffer 环形缓冲区
type RingBuffer struct {
	data  []types.UIChangeEvent
	size  int
	head  int
	count int
	mu    sync.RWMutex
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 0 {
		size = 0
	}
	return &RingBuffer{
		data: make([]types.UIChangeEvent, size),
		size: size,
	}
}

func (r *RingBuffer) Push(event types.UIChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return
	}

	r.data[r.head] = event
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// GetRecent returns up to n most recent events, oldest first
func (r *RingBuffer) GetRecent(n int) []types.UIChangeEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]types.UIChangeEvent, n)
	start := (r.head - n + r.size) % r.size
	for i := 0; i < n; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}

func (r *RingBuffer) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Stream fans published events out to subscriptions. Late subscribers first
// receive the buffered history that passes their filter.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	replay *RingBuffer
	depth  int

	mu     sync.Mutex
	subs   []*Subscription
	closed bool

	wg sync.WaitGroup
}

// NewStream creates a stream replaying the last replayDepth events
func NewStream(replayDepth int) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		replay: NewRingBuffer(replayDepth),
		depth:  replayDepth,
	}
}

// Publish records ev in the replay buffer and offers it to every subscriber.
// It never blocks on a slow handler.
func (s *Stream) Publish(ev types.UIChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.replay.Push(ev)
	for _, sub := range s.subs {
		if sub.accepts(ev) {
			sub.offer(ev)
		}
	}
}

// Subscribe registers handler and starts its worker goroutine
func (s *Stream) Subscribe(filter Filter, discipline Discipline, handler Handler) *Subscription {
	sub := &Subscription{
		stream:     s,
		filter:     filter,
		discipline: discipline,
		handler:    handler,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.closed = true
		close(sub.done)
		close(sub.finished)
		return sub
	}
	for _, ev := range s.replay.GetRecent(s.depth) {
		if sub.accepts(ev) {
			sub.offer(ev)
		}
	}
	s.subs = append(s.subs, sub)
	s.wg.Add(1)
	s.mu.Unlock()

	go sub.run(s.ctx)
	return sub
}

func (s *Stream) remove(target *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == target {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Close stops every subscription and waits for their workers to exit.
// Events still queued are discarded.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	s.cancel()
	for _, sub := range subs {
		sub.close()
	}
	s.wg.Wait()
}

// Subscribers returns the number of live subscriptions
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// ========================================
// Subscription - 订阅者
// ========================================

// Subscription is one consumer of a Stream with its own worker goroutine
type Subscription struct {
	stream     *Stream
	filter     Filter
	discipline Discipline
	handler    Handler

	mu         sync.Mutex
	queue      []types.UIChangeEvent // Sequential
	pending    types.UIChangeEvent   // LatestWins
	hasPending bool
	inFlight   context.CancelFunc
	closed     bool

	notify   chan struct{}
	done     chan struct{}
	finished chan struct{}

	delivered  atomic.Int64
	superseded atomic.Int64
}

// SubscriptionStats 订阅统计
type SubscriptionStats struct {
	Delivered  int64 `json:"delivered"`
	Superseded int64 `json:"superseded"`
}

func (s *Subscription) accepts(ev types.UIChangeEvent) bool {
	return s.filter == nil || s.filter(ev)
}

// offer enqueues ev according to the discipline. Never blocks.
func (s *Subscription) offer(ev types.UIChangeEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch s.discipline {
	case LatestWins:
		if s.hasPending {
			s.superseded.Add(1)
		}
		s.pending = ev
		s.hasPending = true
		if s.inFlight != nil {
			s.inFlight()
		}
	default:
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// take pops the next event. Caller holds s.mu.
func (s *Subscription) take(base context.Context) (types.UIChangeEvent, context.Context, bool) {
	switch s.discipline {
	case LatestWins:
		if !s.hasPending {
			return types.UIChangeEvent{}, nil, false
		}
		ev := s.pending
		s.pending = types.UIChangeEvent{}
		s.hasPending = false
		ctx, cancel := context.WithCancel(base)
		s.inFlight = cancel
		return ev, ctx, true
	default:
		if len(s.queue) == 0 {
			return types.UIChangeEvent{}, nil, false
		}
		ev := s.queue[0]
		s.queue[0] = types.UIChangeEvent{}
		s.queue = s.queue[1:]
		return ev, base, true
	}
}

func (s *Subscription) run(base context.Context) {
	defer s.stream.wg.Done()
	defer close(s.finished)

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev, ctx, ok := s.take(base)
		s.mu.Unlock()

		if ok {
			s.invoke(ctx, ev)
			continue
		}

		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) invoke(ctx context.Context, ev types.UIChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic("pipeline", r, string(debug.Stack()))
		}
		s.mu.Lock()
		if s.inFlight != nil {
			s.inFlight()
			s.inFlight = nil
		}
		s.mu.Unlock()
	}()

	s.delivered.Add(1)
	s.handler(ctx, ev)
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.hasPending = false
	if s.inFlight != nil {
		s.inFlight()
	}
	s.mu.Unlock()
	close(s.done)
}

// Unsubscribe detaches the subscription. The handler will not be invoked
// for further events; an invocation already running is cancelled but not awaited.
func (s *Subscription) Unsubscribe() {
	s.stream.remove(s)
	s.close()
}

// Done is closed once the worker goroutine has exited
func (s *Subscription) Done() <-chan struct{} {
	return s.finished
}

func (s *Subscription) Discipline() Discipline {
	return s.discipline
}

func (s *Subscription) Stats() SubscriptionStats {
	return SubscriptionStats{
		Delivered:  s.delivered.Load(),
		Superseded: s.superseded.Load(),
	}
}
