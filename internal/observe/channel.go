package observe

import (
	"sync"
	"sync/atomic"
)

// Kind discriminates Signal payloads
type Kind string

const (
	KindRequestCompleted   Kind = "request_completed"
	KindRequestFailed      Kind = "request_failed"
	KindConcurrencyChanged Kind = "concurrency_changed"
)

// Signal is one observer call queued on a channel. Exactly one payload
// matching Kind is set.
type Signal struct {
	Kind        Kind
	Completed   *RequestCompleted
	Failed      *RequestFailed
	Concurrency *ConcurrencyChanged
}

// ChannelObserver queues signals on a buffered channel. When the buffer is
// full the signal is dropped and counted, so producers never block.
type ChannelObserver struct {
	mu      sync.RWMutex
	ch      chan Signal
	closed  bool
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelObserver{ch: make(chan Signal, buffer)}
}

// Signals is the consumer side of the queue.
func (o *ChannelObserver) Signals() <-chan Signal {
	return o.ch
}

// Close closes the channel. Later signals are dropped.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// Sent returns the number of queued signals.
func (o *ChannelObserver) Sent() uint64 {
	return o.sent.Load()
}

// Dropped returns the number of signals lost to a full buffer or a closed channel.
func (o *ChannelObserver) Dropped() uint64 {
	return o.dropped.Load()
}

func (o *ChannelObserver) RequestCompleted(e RequestCompleted) {
	o.send(Signal{Kind: KindRequestCompleted, Completed: &e})
}

func (o *ChannelObserver) RequestFailed(e RequestFailed) {
	o.send(Signal{Kind: KindRequestFailed, Failed: &e})
}

func (o *ChannelObserver) ConcurrencyChanged(e ConcurrencyChanged) {
	o.send(Signal{Kind: KindConcurrencyChanged, Concurrency: &e})
}

func (o *ChannelObserver) send(s Signal) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped.Add(1)
		return
	}
	select {
	case o.ch <- s:
		o.sent.Add(1)
	default:
		o.dropped.Add(1)
	}
}
