package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher delivers events to a sink on a background worker so that
// business operations never wait on a notification channel. Events are
// dropped (and logged) when the buffer is full or the dispatcher is closed.
type Dispatcher struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, log *slog.Logger, buffer int, timeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{sink: sink, log: log, timeout: timeout, ch: make(chan Event, buffer)}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues e and returns immediately. It always returns nil.
func (d *Dispatcher) Notify(_ context.Context, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification dropped: dispatcher closed", "kind", e.Kind)
		return nil
	}
	select {
	case d.ch <- e:
	default:
		d.log.Warn("notification dropped: buffer full", "kind", e.Kind)
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.ch {
		if err := d.deliver(e); err != nil {
			d.log.Warn("notification failed", "kind", e.Kind, "err", err)
		}
	}
}

func (d *Dispatcher) deliver(e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.sink.Notify(ctx, e)
}
