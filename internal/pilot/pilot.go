// Package pilot translates between transports and the manager.
//
// DevicePilot speaks MQTT to the recorders; BrowserPilot speaks WebSocket to
// the browsers. Both only check the shape of what they receive. Business
// rules (conflicts, states, existence) belong to the manager.
package pilot

import (
	"context"
	"sync"
)

// Logger is the logging interface used by the pilots.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// fifo is an unbounded queue drained into a channel. Producers never block,
// so a transport callback cannot stall behind a busy consumer.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{signal: make(chan struct{}, 1)}
}

func (q *fifo[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *fifo[T]) take() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// drain forwards queued items to out in order until ctx is cancelled.
func (q *fifo[T]) drain(ctx context.Context, out chan<- T) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
		}
		for _, v := range q.take() {
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}
}
