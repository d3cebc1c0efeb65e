package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ritera/royalty-engine/royalty"
)

var (
	ErrClosed    = errors.New("notifier closed")
	ErrQueueFull = errors.New("notification queue full")
)

// Async hands messages to worker goroutines so Send never waits on the
// relay. Delivery failures are logged.
type Async struct {
	next royalty.Notifier
	log  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan royalty.Message
	wg     sync.WaitGroup
}

// NewAsync starts workers goroutines draining a buffer of size buffer.
func NewAsync(next royalty.Notifier, log *zap.Logger, workers, buffer int) *Async {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan royalty.Message, buffer),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.run()
	}
	return a
}

// Send queues msg. It fails only when the buffer is full or after Close.
func (a *Async) Send(_ context.Context, msg royalty.Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for msg := range a.queue {
		if err := a.next.Send(context.Background(), msg); err != nil {
			a.log.Warn("mail delivery failed",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting messages and waits for the queued ones.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}
