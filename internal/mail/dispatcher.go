package mail

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher wraps a Sender with best-effort delivery. Failures are logged and dropped.
type Dispatcher struct {
	sender  Sender
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. timeout bounds each delivery attempt.
func NewDispatcher(sender Sender, log *zap.Logger, timeout time.Duration) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{sender: sender, log: log, timeout: timeout}
}

// Send delivers synchronously and reports whether delivery succeeded.
func (d *Dispatcher) Send(ctx context.Context, to, subject, body string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.deliver(ctx, to, subject, body)
}

// SendAsync delivers in a detached goroutine. The caller's context is not
// inherited so request completion does not cancel delivery.
func (d *Dispatcher) SendAsync(to, subject, body string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.deliver(ctx, to, subject, body)
	}()
}

// Wait blocks until all pending async deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(ctx context.Context, to, subject, body string) bool {
	if err := d.sender.Send(ctx, to, subject, body); err != nil {
		d.log.Warn("mail delivery failed", zap.String("to", to), zap.Error(err))
		return false
	}
	return true
}
