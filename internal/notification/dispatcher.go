package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher decouples notification delivery from the caller. Enqueue never
// blocks; delivery errors are logged and dropped.
type Dispatcher struct {
	next        Notifier
	logger      *zap.Logger
	queue       chan Message
	sendTimeout time.Duration
	workers     int

	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

// DispatcherConfig tunes the queue.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// NewDispatcher builds a dispatcher. Call Start before use and Stop on shutdown.
func NewDispatcher(next Notifier, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		next:        next,
		logger:      logger,
		queue:       make(chan Message, cfg.QueueSize),
		sendTimeout: cfg.SendTimeout,
		workers:     cfg.Workers,
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop closes the queue and waits for queued messages to drain.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

// Send enqueues the message and returns immediately. It satisfies Notifier
// so the dispatcher can wrap any sink.
func (d *Dispatcher) Send(_ context.Context, message Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.logger.Warn("notification dropped after shutdown", zap.String("kind", message.Kind))
		return nil
	}
	select {
	case d.queue <- message:
	default:
		d.logger.Warn("notification queue full, dropping message",
			zap.String("kind", message.Kind),
			zap.String("destination", message.Destination),
		)
	}
	return nil
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sink panicked", zap.Any("panic", r), zap.String("kind", msg.Kind))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	if err := d.next.Send(ctx, msg); err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("kind", msg.Kind),
			zap.String("destination", msg.Destination),
			zap.Error(err),
		)
	}
}
