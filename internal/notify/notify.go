package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"autopost/internal/config"
	logx "autopost/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notify: disabled")
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: stopped")
)

// Sender delivers one notification to wherever the driver points.
type Sender interface {
	Send(ctx context.Context, title, message string) error
}

// NewSender builds the delivery backend for the configured driver. A
// nil Sender with a nil error means notifications are switched off.
func NewSender(cfg config.NotifyConfig, log logx.Logger) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return nil, nil
	case "desktop":
		return newDesktopSender(log), nil
	case "telegram":
		return newTelegramSender(cfg.Telegram, log)
	default:
		return nil, fmt.Errorf("notify: unknown driver %q", cfg.Driver)
	}
}

type item struct {
	title   string
	message string
}

// Service runs deliveries through a bounded queue with a single worker
// so a slow or broken backend can never stall posting. Overflow drops
// the notification and counts it; delivery is best-effort throughout.
type Service struct {
	log       logx.Logger
	sender    Sender
	limiter   *rate.Limiter
	timeout   time.Duration
	queueSize int

	mu        sync.Mutex
	queue     chan item
	accepting bool
	sendWG    sync.WaitGroup
	done      chan struct{}

	dropped atomic.Uint64
}

// NewService wraps sender with the queueing pipeline. A nil sender
// yields a disabled service whose Notify returns ErrDisabled.
func NewService(cfg config.NotifyConfig, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	timeout, err := config.ParseDurationOrDefault("notify.timeout", cfg.Timeout, 5*time.Second)
	if err != nil {
		log.Warn("invalid delivery timeout, using default", logx.Err(err))
		timeout = 5 * time.Second
	}
	return &Service{
		log:       log,
		sender:    sender,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		timeout:   timeout,
		queueSize: cfg.QueueSize,
	}
}

// Enabled reports whether a sender is configured. A disabled service
// rejects every Notify with ErrDisabled.
func (s *Service) Enabled() bool { return s.sender != nil }

// Start launches the delivery worker. It is idempotent and a no-op for
// a disabled service. Cancelling ctx abandons queued deliveries; use
// Stop for a draining shutdown.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sender == nil || s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan item, s.queueSize)
	s.accepting = true
	s.done = make(chan struct{})
	q := s.queue
	done := s.done
	s.mu.Unlock()

	go s.workerLoop(ctx, q, done)
}

// Notify queues one notification. It never blocks: a full queue drops
// the notification and reports ErrQueueFull.
func (s *Service) Notify(ctx context.Context, title, message string) error {
	if s.sender == nil {
		return ErrDisabled
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- item{title: title, message: message}:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop halts intake and drains queued deliveries until ctx runs out.
// Safe to call more than once.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q := s.queue
	done := s.done
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.done = nil
	s.mu.Unlock()

	// In-flight enqueues finish before the queue closes.
	s.sendWG.Wait()
	close(q)
	select {
	case <-done:
	case <-ctx.Done():
	}

	if n := s.dropped.Load(); n > 0 {
		s.log.Warn("notifications dropped", logx.Uint64("count", n))
	}
}

// Dropped reports how many notifications overflowed the queue.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

func (s *Service) workerLoop(ctx context.Context, q <-chan item, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, it)
		}
	}
}

func (s *Service) deliver(ctx context.Context, it item) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.sender.Send(callCtx, it.title, it.message)
	cancel()
	if err != nil {
		s.log.Warn("delivery failed", logx.String("title", it.title), logx.Err(err))
		return
	}
	s.log.Debug("delivered", logx.String("title", it.title))
}
