// Package supervisor runs the app's background workers under one shared
// context, with panic capture and optional restart.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "autopost/pkg/logx"
)

const (
	restartMin = 250 * time.Millisecond
	restartMax = 30 * time.Second

	// A run that lasts this long before failing resets the restart
	// backoff; only rapid-fire failures escalate the delay.
	steadyRunWindow = 30 * time.Second
)

// Supervisor ties a set of named workers to one cancelable context. A
// panic in any worker is captured and recorded instead of crashing the
// process, and with cancel-on-error the first failure brings the rest
// down so the caller can exit cleanly.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg     sync.WaitGroup
	done   chan struct{}
	closer sync.Once

	errMu sync.Mutex
	first error
}

type Option func(*Supervisor)

// WithLogger sets the logger workers report through.
func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first worker failure cancel the shared
// context, so one dead dependency stops the whole unit.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Context is the context every worker runs under.
func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel asks all workers to stop. It does not wait; pair with Wait.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first worker failure, or nil.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.first
}

// Go runs fn until it returns. A non-nil error other than context.Canceled
// is recorded as the supervisor's failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.run(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Go0 is Go for workers that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart keeps fn running: when it fails or panics it is started again
// after a jittered exponential backoff. Returning nil stops the loop for
// good, as does context cancellation. Meant for long-lived loops that
// should ride out transient trouble.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.Go0(name+".restart", func(ctx context.Context) {
		backoff := restartMin
		for ctx.Err() == nil {
			began := time.Now()
			err := s.run(name, fn)

			if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return
			}

			if time.Since(began) >= steadyRunWindow {
				backoff = restartMin
			}
			wait := jitter(backoff)
			s.log.Warn("worker restarting",
				logx.String("worker", name),
				logx.Duration("backoff", wait),
				logx.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if backoff < restartMax {
				backoff *= 2
				if backoff > restartMax {
					backoff = restartMax
				}
			}
		}
	})
}

// Wait blocks until every worker has returned or ctx expires, and then
// reports the first worker failure.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.closer.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}

// run invokes fn once, converting a panic into an error after logging the
// stack.
func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("worker panicked",
				logx.String("worker", name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	s.log.Debug("worker started", logx.String("worker", name))
	err = fn(s.ctx)
	s.log.Debug("worker stopped", logx.String("worker", name))
	return err
}

func (s *Supervisor) fail(err error) {
	s.errMu.Lock()
	if s.first == nil {
		s.first = err
	}
	s.errMu.Unlock()
	if s.cancelOnErr {
		s.cancel()
	}
}

// jitter pads d with up to 20% of itself so restarts spread out.
func jitter(d time.Duration) time.Duration {
	span := int64(d) / 5
	if span <= 0 {
		return d
	}
	return d + time.Duration(time.Now().UnixNano()%(span+1))
}
