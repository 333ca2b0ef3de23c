package notify

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"autopost/internal/config"
	logx "autopost/pkg/logx"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.mu.Lock()
	r.sent = append(r.sent, title+" | "+message)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// blockingSender parks inside Send until released so tests can pin the
// worker mid-delivery.
type blockingSender struct {
	entered chan struct{}
	release chan struct{}
	rec     recordingSender
}

func (b *blockingSender) Send(ctx context.Context, title, message string) error {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.rec.Send(ctx, title, message)
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	s := NewService(config.NotifyConfig{QueueSize: 8, RatePerSec: 100}, sender, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	for i, m := range []string{"one", "two", "three"} {
		if err := s.Notify(ctx, "t", m); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	want := []string{"t | one", "t | two", "t | three"}
	if got := sender.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	if err := s.Notify(ctx, "late", "x"); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop = %v, want ErrStopped", err)
	}
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	sender := &blockingSender{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewService(config.NotifyConfig{QueueSize: 1, RatePerSec: 100}, sender, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	if err := s.Notify(ctx, "a", "first"); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	<-sender.entered // worker now busy, queue empty

	if err := s.Notify(ctx, "b", "second"); err != nil {
		t.Fatalf("second Notify: %v", err)
	}
	if err := s.Notify(ctx, "c", "third"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Notify = %v, want ErrQueueFull", err)
	}
	if got := s.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}

	close(sender.release)
	<-sender.entered // worker moved on to the queued delivery

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if got := sender.rec.snapshot(); len(got) != 2 {
		t.Fatalf("delivered %d notifications, want 2", len(got))
	}
}

func TestServiceDisabled(t *testing.T) {
	t.Parallel()
	s := NewService(config.NotifyConfig{}, nil, logx.Nop())
	s.Start(context.Background())
	if err := s.Notify(context.Background(), "t", "m"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Notify = %v, want ErrDisabled", err)
	}
	s.Stop(context.Background())
}

func TestNotifyBeforeStart(t *testing.T) {
	t.Parallel()
	s := NewService(config.NotifyConfig{}, &recordingSender{}, logx.Nop())
	if err := s.Notify(context.Background(), "t", "m"); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify = %v, want ErrStopped", err)
	}
}

func TestNewSenderDrivers(t *testing.T) {
	t.Setenv("AUTOPOST_TELEGRAM_TOKEN", "")

	if s, err := NewSender(config.NotifyConfig{Driver: "none"}, logx.Nop()); err != nil || s != nil {
		t.Fatalf("none driver: sender=%v err=%v", s, err)
	}
	if s, err := NewSender(config.NotifyConfig{}, logx.Nop()); err != nil || s != nil {
		t.Fatalf("empty driver: sender=%v err=%v", s, err)
	}
	if s, err := NewSender(config.NotifyConfig{Driver: "desktop"}, logx.Nop()); err != nil || s == nil {
		t.Fatalf("desktop driver: sender=%v err=%v", s, err)
	}
	if _, err := NewSender(config.NotifyConfig{Driver: "telegram"}, logx.Nop()); err == nil {
		t.Fatal("telegram driver without a token must fail")
	}
	if _, err := NewSender(config.NotifyConfig{Driver: "carrier-pigeon"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must fail")
	}
}
