package config

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "autopost/pkg/logx"
)

const (
	// reloadSettle is how long a changed file must stay quiet before it is
	// re-read. Editors save via write bursts or rename dances; reading too
	// early sees half a file.
	reloadSettle = 250 * time.Millisecond

	validateTimeout = 5 * time.Second

	watchRetryBase = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
)

// ConfigManager owns the config file: it loads it, hands out the current
// snapshot, and while watching re-reads the file on change and fans new
// snapshots out to subscribers. Snapshots are immutable; a reload swaps the
// pointer rather than mutating in place.
type ConfigManager struct {
	path string

	mu  sync.RWMutex
	cfg *Config
	// lastHash fingerprints the committed snapshot so editor noise (touch,
	// re-save without edits) does not trigger a publish.
	lastHash uint64

	// subsMu serializes subscriber adds, removes and sends, so publish can
	// never race a close in Unsubscribe.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the check Watch runs on a freshly parsed config
// before committing it. A rejection keeps the previous snapshot live.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the config file without committing the result.
func (m *ConfigManager) Parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	if isYAMLPath(m.path) {
		if raw, err = yamlBytesToJSON(raw); err != nil {
			return nil, err
		}
	}
	return decodeStrict(raw)
}

// Commit makes cfg the current snapshot.
func (m *ConfigManager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Load parses the file and commits the result.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

// Get returns the current snapshot. Callers must treat it as read-only.
func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe registers a channel that receives every committed reload.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i := range m.subs {
		if m.subs[i] != ch {
			continue
		}
		last := len(m.subs) - 1
		m.subs[i], m.subs[last] = m.subs[last], nil
		m.subs = m.subs[:last]
		close(ch)
		return
	}
}

// publish delivers cfg to every subscriber. A full buffer loses its oldest
// entry, not the newest: a subscriber that wakes up late should see where
// the config is now, not where it has been.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped, subscriber not draining",
				logx.Int("queue_cap", cap(ch)))
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// reload re-reads the file after a change and, when the content is new and
// valid, commits and publishes it. Any failure leaves the previous snapshot
// in place.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload failed, keeping previous",
			logx.String("path", m.path), logx.Err(err))
		return
	}

	sum := hashConfig(cfg)
	m.mu.RLock()
	unchanged := sum != 0 && sum == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged, skipping publish", logx.String("path", m.path))
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected, keeping previous",
				logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config committed", logx.String("path", m.path), logx.Uint64("hash", sum))
}

// Watch re-reads the config whenever the file changes, until ctx ends.
// Setup failures are retried with jittered exponential backoff, and a
// watcher that dies mid-run is recreated. Always returns nil once ctx is
// cancelled.
func (m *ConfigManager) Watch(ctx context.Context) error {
	// One timer coalesces an event burst into a single reload; every new
	// event pushes the deadline out.
	var (
		timerMu sync.Mutex
		settle  *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if settle != nil {
			settle.Stop()
		}
		timerMu.Unlock()
	}()
	kick := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if settle == nil {
			settle = time.AfterFunc(reloadSettle, func() { m.reload(ctx) })
			return
		}
		settle.Reset(reloadSettle)
	}

	retry := newRetryDelay(watchRetryBase, watchRetryMax)
	for ctx.Err() == nil {
		err := m.watchOnce(ctx, kick)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// The watcher got as far as running, so the next attempt is
			// likely to succeed too.
			retry.reset()
		}
		wait := retry.next()
		if err != nil {
			m.log.Warn("config watch setup failed",
				logx.Err(err), logx.Duration("retry_in", wait))
		} else {
			m.log.Warn("config watcher stopped, restarting",
				logx.String("path", m.path), logx.Duration("retry_in", wait))
		}
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
	return nil
}

// watchOnce runs a single watcher lifetime. It returns an error when the
// watcher could not be set up, and nil once the event stream ends because
// the context was cancelled or the watcher broke.
func (m *ConfigManager) watchOnce(ctx context.Context, changed func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory, not the file: rename-based saves replace the
	// inode, and a watch pinned to the old inode goes silent.
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(m.path)
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", base))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), base) {
				continue
			}
			// Renames and removals matter as much as writes: atomic-save
			// editors replace the file instead of writing it in place.
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				m.log.Debug("config change detected", logx.String("op", ev.Op.String()))
				changed()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if werr == nil {
				continue
			}
			lower := strings.ToLower(werr.Error())
			if strings.Contains(lower, "overflow") {
				// The kernel event queue overflowed and changes may have
				// been missed; reload once regardless.
				m.log.Warn("config watch overflow, reloading", logx.Err(werr))
				changed()
				continue
			}
			m.log.Warn("config watch error", logx.Err(werr))
			if strings.Contains(lower, "closed") {
				return nil
			}
		}
	}
}

// retryDelay yields jittered waits that double up to a cap.
type retryDelay struct {
	cur, base, max time.Duration
	rng            *rand.Rand
}

func newRetryDelay(base, max time.Duration) *retryDelay {
	return &retryDelay{
		cur:  base,
		base: base,
		max:  max,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *retryDelay) reset() { r.cur = r.base }

// next returns the current delay plus up to half again in jitter, then
// doubles the delay for the following call.
func (r *retryDelay) next() time.Duration {
	d := r.cur + time.Duration(r.rng.Int63n(int64(r.cur/2)+1))
	r.cur *= 2
	if r.cur > r.max {
		r.cur = r.max
	}
	return d
}

// sleepCtx pauses for d unless ctx ends first. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
