package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"autopost/internal/config"
	logx "autopost/pkg/logx"
)

const (
	userAgent   = "autopost/1.0"
	maxBodySize = 1 << 20 // content APIs return tiny payloads; anything bigger is broken
)

// Post is one piece of publishable content.
type Post struct {
	Title   string
	Content string
	// Source names the API the content came from, or FallbackSource.
	Source string
}

// Fetcher pulls post content from JSON APIs with a local fallback pool.
type Fetcher struct {
	log          logx.Logger
	client       *http.Client
	sources      []config.SourceConfig
	fallbackOnly bool

	mu  sync.Mutex
	rng *rand.Rand
}

func NewFetcher(cfg config.ContentConfig, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	sources := cfg.Sources
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	timeout, err := config.ParseDurationOrDefault("content.request_timeout", cfg.RequestTimeout, 10*time.Second)
	if err != nil {
		log.Warn("invalid request timeout, using default", logx.Err(err))
		timeout = 10 * time.Second
	}
	return &Fetcher{
		log:          log,
		client:       &http.Client{Timeout: timeout},
		sources:      sources,
		fallbackOnly: cfg.FallbackOnly,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch tries the sources in random order and returns the first post
// with usable content. It never fails: when every source errors out the
// fallback pool serves instead.
func (f *Fetcher) Fetch(ctx context.Context) Post {
	if !f.fallbackOnly {
		for _, src := range f.shuffled() {
			post, err := f.fetchOne(ctx, src)
			if err != nil {
				f.log.Warn("content source failed",
					logx.String("source", src.Name),
					logx.Err(err),
				)
				continue
			}
			f.log.Debug("content fetched", logx.String("source", src.Name))
			return post
		}
		f.log.Warn("all content sources failed, serving fallback")
	}
	return f.Fallback()
}

func (f *Fetcher) fetchOne(ctx context.Context, src config.SourceConfig) (Post, error) {
	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", userAgent)
			req.Header.Set("Accept", "application/json")

			resp, err := f.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			// 4xx will not heal on retry; 5xx and transport errors might.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
			return err
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			f.log.Debug("retrying content source",
				logx.String("source", src.Name),
				logx.Uint64("attempt", uint64(n)),
				logx.Err(err),
			)
		}),
	)
	if err != nil {
		return Post{}, err
	}
	return buildPost(src, body)
}

// buildPost extracts the configured keys from the response and composes
// the final text: content, then " - author", then the punchline on its
// own line.
func buildPost(src config.SourceConfig, body []byte) (Post, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return Post{}, fmt.Errorf("decode %s response: %w", src.Name, err)
	}

	text := extractPath(data, src.ContentKey)
	if text == "" {
		return Post{}, fmt.Errorf("no content at %q", src.ContentKey)
	}
	if src.AuthorKey != "" {
		if author := extractPath(data, src.AuthorKey); author != "" {
			text += " - " + author
		}
	}
	if src.PunchlineKey != "" {
		if punch := extractPath(data, src.PunchlineKey); punch != "" {
			text += "\n" + punch
		}
	}

	post := Post{Content: text, Source: src.Name}
	if src.TitleKey != "" {
		post.Title = extractPath(data, src.TitleKey)
	}
	return post, nil
}

// extractPath walks data by dot-separated keys. A numeric key indexes
// into an array, anything else into an object, so "slip.advice",
// "facts.0" and a bare "0" all resolve. Returns "" when the path misses
// or lands on a non-scalar.
func extractPath(data any, path string) string {
	cur := data
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return ""
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return ""
			}
			cur = node[idx]
		default:
			return ""
		}
	}
	return scalarString(cur)
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func (f *Fetcher) shuffled() []config.SourceConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]config.SourceConfig, len(f.sources))
	copy(out, f.sources)
	f.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// DefaultSources is the built-in rotation of public content APIs used
// when the config names none.
func DefaultSources() []config.SourceConfig {
	return []config.SourceConfig{
		{
			Name:       "Quotes API",
			URL:        "https://api.quotable.io/random",
			ContentKey: "content",
			AuthorKey:  "author",
		},
		{
			Name:         "Joke API",
			URL:          "https://official-joke-api.appspot.com/random_joke",
			ContentKey:   "setup",
			PunchlineKey: "punchline",
		},
		{
			Name:       "Advice API",
			URL:        "https://api.adviceslip.com/advice",
			ContentKey: "slip.advice",
		},
		{
			Name:       "Useless Facts API",
			URL:        "https://uselessfacts.jsph.pl/api/v2/facts/random",
			ContentKey: "text",
		},
		{
			Name:       "Dog Facts API",
			URL:        "https://dog-api.kinduff.com/api/facts",
			ContentKey: "facts.0",
		},
		{
			Name:       "Random Word API",
			URL:        "https://random-word-api.herokuapp.com/word",
			ContentKey: "0",
		},
		{
			Name:       "Bored API",
			URL:        "https://www.boredapi.com/api/activity",
			ContentKey: "activity",
			TitleKey:   "type",
		},
	}
}
