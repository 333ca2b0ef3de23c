package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"autopost/internal/config"
	logx "autopost/pkg/logx"
)

const (
	userAgent    = "autopost/1.0"
	maxErrorBody = 512
	pingTimeout  = 5 * time.Second
	probeTimeout = 10 * time.Second
)

// ErrNoEndpoint is returned when the client is asked to publish but no
// endpoint was configured.
var ErrNoEndpoint = errors.New("publish: no endpoint configured")

// Request is one submission to the posting API.
type Request struct {
	Title     string
	Content   string
	Hashtags  []string
	MediaURLs []string
}

// Client submits posts to the posting API as multipart form uploads,
// the same shape the API's own web frontend sends. Identity fields
// (user, category, location, device) come from the configuration and
// ride along with every submission.
type Client struct {
	log    logx.Logger
	client *http.Client

	endpoint   string
	apiKey     string
	userID     string
	categoryID string
	state      string
	city       string
	device     string
	countries  []string
	dryRun     bool
}

// NewClient builds a client from the publish configuration. A zero
// logger disables logging.
func NewClient(cfg config.PublishConfig, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout, err := config.ParseDurationOrDefault("publish.timeout", cfg.Timeout, 30*time.Second)
	if err != nil {
		log.Warn("invalid publish timeout, using default", logx.Err(err))
		timeout = 30 * time.Second
	}
	return &Client{
		log:        log,
		client:     &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.ResolvedAPIKey(),
		userID:     cfg.UserID,
		categoryID: cfg.CategoryID,
		state:      cfg.State,
		city:       cfg.City,
		device:     cfg.Device,
		countries:  append([]string(nil), cfg.CountriesISO...),
		dryRun:     cfg.DryRun,
	}
}

// Publish submits one post. A nil error means the API accepted it; the
// caller decides what a failure means for the day's plan.
func (c *Client) Publish(ctx context.Context, req Request) error {
	if c.dryRun {
		c.log.Info("dry run, post withheld",
			logx.String("title", req.Title),
			logx.Int("content_len", len(req.Content)),
			logx.Int("hashtags", len(req.Hashtags)))
		return nil
	}
	if c.endpoint == "" {
		return ErrNoEndpoint
	}

	body, contentType, err := c.encodeForm(req)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("post %s: status %d: %s",
			c.endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Info("post accepted",
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)))
	return nil
}

// Ping reports whether the posting API looks reachable. It walks the
// well-known ping paths next to the endpoint with GET requests and, if
// none answer, probes the endpoint itself with a minimal submission.
// Auth rejections count as reachable since they prove the API answers.
func (c *Client) Ping(ctx context.Context) bool {
	if c.dryRun {
		return true
	}
	if c.endpoint == "" {
		return false
	}
	for _, target := range c.pingTargets() {
		if c.tryGet(ctx, target) {
			c.log.Info("api reachable", logx.String("url", target))
			return true
		}
	}
	if c.probePost(ctx) {
		c.log.Info("api reachable", logx.String("url", c.endpoint))
		return true
	}
	c.log.Warn("api unreachable", logx.String("endpoint", c.endpoint))
	return false
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

func (c *Client) encodeForm(req Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	var werr error
	field := func(name, value string) {
		if werr == nil {
			werr = form.WriteField(name, value)
		}
	}

	field("title", req.Title)
	field("category_id", c.categoryID)
	field("state", c.state)
	field("device", c.device)
	field("city", c.city)
	field("user_id", c.userID)
	field("content", req.Content)
	for _, iso := range c.countries {
		field("countries_iso[]", iso)
	}
	// The API expects the hashtags array key even when there are none.
	if len(req.Hashtags) == 0 {
		field("hashtags[]", "")
	}
	for _, tag := range req.Hashtags {
		field("hashtags[]", tag)
	}
	for _, u := range req.MediaURLs {
		field("media_files_urls[]", u)
	}
	if werr != nil {
		return nil, "", werr
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

// pingTargets lists the health paths to try, rooted one path segment
// above the posting endpoint.
func (c *Client) pingTargets() []string {
	base := strings.TrimRight(c.endpoint, "/")
	if u, err := url.Parse(base); err == nil && u.Path != "" {
		u.Path = path.Dir(u.Path)
		if u.Path == "/" || u.Path == "." {
			u.Path = ""
		}
		base = strings.TrimRight(u.String(), "/")
	}
	return []string{base + "/ping", base + "/health", base + "/status", base}
}

func (c *Client) tryGet(ctx context.Context, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("ping failed", logx.String("url", target), logx.Err(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func (c *Client) probePost(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	body, contentType, err := c.encodeForm(Request{
		Title:   "Connection Test",
		Content: "This is a connection test post.",
	})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return false
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("probe failed", logx.Err(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	c.log.Debug("probe rejected", logx.Int("status", resp.StatusCode))
	return false
}
