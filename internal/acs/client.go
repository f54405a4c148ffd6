// Package acs is the client for the TR-069 auto-configuration server that
// owns the device collection (GenieACS NBI flavour).
package acs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/metrics"
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	// Retries applies to idempotent reads only
	Retries          int
	Backoff          []time.Duration
	RatePerSec       int
	Burst            int
	BreakerThreshold int
	BreakerTimeout   time.Duration
	// ServerFilter false makes Query return ErrFilterUnsupported
	ServerFilter bool
	HTTPClient   *http.Client
	Logger       *zap.Logger
	Metrics      *metrics.AppMetrics
}

// Client talks to the ACS northbound HTTP API.
type Client struct {
	base         *url.URL
	user, pass   string
	http         *http.Client
	retries      int
	backoff      []time.Duration
	serverFilter bool
	limiter      *RateLimiter
	breaker      *Breaker
	log          *zap.Logger
	metrics      *metrics.AppMetrics

	mu    sync.RWMutex
	hooks []func(deviceID string)
}

// New builds a client; BaseURL must parse as an absolute URL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("acs: invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	backoff := opts.Backoff
	if len(backoff) == 0 {
		backoff = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		base:         base,
		user:         opts.Username,
		pass:         opts.Password,
		http:         hc,
		retries:      max(opts.Retries, 0),
		backoff:      backoff,
		serverFilter: opts.ServerFilter,
		limiter:      NewRateLimiter(opts.RatePerSec, opts.Burst),
		breaker:      NewBreaker(opts.BreakerThreshold, opts.BreakerTimeout),
		log:          log,
		metrics:      opts.Metrics,
	}
	c.breaker.OnStateChange(func(from, to BreakerState) {
		c.log.Warn("acs breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		c.metrics.BreakerState(int(to))
	})
	return c, nil
}

// OnMutation registers fn to run after every successful write to a device.
func (c *Client) OnMutation(fn func(deviceID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Client) mutated(id string) {
	c.mu.RLock()
	hooks := append([]func(string){}, c.hooks...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}

// ListDevices fetches the whole device collection.
func (c *Client) ListDevices(ctx context.Context) ([]*device.Device, error) {
	body, err := c.get(ctx, "/devices/", nil)
	if err != nil {
		return nil, err
	}
	return device.ParseList(body)
}

// Query returns the devices matching f, evaluated by the ACS.
func (c *Client) Query(ctx context.Context, f Filter) ([]*device.Device, error) {
	if !c.serverFilter {
		return nil, ErrFilterUnsupported
	}
	q, err := f.Query()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	if q != "" {
		params.Set("query", q)
	}
	body, err := c.get(ctx, "/devices/", params)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %w", ErrFilterUnsupported, err)
		}
		return nil, err
	}
	return device.ParseList(body)
}

// GetDevice fetches one device by its ACS ID through GET /devices/{id}.
// ACS builds without the single-document route (404 or 405 on it) are
// asked again with an _id query; an empty answer is ErrNotFound.
func (c *Client) GetDevice(ctx context.Context, id string) (*device.Device, error) {
	body, err := c.get(ctx, "/devices/"+url.PathEscape(id), nil)
	if err == nil {
		return decodeDevice(body)
	}
	var se *StatusError
	if !errors.As(err, &se) || (se.Code != http.StatusNotFound && se.Code != http.StatusMethodNotAllowed) {
		return nil, err
	}

	q, qerr := Any(Equals(device.KeyID, id)).Query()
	if qerr != nil {
		return nil, qerr
	}
	body, err = c.get(ctx, "/devices/", url.Values{"query": {q}})
	if err != nil {
		return nil, err
	}
	return decodeDevice(body)
}

// decodeDevice accepts a single document or a list holding it.
func decodeDevice(body []byte) (*device.Device, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		list, err := device.ParseList(trimmed)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, ErrNotFound
		}
		return list[0], nil
	}
	return device.ParseOne(trimmed)
}

// Ping checks the ACS answers a minimal query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/devices/", url.Values{"projection": {device.KeyID}, "limit": {"1"}})
	return err
}

// Limiter exposes the request limiter; the health check reports its stats.
func (c *Client) Limiter() *RateLimiter { return c.limiter }

// Breaker exposes the circuit breaker.
func (c *Client) Breaker() *Breaker { return c.breaker }

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		body, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.retries {
			break
		}
		wait := c.backoff[min(attempt, len(c.backoff)-1)]
		c.log.Debug("acs retry", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// do performs one request through the limiter and the breaker.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.breaker.Record(true)
			return nil, fmt.Errorf("acs: encode body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		c.breaker.Record(true)
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Record(false)
		c.metrics.ACSRequest(method, "error")
		return nil, fmt.Errorf("acs: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.ACSRequest(method, strconv.Itoa(resp.StatusCode))
	if err != nil {
		c.breaker.Record(false)
		return nil, fmt.Errorf("acs: read %s: %w", path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.breaker.Record(true)
		return body, nil
	}

	se := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: snippet(body)}
	c.breaker.Record(!se.Temporary())
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, se)
	}
	return nil, se
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
