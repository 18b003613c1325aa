// Package remote talks to the realtime database holding the planter
// parameters and the telemetry history.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
)

const maxBody = 64 << 10

type Config struct {
	BaseURL        string
	APIKey         string
	ParamsTable    string
	TelemetryTable string
	CAFile         string // PEM bundle; empty uses the system roots
	Timeout        time.Duration
	BreakerFails   int
	BreakerOpen    time.Duration
}

// Client issues one request per call. It never retries; callers decide.
// Parameter calls share a circuit breaker so a dead endpoint fails fast.
// Telemetry posts bypass it: their failures are bounded by the caller's
// retry policy and must not block the parameter sync.
type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
	cb   *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid remote base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFails <= 0 {
		cfg.BreakerFails = 5
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = time.Minute
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca file %s: no certificates found", cfg.CAFile)
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	return &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{Timeout: cfg.Timeout, Transport: tr},
		cb:   newBreaker("remote-params", cfg.BreakerFails, cfg.BreakerOpen),
	}, nil
}

func newBreaker(name string, fails int, open time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
	})
}

// Host is the host:port the client talks to.
func (c *Client) Host() string {
	if c.base.Port() != "" {
		return c.base.Host
	}
	if c.base.Scheme == "http" {
		return c.base.Hostname() + ":80"
	}
	return c.base.Hostname() + ":443"
}

// BreakerState reports the parameter circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

// FetchParams reads the watering parameters.
func (c *Client) FetchParams(ctx context.Context) (messages.RemoteParams, error) {
	body, err := c.do(ctx, c.cb, http.MethodGet, c.cfg.ParamsTable, nil)
	if err != nil {
		return messages.RemoteParams{}, err
	}
	return ParseParams(body)
}

// PatchStatus confirms the applied parameters next to the configured ones.
func (c *Client) PatchStatus(ctx context.Context, st messages.StatusReport) error {
	_, err := c.do(ctx, c.cb, http.MethodPatch, c.cfg.ParamsTable, st)
	return err
}

// PatchParams overwrites the configured parameters, used when the schedule
// is changed locally.
func (c *Client) PatchParams(ctx context.Context, p messages.RemoteParams) error {
	_, err := c.do(ctx, c.cb, http.MethodPatch, c.cfg.ParamsTable, p)
	return err
}

// PostTelemetry appends one reading to the telemetry table.
func (c *Client) PostTelemetry(ctx context.Context, t messages.Telemetry) error {
	_, err := c.do(ctx, nil, http.MethodPost, c.cfg.TelemetryTable, t)
	return err
}

func (c *Client) endpoint(table string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(table, "/") + ".json"
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("auth", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do sends one request, through cb when it is not nil.
func (c *Client) do(ctx context.Context, cb *gobreaker.CircuitBreaker, method, table string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", method, err)
		}
		body = b
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	call := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint(table), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
		if err != nil {
			return nil, err
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, fmt.Errorf("status %s", res.Status)
		}
		return b, nil
	}
	var out interface{}
	var err error
	if cb != nil {
		out, err = cb.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, table, model.ErrTransport, err)
	}
	return out.([]byte), nil
}
