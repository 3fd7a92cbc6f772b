// Package nodeodm is a client for NodeODM-compatible photogrammetry nodes.
//
// A job is submitted once, then observed by polling: each poll reads the task
// info and any console lines past the last seen cursor. Nothing holds a
// connection open for the lifetime of a job, so a flaky network path to the
// node only costs retried polls.
package nodeodm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/config"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultTimeout       = 12 * time.Hour
	defaultPollRetries   = 5
	defaultRetryInterval = 500 * time.Millisecond
	defaultHTTPTimeout   = 60 * time.Second
	maxErrorBody         = 4096
)

// Config describes how to reach a processing node.
type Config struct {
	Host  string
	Port  int
	Token string
	// BaseURL overrides Host/Port when set.
	BaseURL       string
	HTTPClient    *http.Client
	PollInterval  time.Duration
	Timeout       time.Duration
	PollRetries   int
	RetryInterval time.Duration
}

// Client talks to a single processing node.
type Client struct {
	baseURL       *url.URL
	token         string
	http          *http.Client
	pollInterval  time.Duration
	timeout       time.Duration
	pollRetries   int
	retryInterval time.Duration
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		host := strings.TrimSpace(cfg.Host)
		if host == "" {
			return nil, errors.New("nodeodm: host is required")
		}
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		if cfg.Port > 0 {
			host = fmt.Sprintf("%s:%d", strings.TrimSuffix(host, "/"), cfg.Port)
		}
		base = host
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("nodeodm: parse base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	c := &Client{
		baseURL:       baseURL,
		token:         strings.TrimSpace(cfg.Token),
		http:          httpClient,
		pollInterval:  cfg.PollInterval,
		timeout:       cfg.Timeout,
		pollRetries:   cfg.PollRetries,
		retryInterval: cfg.RetryInterval,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.pollRetries < 0 {
		c.pollRetries = 0
	} else if c.pollRetries == 0 {
		c.pollRetries = defaultPollRetries
	}
	if c.retryInterval <= 0 {
		c.retryInterval = defaultRetryInterval
	}
	return c, nil
}

// NewFromConfig builds a Client from application configuration.
func NewFromConfig(cfg config.NodeConfig) (*Client, error) {
	var httpClient *http.Client
	if cfg.HTTPTimeout > 0 {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return New(Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Token:        cfg.Token,
		HTTPClient:   httpClient,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.Timeout,
		PollRetries:  cfg.PollRetries,
	})
}

// BaseURL returns the node address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(query url.Values, elem ...string) string {
	u := c.baseURL.JoinPath(elem...)
	if query == nil {
		query = url.Values{}
	}
	if c.token != "" {
		query.Set("token", c.token)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// send executes req and returns the response for a 2xx status. Transport
// failures and 5xx responses wrap domain.ErrNodeUnreachable; application
// errors wrap domain.ErrNodeRejected.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	op := req.Method + " " + req.URL.Path
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("nodeodm: %s: %w", op, ctxErr)
		}
		return nil, fmt.Errorf("nodeodm: %s: %w: %w", op, domain.ErrNodeUnreachable, err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if msg := errorMessage(body); msg != "" {
		return nil, fmt.Errorf("nodeodm: %s: %w: %s", op, domain.ErrNodeRejected, msg)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("nodeodm: %s (%s): %w", op, resp.Status, domain.ErrNodeUnreachable)
	}
	return nil, fmt.Errorf("nodeodm: %s (%s): %w: %s", op, resp.Status, domain.ErrNodeRejected, strings.TrimSpace(string(body)))
}

// doJSON sends req and decodes a JSON response into out. A 2xx body carrying
// an "error" field is treated as a rejection.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("nodeodm: read %s: %w: %w", req.URL.Path, domain.ErrNodeUnreachable, err)
	}
	if msg := errorMessage(body); msg != "" {
		return fmt.Errorf("nodeodm: %s %s: %w: %s", req.Method, req.URL.Path, domain.ErrNodeRejected, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("nodeodm: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, out any, query url.Values, elem ...string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(query, elem...), nil)
	if err != nil {
		return fmt.Errorf("nodeodm: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) postForm(ctx context.Context, form url.Values, out any, elem ...string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(nil, elem...), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("nodeodm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doJSON(req, out)
}

// errorMessage extracts the node's {"error": "..."} message, if any.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	res := gjson.GetBytes(body, "error")
	if !res.Exists() {
		return ""
	}
	if res.Type == gjson.String {
		return strings.TrimSpace(res.String())
	}
	return strings.TrimSpace(res.Raw)
}

func lineQuery(cursor int) url.Values {
	q := url.Values{}
	q.Set("line", strconv.Itoa(cursor))
	return q
}
