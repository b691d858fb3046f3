// Package backend is the HTTP client for the FieldScan API: checklist
// generation, result submission, the equipment catalogue and health probes.
package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/httpclient"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// TokenSource supplies bearer tokens. Refresh is called at most once per
// request after a 401.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// Config configures a Client
type Config struct {
	BaseURL              string
	MinutesPerCheckpoint int
	CatalogueTTL         time.Duration
	ProbePath            string
}

const catalogueKey = "equipment-codes"

// Client talks to the backend. Safe for concurrent use.
type Client struct {
	http       *httpclient.Client
	baseURL    string
	probePath  string
	perItemMin int
	tokens     TokenSource
	catalogue  *cache.Cache
	log        logger.Logger
}

// New returns a client. tokens may be nil for unauthenticated use.
func New(cfg Config, hc *httpclient.Client, tokens TokenSource, log logger.Logger) *Client {
	if hc == nil {
		hc = httpclient.New(nil)
	}
	if log == nil {
		log = logger.Global().Module("backend")
	}
	if cfg.CatalogueTTL <= 0 {
		cfg.CatalogueTTL = time.Hour
	}
	if cfg.ProbePath == "" {
		cfg.ProbePath = "/health"
	}
	if cfg.MinutesPerCheckpoint <= 0 {
		cfg.MinutesPerCheckpoint = 3
	}
	return &Client{
		http:       hc,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		probePath:  cfg.ProbePath,
		perItemMin: cfg.MinutesPerCheckpoint,
		tokens:     tokens,
		catalogue:  cache.New(cfg.CatalogueTTL, 2*cfg.CatalogueTTL),
		log:        log,
	}
}

// call performs an authenticated JSON request. A 401 triggers one token
// refresh and one retry; a failed refresh is returned as is.
func (c *Client) call(ctx context.Context, method, path string, body any) (*httpclient.Response, error) {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
		c.log.Info("access token rejected, refreshing", logger.String("path", path))
		if err := c.tokens.Refresh(ctx); err != nil {
			return nil, errors.New(err).
				Component("backend").
				Category(errors.CategoryAuth).
				Context("path", path).
				Build()
		}
		resp, err = c.send(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, statusError(method, path, resp.StatusCode, resp.Body)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*httpclient.Response, error) {
	headers := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, errors.New(err).
				Component("backend").
				Category(errors.CategoryAuth).
				Context("path", path).
				Build()
		}
		if token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.DoJSON(ctx, method, c.baseURL+path, headers, body)
	if err != nil {
		c.log.Debug("backend request failed",
			logger.String("method", method),
			logger.String("path", path),
			logger.Error(err))
		return nil, transportError(err, method, path)
	}
	c.log.Trace("backend response",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode))
	return resp, nil
}

func decode[T any](resp *httpclient.Response, path string) (T, error) {
	var v T
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return v, decodeError(err, path)
	}
	return v, nil
}

// Probe checks that the backend answers. Any HTTP response below 500 counts
// as reachable.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.http.DoJSON(ctx, http.MethodGet, c.baseURL+c.probePath, nil, nil)
	if err != nil {
		return transportError(err, http.MethodGet, c.probePath)
	}
	if resp.StatusCode >= 500 {
		return statusError(http.MethodGet, c.probePath, resp.StatusCode, resp.Body)
	}
	return nil
}

func escape(code string) string {
	return url.PathEscape(code)
}
