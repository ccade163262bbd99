// Package remote is a draftstore backend that keeps records on a certkeeper
// server through its HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"certkeeper/internal/domain/certificate"
)

// ErrUnavailable wraps transport failures so callers can tell them apart
// from rejections by the server.
var ErrUnavailable = errors.New("server unavailable")

const userAgent = "certkeeper-client/1.0"

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

type Client struct {
	client  *http.Client
	baseURL string
	log     *slog.Logger
}

// New returns a backend talking to the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("component", "remote_storage"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL builds the server URL from a host:port address.
func BaseURL(address string, tls bool) string {
	if strings.Contains(address, "://") {
		return address
	}
	if tls {
		return "https://" + address
	}
	return "http://" + address
}

func (c *Client) LoadAll(ctx context.Context) ([]*certificate.Record, error) {
	var out struct {
		Certificates []*certificate.Record `json:"certificates"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/certificates", nil, &out); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return out.Certificates, nil
}

func (c *Client) Save(ctx context.Context, rec *certificate.Record) error {
	if err := c.do(ctx, http.MethodPut, certPath(rec.ID), rec, nil); err != nil {
		return fmt.Errorf("save %s: %w", rec.ID, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, certPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Ping calls the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func certPath(id string) string {
	return "/api/v1/certificates/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("sending request", "method", method, "url", req.URL.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// problem is the RFC 7807 body the server sends on errors.
type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

var sentinels = []error{
	certificate.ErrNotFound,
	certificate.ErrDuplicateID,
	certificate.ErrFinalized,
	certificate.ErrInvalidTransition,
	certificate.ErrInvalidType,
	certificate.ErrInvalidData,
}

// decodeError turns a server error back into the domain sentinel it came from.
func decodeError(status int, raw []byte) error {
	var p problem
	_ = json.Unmarshal(raw, &p)
	detail := p.Detail
	if detail == "" {
		detail = http.StatusText(status)
	}

	for _, s := range sentinels {
		if strings.Contains(p.Detail, s.Error()) {
			return fmt.Errorf("%w: %s", s, detail)
		}
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", certificate.ErrNotFound, detail)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", certificate.ErrFinalized, detail)
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", certificate.ErrInvalidData, detail)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, detail)
	default:
		return fmt.Errorf("server returned status %d: %s", status, detail)
	}
}
