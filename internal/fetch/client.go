// Package fetch resolves the pseudo-URLs built by the manifest assembler
// against the delivery origin and retrieves their bytes.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/vodindex/internal/indexerr"
)

var (
	ErrRequest      = indexerr.Wrap(indexerr.ErrNetworkFailure, "fetch: request failed")
	ErrStatus       = indexerr.Wrap(indexerr.ErrNetworkFailure, "fetch: unexpected status")
	ErrTooLarge     = indexerr.Wrap(indexerr.ErrNetworkFailure, "fetch: response too large")
	ErrWrongScheme  = indexerr.Wrap(indexerr.ErrNetworkFailure, "fetch: not a delivery pseudo-URL")
	ErrBadOriginURL = errors.New("fetch: origin must be an absolute http(s) URL")
)

// DefaultMaxBytes caps a single response.
const DefaultMaxBytes = 64 << 20

// Config configures a Client.
type Config struct {
	// Scheme of the pseudo-URLs this client accepts.
	Scheme string
	// Origin is the base URL requests are sent to.
	Origin string
	// HTTP3 sends requests over QUIC.
	HTTP3    bool
	Timeout  time.Duration
	MaxBytes int64
}

// Client fetches pseudo-URLs from the origin. It performs no retries.
type Client struct {
	scheme   string
	origin   *url.URL
	maxBytes int64
	http     *http.Client
	h3       *http3.Transport
	log      *slog.Logger
}

// New creates a client. If log is nil, slog.Default() is used.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil || (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadOriginURL, cfg.Origin)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	c := &Client{
		scheme:   cfg.Scheme,
		origin:   origin,
		maxBytes: cfg.MaxBytes,
		http:     &http.Client{Timeout: cfg.Timeout},
		log:      log.With("component", "fetch"),
	}
	if cfg.HTTP3 {
		c.h3 = &http3.Transport{
			TLSClientConfig: &tls.Config{NextProtos: []string{http3.NextProtoH3}},
			QUICConfig: &quic.Config{
				MaxIdleTimeout: 30 * time.Second,
			},
		}
		c.http.Transport = c.h3
	}
	return c, nil
}

// Resolve maps scheme://type?params to the origin URL with type=... and
// the original parameters appended to its query.
func (c *Client) Resolve(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrongScheme, err)
	}
	if u.Scheme != c.scheme || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrWrongScheme, uri)
	}

	out := *c.origin
	query := "type=" + url.QueryEscape(u.Host)
	if u.RawQuery != "" {
		query += "&" + u.RawQuery
	}
	if out.RawQuery != "" {
		query = out.RawQuery + "&" + query
	}
	out.RawQuery = query
	return out.String(), nil
}

// Fetch retrieves the whole body behind a pseudo-URL.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	target, err := c.Resolve(uri)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s from %s", ErrStatus, resp.Status, target)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrRequest, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBytes)
	}

	c.log.Debug("fetched", "uri", uri, "bytes", len(body), "proto", resp.Proto, "elapsed", time.Since(start))
	return body, nil
}

// Close releases QUIC connections held by the HTTP/3 transport.
func (c *Client) Close() error {
	if c.h3 != nil {
		return c.h3.Close()
	}
	c.http.CloseIdleConnections()
	return nil
}
