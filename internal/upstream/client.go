// Package upstream talks to the image-generation provider: submitting
// generation requests, locating the image URL in whatever response shape the
// provider returns, and fetching the finished asset.
package upstream

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/zcc135820/imagebridge/internal/config"
	"github.com/zcc135820/imagebridge/internal/util"
)

// ErrDownloadFailed wraps any asset download failure other than the single
// retried 403.
var ErrDownloadFailed = errors.New("image download failed")

// Error carries a non-2xx generation response so the HTTP boundary can attach
// the upstream body to its own error envelope.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client is the provider-facing HTTP client.
type Client struct {
	httpClient    *http.Client
	generateURL   string
	assetPathHint string
}

// NewClient builds a client from the upstream configuration. The generate
// timeout is long because 2K renders can run close to two minutes.
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{Timeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second}
	return &Client{
		httpClient:    util.SetProxy(cfg.ProxyURL, httpClient),
		generateURL:   strings.TrimRight(cfg.Upstream.BaseURL, "/") + cfg.Upstream.GeneratePath,
		assetPathHint: cfg.Upstream.AssetPathHint,
	}
}

// AssetPathHint exposes the configured asset fragment for the resolver.
func (c *Client) AssetPathHint() string {
	return c.assetPathHint
}

// Generate submits a prompt and returns the parsed response document.
func (c *Client) Generate(ctx context.Context, accessToken, prompt, ratio, resolution string, noWatermark bool) (gjson.Result, error) {
	body, _ := sjson.Set("{}", "prompt", prompt)
	body, _ = sjson.Set(body, "ratio", ratio)
	body, _ = sjson.Set(body, "resolution", resolution)
	body, _ = sjson.Set(body, "no_watermark", noWatermark)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateURL, strings.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("upstream: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("upstream: generate request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := readBody(resp)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("upstream: read generate response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debugf("upstream generate failed: status=%d body=%s", resp.StatusCode, string(raw))
		return gjson.Result{}, &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return gjson.ParseBytes(raw), nil
}

// Download fetches the resolved asset URL. The first attempt carries the
// provider headers; a 403 answer is retried exactly once with a bare request
// because some asset hosts reject those headers.
func (c *Client) Download(ctx context.Context, rawURL, accessToken string) ([]byte, error) {
	data, status, err := c.fetch(ctx, rawURL, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if status == http.StatusForbidden {
		log.Debug("asset host rejected provider headers, retrying bare")
		data, status, err = c.fetch(ctx, rawURL, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrDownloadFailed, status)
	}
	return data, nil
}

func (c *Client) fetch(ctx context.Context, rawURL, accessToken string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "image/*")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// readBody drains the response, transparently handling gzip and brotli.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader failed: %w", err)
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}
