package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/singleflight"

	"github.com/zcc135820/imagebridge/internal/misc"
	"github.com/zcc135820/imagebridge/internal/token"
)

// ErrSessionExpired is returned when no valid access token exists and a
// refresh could not produce one.
var ErrSessionExpired = errors.New("session expired: access token invalid and refresh failed")

// Refresher mints fresh access tokens through the provider's two-step
// authorize/redeem exchange.
type Refresher struct {
	store        *Store
	httpClient   *http.Client
	authorizeURL string
	tokenURL     string

	// group coalesces concurrent refresh attempts into a single exchange.
	group singleflight.Group
}

// NewRefresher constructs a refresher bound to the given store and endpoints.
func NewRefresher(store *Store, authorizeURL, tokenURL string, httpClient *http.Client) *Refresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Refresher{
		store:        store,
		httpClient:   httpClient,
		authorizeURL: authorizeURL,
		tokenURL:     tokenURL,
	}
}

// Refresh attempts to mint a new access token. It never returns an error;
// the boolean is the whole outcome, failures are logged. Without an exchange
// token it returns false immediately, before any network call. Concurrent
// callers share a single in-flight exchange.
func (r *Refresher) Refresh(ctx context.Context) bool {
	result, _, _ := r.group.Do("refresh", func() (interface{}, error) {
		return r.refresh(ctx), nil
	})
	ok, _ := result.(bool)
	return ok
}

func (r *Refresher) refresh(ctx context.Context) bool {
	exchangeToken := r.store.ExchangeToken()
	if exchangeToken == "" {
		log.Debug("session refresh skipped: no exchange token")
		return false
	}

	code, err := r.authorize(ctx, exchangeToken)
	if err != nil {
		log.Warnf("session refresh: authorize step failed: %v", err)
		return false
	}

	accessToken, err := r.redeem(ctx, code)
	if err != nil {
		log.Warnf("session refresh: redeem step failed: %v", err)
		return false
	}

	if err = r.store.SetAccessToken(ctx, accessToken); err != nil {
		log.Warnf("session refresh: persist failed: %v", err)
	}
	log.Info("session refreshed, new access token stored")
	return true
}

// authorize posts the exchange token with a random state and extracts the
// one-time code from the returned redirect URL.
func (r *Refresher) authorize(ctx context.Context, exchangeToken string) (string, error) {
	state, err := misc.GenerateRandomState()
	if err != nil {
		return "", err
	}

	body, _ := sjson.Set(`{"response_type":"code"}`, "state", state)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.authorizeURL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+exchangeToken)

	raw, err := r.do(req)
	if err != nil {
		return "", err
	}

	redirect := gjson.GetBytes(raw, "redirect_url")
	if !redirect.Exists() {
		redirect = gjson.GetBytes(raw, "data.redirect_url")
	}
	if redirect.String() == "" {
		return "", fmt.Errorf("no redirect URL in authorize response")
	}
	parsed, err := url.Parse(redirect.String())
	if err != nil {
		return "", fmt.Errorf("parse redirect URL failed: %w", err)
	}
	code := strings.TrimSpace(parsed.Query().Get("code"))
	if code == "" {
		return "", fmt.Errorf("redirect URL carries no code")
	}
	return code, nil
}

// redeem trades the one-time code for a new access token. Every attempt
// carries a fresh correlation id.
func (r *Refresher) redeem(ctx context.Context, code string) (string, error) {
	body, _ := sjson.Set(`{"grant_type":"authorization_code"}`, "code", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	raw, err := r.do(req)
	if err != nil {
		return "", err
	}

	accessToken := gjson.GetBytes(raw, "access_token")
	if !accessToken.Exists() {
		accessToken = gjson.GetBytes(raw, "data.access_token")
	}
	if accessToken.String() == "" {
		return "", fmt.Errorf("no access token in exchange response")
	}
	return accessToken.String(), nil
}

func (r *Refresher) do(req *http.Request) ([]byte, error) {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%d %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// EnsureUsable makes sure a usable access token is in place before an
// upstream call. Staleness is advisory and triggers a proactive refresh;
// expiry is the hard boundary.
func (r *Refresher) EnsureUsable(ctx context.Context) error {
	if r.store.AccessToken() == "" {
		r.store.Load(ctx)
	}

	tok := r.store.AccessToken()
	if tok != "" && !token.NeedsRefresh(tok) {
		return nil
	}

	if r.Refresh(ctx) {
		return nil
	}

	// Refresh failed, but a stale-yet-unexpired token is still usable.
	if token.IsValid(r.store.AccessToken()) {
		return nil
	}
	return ErrSessionExpired
}
