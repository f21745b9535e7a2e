package spotify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"spotify-lyrics-api/circuitbreaker"
	"spotify-lyrics-api/logcolors"
	"spotify-lyrics-api/stats"
)

const (
	defaultTokenURL      = "https://open.spotify.com/get_access_token"
	defaultLyricsURL     = "https://spclient.wg.spotify.com/color-lyrics/v2/track/"
	defaultServerTimeURL = "https://open.spotify.com/server-time"

	// Fixed browser-emulation headers the upstream requires
	userAgent  = "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0"
	webOrigin  = "https://open.spotify.com/"
	appVersion = "1.2.61.20.g3b4cd5b2"

	// The upstream is a third party, never wait on it unbounded
	defaultTimeout = 10 * time.Second
)

// Client talks to the upstream lyrics API on behalf of a single sp_dc
// credential. The mutex serializes the whole request path (freshness
// check, acquisition, fetch) so concurrent 401-triggered refreshes
// cannot race on the token cache.
type Client struct {
	mu         sync.Mutex
	spDC       string
	cache      *TokenCache
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker

	tokenURL      string
	lyricsURL     string
	serverTimeURL string
}

// NewClient creates a client for the given sp_dc credential. The
// breaker may be nil to disable circuit breaking.
func NewClient(spDC string, breaker *circuitbreaker.CircuitBreaker) *Client {
	return &Client{
		spDC:          spDC,
		cache:         NewTokenCache(""),
		httpClient:    &http.Client{Timeout: defaultTimeout},
		breaker:       breaker,
		tokenURL:      defaultTokenURL,
		lyricsURL:     defaultLyricsURL,
		serverTimeURL: defaultServerTimeURL,
	}
}

// applyHeaders sets the fixed header set required on every upstream
// call, including the session credential cookie.
func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Referer", webOrigin)
	req.Header.Set("Origin", webOrigin)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("App-Platform", "WebPlayer")
	req.Header.Set("Spotify-App-Version", appVersion)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cookie", "sp_dc="+c.spDC)
}

// allowUpstream gates a call on the circuit breaker.
func (c *Client) allowUpstream() error {
	if c.breaker != nil && !c.breaker.Allow() {
		return circuitbreaker.ErrCircuitOpen
	}
	return nil
}

// recordUpstream feeds the circuit breaker: transport errors and 5xx
// responses count as failures, a 2xx closes it. 4xx statuses carry
// protocol meaning (401 triggers the token refresh, 404 means no
// lyrics) and must not trip the breaker.
func (c *Client) recordUpstream(statusCode int, transportErr error) {
	if c.breaker == nil {
		return
	}
	switch {
	case transportErr != nil, statusCode >= 500:
		c.breaker.RecordFailure()
	case statusCode >= 200 && statusCode < 300:
		c.breaker.RecordSuccess()
	}
}

// getServerTime asks the upstream for its clock, in seconds.
func (c *Client) getServerTime() (int64, error) {
	if err := c.allowUpstream(); err != nil {
		return 0, err
	}

	req, err := http.NewRequest("GET", c.serverTimeURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create server time request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordUpstream(0, err)
		return 0, fmt.Errorf("failed to fetch server time: %w", err)
	}
	defer resp.Body.Close()
	c.recordUpstream(resp.StatusCode, nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &APIError{Op: "server time request", StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	var serverTime serverTimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&serverTime); err != nil {
		return 0, fmt.Errorf("invalid server time response: %w", err)
	}
	if serverTime.ServerTime <= 0 {
		return 0, fmt.Errorf("invalid server time response: serverTime missing")
	}

	return serverTime.ServerTime, nil
}

// tokenExchangeParams builds the fixed query parameters for the token
// request from the upstream server time.
func (c *Client) tokenExchangeParams(serverTimeSeconds int64) (url.Values, error) {
	code, err := GenerateTOTP(serverTimeSeconds)
	if err != nil {
		return nil, err
	}

	timeStr := strconv.FormatInt(serverTimeSeconds, 10)

	params := url.Values{}
	params.Set("reason", "transport")
	params.Set("productType", "web_player")
	params.Set("totp", code)
	params.Set("totpServer", code)
	params.Set("totpVer", "5")
	params.Set("sTime", timeStr)
	// The web player appends "420" to the server time string here.
	// Emulated verbatim, the upstream expects it.
	params.Set("cTime", timeStr+"420")

	return params, nil
}

// acquireToken runs the full acquisition: server time, one-time code,
// token exchange, validation, persistence. Callers must hold c.mu.
func (c *Client) acquireToken() error {
	if c.spDC == "" {
		return ErrMissingCredential
	}

	serverTime, err := c.getServerTime()
	if err != nil {
		return err
	}

	params, err := c.tokenExchangeParams(serverTime)
	if err != nil {
		return err
	}

	if err := c.allowUpstream(); err != nil {
		return err
	}

	req, err := http.NewRequest("GET", c.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordUpstream(0, err)
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	c.recordUpstream(resp.StatusCode, nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: "token request", StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	if token.IsAnonymous {
		log.Errorf("%s Upstream issued an anonymous token", logcolors.LogAuthError)
		return ErrInvalidCredential
	}
	if token.AccessToken == "" || token.AccessTokenExpirationTimestampMs == 0 {
		return fmt.Errorf("token response missing access token or expiration")
	}

	// Keep the previous client id when the new response omits one
	prior, err := c.cache.Load()
	if err != nil {
		log.Warnf("%s Ignoring unreadable token cache during acquisition: %v", logcolors.LogToken, err)
	}
	rec := Record{
		AccessToken:  token.AccessToken,
		ClientID:     token.ClientID,
		ExpirationMs: token.AccessTokenExpirationTimestampMs,
	}
	if rec.ClientID == "" {
		rec.ClientID = prior.ClientID
	}

	if err := c.cache.Save(rec); err != nil {
		return err
	}

	stats.Get().RecordTokenRefresh()
	log.Infof("%s Access token refreshed, valid until %d", logcolors.LogToken, rec.ExpirationMs)
	return nil
}

// ensureFreshToken acquires a new token unless the cached one has a
// value and an expiry strictly in the future. Callers must hold c.mu.
func (c *Client) ensureFreshToken() error {
	rec, err := c.cache.Load()
	if err != nil {
		log.Warnf("%s Token cache unreadable, forcing refresh: %v", logcolors.LogToken, err)
	}

	nowMs := time.Now().UnixMilli()
	if rec.AccessToken != "" && rec.ExpirationMs > nowMs {
		log.Debugf("%s Using cached access token (valid until %d)", logcolors.LogToken, rec.ExpirationMs)
		return nil
	}

	log.Infof("%s Access token expired or not found, retrieving new token", logcolors.LogToken)
	return c.acquireToken()
}

// GetLyrics fetches the raw lyrics payload for a track id. A 401 on the
// first attempt clears the token cache and retries once with a freshly
// acquired token; there is no further retry.
func (c *Client) GetLyrics(trackID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; attempt <= 2; attempt++ {
		if err := c.ensureFreshToken(); err != nil {
			return "", err
		}

		rec, err := c.cache.Load()
		if err != nil {
			return "", err
		}
		if rec.AccessToken == "" {
			return "", fmt.Errorf("access token not found")
		}

		body, statusCode, err := c.fetchLyricsOnce(trackID, rec.AccessToken, attempt)
		if err != nil {
			return "", err
		}

		if statusCode >= 200 && statusCode < 300 {
			return body, nil
		}

		if statusCode == http.StatusUnauthorized && attempt == 1 {
			log.Errorf("%s Received 401 Unauthorized, forcing token refresh", logcolors.LogLyrics)
			if err := c.cache.Clear(); err != nil {
				log.Errorf("%s Failed to remove token cache file: %v", logcolors.LogLyrics, err)
			}
			continue
		}

		return "", &APIError{Op: "lyrics request", StatusCode: statusCode, Reason: http.StatusText(statusCode)}
	}

	return "", fmt.Errorf("failed to retrieve lyrics after token refresh")
}

// fetchLyricsOnce issues a single authenticated lyrics request. The
// caller decides what to do with non-2xx statuses.
func (c *Client) fetchLyricsOnce(trackID, accessToken string, attempt int) (string, int, error) {
	if err := c.allowUpstream(); err != nil {
		return "", 0, err
	}

	requestURL := c.lyricsURL + trackID + "?format=json&vocalRemoval=false&market=from_token"
	log.Debugf("%s Requesting lyrics for track %s (attempt %d)", logcolors.LogLyrics, trackID, attempt)

	req, err := http.NewRequest("GET", requestURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create lyrics request: %w", err)
	}
	c.applyHeaders(req)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	stats.Get().RecordUpstreamFetch()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordUpstream(0, err)
		return "", 0, fmt.Errorf("lyrics request failed: %w", err)
	}
	defer resp.Body.Close()
	c.recordUpstream(resp.StatusCode, nil)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read lyrics response: %w", err)
	}

	return string(body), resp.StatusCode, nil
}

// GetFormattedLyrics fetches lyrics for a track and shapes them into
// the requested format (id3 or lrc).
func (c *Client) GetFormattedLyrics(trackID, format string) (interface{}, error) {
	raw, err := c.GetLyrics(trackID)
	if err != nil {
		return nil, err
	}
	return FormatLyrics(raw, format)
}
