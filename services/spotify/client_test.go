package spotify

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

// fakeUpstream emulates the three upstream endpoints with per-endpoint
// call counters and overridable behavior.
type fakeUpstream struct {
	serverTime int64

	serverTimeCalls int
	tokenCalls      int
	lyricsCalls     int

	lastTokenQuery url.Values
	lastCookie     string
	lastAuth       string

	// optional overrides
	tokenHandler  func(w http.ResponseWriter, r *http.Request, call int)
	lyricsHandler func(w http.ResponseWriter, r *http.Request, call int)
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/server-time", func(w http.ResponseWriter, r *http.Request) {
		f.serverTimeCalls++
		f.lastCookie = r.Header.Get("Cookie")
		fmt.Fprintf(w, `{"serverTime": %d}`, f.serverTime)
	})

	mux.HandleFunc("/get_access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		f.lastTokenQuery = r.URL.Query()
		f.lastCookie = r.Header.Get("Cookie")
		if f.tokenHandler != nil {
			f.tokenHandler(w, r, f.tokenCalls)
			return
		}
		fmt.Fprintf(w, `{"accessToken": "token-%d", "accessTokenExpirationTimestampMs": %d, "clientId": "client-1"}`,
			f.tokenCalls, time.Now().Add(time.Hour).UnixMilli())
	})

	mux.HandleFunc("/color-lyrics/v2/track/", func(w http.ResponseWriter, r *http.Request) {
		f.lyricsCalls++
		f.lastAuth = r.Header.Get("Authorization")
		if f.lyricsHandler != nil {
			f.lyricsHandler(w, r, f.lyricsCalls)
			return
		}
		fmt.Fprint(w, `{"lyrics": {"syncType": "LINE_SYNCED", "lines": [{"startTimeMs": "0", "words": "hi"}]}}`)
	})

	return mux
}

func newTestClient(t *testing.T, upstream *fakeUpstream) *Client {
	t.Helper()

	srv := httptest.NewServer(upstream.handler())
	t.Cleanup(srv.Close)

	return &Client{
		spDC:          "test-credential",
		cache:         NewTokenCache(filepath.Join(t.TempDir(), "token.json")),
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		tokenURL:      srv.URL + "/get_access_token",
		lyricsURL:     srv.URL + "/color-lyrics/v2/track/",
		serverTimeURL: srv.URL + "/server-time",
	}
}

func TestTokenExchangeSendsRequiredParams(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)

	if _, err := client.GetLyrics("track123"); err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}

	q := upstream.lastTokenQuery
	if q.Get("reason") != "transport" {
		t.Errorf("reason = %q, want transport", q.Get("reason"))
	}
	if q.Get("productType") != "web_player" {
		t.Errorf("productType = %q, want web_player", q.Get("productType"))
	}
	if q.Get("totpVer") != "5" {
		t.Errorf("totpVer = %q, want 5", q.Get("totpVer"))
	}
	if !regexp.MustCompile(`^[0-9]{6}$`).MatchString(q.Get("totp")) {
		t.Errorf("totp = %q, want 6 digits", q.Get("totp"))
	}
	if q.Get("totp") != q.Get("totpServer") {
		t.Errorf("totp (%q) and totpServer (%q) must carry the same code", q.Get("totp"), q.Get("totpServer"))
	}
	if q.Get("sTime") != "1700000000" {
		t.Errorf("sTime = %q, want 1700000000", q.Get("sTime"))
	}
	// cTime is the server time string with "420" appended, not arithmetic
	if q.Get("cTime") != "1700000000420" {
		t.Errorf("cTime = %q, want 1700000000420", q.Get("cTime"))
	}
	if upstream.lastCookie != "sp_dc=test-credential" {
		t.Errorf("Cookie = %q, want sp_dc=test-credential", upstream.lastCookie)
	}
}

func TestSuccessfulFetchPersistsToken(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)

	raw, err := client.GetLyrics("track123")
	if err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}
	if raw == "" {
		t.Error("expected raw lyrics payload")
	}
	if upstream.lastAuth != "Bearer token-1" {
		t.Errorf("Authorization = %q, want Bearer token-1", upstream.lastAuth)
	}

	rec, err := client.cache.Load()
	if err != nil {
		t.Fatalf("cache load failed: %v", err)
	}
	if rec.AccessToken != "token-1" || rec.ClientID != "client-1" {
		t.Errorf("cached record = %+v", rec)
	}
	if rec.ExpirationMs <= time.Now().UnixMilli() {
		t.Error("cached expiry should be in the future")
	}
}

func TestFreshTokenSkipsAcquisition(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)

	client.cache.Save(Record{
		AccessToken:  "cached-token",
		ExpirationMs: time.Now().Add(time.Hour).UnixMilli(),
	})

	if _, err := client.GetLyrics("track123"); err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}

	if upstream.serverTimeCalls != 0 || upstream.tokenCalls != 0 {
		t.Errorf("fresh token must not trigger acquisition (serverTime=%d, token=%d calls)",
			upstream.serverTimeCalls, upstream.tokenCalls)
	}
	if upstream.lastAuth != "Bearer cached-token" {
		t.Errorf("Authorization = %q, want the cached token", upstream.lastAuth)
	}
}

func TestExpiredTokenTriggersAcquisition(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)

	client.cache.Save(Record{
		AccessToken:  "stale-token",
		ExpirationMs: time.Now().Add(-time.Minute).UnixMilli(),
	})

	if _, err := client.GetLyrics("track123"); err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}
	if upstream.tokenCalls != 1 {
		t.Errorf("tokenCalls = %d, want 1", upstream.tokenCalls)
	}
}

func TestRecordMissingExpiryIsNotFresh(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)

	client.cache.Save(Record{AccessToken: "token-without-expiry"})

	if _, err := client.GetLyrics("track123"); err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}
	if upstream.tokenCalls != 1 {
		t.Errorf("record without expiry must force acquisition, tokenCalls = %d", upstream.tokenCalls)
	}
}

func TestMalformedCacheForcesRefresh(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)

	// simulate a corrupt cache file
	if err := os.WriteFile(client.cache.path, []byte("{not valid json"), 0600); err != nil {
		t.Fatalf("failed to corrupt cache: %v", err)
	}

	if _, err := client.GetLyrics("track123"); err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}
	if upstream.tokenCalls != 1 {
		t.Errorf("corrupt cache must force acquisition, tokenCalls = %d", upstream.tokenCalls)
	}
}

func TestAnonymousTokenFailsDistinctly(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	upstream.tokenHandler = func(w http.ResponseWriter, r *http.Request, call int) {
		fmt.Fprint(w, `{"isAnonymous": true}`)
	}
	client := newTestClient(t, upstream)

	_, err := client.GetLyrics("track123")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestMissingCredential(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)
	client.spDC = ""

	_, err := client.GetLyrics("track123")
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
	if upstream.serverTimeCalls != 0 {
		t.Error("missing credential must fail before any upstream call")
	}
}

func TestUnauthorizedClearsCacheAndRetriesOnce(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	upstream.lyricsHandler = func(w http.ResponseWriter, r *http.Request, call int) {
		if call == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"lyrics": {"syncType": "LINE_SYNCED", "lines": []}}`)
	}
	client := newTestClient(t, upstream)

	// seed a token the upstream will reject
	client.cache.Save(Record{
		AccessToken:  "revoked-token",
		ExpirationMs: time.Now().Add(time.Hour).UnixMilli(),
	})

	raw, err := client.GetLyrics("track123")
	if err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}
	if raw == "" {
		t.Error("expected payload from the retry")
	}

	if upstream.lyricsCalls != 2 {
		t.Errorf("lyricsCalls = %d, want exactly 2", upstream.lyricsCalls)
	}
	if upstream.tokenCalls != 1 {
		t.Errorf("tokenCalls = %d, want 1 (forced by the cleared cache)", upstream.tokenCalls)
	}

	// the cache must reflect only the second, successful token
	rec, err := client.cache.Load()
	if err != nil {
		t.Fatalf("cache load failed: %v", err)
	}
	if rec.AccessToken != "token-1" {
		t.Errorf("cached token = %q, want the freshly acquired one", rec.AccessToken)
	}
}

func TestSecondUnauthorizedFails(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	upstream.lyricsHandler = func(w http.ResponseWriter, r *http.Request, call int) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	client := newTestClient(t, upstream)

	_, err := client.GetLyrics("track123")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if upstream.lyricsCalls != 2 {
		t.Errorf("lyricsCalls = %d, want exactly 2 (bounded retry)", upstream.lyricsCalls)
	}
}

func TestNonUnauthorizedStatusDoesNotRetry(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	upstream.lyricsHandler = func(w http.ResponseWriter, r *http.Request, call int) {
		w.WriteHeader(http.StatusNotFound)
	}
	client := newTestClient(t, upstream)

	_, err := client.GetLyrics("track123")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if upstream.lyricsCalls != 1 {
		t.Errorf("lyricsCalls = %d, want 1 (no retry on non-401)", upstream.lyricsCalls)
	}
}

func TestClientIDCarriesOverWhenOmitted(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	upstream.tokenHandler = func(w http.ResponseWriter, r *http.Request, call int) {
		// no clientId in this response
		fmt.Fprintf(w, `{"accessToken": "fresh-token", "accessTokenExpirationTimestampMs": %d}`,
			time.Now().Add(time.Hour).UnixMilli())
	}
	client := newTestClient(t, upstream)

	client.cache.Save(Record{
		AccessToken:  "stale-token",
		ClientID:     "previous-client",
		ExpirationMs: time.Now().Add(-time.Minute).UnixMilli(),
	})

	if _, err := client.GetLyrics("track123"); err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}

	rec, err := client.cache.Load()
	if err != nil {
		t.Fatalf("cache load failed: %v", err)
	}
	if rec.ClientID != "previous-client" {
		t.Errorf("ClientID = %q, want the previous record's id to carry over", rec.ClientID)
	}
	if rec.AccessToken != "fresh-token" {
		t.Errorf("AccessToken = %q, want fresh-token", rec.AccessToken)
	}
}

func TestTokenResponseMissingFieldsFails(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	upstream.tokenHandler = func(w http.ResponseWriter, r *http.Request, call int) {
		fmt.Fprint(w, `{"clientId": "only-a-client"}`)
	}
	client := newTestClient(t, upstream)

	if _, err := client.GetLyrics("track123"); err == nil {
		t.Error("expected failure for token response without access token")
	}
}

func TestGetFormattedLyrics(t *testing.T) {
	upstream := &fakeUpstream{serverTime: 1_700_000_000}
	client := newTestClient(t, upstream)

	result, err := client.GetFormattedLyrics("track123", "id3")
	if err != nil {
		t.Fatalf("GetFormattedLyrics failed: %v", err)
	}
	resp, ok := result.(Id3Response)
	if !ok {
		t.Fatalf("expected Id3Response, got %T", result)
	}
	if resp.SyncType != "LINE_SYNCED" || len(resp.Lines) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}
