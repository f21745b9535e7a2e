package spotify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"spotify-lyrics-api/logcolors"
)

// Record is the persisted token state. It is overwritten wholesale on
// each successful acquisition; only the client id may trail from a
// previous record when the upstream omits it.
type Record struct {
	AccessToken  string `json:"access_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ExpirationMs int64  `json:"access_token_expiration_timestamp_ms,omitempty"`
}

// TokenCache persists the Record as a single JSON file shared by the
// whole process. Callers are expected to serialize access (the Client
// holds a mutex around every load/save/clear).
type TokenCache struct {
	path string
}

// DefaultTokenCachePath is the well-known location of the token file.
func DefaultTokenCachePath() string {
	return filepath.Join(os.TempDir(), "spotify_token.json")
}

func NewTokenCache(path string) *TokenCache {
	if path == "" {
		path = DefaultTokenCachePath()
	}
	return &TokenCache{path: path}
}

// Load reads the cached record. A missing file yields an empty record
// and no error; a present but unparsable file surfaces the error so the
// caller can decide (the freshness guard treats it as stale).
func (c *TokenCache) Load() (Record, error) {
	content, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("error reading token cache file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return Record{}, fmt.Errorf("error parsing token cache file: %w", err)
	}
	return rec, nil
}

// Save overwrites the cache file with the given record.
func (c *TokenCache) Save(rec Record) error {
	content, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error marshaling token record: %w", err)
	}
	if err := os.WriteFile(c.path, content, 0600); err != nil {
		return fmt.Errorf("error writing token cache file: %w", err)
	}
	log.Debugf("%s Token cache file written", logcolors.LogTokenFile)
	return nil
}

// Clear removes the cache file outright, forcing a clean re-acquisition
// on the next request.
func (c *TokenCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing token cache file: %w", err)
	}
	return nil
}
