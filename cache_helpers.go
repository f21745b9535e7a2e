package main

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"spotify-lyrics-api/logcolors"
)

const negativeKeyPrefix = "no_lyrics:"

func lyricsCacheKey(trackID, format string) string {
	return fmt.Sprintf("lyrics:%s:%s", trackID, format)
}

// getCachedResponse returns the cached, already-encoded response body
// for a track and format.
func getCachedResponse(trackID, format string) (string, bool) {
	return persistentCache.Get(lyricsCacheKey(trackID, format))
}

func setCachedResponse(trackID, format, body string) {
	ttl := time.Duration(conf.Configuration.LyricsCacheTTLInSeconds) * time.Second
	if err := persistentCache.Set(lyricsCacheKey(trackID, format), body, ttl); err != nil {
		log.Errorf("%s Failed to cache lyrics for track %s: %v", logcolors.LogCacheLyrics, trackID, err)
	}
}

// getNegativeCache reports whether a track is known to have no lyrics.
func getNegativeCache(trackID string) (string, bool) {
	key := negativeKeyPrefix + trackID
	raw, ok := persistentCache.Get(key)
	if !ok {
		return "", false
	}

	var entry NegativeCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warnf("%s Dropping unreadable negative cache entry for track %s: %v", logcolors.LogCacheNegative, trackID, err)
		persistentCache.Delete(key)
		return "", false
	}

	return entry.Reason, true
}

func setNegativeCache(trackID, reason string) {
	entry := NegativeCacheEntry{
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ttl := time.Duration(conf.Configuration.NegativeCacheTTLInSeconds) * time.Second
	if err := persistentCache.Set(negativeKeyPrefix+trackID, string(data), ttl); err != nil {
		log.Errorf("%s Failed to store negative cache entry for track %s: %v", logcolors.LogCacheNegative, trackID, err)
	}
}
