package main

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"spotify-lyrics-api/circuitbreaker"
	"spotify-lyrics-api/logcolors"
	"spotify-lyrics-api/services/spotify"
	"spotify-lyrics-api/stats"
)

const noLyricsMessage = "lyrics for this track is not available on spotify!"

func getLyrics(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "id3"
	}
	if format != "id3" && format != "lrc" {
		Respond(w).Error(http.StatusBadRequest, "format parameter must be either 'id3' or 'lrc'!")
		return
	}

	trackID := r.URL.Query().Get("trackid")
	shareURL := r.URL.Query().Get("url")
	if trackID == "" && shareURL == "" {
		Respond(w).Error(http.StatusBadRequest, "url or trackid parameter is required!")
		return
	}
	if trackID == "" {
		id, ok := spotify.ExtractTrackID(shareURL)
		if !ok {
			Respond(w).Error(http.StatusBadRequest, "invalid url parameter!")
			return
		}
		trackID = id
	}

	if body, ok := getCachedResponse(trackID, format); ok {
		stats.Get().RecordCacheHit()
		log.Infof("%s Serving cached lyrics for track %s", logcolors.LogCacheLyrics, trackID)
		Respond(w).SetCacheStatus("HIT").Raw(body)
		return
	}

	if reason, ok := getNegativeCache(trackID); ok {
		stats.Get().RecordNegativeCacheHit()
		log.Infof("%s Returning cached 'no lyrics' for track %s: %s", logcolors.LogCacheNegative, trackID, reason)
		Respond(w).SetCacheStatus("NEGATIVE_HIT").Error(http.StatusNotFound, noLyricsMessage)
		return
	}

	stats.Get().RecordCacheMiss()
	result, err := lyricsClient.GetFormattedLyrics(trackID, format)
	if err != nil {
		writeLyricsError(w, trackID, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		log.Errorf("%s Failed to encode lyrics for track %s: %v", logcolors.LogLyrics, trackID, err)
		Respond(w).Error(http.StatusInternalServerError, "failed to encode lyrics response")
		return
	}

	log.Infof("%s Caching lyrics for track %s (%s)", logcolors.LogCacheLyrics, trackID, format)
	setCachedResponse(trackID, format, string(body))
	Respond(w).SetCacheStatus("MISS").Raw(string(body))
}

// writeLyricsError translates client errors into HTTP responses in one place.
func writeLyricsError(w http.ResponseWriter, trackID string, err error) {
	var apiErr *spotify.APIError

	switch {
	case errors.Is(err, spotify.ErrNoLyrics),
		errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		log.Warnf("%s No lyrics available for track %s", logcolors.LogLyrics, trackID)
		setNegativeCache(trackID, noLyricsMessage)
		Respond(w).SetCacheStatus("MISS").Error(http.StatusNotFound, noLyricsMessage)

	case errors.Is(err, spotify.ErrInvalidCredential), errors.Is(err, spotify.ErrMissingCredential):
		log.Errorf("%s %v", logcolors.LogAuthError, err)
		Respond(w).Error(http.StatusInternalServerError, "the sp_dc set seems to be invalid, please correct it!")

	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		log.Warnf("%s Upstream circuit open, rejecting request for track %s", logcolors.LogLyrics, trackID)
		w.Header().Set("Retry-After", "60")
		Respond(w).Error(http.StatusServiceUnavailable, "upstream temporarily unavailable, please try again later")

	default:
		log.Errorf("%s Failed to fetch lyrics for track %s: %v", logcolors.LogLyrics, trackID, err)
		Respond(w).Error(http.StatusInternalServerError, "Failed to fetch lyrics: "+err.Error())
	}
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":          "ok",
		"circuit_breaker": upstreamBreaker.State().String(),
	}

	if upstreamBreaker.IsOpen() {
		health["status"] = "degraded"
		health["circuit_breaker_retry_in"] = upstreamBreaker.TimeUntilRetry().String()
	}
	if !conf.IsValid() {
		health["status"] = "unhealthy"
		health["error"] = "no sp_dc cookie configured"
	}

	numKeys, _ := persistentCache.Stats()
	health["cache_keys"] = numKeys

	Respond(w).JSON(health)
}

func getStats(w http.ResponseWriter, r *http.Request) {
	s := stats.Get()
	snapshot := s.Snapshot()

	numKeys, sizeInKB := persistentCache.Stats()
	snapshot["cache_storage"] = map[string]interface{}{
		"keys":    numKeys,
		"size_kb": sizeInKB,
		"size_mb": float64(sizeInKB) / 1024,
	}

	snapshot["circuit_breaker"] = map[string]interface{}{
		"state":              upstreamBreaker.State().String(),
		"failures":           upstreamBreaker.Failures(),
		"cooldown_remaining": upstreamBreaker.TimeUntilRetry().String(),
	}

	Respond(w).JSON(snapshot)
}
