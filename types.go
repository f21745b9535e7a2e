package main

// lyricsFetcher is the slice of the Spotify client the handlers need.
type lyricsFetcher interface {
	GetFormattedLyrics(trackID, format string) (interface{}, error)
}

// ErrorResponse is the JSON shape of every non-2xx reply.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// NegativeCacheEntry records a "no lyrics" result so repeated lookups
// for the same track don't hit the upstream again.
type NegativeCacheEntry struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}
