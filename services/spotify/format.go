package spotify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractTrackID pulls the track id out of a share URL of the shape
// .../track/<id>[?...]. The second return value is false when the URL
// does not carry a track id.
func ExtractTrackID(url string) (string, bool) {
	parts := strings.Split(url, "/")
	if len(parts) > 4 && parts[3] == "track" {
		id := strings.SplitN(parts[4], "?", 2)[0]
		return id, true
	}
	return "", false
}

// formatMs converts a millisecond timestamp to the lrc time tag
// mm:ss.xx (minutes:seconds.centiseconds, zero-padded).
func formatMs(milliseconds int64) string {
	totalSeconds := milliseconds / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	centiseconds := (milliseconds % 1000) / 10

	return fmt.Sprintf("%02d:%02d.%02d", minutes, seconds, centiseconds)
}

// FormatLyrics shapes the raw upstream payload into the requested
// format (id3 or lrc). ErrNoLyrics is returned when the payload has no
// lyrics object.
func FormatLyrics(raw string, format string) (interface{}, error) {
	var payload lyricsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse lyrics response: %w", err)
	}

	if payload.Lyrics == nil {
		return nil, ErrNoLyrics
	}

	syncType := "UNSYNCED"
	if payload.Lyrics.SyncType == "LINE_SYNCED" {
		syncType = "LINE_SYNCED"
	}

	if format == "lrc" {
		lines := []LrcLine{}
		for _, line := range payload.Lyrics.Lines {
			ms, err := strconv.ParseInt(line.StartTimeMs, 10, 64)
			if err != nil {
				ms = 0
			}
			lines = append(lines, LrcLine{
				TimeTag: formatMs(ms),
				Words:   line.Words,
			})
		}
		return LrcResponse{Error: false, SyncType: syncType, Lines: lines}, nil
	}

	lines := []LyricLine{}
	for _, line := range payload.Lyrics.Lines {
		startTimeMs := line.StartTimeMs
		if startTimeMs == "" {
			startTimeMs = "0"
		}
		lines = append(lines, LyricLine{
			StartTimeMs: startTimeMs,
			Words:       line.Words,
			Syllables:   []string{},
			EndTimeMs:   "0",
		})
	}
	return Id3Response{Error: false, SyncType: syncType, Lines: lines}, nil
}
