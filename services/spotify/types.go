package spotify

// serverTimeResponse is the upstream server-time payload.
type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// tokenResponse is the upstream token-exchange payload.
type tokenResponse struct {
	AccessToken                      string `json:"accessToken"`
	AccessTokenExpirationTimestampMs int64  `json:"accessTokenExpirationTimestampMs"`
	ClientID                         string `json:"clientId"`
	IsAnonymous                      bool   `json:"isAnonymous"`
}

// lyricsPayload is the subset of the upstream color-lyrics response the
// formatter needs. A nil Lyrics field means the track has no lyrics.
type lyricsPayload struct {
	Lyrics *struct {
		SyncType string `json:"syncType"`
		Lines    []struct {
			StartTimeMs string `json:"startTimeMs"`
			Words       string `json:"words"`
		} `json:"lines"`
	} `json:"lyrics"`
}

// LyricLine is one lyric line in id3 format. The upstream never supplies
// syllables or end times, so those are fixed to [] and "0".
type LyricLine struct {
	StartTimeMs string   `json:"startTimeMs"`
	Words       string   `json:"words"`
	Syllables   []string `json:"syllables"`
	EndTimeMs   string   `json:"endTimeMs"`
}

// LrcLine is one lyric line in lrc format.
type LrcLine struct {
	TimeTag string `json:"timeTag"`
	Words   string `json:"words"`
}

// Id3Response is the id3-format response body.
type Id3Response struct {
	Error    bool        `json:"error"`
	SyncType string      `json:"syncType"`
	Lines    []LyricLine `json:"lines"`
}

// LrcResponse is the lrc-format response body.
type LrcResponse struct {
	Error    bool      `json:"error"`
	SyncType string    `json:"syncType"`
	Lines    []LrcLine `json:"lines"`
}
