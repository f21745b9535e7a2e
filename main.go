package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"spotify-lyrics-api/cache"
	"spotify-lyrics-api/circuitbreaker"
	"spotify-lyrics-api/config"
	"spotify-lyrics-api/logcolors"
	"spotify-lyrics-api/middleware"
	"spotify-lyrics-api/services/spotify"
	"spotify-lyrics-api/stats"
)

var conf = config.Get()

var (
	persistentCache *cache.PersistentCache
	upstreamBreaker *circuitbreaker.CircuitBreaker
	lyricsClient    lyricsFetcher
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel) // Set to InfoLevel (change to DebugLevel for detailed logs)
}

func main() {
	if !conf.IsValid() {
		log.Errorf("%s No sp_dc cookie configured", logcolors.LogConfig)
		fmt.Fprintln(os.Stderr, "The sp_dc cookie from an open.spotify.com browser session is required.")
		fmt.Fprintln(os.Stderr, "Set the SP_DC environment variable, or add a line like")
		fmt.Fprintln(os.Stderr, `    sp_dc = "<value>"`)
		fmt.Fprintln(os.Stderr, "to ./config.toml, <user config dir>/spotifylyricsapi/config.toml or /etc/spotifylyricsapi/config.toml.")
		os.Exit(1)
	}

	dbPath := conf.Configuration.CacheDBPath
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "spotify_lyrics_cache.db")
	}

	var err error
	persistentCache, err = cache.NewPersistentCache(dbPath, conf.FeatureFlags.CacheCompression)
	if err != nil {
		log.Fatalf("%s Failed to initialize cache: %v", logcolors.LogCacheInit, err)
	}
	defer persistentCache.Close()

	go sweepCache()

	upstreamBreaker = circuitbreaker.New(circuitbreaker.Config{
		Name:      "spotify",
		Threshold: conf.Configuration.CircuitBreakerThreshold,
		Cooldown:  time.Duration(conf.Configuration.CircuitBreakerCooldownSecs) * time.Second,
	})
	lyricsClient = spotify.NewClient(conf.Configuration.SPDC, upstreamBreaker)

	router := mux.NewRouter()
	setupRoutes(router)

	limiter := middleware.NewIPRateLimiter(rate.Limit(conf.Configuration.RateLimitPerSecond), conf.Configuration.RateLimitBurstLimit)

	// logging middleware
	loggedRouter := middleware.LoggingMiddleware(statsMiddleware(router))
	// chain cors middleware
	corsHandler := cors.AllowAll().Handler(loggedRouter)
	// chain rate limiter
	handler := limitMiddleware(corsHandler, limiter)

	port := conf.Configuration.Port
	log.Infof("%s Listening on port %s", logcolors.LogServer, port)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}

// statsMiddleware records per-request counters, status classes and
// response times.
func statsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := middleware.NewResponseRecorder(w)

		stats.Get().RecordRequest(r.URL.Path)
		next.ServeHTTP(rec, r)

		s := stats.Get()
		s.RecordStatusCode(rec.StatusCode)
		s.RecordResponseTime(time.Since(start))
	})
}

func limitMiddleware(next http.Handler, limiter *middleware.IPRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.GetLimiter(r.RemoteAddr).Allow() {
			stats.Get().RecordRateLimited()
			log.Warnf("%s IP %s exceeded the rate limit", logcolors.LogRateLimit, r.RemoteAddr)
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sweepCache drops expired cache entries on an interval so the database
// does not accumulate dead keys between restarts.
func sweepCache() {
	for {
		time.Sleep(time.Hour)
		if removed := persistentCache.Sweep(); removed > 0 {
			log.Infof("%s Swept %d expired cache entries", logcolors.LogCache, removed)
		}
	}
}
