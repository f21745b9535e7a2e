package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		SPDC string `envconfig:"SP_DC" default:""`
		Port string `envconfig:"PORT" default:"8080"`

		RateLimitPerSecond  int `envconfig:"RATE_LIMIT_PER_SECOND" default:"5"`
		RateLimitBurstLimit int `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"10"`

		CacheDBPath               string `envconfig:"CACHE_DB_PATH" default:""`
		LyricsCacheTTLInSeconds   int    `envconfig:"LYRICS_CACHE_TTL_IN_SECONDS" default:"86400"`
		NegativeCacheTTLInSeconds int    `envconfig:"NEGATIVE_CACHE_TTL_IN_SECONDS" default:"604800"` // "no lyrics" is sticky upstream, cache it for a week

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"`
	}

	FeatureFlags struct {
		CacheCompression bool `envconfig:"FF_CACHE_COMPRESSION" default:"true"`
	}
}

// load loads the configuration from the environment, then lets a config
// file override the sp_dc credential if one is present.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)

	if spdc, path := loadSPDCFromFile(); spdc != "" {
		log.Infof("Loaded sp_dc from config file at %s", path)
		cfg.Configuration.SPDC = spdc
	}

	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}

// IsValid reports whether the loaded configuration carries the sp_dc
// credential required to authenticate against the upstream service.
func (c Config) IsValid() bool {
	return c.Configuration.SPDC != ""
}

// configFilePaths returns candidate config file locations in precedence
// order: working directory, user config directory, system-wide.
func configFilePaths() []string {
	paths := []string{"config.toml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "spotifylyricsapi", "config.toml"))
	}
	paths = append(paths, "/etc/spotifylyricsapi/config.toml")
	return paths
}

// loadSPDCFromFile scans the candidate config files for an sp_dc entry.
// The file format is a flat key = "value" list; only sp_dc is read here.
func loadSPDCFromFile() (value, path string) {
	for _, p := range configFilePaths() {
		content, err := os.ReadFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warnf("Failed to read config file at %s: %v", p, err)
			}
			continue
		}
		if spdc := parseSPDC(string(content)); spdc != "" {
			return spdc, p
		}
	}
	return "", ""
}

func parseSPDC(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "sp_dc") && !strings.HasPrefix(line, "SP_DC") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		v := strings.TrimSpace(parts[1])
		v = strings.Trim(v, `"'`)
		if v != "" {
			return v
		}
	}
	return ""
}
