package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Dataset  DatasetConfig  `yaml:"dataset" mapstructure:"dataset"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Query    QueryConfig    `yaml:"query" mapstructure:"query"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                  int      `yaml:"port" mapstructure:"port"`
	ReadHeaderTimeoutSecs int      `yaml:"read_header_timeout_secs" mapstructure:"read_header_timeout_secs"`
	ShutdownTimeoutSecs   int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	CORSOrigins           []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DatasetConfig locates the flat-file company snapshot.
type DatasetConfig struct {
	// Path is a local file path or an http(s) URL.
	Path                string `yaml:"path" mapstructure:"path"`
	DownloadTimeoutSecs int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// OverpassConfig configures the live geodata client.
type OverpassConfig struct {
	Enabled         bool      `yaml:"enabled" mapstructure:"enabled"`
	Endpoints       []string  `yaml:"endpoints" mapstructure:"endpoints"`
	TimeoutSecs     int       `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLSecs    int       `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheMaxEntries int       `yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
	ResultLimit     int       `yaml:"result_limit" mapstructure:"result_limit"`
	UserAgent       string    `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimitRPS    float64   `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	DefaultBBox     []float64 `yaml:"default_bbox" mapstructure:"default_bbox"`
}

// Timeout returns the per-mirror timeout.
func (c OverpassConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheTTL returns how long live results are reused.
func (c OverpassConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// QueryConfig bounds page sizes.
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `yaml:"max_limit" mapstructure:"max_limit"`
}

// GeocodeConfig configures the geocoder used by dataset build.
type GeocodeConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	DelaySecs   float64 `yaml:"delay_secs" mapstructure:"delay_secs"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Delay returns the minimum spacing between geocoder requests.
func (c GeocodeConfig) Delay() time.Duration {
	return time.Duration(c.DelaySecs * float64(time.Second))
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MAPVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout_secs", 10)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("dataset.path", "data/osm_companies.csv")
	v.SetDefault("dataset.download_timeout_secs", 30)
	v.SetDefault("overpass.enabled", true)
	v.SetDefault("overpass.endpoints", []string{
		"https://overpass-api.de/api/interpreter",
		"https://overpass.kumi.systems/api/interpreter",
		"https://overpass.nchc.org.tw/api/interpreter",
	})
	v.SetDefault("overpass.timeout_secs", 9)
	v.SetDefault("overpass.cache_ttl_secs", 60)
	v.SetDefault("overpass.cache_max_entries", 128)
	v.SetDefault("overpass.result_limit", 200)
	v.SetDefault("overpass.user_agent", "mapvia/0.1")
	v.SetDefault("overpass.rate_limit_rps", 2)
	v.SetDefault("overpass.default_bbox", []float64{-118.67, 33.8, -118.15, 34.15})
	v.SetDefault("query.default_limit", 20)
	v.SetDefault("query.max_limit", 50)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "mapvia/0.1 (data crawl)")
	v.SetDefault("geocode.delay_secs", 1.0)
	v.SetDefault("geocode.timeout_secs", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "serve", "query"
// or "dataset".
func (c *Config) Validate(mode string) error {
	var problems []string

	if strings.TrimSpace(c.Dataset.Path) == "" {
		problems = append(problems, "dataset.path is required")
	}

	if mode == "serve" || mode == "query" {
		if c.Query.DefaultLimit < 1 {
			problems = append(problems, "query.default_limit must be at least 1")
		}
		if c.Query.MaxLimit < c.Query.DefaultLimit {
			problems = append(problems, "query.max_limit must be >= query.default_limit")
		}
		if c.Overpass.Enabled {
			if len(c.Overpass.Endpoints) == 0 {
				problems = append(problems, "overpass.endpoints must not be empty")
			}
			if c.Overpass.TimeoutSecs <= 0 {
				problems = append(problems, "overpass.timeout_secs must be positive")
			}
			if n := len(c.Overpass.DefaultBBox); n != 0 && n != 4 {
				problems = append(problems, "overpass.default_bbox must have 4 values")
			}
		}
	}

	if mode == "serve" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
