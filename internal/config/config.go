package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store and cache backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
	CacheRedis     = "redis"
)

// Config holds service configuration loaded from .env, YAML and the environment.
type Config struct {
	TestingMode bool

	ServerPort  string
	CORSOrigins []string

	WeatherAPIKey     string
	WeatherAPIURL     string
	GeocodeAPIURL     string
	WeatherAPITimeout time.Duration

	NewsAPIKey     string
	NewsAPIURL     string
	NewsAPITimeout time.Duration

	RequestTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled   bool
	CircuitFailureThreshold int
	CircuitSuccessThreshold int
	CircuitOpenTimeout      time.Duration

	StoreBackend        string
	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration
	HistoryLimit        int
	BcryptCost          int

	CacheBackend          string
	NewsCacheTTL          time.Duration
	NewsCoalesceTimeout   time.Duration
	WarmCities            []string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisURL              string
	RedisTimeout          time.Duration

	ShutdownTimeout  time.Duration
	HealthWindow     time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL        string `yaml:"url"`
		GeocodeURL string `yaml:"geocode_url"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"weather_api"`

	NewsAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"news_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Store struct {
		Backend string `yaml:"backend"`
		Mongo   struct {
			Database       string `yaml:"database"`
			ConnectTimeout string `yaml:"connect_timeout"`
		} `yaml:"mongo"`
		HistoryLimit int `yaml:"history_limit"`
		BcryptCost   int `yaml:"bcrypt_cost"`
	} `yaml:"store"`

	Cache struct {
		Backend         string   `yaml:"backend"`
		NewsTTL         string   `yaml:"news_ttl"`
		CoalesceTimeout string   `yaml:"coalesce_timeout"`
		WarmCities      []string `yaml:"warm_cities"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			URL     string `yaml:"url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	NewsAPIKey    string `yaml:"news_api_key"`
	MongoURI      string `yaml:"mongo_uri"`
}

// Load reads .env, config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml from the
// working directory, then applies environment overrides. Call from project root.
// Missing files are not errors; defaults apply.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return loadFrom(cwd)
}

func loadFrom(root string) (*Config, error) {
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(root, "config", env+".yaml")
	if ok, err := readYAML(configPath, &fc); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	} else if !ok && os.Getenv("ENV_NAME") != "" {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var sec secretsFile
	secretsPath := filepath.Join(root, "config", "secrets.yaml")
	if _, err := readYAML(secretsPath, &sec); err != nil {
		return nil, fmt.Errorf("secrets file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "5000")
	cfg.CORSOrigins = trimAll(fc.Server.CORSOrigins)
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5")
	cfg.GeocodeAPIURL = firstNonEmpty(fc.WeatherAPI.GeocodeURL, "https://api.openweathermap.org/geo/1.0")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.NewsAPIKey = firstNonEmpty(os.Getenv("NEWS_API_KEY"), sec.NewsAPIKey)
	cfg.NewsAPIURL = firstNonEmpty(fc.NewsAPI.URL, "https://newsapi.org/v2")
	cfg.NewsAPITimeout = parseDurationOrZero(fc.NewsAPI.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 25*time.Second)

	cfg.RetryAttempts = intOrDefault(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = intOrDefault(fc.Reliability.RateLimitRPS, 20)
	cfg.RateLimitBurst = intOrDefault(fc.Reliability.RateLimitBurst, 50)

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled == nil || *cb.Enabled
	cfg.CircuitFailureThreshold = intOrDefault(cb.FailureThreshold, 5)
	cfg.CircuitSuccessThreshold = intOrDefault(cb.SuccessThreshold, 2)
	cfg.CircuitOpenTimeout = parseDuration(cb.OpenTimeout, 30*time.Second)

	cfg.StoreBackend = lowerTrim(firstNonEmpty(os.Getenv("STORE_BACKEND"), fc.Store.Backend, StoreMemory))
	cfg.MongoURI = firstNonEmpty(os.Getenv("MONGO_URI"), sec.MongoURI)
	cfg.MongoDatabase = firstNonEmpty(fc.Store.Mongo.Database, "irrigation")
	cfg.MongoConnectTimeout = parseDuration(fc.Store.Mongo.ConnectTimeout, 10*time.Second)
	cfg.HistoryLimit = intOrDefault(fc.Store.HistoryLimit, 10)
	cfg.BcryptCost = intOrDefault(fc.Store.BcryptCost, 10)

	cfg.CacheBackend = lowerTrim(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, CacheInMemory))
	cfg.NewsCacheTTL = parseDuration(fc.Cache.NewsTTL, 15*time.Minute)
	cfg.NewsCoalesceTimeout = parseDurationOrZero(fc.Cache.CoalesceTimeout, 15*time.Second)
	cfg.WarmCities = trimAll(fc.Cache.WarmCities)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = intOrDefault(fc.Cache.Memcached.MaxIdleConns, 2)
	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), fc.Cache.Redis.URL)
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = intOrDefault(fc.Health.DegradedErrorPct, 50)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readYAML decodes path into out. ok is false when the file does not exist.
func readYAML(path string, out interface{}) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse: %w", err)
	}
	return true, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is for validate to reject or interpret.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func intOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validate performs post-load validation. RequestTimeout is raised above the
// provider timeouts when needed so one slow call cannot consume the whole request.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.NewsAPITimeout <= 0 {
		return fmt.Errorf("news_api.timeout must be positive")
	}
	if floor := maxDuration(cfg.WeatherAPITimeout, cfg.NewsAPITimeout); cfg.RequestTimeout <= floor {
		cfg.RequestTimeout = floor + time.Second
	}
	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return fmt.Errorf("server port must be numeric, got %q", cfg.ServerPort)
	}
	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			return fmt.Errorf("MONGO_URI required when store.backend is mongo (set env or config/secrets.yaml mongo_uri)")
		}
	default:
		return fmt.Errorf("store.backend must be memory or mongo, got %q", cfg.StoreBackend)
	}
	switch cfg.CacheBackend {
	case CacheInMemory, CacheMemcached:
	case CacheRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
