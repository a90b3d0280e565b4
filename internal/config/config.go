// Package config centraliza o carregamento de configurações da aplicação.
//
// Ordem de precedência: variáveis de ambiente (incluindo .env), arquivo YAML
// apontado por CONFIG_FILE e, por fim, os valores padrão.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
)

const (
	StatsStorageMemory = "memory"
	StatsStorageRedis  = "redis"
	StatsStorageNone   = "none"
)

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	RateLimiter RateLimiterConfig
	Admission   AdmissionConfig
	Stats       StatsConfig
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level string
}

type RateLimiterConfig struct {
	Capacity     int
	Window       time.Duration
	Shards       int
	CleanupEvery time.Duration
	Rule         domain.RateLimitRule
}

type AdmissionConfig struct {
	TrustedIPHeader   string
	TrustProxyHeaders bool
	APIKey            string
	APIKeyHeader      string
	ProtectedPrefix   string
}

type StatsConfig struct {
	Storage string
	Buffer  int
	Redis   RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// fileConfig espelha o YAML opcional. Todos os campos são lidos como texto e
// passam pela mesma conversão das variáveis de ambiente.
type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	RateLimit struct {
		Capacity           string `yaml:"capacity"`
		WindowMS           string `yaml:"window_ms"`
		ProductionRequests string `yaml:"production_requests"`
		LoopbackRequests   string `yaml:"loopback_requests"`
		Shards             string `yaml:"shards"`
		CleanupMS          string `yaml:"cleanup_ms"`
	} `yaml:"rate_limit"`
	Admission struct {
		TrustedIPHeader   string `yaml:"trusted_ip_header"`
		TrustProxyHeaders string `yaml:"trust_proxy_headers"`
		APIKey            string `yaml:"api_key"`
		APIKeyHeader      string `yaml:"api_key_header"`
		ProtectedPrefix   string `yaml:"protected_prefix"`
	} `yaml:"admission"`
	Stats struct {
		Storage string `yaml:"storage"`
		Buffer  string `yaml:"buffer"`
		Redis   struct {
			Host       string `yaml:"host"`
			Port       string `yaml:"port"`
			Password   string `yaml:"password"`
			DB         string `yaml:"db"`
			Prefix     string `yaml:"prefix"`
			TTLMinutes string `yaml:"ttl_minutes"`
		} `yaml:"redis"`
	} `yaml:"stats"`
}

func (f fileConfig) values() map[string]string {
	return map[string]string{
		"SERVER_PORT":                    f.Server.Port,
		"LOG_LEVEL":                      f.Log.Level,
		"RATE_LIMIT_CAPACITY":            f.RateLimit.Capacity,
		"RATE_LIMIT_WINDOW_MS":           f.RateLimit.WindowMS,
		"RATE_LIMIT_PRODUCTION_REQUESTS": f.RateLimit.ProductionRequests,
		"RATE_LIMIT_LOOPBACK_REQUESTS":   f.RateLimit.LoopbackRequests,
		"RATE_LIMIT_SHARDS":              f.RateLimit.Shards,
		"RATE_LIMIT_CLEANUP_MS":          f.RateLimit.CleanupMS,
		"TRUSTED_IP_HEADER":              f.Admission.TrustedIPHeader,
		"TRUST_PROXY_HEADERS":            f.Admission.TrustProxyHeaders,
		"API_KEY":                        f.Admission.APIKey,
		"API_KEY_HEADER":                 f.Admission.APIKeyHeader,
		"API_PROTECTED_PREFIX":           f.Admission.ProtectedPrefix,
		"STATS_STORAGE":                  f.Stats.Storage,
		"STATS_BUFFER":                   f.Stats.Buffer,
		"REDIS_HOST":                     f.Stats.Redis.Host,
		"REDIS_PORT":                     f.Stats.Redis.Port,
		"REDIS_PASSWORD":                 f.Stats.Redis.Password,
		"REDIS_DB":                       f.Stats.Redis.DB,
		"STATS_REDIS_PREFIX":             f.Stats.Redis.Prefix,
		"STATS_REDIS_TTL_MINUTES":        f.Stats.Redis.TTLMinutes,
	}
}

type loader struct {
	file map[string]string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	l := loader{file: map[string]string{}}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		l.file = file.values()
	}

	rateLimiterConfig, err := l.buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	admissionConfig, err := l.buildAdmissionConfig()
	if err != nil {
		return Config{}, err
	}

	statsConfig, err := l.buildStatsConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server:      ServerConfig{Port: l.getEnv("SERVER_PORT", "8080")},
		Log:         LogConfig{Level: l.getEnv("LOG_LEVEL", "info")},
		RateLimiter: rateLimiterConfig,
		Admission:   admissionConfig,
		Stats:       statsConfig,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate confere os valores que tornam o serviço inutilizável; o erro
// sempre envolve domain.ErrInvalidConfig.
func (c Config) Validate() error {
	rl := c.RateLimiter
	switch {
	case rl.Capacity <= 0:
		return fmt.Errorf("%w: RATE_LIMIT_CAPACITY must be > 0, got %d", domain.ErrInvalidConfig, rl.Capacity)
	case rl.Window <= 0:
		return fmt.Errorf("%w: RATE_LIMIT_WINDOW_MS must be > 0, got %s", domain.ErrInvalidConfig, rl.Window)
	case rl.Rule.ProductionRequests <= 0:
		return fmt.Errorf("%w: RATE_LIMIT_PRODUCTION_REQUESTS must be > 0, got %d", domain.ErrInvalidConfig, rl.Rule.ProductionRequests)
	case rl.Rule.LoopbackRequests <= 0:
		return fmt.Errorf("%w: RATE_LIMIT_LOOPBACK_REQUESTS must be > 0, got %d", domain.ErrInvalidConfig, rl.Rule.LoopbackRequests)
	case rl.Shards <= 0:
		return fmt.Errorf("%w: RATE_LIMIT_SHARDS must be > 0, got %d", domain.ErrInvalidConfig, rl.Shards)
	case rl.CleanupEvery < 0:
		return fmt.Errorf("%w: RATE_LIMIT_CLEANUP_MS must be >= 0, got %s", domain.ErrInvalidConfig, rl.CleanupEvery)
	}

	switch c.Stats.Storage {
	case StatsStorageMemory, StatsStorageRedis, StatsStorageNone:
	default:
		return fmt.Errorf("%w: unsupported STATS_STORAGE %q", domain.ErrInvalidConfig, c.Stats.Storage)
	}
	if c.Stats.Storage != StatsStorageNone && c.Stats.Buffer <= 0 {
		return fmt.Errorf("%w: STATS_BUFFER must be > 0, got %d", domain.ErrInvalidConfig, c.Stats.Buffer)
	}
	return nil
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fileConfig{}, fmt.Errorf("parse yaml: %w", err)
	}
	return file, nil
}

func (l loader) buildRateLimiterConfig() (RateLimiterConfig, error) {
	capacity, err := l.getInt("RATE_LIMIT_CAPACITY", 500)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	windowMS, err := l.getInt("RATE_LIMIT_WINDOW_MS", 60000)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	production, err := l.getInt("RATE_LIMIT_PRODUCTION_REQUESTS", 10)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	loopback, err := l.getInt("RATE_LIMIT_LOOPBACK_REQUESTS", 1000)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	shards, err := l.getInt("RATE_LIMIT_SHARDS", 16)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	cleanupMS, err := l.getInt("RATE_LIMIT_CLEANUP_MS", windowMS)
	if err != nil {
		return RateLimiterConfig{}, err
	}

	return RateLimiterConfig{
		Capacity:     capacity,
		Window:       time.Duration(windowMS) * time.Millisecond,
		Shards:       shards,
		CleanupEvery: time.Duration(cleanupMS) * time.Millisecond,
		Rule: domain.RateLimitRule{
			ProductionRequests: production,
			LoopbackRequests:   loopback,
		},
	}, nil
}

func (l loader) buildAdmissionConfig() (AdmissionConfig, error) {
	trust, err := l.getBool("TRUST_PROXY_HEADERS", true)
	if err != nil {
		return AdmissionConfig{}, err
	}

	return AdmissionConfig{
		TrustedIPHeader:   l.getEnv("TRUSTED_IP_HEADER", "X-Real-IP"),
		TrustProxyHeaders: trust,
		APIKey:            l.getEnv("API_KEY", ""),
		APIKeyHeader:      l.getEnv("API_KEY_HEADER", "X-API-Key"),
		ProtectedPrefix:   l.getEnv("API_PROTECTED_PREFIX", "/api"),
	}, nil
}

func (l loader) buildStatsConfig() (StatsConfig, error) {
	buffer, err := l.getInt("STATS_BUFFER", 1024)
	if err != nil {
		return StatsConfig{}, err
	}
	port, err := l.getInt("REDIS_PORT", 6379)
	if err != nil {
		return StatsConfig{}, err
	}
	db, err := l.getInt("REDIS_DB", 0)
	if err != nil {
		return StatsConfig{}, err
	}
	ttlMinutes, err := l.getInt("STATS_REDIS_TTL_MINUTES", 1440)
	if err != nil {
		return StatsConfig{}, err
	}

	return StatsConfig{
		Storage: strings.ToLower(l.getEnv("STATS_STORAGE", StatsStorageMemory)),
		Buffer:  buffer,
		Redis: RedisConfig{
			Host:     l.getEnv("REDIS_HOST", "localhost"),
			Port:     port,
			Password: l.getEnv("REDIS_PASSWORD", ""),
			DB:       db,
			Prefix:   l.getEnv("STATS_REDIS_PREFIX", "admission:stats"),
			TTL:      time.Duration(ttlMinutes) * time.Minute,
		},
	}, nil
}

func (l loader) getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if value := strings.TrimSpace(l.file[key]); value != "" {
		return value
	}
	return fallback
}

func (l loader) getInt(key string, fallback int) (int, error) {
	raw := l.getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func (l loader) getBool(key string, fallback bool) (bool, error) {
	raw := l.getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
