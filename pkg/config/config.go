package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Trigger guard backends.
const (
	TriggerGuardRedis  = "redis"
	TriggerGuardMemory = "memory"
)

type Config struct {
	Env  string
	Port int

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Dedup      DedupConfig
	Upstream   UpstreamConfig
	Broker     BrokerConfig
	Automation AutomationConfig
	Stats      StatsConfig
	Sweeper    SweeperConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DedupConfig controls fetch reservations. Disabling it lets every fetch through.
type DedupConfig struct {
	Enabled    bool
	PendingTTL time.Duration
	MatchTTL   time.Duration
	BeatmapTTL time.Duration
	PlayerTTL  time.Duration
}

// UpstreamConfig points at the osu! API.
type UpstreamConfig struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	RequestsPerMinute int
	Burst             int
	Timeout           time.Duration
}

// BrokerConfig tunes the in-process message router.
type BrokerConfig struct {
	BufferSize    int64
	MaxRetries    int
	RetryInterval time.Duration
}

// AutomationConfig governs verification policy and the completion trigger.
type AutomationConfig struct {
	ScoreMinimum          int64
	MinVerifiedMatchRatio float64
	TriggerGuard          string
	TriggerTTL            time.Duration
	CompletionConcurrency int
}

// StatsConfig sizes the stats worker pool.
type StatsConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// SweeperConfig schedules the periodic recovery jobs.
type SweeperConfig struct {
	Enabled       bool
	FetchInterval time.Duration
	StatsInterval time.Duration
	BatchSize     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Dedup = DedupConfig{
		Enabled:    v.GetBool("DEDUP_ENABLED"),
		PendingTTL: parseDuration(v.GetString("DEDUP_PENDING_TTL"), 5*time.Minute),
		MatchTTL:   parseDuration(v.GetString("DEDUP_MATCH_TTL"), time.Hour),
		BeatmapTTL: parseDuration(v.GetString("DEDUP_BEATMAP_TTL"), 24*time.Hour),
		PlayerTTL:  parseDuration(v.GetString("DEDUP_PLAYER_TTL"), 12*time.Hour),
	}

	cfg.Upstream = UpstreamConfig{
		BaseURL:           v.GetString("OSU_API_BASE_URL"),
		TokenURL:          v.GetString("OSU_API_TOKEN_URL"),
		ClientID:          v.GetString("OSU_API_CLIENT_ID"),
		ClientSecret:      v.GetString("OSU_API_CLIENT_SECRET"),
		RequestsPerMinute: v.GetInt("OSU_API_REQUESTS_PER_MINUTE"),
		Burst:             v.GetInt("OSU_API_BURST"),
		Timeout:           parseDuration(v.GetString("OSU_API_TIMEOUT"), 15*time.Second),
	}

	cfg.Broker = BrokerConfig{
		BufferSize:    v.GetInt64("BROKER_BUFFER_SIZE"),
		MaxRetries:    v.GetInt("BROKER_MAX_RETRIES"),
		RetryInterval: parseDuration(v.GetString("BROKER_RETRY_INTERVAL"), time.Second),
	}

	guard := strings.ToLower(v.GetString("AUTOMATION_TRIGGER_GUARD"))
	if guard != TriggerGuardMemory {
		guard = TriggerGuardRedis
	}
	cfg.Automation = AutomationConfig{
		ScoreMinimum:          v.GetInt64("AUTOMATION_SCORE_MINIMUM"),
		MinVerifiedMatchRatio: v.GetFloat64("AUTOMATION_MIN_VERIFIED_MATCH_RATIO"),
		TriggerGuard:          guard,
		TriggerTTL:            parseDuration(v.GetString("AUTOMATION_TRIGGER_TTL"), 2*time.Hour),
		CompletionConcurrency: v.GetInt("AUTOMATION_COMPLETION_CONCURRENCY"),
	}

	cfg.Stats = StatsConfig{
		Workers:    v.GetInt("STATS_WORKERS"),
		Retries:    v.GetInt("STATS_RETRIES"),
		RetryDelay: parseDuration(v.GetString("STATS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:       v.GetBool("SWEEPER_ENABLED"),
		FetchInterval: parseDuration(v.GetString("SWEEPER_FETCH_INTERVAL"), 10*time.Minute),
		StatsInterval: parseDuration(v.GetString("SWEEPER_STATS_INTERVAL"), 30*time.Minute),
		BatchSize:     v.GetInt("SWEEPER_BATCH_SIZE"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tourney")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DEDUP_ENABLED", true)
	v.SetDefault("DEDUP_PENDING_TTL", "5m")
	v.SetDefault("DEDUP_MATCH_TTL", "1h")
	v.SetDefault("DEDUP_BEATMAP_TTL", "24h")
	v.SetDefault("DEDUP_PLAYER_TTL", "12h")

	v.SetDefault("OSU_API_BASE_URL", "https://osu.ppy.sh/api/v2")
	v.SetDefault("OSU_API_TOKEN_URL", "https://osu.ppy.sh/oauth/token")
	v.SetDefault("OSU_API_CLIENT_ID", "")
	v.SetDefault("OSU_API_CLIENT_SECRET", "")
	v.SetDefault("OSU_API_REQUESTS_PER_MINUTE", 60)
	v.SetDefault("OSU_API_BURST", 5)
	v.SetDefault("OSU_API_TIMEOUT", "15s")

	v.SetDefault("BROKER_BUFFER_SIZE", 256)
	v.SetDefault("BROKER_MAX_RETRIES", 3)
	v.SetDefault("BROKER_RETRY_INTERVAL", "1s")

	v.SetDefault("AUTOMATION_SCORE_MINIMUM", 1000)
	v.SetDefault("AUTOMATION_MIN_VERIFIED_MATCH_RATIO", 0.8)
	v.SetDefault("AUTOMATION_TRIGGER_GUARD", TriggerGuardRedis)
	v.SetDefault("AUTOMATION_TRIGGER_TTL", "2h")
	v.SetDefault("AUTOMATION_COMPLETION_CONCURRENCY", 4)

	v.SetDefault("STATS_WORKERS", 1)
	v.SetDefault("STATS_RETRIES", 3)
	v.SetDefault("STATS_RETRY_DELAY", "2s")

	v.SetDefault("SWEEPER_ENABLED", true)
	v.SetDefault("SWEEPER_FETCH_INTERVAL", "10m")
	v.SetDefault("SWEEPER_STATS_INTERVAL", "30m")
	v.SetDefault("SWEEPER_BATCH_SIZE", 100)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
