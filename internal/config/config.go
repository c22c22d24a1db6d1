package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	STT      STTConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Webhook  WebhookConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
	ConnectRetries int
}

// RedisConfig is optional; an empty Addr disables the transcript cache and async jobs on the API.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret    string
	APIKeys      []string
	APIKeyHeader string
}

type STTConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBaseURL  string // default: "http://localhost:8178"
	Language      string
}

type PipelineConfig struct {
	FFmpegPath          string
	TempRoot            string
	SizeCeilingBytes    int64
	RecompressKbps      int
	LargeFileFrames     int64
	ChunkFrames         int
	GatingMaxSamples    int
	MaxWholeBufferBytes int64
}

type CacheConfig struct {
	TTL time.Duration
}

type QueueConfig struct {
	Concurrency int
	Retention   time.Duration
	Timeout     time.Duration
}

type WebhookConfig struct {
	Secret     string
	MaxRetries int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxUpload, err := getEnvInt64("MAX_UPLOAD_BYTES", 512<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	rps, err := getEnvInt("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	connectRetries, err := getEnvInt("DB_CONNECT_RETRIES", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONNECT_RETRIES: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	ceiling, err := getEnvInt64("SIZE_CEILING_BYTES", 24<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid SIZE_CEILING_BYTES: %w", err)
	}

	kbps, err := getEnvInt("RECOMPRESS_KBPS", 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RECOMPRESS_KBPS: %w", err)
	}

	largeFrames, err := getEnvInt64("LARGE_FILE_FRAMES", 10_000_000)
	if err != nil {
		return nil, fmt.Errorf("invalid LARGE_FILE_FRAMES: %w", err)
	}

	chunkFrames, err := getEnvInt("CHUNK_FRAMES", 2_500_000)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_FRAMES: %w", err)
	}

	gatingMax, err := getEnvInt("GATING_MAX_SAMPLES", 5_000_000)
	if err != nil {
		return nil, fmt.Errorf("invalid GATING_MAX_SAMPLES: %w", err)
	}

	memBudget, err := getEnvInt64("MAX_WHOLE_BUFFER_BYTES", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_WHOLE_BUFFER_BYTES: %w", err)
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	concurrency, err := getEnvInt("QUEUE_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_CONCURRENCY: %w", err)
	}

	retention, err := getEnvDuration("QUEUE_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_RETENTION: %w", err)
	}

	taskTimeout, err := getEnvDuration("QUEUE_TASK_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_TASK_TIMEOUT: %w", err)
	}

	webhookRetries, err := getEnvInt("WEBHOOK_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_MAX_RETRIES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			MaxUploadBytes: maxUpload,
			CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
			ConnectRetries: connectRetries,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			APIKeys:      getEnvList("API_KEYS", nil),
			APIKeyHeader: getEnv("API_KEY_HEADER", "Authorization"),
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "openai"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", ""),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
			Language:      getEnv("STT_FORCED_LANGUAGE", "en"),
		},
		Pipeline: PipelineConfig{
			FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
			TempRoot:            getEnv("PIPELINE_TEMP_ROOT", os.TempDir()),
			SizeCeilingBytes:    ceiling,
			RecompressKbps:      kbps,
			LargeFileFrames:     largeFrames,
			ChunkFrames:         chunkFrames,
			GatingMaxSamples:    gatingMax,
			MaxWholeBufferBytes: memBudget,
		},
		Cache: CacheConfig{
			TTL: cacheTTL,
		},
		Queue: QueueConfig{
			Concurrency: concurrency,
			Retention:   retention,
			Timeout:     taskTimeout,
		},
		Webhook: WebhookConfig{
			Secret:     getEnv("WEBHOOK_SECRET", ""),
			MaxRetries: webhookRetries,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	switch c.STT.Backend {
	case "openai":
		if c.STT.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "local":
		if c.STT.LocalBaseURL == "" {
			missing = append(missing, "STT_LOCAL_BASE_URL")
		}
	default:
		return fmt.Errorf("unknown STT_BACKEND %q (want openai or local)", c.STT.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	if c.Pipeline.SizeCeilingBytes <= 0 {
		return fmt.Errorf("SIZE_CEILING_BYTES must be positive")
	}
	if c.Pipeline.ChunkFrames <= 0 {
		return fmt.Errorf("CHUNK_FRAMES must be positive")
	}
	return nil
}

// ValidateWorker checks what cmd/worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("missing required env vars: REDIS_ADDR")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
