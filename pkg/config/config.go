// Package config loads application configuration from YAML files with
// environment-variable overrides. An optional .env file is read first so
// secrets such as the OpenAI key can live outside the YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Engine    EngineConfig    `yaml:"engine"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RequestTimeout bounds batch
// requests; StreamTimeout bounds event-stream responses.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	StreamTimeout   time.Duration `yaml:"streamTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	BaseURL         string        `yaml:"baseUrl"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a key/value connection string understood by both lib/pq and
// pgx.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	VideoIngest     string `yaml:"videoIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// OpenAIConfig configures the chat, embedding and transcription backends.
type OpenAIConfig struct {
	APIKey             string        `yaml:"apiKey"`
	BaseURL            string        `yaml:"baseUrl"`
	ChatModel          string        `yaml:"chatModel"`
	EmbeddingModel     string        `yaml:"embeddingModel"`
	TranscriptionModel string        `yaml:"transcriptionModel"`
	Temperature        float32       `yaml:"temperature"`
	MaxTokens          int           `yaml:"maxTokens"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
	MaxRetries         int           `yaml:"maxRetries"`
}

// RetrievalConfig selects the index backend and the chunking/ranking knobs.
type RetrievalConfig struct {
	Backend             string `yaml:"backend"` // memory | sqlite | pgvector
	SQLitePath          string `yaml:"sqlitePath"`
	Dimensions          int    `yaml:"dimensions"`
	ChunkSize           int    `yaml:"chunkSize"`
	ChunkOverlap        int    `yaml:"chunkOverlap"`
	DefaultK            int    `yaml:"defaultK"`
	CandidateMultiplier int    `yaml:"candidateMultiplier"`
	SummaryMaxChunks    int    `yaml:"summaryMaxChunks"`
	EmbedBatchSize      int    `yaml:"embedBatchSize"`
	QueryCacheSize      int    `yaml:"queryCacheSize"`
}

// CacheConfig selects where responses and processed markers live.
type CacheConfig struct {
	Backend   string `yaml:"backend"` // memory | redis | postgres
	KeyPrefix string `yaml:"keyPrefix"`
}

type IngestionConfig struct {
	MediaDir           string        `yaml:"mediaDir"`
	AudioFormat        string        `yaml:"audioFormat"`
	YTDLPPath          string        `yaml:"ytDlpPath"`
	FFmpegPath         string        `yaml:"ffmpegPath"`
	AudioQuality       string        `yaml:"audioQuality"`
	LongAudioQuality   string        `yaml:"longAudioQuality"`
	LongVideoThreshold time.Duration `yaml:"longVideoThreshold"`
	Workers            int           `yaml:"workers"`
	JobTimeout         time.Duration `yaml:"jobTimeout"`
}

// EngineConfig toggles optional orchestration behaviour.
type EngineConfig struct {
	SingleFlight bool `yaml:"singleFlight"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads an optional .env file and YAML config (when path is non-empty),
// then applies VQA_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Retrieval.Backend {
	case "memory", "sqlite", "pgvector":
	default:
		return fmt.Errorf("retrieval.backend %q: want memory, sqlite or pgvector", c.Retrieval.Backend)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("cache.backend %q: want memory, redis or postgres", c.Cache.Backend)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunkSize must be positive")
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunkOverlap must be in [0, chunkSize)")
	}
	if c.Retrieval.DefaultK <= 0 {
		return fmt.Errorf("retrieval.defaultK must be positive")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			RequestTimeout:  60 * time.Second,
			StreamTimeout:   5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			BaseURL:         "http://localhost:8080",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "videoqa",
			User:            "videoqa",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "videoqa-group",
			Topics: KafkaTopics{
				VideoIngest:     "video-ingest",
				AnalyticsEvents: "analytics-events",
			},
		},
		OpenAI: OpenAIConfig{
			ChatModel:          "gpt-4o-mini",
			EmbeddingModel:     "text-embedding-3-small",
			TranscriptionModel: "whisper-1",
			Temperature:        0.2,
			MaxTokens:          1024,
			RequestTimeout:     90 * time.Second,
			MaxRetries:         3,
		},
		Retrieval: RetrievalConfig{
			Backend:             "memory",
			SQLitePath:          "data/index.db",
			Dimensions:          1536,
			ChunkSize:           1000,
			ChunkOverlap:        200,
			DefaultK:            4,
			CandidateMultiplier: 4,
			SummaryMaxChunks:    1000,
			EmbedBatchSize:      64,
			QueryCacheSize:      512,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			KeyPrefix: "vqa:",
		},
		Ingestion: IngestionConfig{
			MediaDir:           "media",
			AudioFormat:        "mp3",
			YTDLPPath:          "yt-dlp",
			FFmpegPath:         "ffmpeg",
			AudioQuality:       "128K",
			LongAudioQuality:   "64K",
			LongVideoThreshold: 30 * time.Minute,
			Workers:            2,
			JobTimeout:         30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 60,
			Window:            time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads VQA_* variables. OPENAI_API_KEY is honoured as a
// fallback for the key so a stock .env works unchanged.
func applyEnvOverrides(cfg *Config) {
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("VQA_SERVER_PORT", &cfg.Server.Port)
	setString("VQA_SERVER_BASE_URL", &cfg.Server.BaseURL)

	setString("VQA_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("VQA_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("VQA_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("VQA_POSTGRES_USER", &cfg.Postgres.User)
	setString("VQA_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("VQA_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	setString("VQA_REDIS_ADDR", &cfg.Redis.Addr)
	setString("VQA_REDIS_PASSWORD", &cfg.Redis.Password)

	if v := os.Getenv("VQA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	if cfg.OpenAI.APIKey == "" {
		setString("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	}
	setString("VQA_OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	setString("VQA_OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	setString("VQA_OPENAI_CHAT_MODEL", &cfg.OpenAI.ChatModel)
	setString("VQA_OPENAI_EMBEDDING_MODEL", &cfg.OpenAI.EmbeddingModel)

	setString("VQA_RETRIEVAL_BACKEND", &cfg.Retrieval.Backend)
	setString("VQA_RETRIEVAL_SQLITE_PATH", &cfg.Retrieval.SQLitePath)
	setInt("VQA_RETRIEVAL_CHUNK_SIZE", &cfg.Retrieval.ChunkSize)
	setInt("VQA_RETRIEVAL_CHUNK_OVERLAP", &cfg.Retrieval.ChunkOverlap)
	setInt("VQA_RETRIEVAL_DEFAULT_K", &cfg.Retrieval.DefaultK)

	setString("VQA_CACHE_BACKEND", &cfg.Cache.Backend)
	setBool("VQA_ENGINE_SINGLE_FLIGHT", &cfg.Engine.SingleFlight)

	setString("VQA_INGESTION_MEDIA_DIR", &cfg.Ingestion.MediaDir)
	setString("VQA_INGESTION_YTDLP_PATH", &cfg.Ingestion.YTDLPPath)
	setString("VQA_INGESTION_FFMPEG_PATH", &cfg.Ingestion.FFmpegPath)
	setInt("VQA_INGESTION_WORKERS", &cfg.Ingestion.Workers)

	setString("VQA_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("VQA_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("VQA_TRACING_ENABLED", &cfg.Tracing.Enabled)
	setBool("VQA_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("VQA_METRICS_PORT", &cfg.Metrics.Port)
}
