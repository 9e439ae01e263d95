// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Research, Retrieval, Indexer, Discovery, Server, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Research  ResearchConfig  `yaml:"research"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ResearchConfig bounds the research loop.
type ResearchConfig struct {
	MaxIterations       int           `yaml:"maxIterations"`
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
	MaxSteps            int           `yaml:"maxSteps"`
	TopK                int           `yaml:"topK"`
	SearchParallelism   int           `yaml:"searchParallelism"`
	RelevantResultCap   int           `yaml:"relevantResultCap"`
	FallbackTopN        int           `yaml:"fallbackTopN"`
	FollowUpStrategy    string        `yaml:"followUpStrategy"`
	RunTimeout          time.Duration `yaml:"runTimeout"`
}

// RetrievalConfig holds the scoring constants of the lexical, vector and
// hybrid retrievers.
type RetrievalConfig struct {
	K1                   float64 `yaml:"k1"`
	B                    float64 `yaml:"b"`
	ScoreScale           float64 `yaml:"scoreScale"`
	DenseWeight          float64 `yaml:"denseWeight"`
	SparseWeight         float64 `yaml:"sparseWeight"`
	VectorThreshold      float64 `yaml:"vectorThreshold"`
	ChunkSize            int     `yaml:"chunkSize"`
	ChunkOverlap         int     `yaml:"chunkOverlap"`
	DirectMatchThreshold float64 `yaml:"directMatchThreshold"`
}

// IndexerConfig controls corpus extraction and the optional on-disk index
// cache.
type IndexerConfig struct {
	Workers     int    `yaml:"workers"`
	MaxFiles    int    `yaml:"maxFiles"`
	MaxFileSize int64  `yaml:"maxFileSize"`
	CacheDir    string `yaml:"cacheDir"`
}

// DiscoveryConfig filters which files under the research directory are
// considered.
type DiscoveryConfig struct {
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	Recursive     bool     `yaml:"recursive"`
	IncludeHidden bool     `yaml:"includeHidden"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	AllowedRoots    []string      `yaml:"allowedRoots"`
	// RateLimit is the number of research requests a client may make per
	// minute. Zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ResearchEvents string `yaml:"researchEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls whether per-run span trees are logged.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
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

// Default returns a Config with defaults suitable for a local run.
func Default() *Config {
	return &Config{
		Research: ResearchConfig{
			MaxIterations:       3,
			SimilarityThreshold: 0.3,
			MaxSteps:            50,
			TopK:                10,
			SearchParallelism:   4,
			RelevantResultCap:   20,
			FallbackTopN:        10,
			FollowUpStrategy:    "first",
		},
		Retrieval: RetrievalConfig{
			K1:                   1.5,
			B:                    0.75,
			ScoreScale:           10,
			DenseWeight:          0.6,
			SparseWeight:         0.4,
			VectorThreshold:      0.1,
			ChunkSize:            100,
			ChunkOverlap:         10,
			DirectMatchThreshold: 0.4,
		},
		Indexer: IndexerConfig{
			Workers:     10,
			MaxFiles:    200,
			MaxFileSize: 5 << 20,
		},
		Discovery: DiscoveryConfig{
			Exclude:   []string{".git", "node_modules", "__pycache__", "vendor", ".venv", "dist", "build"},
			Recursive: true,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  2 * time.Minute,
			RateLimit:       30,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "research",
			User:            "research",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				ResearchEvents: "research-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects configurations the research loop cannot run with.
func (c *Config) Validate() error {
	r := c.Research
	if r.MaxIterations < 0 {
		return fmt.Errorf("research.maxIterations must be >= 0, got %d", r.MaxIterations)
	}
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("research.similarityThreshold must be in [0,1], got %g", r.SimilarityThreshold)
	}
	if r.MaxSteps <= 0 {
		return fmt.Errorf("research.maxSteps must be > 0, got %d", r.MaxSteps)
	}
	if r.TopK <= 0 {
		return fmt.Errorf("research.topK must be > 0, got %d", r.TopK)
	}
	if r.SearchParallelism <= 0 {
		return fmt.Errorf("research.searchParallelism must be > 0, got %d", r.SearchParallelism)
	}
	switch r.FollowUpStrategy {
	case "", "first", "longest":
	default:
		return fmt.Errorf("research.followUpStrategy %q is not one of first, longest", r.FollowUpStrategy)
	}

	q := c.Retrieval
	if q.K1 < 0 || q.B < 0 || q.B > 1 {
		return fmt.Errorf("retrieval.k1 must be >= 0 and retrieval.b in [0,1], got k1=%g b=%g", q.K1, q.B)
	}
	if q.ScoreScale <= 0 {
		return fmt.Errorf("retrieval.scoreScale must be > 0, got %g", q.ScoreScale)
	}
	if q.DenseWeight < 0 || q.SparseWeight < 0 {
		return fmt.Errorf("retrieval weights must be >= 0, got dense=%g sparse=%g", q.DenseWeight, q.SparseWeight)
	}
	if q.VectorThreshold < 0 || q.VectorThreshold > 1 {
		return fmt.Errorf("retrieval.vectorThreshold must be in [0,1], got %g", q.VectorThreshold)
	}
	if q.ChunkSize <= 0 || q.ChunkOverlap < 0 || q.ChunkOverlap >= q.ChunkSize {
		return fmt.Errorf("retrieval.chunkSize must be > chunkOverlap >= 0, got size=%d overlap=%d", q.ChunkSize, q.ChunkOverlap)
	}
	if q.DirectMatchThreshold < 0 || q.DirectMatchThreshold > 1 {
		return fmt.Errorf("retrieval.directMatchThreshold must be in [0,1], got %g", q.DirectMatchThreshold)
	}

	if c.Indexer.Workers <= 0 {
		return fmt.Errorf("indexer.workers must be > 0, got %d", c.Indexer.Workers)
	}
	if c.Indexer.MaxFiles <= 0 {
		return fmt.Errorf("indexer.maxFiles must be > 0, got %d", c.Indexer.MaxFiles)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must be >= 0, got %d", c.Server.RateLimit)
	}
	return nil
}

// applyEnvOverrides reads RE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RE_RESEARCH_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Research.MaxIterations = n
		}
	}
	if v := os.Getenv("RE_RESEARCH_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Research.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("RE_RESEARCH_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Research.TopK = n
		}
	}
	if v := os.Getenv("RE_RETRIEVAL_DENSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.DenseWeight = f
		}
	}
	if v := os.Getenv("RE_RETRIEVAL_SPARSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.SparseWeight = f
		}
	}
	if v := os.Getenv("RE_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("RE_INDEXER_CACHE_DIR"); v != "" {
		cfg.Indexer.CacheDir = v
	}
	if v := os.Getenv("RE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RE_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("RE_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v)
	}
	if v := os.Getenv("RE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RE_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RE_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RE_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("RE_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v)
	}
	if v := os.Getenv("RE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RE_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("RE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
