package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
)

const (
	BlobBackendS3   = "s3"
	BlobBackendDisk = "disk"

	VectorBackendPgvector = "pgvector"
	VectorBackendSQLite   = "sqlite"

	EmbedProviderGemini = "gemini"
	EmbedProviderOpenAI = "openai"
)

type Config struct {
	Debug     bool
	Port      string
	JWTSecret string

	BlobBackend  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	S3Endpoint   string
	BlobDir      string

	VectorBackend string
	DatabaseURL   string
	SslCertPath   string
	SQLitePath    string

	EmbedProvider string
	AIAPIKey      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	EmbedModel    string
	EmbedDim      int

	Pipeline PipelineConfig
}

// PipelineConfig tunes the ingestion pipeline. It can be overridden from a
// YAML file named by PIPELINE_CONFIG, then from the environment.
type PipelineConfig struct {
	ChunkSize        int           `yaml:"chunk_size"`
	ChunkOverlap     int           `yaml:"chunk_overlap"`
	MaxSegmentBytes  int           `yaml:"max_segment_bytes"`
	BatchSize        int           `yaml:"batch_size"`
	EmbedConcurrency int           `yaml:"embed_concurrency"`
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	Timeout          time.Duration `yaml:"timeout"`
}

// LoadConfig loads the environment variables and returns the config.
// Unparseable numeric, boolean or duration values are reported, not ignored.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		Debug:     env.getBool("DEBUG", false),
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		BlobBackend:  getEnv("BLOB_BACKEND", BlobBackendS3),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "contexta-docs"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		BlobDir:      getEnv("BLOB_DIR", "./data/blobs"),

		VectorBackend: getEnv("VECTOR_BACKEND", VectorBackendPgvector),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SslCertPath:   getEnv("SSL_CERT_PATH", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "./data/contexta.db"),

		EmbedProvider: getEnv("EMBED_PROVIDER", EmbedProviderGemini),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		EmbedDim:      env.getInt("EMBED_DIM", 0),
	}

	if path := getEnv("PIPELINE_CONFIG", ""); path != "" {
		if err := loadPipelineFile(path, &cfg.Pipeline); err != nil {
			return nil, err
		}
	}
	overridePipelineFromEnv(env, &cfg.Pipeline)
	if len(env.errs) > 0 {
		return nil, errors.Join(env.errs...)
	}
	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPipelineFile(path string, p *PipelineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parse pipeline config: %w", err)
	}
	// chunk_overlap: 0 in the file turns overlap off; absent means default.
	var set struct {
		ChunkOverlap *int `yaml:"chunk_overlap"`
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("parse pipeline config: %w", err)
	}
	if set.ChunkOverlap != nil {
		p.ChunkOverlap = explicitOverlap(*set.ChunkOverlap)
	}
	return nil
}

func overridePipelineFromEnv(env *envReader, p *PipelineConfig) {
	p.ChunkSize = env.getInt("CHUNK_SIZE", p.ChunkSize)
	if getEnv("CHUNK_OVERLAP", "") != "" {
		p.ChunkOverlap = explicitOverlap(env.getInt("CHUNK_OVERLAP", p.ChunkOverlap))
	}
	p.MaxSegmentBytes = env.getInt("MAX_SEGMENT_BYTES", p.MaxSegmentBytes)
	p.BatchSize = env.getInt("BATCH_SIZE", p.BatchSize)
	p.EmbedConcurrency = env.getInt("EMBED_CONCURRENCY", p.EmbedConcurrency)
	p.Workers = env.getInt("INGEST_WORKERS", p.Workers)
	p.QueueSize = env.getInt("INGEST_QUEUE_SIZE", p.QueueSize)
	p.Timeout = env.getDuration("INGEST_TIMEOUT", p.Timeout)
}

// explicitOverlap maps an overlap the operator set to 0 (or below) onto
// NoOverlap, so defaults do not replace it.
func explicitOverlap(n int) int {
	if n <= 0 {
		return ingestion_engine.NoOverlap
	}
	return n
}

// ApplyDefaults sets default values for any zero values in cfg. Chunking
// and batching defaults are the ingestion engine's own.
func ApplyDefaults(cfg *Config) {
	if cfg.EmbedModel == "" {
		switch cfg.EmbedProvider {
		case EmbedProviderOpenAI:
			cfg.EmbedModel = "text-embedding-3-small"
		default:
			cfg.EmbedModel = "text-embedding-004"
		}
	}

	p := &cfg.Pipeline
	eng := (&ingestion_engine.IngestConfig{
		ChunkSize:        p.ChunkSize,
		ChunkOverlap:     p.ChunkOverlap,
		MaxSegmentBytes:  p.MaxSegmentBytes,
		BatchSize:        p.BatchSize,
		EmbedConcurrency: p.EmbedConcurrency,
	}).WithDefaults()
	p.ChunkSize = eng.ChunkSize
	p.ChunkOverlap = eng.ChunkOverlap
	p.MaxSegmentBytes = eng.MaxSegmentBytes
	p.BatchSize = eng.BatchSize
	p.EmbedConcurrency = eng.EmbedConcurrency

	if p.Workers <= 0 {
		p.Workers = 2
	}
	if p.QueueSize <= 0 {
		p.QueueSize = 64
	}
	if p.Timeout <= 0 {
		p.Timeout = 5 * time.Minute
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error

	switch c.BlobBackend {
	case BlobBackendS3:
		if c.AwsAccessKey == "" || c.AwsSecretKey == "" {
			errs = append(errs, errors.New("AWS credentials not set"))
		}
		if c.BucketName == "" {
			errs = append(errs, errors.New("BUCKET_NAME not set"))
		}
	case BlobBackendDisk:
		if c.BlobDir == "" {
			errs = append(errs, errors.New("BLOB_DIR not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend))
	}

	switch c.VectorBackend {
	case VectorBackendPgvector:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL not set"))
		}
	case VectorBackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}

	switch c.EmbedProvider {
	case EmbedProviderGemini:
	case EmbedProviderOpenAI:
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider))
	}

	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// envReader parses typed environment values and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) getInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) getBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not a boolean", key, v))
		return def
	}
	return b
}

func (e *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not a duration", key, v))
		return def
	}
	return d
}
