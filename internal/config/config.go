package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Node     NodeConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	LogLevel string
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// StorageConfig holds the S3-compatible object store connection.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// NodeConfig describes the photogrammetry processing node.
type NodeConfig struct {
	Host           string
	Port           int
	Token          string
	PollInterval   time.Duration
	Timeout        time.Duration
	PollRetries    int
	HTTPTimeout    time.Duration
	DefaultOptions domain.ProcessingOptions
}

type PipelineConfig struct {
	OutputDir         string
	ResultsBucket     string
	ResultsPrefix     string
	GPSWorkers        int
	UploadConcurrency int
	OwnerUUID         string
}

type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	JobTTLSeconds int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.New()
		SetDefaults(v)
		v.AutomaticEnv()

		cfg, err := FromViper(v)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		ensureDir(cfg.Pipeline.OutputDir)
		instance = cfg
	})

	return instance
}

// SetDefaults registers every configuration key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "hydra")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("ODM_NODE_HOST", "localhost")
	v.SetDefault("ODM_NODE_PORT", 3000)
	v.SetDefault("ODM_NODE_TOKEN", "")
	v.SetDefault("ODM_POLL_INTERVAL_SECONDS", 5)
	v.SetDefault("ODM_TIMEOUT_MINUTES", 720)
	v.SetDefault("ODM_POLL_RETRIES", 5)
	v.SetDefault("ODM_HTTP_TIMEOUT_SECONDS", 60)
	v.SetDefault("ODM_DEFAULT_OPTIONS", "")

	v.SetDefault("PIPELINE_OUTPUT_DIR", "./odm_results")
	v.SetDefault("PIPELINE_RESULTS_BUCKET", "")
	v.SetDefault("PIPELINE_RESULTS_PREFIX", "")
	v.SetDefault("PIPELINE_GPS_WORKERS", 4)
	v.SetDefault("PIPELINE_UPLOAD_CONCURRENCY", 4)
	v.SetDefault("PIPELINE_OWNER_UUID", "")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_JOB_TTL_SECONDS", 86400)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	overrides, err := ParseOptions(v.GetString("ODM_DEFAULT_OPTIONS"))
	if err != nil {
		return nil, fmt.Errorf("ODM_DEFAULT_OPTIONS: %w", err)
	}

	return &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Region:    v.GetString("MINIO_REGION"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		Node: NodeConfig{
			Host:           v.GetString("ODM_NODE_HOST"),
			Port:           v.GetInt("ODM_NODE_PORT"),
			Token:          v.GetString("ODM_NODE_TOKEN"),
			PollInterval:   time.Duration(v.GetInt("ODM_POLL_INTERVAL_SECONDS")) * time.Second,
			Timeout:        time.Duration(v.GetInt("ODM_TIMEOUT_MINUTES")) * time.Minute,
			PollRetries:    v.GetInt("ODM_POLL_RETRIES"),
			HTTPTimeout:    time.Duration(v.GetInt("ODM_HTTP_TIMEOUT_SECONDS")) * time.Second,
			DefaultOptions: domain.MergeOptions(domain.DefaultProcessingOptions(), overrides),
		},
		Pipeline: PipelineConfig{
			OutputDir:         v.GetString("PIPELINE_OUTPUT_DIR"),
			ResultsBucket:     v.GetString("PIPELINE_RESULTS_BUCKET"),
			ResultsPrefix:     v.GetString("PIPELINE_RESULTS_PREFIX"),
			GPSWorkers:        v.GetInt("PIPELINE_GPS_WORKERS"),
			UploadConcurrency: v.GetInt("PIPELINE_UPLOAD_CONCURRENCY"),
			OwnerUUID:         v.GetString("PIPELINE_OWNER_UUID"),
		},
		Cache: CacheConfig{
			Enabled:       v.GetBool("CACHE_ENABLED"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			JobTTLSeconds: v.GetInt("CACHE_JOB_TTL_SECONDS"),
		},
	}, nil
}

// ParseOptions parses "key=value" pairs separated by commas into processing
// options. Values are typed as int, float, bool (only "true" or "false") or
// string in that order.
func ParseOptions(raw string) (domain.ProcessingOptions, error) {
	opts := domain.ProcessingOptions{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q, expected key=value", pair)
		}
		opts[key] = parseOptionValue(strings.TrimSpace(value))
	}
	return opts, nil
}

func parseOptionValue(value string) any {
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

// DSN returns the database connection string and the driver that understands it.
func (c DatabaseConfig) DSN() (driver, dsn string) {
	if c.URL != "" {
		return "pgx", c.URL
	}
	return "postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
