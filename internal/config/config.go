package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names an optional YAML file applied before env overrides.
const EnvConfigFile = "MUSICBOX_CONFIG"

// Backend names accepted by BlobBackend and DocBackend.
const (
	BackendLocal  = "local"
	BackendMinIO  = "minio"
	BackendMongo  = "mongo"
	BackendTiDB   = "tidb"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string   `yaml:"service_port"`
	ServiceName string   `yaml:"service_name"`
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	StaticDir   string   `yaml:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins"`

	// Upload configuration
	MaxFileSizeMB     int     `yaml:"max_file_size_mb"`
	ThumbnailsEnabled bool    `yaml:"thumbnails_enabled"`
	ThumbnailWidth    int     `yaml:"thumbnail_width"`
	RateLimitRPS      float64 `yaml:"rate_limit_rps"`
	RateLimitBurst    int     `yaml:"rate_limit_burst"`

	// Blob store configuration
	BlobBackend  string `yaml:"blob_backend"`
	UploadDir    string `yaml:"upload_dir"`
	PublicPrefix string `yaml:"public_prefix"`

	// MinIO configuration
	MinIOEndpoint   string `yaml:"minio_endpoint"`
	MinIOAccessKey  string `yaml:"minio_access_key"`
	MinIOSecretKey  string `yaml:"minio_secret_key"`
	MinIOBucketName string `yaml:"minio_bucket_name"`
	MinIOUseSSL     bool   `yaml:"minio_use_ssl"`

	// Document store configuration
	DocBackend    string `yaml:"doc_backend"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	// TiDB configuration
	TiDBHost     string `yaml:"tidb_host"`
	TiDBPort     string `yaml:"tidb_port"`
	TiDBUser     string `yaml:"tidb_user"`
	TiDBPassword string `yaml:"tidb_password"`
	TiDBDatabase string `yaml:"tidb_database"`

	// Redis configuration
	RedisEnabled  bool   `yaml:"redis_enabled"`
	RedisHost     string `yaml:"redis_host"`
	RedisPort     string `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	EventsChannel string `yaml:"events_channel"`

	// Jaeger configuration
	TracingEnabled bool   `yaml:"tracing_enabled"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`

	// Trending proxy
	TrendingAPIURL string `yaml:"trending_api_url"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		ServicePort: "3000",
		ServiceName: "musicbox",
		LogLevel:    "info",
		LogFormat:   "text",
		CORSOrigins: []string{"*"},

		MaxFileSizeMB:     10,
		ThumbnailsEnabled: true,
		ThumbnailWidth:    300,
		RateLimitRPS:      5,
		RateLimitBurst:    10,

		BlobBackend:  BackendLocal,
		UploadDir:    "uploads",
		PublicPrefix: "/uploads",

		MinIOEndpoint:   "localhost:9000",
		MinIOAccessKey:  "minioadmin",
		MinIOSecretKey:  "minioadmin",
		MinIOBucketName: "musicbox",

		DocBackend:    BackendMongo,
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "mydb",

		TiDBHost:     "localhost",
		TiDBPort:     "4000",
		TiDBUser:     "root",
		TiDBDatabase: "musicbox",

		RedisHost:     "localhost",
		RedisPort:     "6379",
		EventsChannel: "upload-events",

		JaegerEndpoint: "localhost:4318",

		TrendingAPIURL: "https://api.deezer.com/chart",
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file named
// by MUSICBOX_CONFIG, then environment variables, in that order.
func LoadConfig() (*Config, error) {
	config := Defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServicePort = getEnv("SERVICE_PORT", getEnv("PORT", c.ServicePort))
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.CORSOrigins = getEnvAsList("CORS_ORIGINS", c.CORSOrigins)

	c.MaxFileSizeMB = getEnvAsInt("MAX_FILE_SIZE_MB", c.MaxFileSizeMB)
	c.ThumbnailsEnabled = getEnvAsBool("THUMBNAILS_ENABLED", c.ThumbnailsEnabled)
	c.ThumbnailWidth = getEnvAsInt("THUMBNAIL_WIDTH", c.ThumbnailWidth)
	c.RateLimitRPS = getEnvAsFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimitBurst)

	c.BlobBackend = getEnv("BLOB_BACKEND", c.BlobBackend)
	c.UploadDir = getEnv("UPLOAD_DIR", c.UploadDir)
	c.PublicPrefix = getEnv("PUBLIC_PREFIX", c.PublicPrefix)

	c.MinIOEndpoint = getEnv("MINIO_ENDPOINT", c.MinIOEndpoint)
	c.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinIOAccessKey)
	c.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", c.MinIOSecretKey)
	c.MinIOBucketName = getEnv("MINIO_BUCKET_NAME", c.MinIOBucketName)
	c.MinIOUseSSL = getEnvAsBool("MINIO_USE_SSL", c.MinIOUseSSL)

	c.DocBackend = getEnv("DOC_BACKEND", c.DocBackend)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGO_DATABASE", c.MongoDatabase)

	c.TiDBHost = getEnv("TIDB_HOST", c.TiDBHost)
	c.TiDBPort = getEnv("TIDB_PORT", c.TiDBPort)
	c.TiDBUser = getEnv("TIDB_USER", c.TiDBUser)
	c.TiDBPassword = getEnv("TIDB_PASSWORD", c.TiDBPassword)
	c.TiDBDatabase = getEnv("TIDB_DATABASE", c.TiDBDatabase)

	c.RedisEnabled = getEnvAsBool("REDIS_ENABLED", c.RedisEnabled)
	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvAsInt("REDIS_DB", c.RedisDB)
	c.EventsChannel = getEnv("EVENTS_CHANNEL", c.EventsChannel)

	c.TracingEnabled = getEnvAsBool("TRACING_ENABLED", c.TracingEnabled)
	c.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.JaegerEndpoint)

	c.TrendingAPIURL = getEnv("TRENDING_API_URL", c.TrendingAPIURL)
}

// Validate reports configuration values the server cannot start with
func (c *Config) Validate() error {
	var errs []error

	switch c.BlobBackend {
	case BackendLocal, BackendMinIO, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown blob backend %q", c.BlobBackend))
	}
	switch c.DocBackend {
	case BackendMongo, BackendTiDB, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown document backend %q", c.DocBackend))
	}
	if c.MaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("max file size must be positive"))
	}
	if c.ThumbnailsEnabled && c.ThumbnailWidth <= 0 {
		errs = append(errs, errors.New("thumbnail width must be positive"))
	}
	if c.BlobBackend == BackendLocal && c.UploadDir == "" {
		errs = append(errs, errors.New("upload dir is required for the local blob backend"))
	}

	return errors.Join(errs...)
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetMaxFileSizeBytes returns the per-file upload cap in bytes
func (c *Config) GetMaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// GetListenAddr returns the HTTP listen address
func (c *Config) GetListenAddr() string {
	if strings.HasPrefix(c.ServicePort, ":") {
		return c.ServicePort
	}
	return ":" + c.ServicePort
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
