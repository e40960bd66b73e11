package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/store"
)

// Config holds server configuration.
type Config struct {
	Addr     string
	LogLevel string

	Store         store.Backend
	DataDir       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	GCSBucket     string
	BlobPrefix    string
	WriteDelay    time.Duration

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	DeviceProfile string

	OTLPEndpoint string
	OTLPInsecure bool
	OTLPCAFile   string
	OTLPCertFile string
	OTLPKeyFile  string
	Telemetry    bool
}

// Load loads configuration from environment variables. Malformed numeric
// values fall back to their defaults with a warning.
func Load() *Config {
	region := os.Getenv("APPOPS_S3_REGION")
	if region == "" {
		region = getenv("AWS_REGION", "us-east-1")
	}

	return &Config{
		Addr:     getenv("APPOPS_ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "INFO"),

		Store:         store.Backend(getenv("APPOPS_STORE", string(store.BackendFile))),
		DataDir:       getenv("DATA_DIR", "data"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),
		S3Bucket:      os.Getenv("APPOPS_S3_BUCKET"),
		S3Region:      region,
		S3Endpoint:    os.Getenv("APPOPS_S3_ENDPOINT"),
		GCSBucket:     os.Getenv("APPOPS_GCS_BUCKET"),
		BlobPrefix:    os.Getenv("APPOPS_BLOB_PREFIX"),
		WriteDelay:    getduration("APPOPS_WRITE_DELAY", store.DefaultWriteDelay),

		JWTSecret:      os.Getenv("APPOPS_JWT_SECRET"),
		RateLimitRPS:   getfloat("APPOPS_RATE_LIMIT_RPS", 50),
		RateLimitBurst: getint("APPOPS_RATE_LIMIT_BURST", 100),

		DeviceProfile: os.Getenv("APPOPS_DEVICE_PROFILE"),

		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure: os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		OTLPCAFile:   os.Getenv("OTEL_EXPORTER_OTLP_CERTIFICATE"),
		OTLPCertFile: os.Getenv("OTEL_EXPORTER_OTLP_CLIENT_CERTIFICATE"),
		OTLPKeyFile:  os.Getenv("OTEL_EXPORTER_OTLP_CLIENT_KEY"),
		Telemetry:    os.Getenv("APPOPS_TELEMETRY") == "true",
	}
}

// Backend returns the persister configuration.
func (c *Config) Backend() store.BackendConfig {
	return store.BackendConfig{
		Backend:       c.Store,
		DataDir:       c.DataDir,
		DatabaseURL:   c.DatabaseURL,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		S3: store.S3Config{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
			Prefix:   c.BlobPrefix,
		},
		GCSBucket:  c.GCSBucket,
		BlobPrefix: c.BlobPrefix,
	}
}

// SlogLevel maps LogLevel onto slog. Unknown values mean INFO.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getfloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
