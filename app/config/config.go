package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs       LogConfig
	DB         PostgresConfig
	Worker     WorkerConfig
	Quota      QuotaConfig
	RateLimits map[string]RateRule
	Storage    StorageConfig
	Events     EventsConfig
	Cache      CacheConfig
	Auth       AuthConfig
	Server     ServerConfig
}

type LogConfig struct {
	Style string // "text" or "json"
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Name     string
	SSLMode  string
}

// Enabled reports whether a database host was configured. Without one the
// server runs on in-memory stores.
func (p PostgresConfig) Enabled() bool {
	return p.URL != ""
}

type WorkerConfig struct {
	Command string
	Args    []string
	TempDir string

	// Timeout bounds a single worker invocation. Zero means no timeout: a
	// batch job runs until it exits or is canceled through the manager.
	// Leave it at zero unless a watchdog is explicitly wanted.
	Timeout time.Duration

	ConsoleLogSize    int
	MaxLineBytes      int
	ConfidenceCeiling float64
	MaxUploadBytes    int64
}

type QuotaConfig struct {
	DailyLimit int
}

// RateRule is the admission budget for one endpoint class.
type RateRule struct {
	MaxRequests int
	Window      time.Duration
}

type StorageConfig struct {
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
	Bucket         string
}

type EventsConfig struct {
	Backend      string // "sqs", "kafka" or empty
	QueueURL     string
	KafkaBrokers []string
	KafkaTopic   string
}

type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	TTL           time.Duration
}

type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Scope    string
	Disabled bool
}

type ServerConfig struct {
	Addr            string
	CleanupInterval time.Duration
	SweepInterval   time.Duration
	AllowedOrigins  []string
}

func LoadConfig() (*Config, error) {
	var errs []string
	fail := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	timeout, err := getEnvDuration("WORKER_TIMEOUT", 0)
	fail(err)
	consoleSize, err := getEnvInt("WORKER_CONSOLE_LOG_SIZE", 500)
	fail(err)
	maxLine, err := getEnvInt("WORKER_MAX_LINE_BYTES", 16*1024*1024)
	fail(err)
	ceiling, err := getEnvFloat("WORKER_CONFIDENCE_CEILING", 0.97)
	fail(err)
	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", 50*1024*1024)
	fail(err)
	dailyLimit, err := getEnvInt("DAILY_ROW_LIMIT", 10000)
	fail(err)
	cacheTTL, err := getEnvDuration("CACHE_TTL", 24*time.Hour)
	fail(err)
	cleanup, err := getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	fail(err)
	sweep, err := getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute)
	fail(err)
	minioSSL, err := getEnvBool("MINIO_USE_SSL", false)
	fail(err)
	authDisabled, err := getEnvBool("AUTH_DISABLED", false)
	fail(err)

	rules := map[string]RateRule{}
	for class, def := range defaultRateRules {
		rule, err := getEnvRateRule(class, def)
		fail(err)
		rules[class] = rule
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	cfg := &Config{
		Logs: LogConfig{
			Style: getEnv("LOG_STYLE", "text"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			Name:     getEnv("POSTGRES_DB", "panicsense"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Worker: WorkerConfig{
			Command:           getEnv("WORKER_COMMAND", "python3"),
			Args:              getEnvList("WORKER_ARGS", []string{"server/python/process.py"}),
			TempDir:           getEnv("WORKER_TEMP_DIR", os.TempDir()),
			Timeout:           timeout,
			ConsoleLogSize:    consoleSize,
			MaxLineBytes:      maxLine,
			ConfidenceCeiling: ceiling,
			MaxUploadBytes:    int64(maxUpload),
		},
		Quota: QuotaConfig{
			DailyLimit: dailyLimit,
		},
		RateLimits: rules,
		Storage: StorageConfig{
			MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
			MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinioUseSSL:    minioSSL,
			MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
			Bucket:         getEnv("MINIO_BUCKET", "panicsense-uploads"),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(os.Getenv("EVENTS_BACKEND")),
			QueueURL:     os.Getenv("QUEUE_URL"),
			KafkaBrokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "upload.sessions"),
		},
		Cache: CacheConfig{
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			TTL:           cacheTTL,
		},
		Auth: AuthConfig{
			Issuer:   strings.TrimSpace(os.Getenv("AUTH0_ISSUER")),
			Audience: strings.TrimSpace(os.Getenv("AUTH0_AUDIENCE")),
			JWKSURL:  os.Getenv("AUTH0_JWKS_URL"),
			Scope:    getEnv("ADMIN_SCOPE", "admin:pipeline"),
			Disabled: authDisabled,
		},
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", "0.0.0.0:8080"),
			CleanupInterval: cleanup,
			SweepInterval:   sweep,
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	return cfg, nil
}

var defaultRateRules = map[string]RateRule{
	"standard": {MaxRequests: 100, Window: time.Minute},
	"upload":   {MaxRequests: 5, Window: time.Minute},
	"analysis": {MaxRequests: 30, Window: time.Minute},
	"admin":    {MaxRequests: 20, Window: time.Minute},
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// getEnvList splits a comma separated value. Blank entries are dropped.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvRateRule reads RATE_LIMIT_<CLASS> as "<max>/<window>", e.g. "5/1m".
func getEnvRateRule(class string, defaultValue RateRule) (RateRule, error) {
	key := "RATE_LIMIT_" + strings.ToUpper(class)
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	maxPart, windowPart, ok := strings.Cut(value, "/")
	if !ok {
		return RateRule{}, fmt.Errorf("%s: expected <max>/<window>, got %q", key, value)
	}
	maxRequests, err := strconv.Atoi(strings.TrimSpace(maxPart))
	if err != nil || maxRequests <= 0 {
		return RateRule{}, fmt.Errorf("%s: invalid max requests %q", key, maxPart)
	}
	window, err := time.ParseDuration(strings.TrimSpace(windowPart))
	if err != nil || window <= 0 {
		return RateRule{}, fmt.Errorf("%s: invalid window %q", key, windowPart)
	}
	return RateRule{MaxRequests: maxRequests, Window: window}, nil
}
