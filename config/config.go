package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	StaticDir  string
	Database   DatabaseConfig
	Auth       AuthConfig
	HTTP       HTTPConfig
	Log        LogConfig
	Storage    StorageConfig
	MQ         MQConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	// TokenTTL is the lifetime of tokens minted without an explicit expiry.
	TokenTTL time.Duration
	// SweepInterval is how often expired tokens are purged.
	SweepInterval time.Duration
}

type HTTPConfig struct {
	RateLimitPerMinute int
	AllowedOrigins     []string
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

type LogConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type MQConfig struct {
	Backend      string
	AuditChannel string
	RabbitMQ     RabbitMQConfig
	PubSub       PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

const (
	BackendNone     = "none"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
)

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "modcatalog"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "modcatalog"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		StaticDir:  getEnv("STATIC_DIR", ""),
		Database:   dbConfig,
		Auth: AuthConfig{
			TokenTTL:      getEnvDuration("TOKEN_TTL", 7*24*time.Hour),
			SweepInterval: getEnvDuration("TOKEN_SWEEP_INTERVAL", time.Minute),
		},
		HTTP: HTTPConfig{
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			AllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendNone)),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "modcatalog"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
		MQ: MQConfig{
			Backend:      strings.ToLower(getEnv("MQ_BACKEND", BackendNone)),
			AuditChannel: getEnv("AUDIT_CHANNEL", "audit"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
				QueueDurable:    getEnvBool("RABBITMQ_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_AUTO_DELETE", false),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
