package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	Server     ServerConfig
	Logging    LoggingConfig
	Scylla     ScyllaConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	Elastic    ElasticConfig
	SMTP       SMTPConfig
	Files      FilesConfig
	KMS        KMSConfig
	OTP        OTPConfig
}

type ServerConfig struct {
	Addr         string        `env:"SERVER_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	CertFile     string        `env:"SERVER_CERT_FILE"`
	KeyFile      string        `env:"SERVER_KEY_FILE"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

type ScyllaConfig struct {
	Nodes    []string `env:"SCYLLA_NODES" envDefault:"127.0.0.1:9042"`
	Keyspace string   `env:"SCYLLA_KEYSPACE" envDefault:"saferental"`
	Username string   `env:"SCYLLA_USERNAME"`
	Password string   `env:"SCYLLA_PASSWORD"`
}

type RedisConfig struct {
	URL      string `env:"REDIS_URL"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"50"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_AGREEMENT_TOPIC" envDefault:"agreement-events"`
}

type ClickhouseConfig struct {
	URL      string `env:"CLICKHOUSE_URL"`
	Username string `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	Password string `env:"CLICKHOUSE_PASSWORD"`
	Database string `env:"CLICKHOUSE_DATABASE" envDefault:"saferental"`
}

type ElasticConfig struct {
	URL      string `env:"ELASTIC_URL"`
	Username string `env:"ELASTIC_USERNAME"`
	Password string `env:"ELASTIC_PASSWORD"`
	Index    string `env:"ELASTIC_AGREEMENT_INDEX" envDefault:"agreements"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"FROM_EMAIL" envDefault:"noreply@saferental.com"`
}

type FilesConfig struct {
	UploadDir       string        `env:"UPLOAD_DIR" envDefault:"./uploads"`
	Buckets         int           `env:"UPLOAD_BUCKETS" envDefault:"16"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	SigningSecret   string        `env:"FILE_SIGNING_SECRET"`
	SignedURLTTL    time.Duration `env:"SIGNED_URL_TTL" envDefault:"1h"`
	EncryptedSecret string        `env:"FILE_SIGNING_SECRET_CIPHERTEXT"`
}

type KMSConfig struct {
	Enabled bool   `env:"KMS_ENABLED" envDefault:"false"`
	KeyID   string `env:"KMS_KEY_ID"`
	Region  string `env:"AWS_REGION" envDefault:"us-east-1"`
}

type OTPConfig struct {
	TTL            time.Duration `env:"OTP_TTL" envDefault:"10m"`
	MaxSends       int           `env:"OTP_MAX_SENDS" envDefault:"5"`
	MaxAttempts    int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	ReaperInterval time.Duration `env:"OTP_REAPER_INTERVAL" envDefault:"15m"`
}

// Load reads configuration from the environment, loading a .env file first
// when one is present. Validation is the caller's step: the admin CLI runs
// without a signing secret, the server must not.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the service must not start with. The file
// signing secret has no default on purpose: signed URLs are capability tokens
// and a well-known secret would make every stored document reachable.
func (c *Config) Validate() error {
	if c.Files.SigningSecret == "" && c.Files.EncryptedSecret == "" {
		return fmt.Errorf("FILE_SIGNING_SECRET (or FILE_SIGNING_SECRET_CIPHERTEXT with KMS) is required")
	}
	if c.Files.EncryptedSecret != "" && !c.KMS.Enabled {
		return fmt.Errorf("FILE_SIGNING_SECRET_CIPHERTEXT requires KMS_ENABLED=true")
	}
	if c.Files.Buckets <= 0 {
		return fmt.Errorf("UPLOAD_BUCKETS must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
