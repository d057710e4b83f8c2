package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	platformstrings "esfe/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	Env           string
	LogFormat     string
	JWTSigningKey string
	JWTIssuer     string

	Institution   string
	PublicBaseURL string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Mail        MailConfig

	ReceiptDir string
	// PublicStatusTTL bounds how long a public status lookup may be served
	// from cache.
	PublicStatusTTL time.Duration
	// CashCodeTTL is the lifetime of a cash desk verification code.
	CashCodeTTL time.Duration
	// PublicRateLimit caps public route requests per client IP and minute;
	// zero disables the limiter.
	PublicRateLimit int
}

// RedisConfig holds connection settings; an empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds audit relay settings; no brokers disables the relay.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type MailConfig struct {
	SendGridAPIKey  string
	From            string
	FromName        string
	StudentLoginURL string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence.
func FromEnv() Server {
	_ = godotenv.Load()

	return Server{
		Addr:          getenv("ESFE_ADDR", ":8080"),
		Env:           getenv("ENV", "development"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		JWTSigningKey: getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getenv("JWT_ISSUER", "esfe-staff"),
		Institution:   strings.ToUpper(getenv("INSTITUTION_CODE", "ESFE")),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    platformstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getenv("AUDIT_TOPIC", "esfe.audit"),
		},
		Mail: MailConfig{
			SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
			From:            getenv("MAIL_FROM", "no-reply@esfe.local"),
			FromName:        getenv("MAIL_FROM_NAME", "ESFE Scolarité"),
			StudentLoginURL: getenv("STUDENT_LOGIN_URL", "http://localhost:8080/etudiant/connexion"),
		},
		ReceiptDir:      getenv("RECEIPT_DIR", "var/receipts"),
		PublicStatusTTL: getenvDuration("PUBLIC_STATUS_TTL", time.Minute),
		CashCodeTTL:     getenvDuration("CASH_CODE_TTL", 5*time.Minute),
		PublicRateLimit: getenvInt("PUBLIC_RATE_LIMIT", 30),
	}
}

// IsProduction reports whether the service runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Env == "production"
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
