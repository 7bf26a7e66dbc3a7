package config

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env  string `envconfig:"APP_ENV" default:"dev"`
	Port int    `envconfig:"PORT" default:"5000"`

	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"docdirectory"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"docdirectory"`
	DBName     string `envconfig:"DB_NAME" default:"doctors_directory"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	// DBURL wins over the individual DB_* parts when set.
	DBURL       string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	AccessTTL      time.Duration `envconfig:"JWT_ACCESS_TTL" default:"24h"`
	VerifyTTL      time.Duration `envconfig:"TOKEN_EMAIL_VERIFY_TTL" default:"24h"`
	ResetTTL       time.Duration `envconfig:"TOKEN_PASSWORD_RESET_TTL" default:"1h"`
	CookieName     string        `envconfig:"AUTH_COOKIE_NAME" default:"token"`
	AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For is believed; empty trusts none.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	FrontendDir string `envconfig:"FRONTEND_DIR"`

	StorageDriver  string `envconfig:"STORAGE_DRIVER" default:"local"`
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"5242880"`

	S3Region        string        `envconfig:"S3_REGION"`
	S3Bucket        string        `envconfig:"S3_BUCKET"`
	S3AccessKey     string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string        `envconfig:"S3_SECRET_KEY"`
	S3Endpoint      string        `envconfig:"S3_ENDPOINT"`
	S3PresignExpiry time.Duration `envconfig:"S3_PRESIGN_EXPIRY" default:"168h"`

	EmailFrom    string `envconfig:"EMAIL_FROM" default:"Doctor Directory <noreply@example.com>"`
	ResendAPIKey string `envconfig:"RESEND_API_KEY"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	OTELEndpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELSampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
	SentryDSN       string  `envconfig:"SENTRY_DSN"`
}

func Load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	var cfg Config

	err = envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("load config: JWT_SECRET must not be empty")
	}

	if cfg.DBURL == "" {
		cfg.DBURL = cfg.buildDBURL()
	}

	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if cfg.StorageDriver == "s3" && cfg.S3Bucket == "" {
		return Config{}, fmt.Errorf("load config: S3_BUCKET is required when STORAGE_DRIVER=s3")
	}

	proxies := make([]string, 0, len(cfg.TrustedProxies))
	for _, p := range cfg.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return Config{}, fmt.Errorf("load config: TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
			}
		}
		proxies = append(proxies, p)
	}
	cfg.TrustedProxies = proxies

	return cfg, nil
}

func (c Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

func (c Config) buildDBURL() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// WithTimeout bounds a store or mail call made on behalf of a request.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}
