package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AuthFirebase = "firebase"
	AuthJWT      = "jwt"

	StorageCloudinary = "cloudinary"
	StorageGCS        = "gcs"
	StorageDisk       = "disk"
)

type Config struct {
	ServerAddress string `mapstructure:"SERVER_ADDRESS"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	MongoURI string `mapstructure:"MONGO_URI"`
	MongoDB  string `mapstructure:"MONGO_DB"`

	AuthProvider            string `mapstructure:"AUTH_PROVIDER"`
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsJSON string `mapstructure:"FIREBASE_CREDENTIALS_JSON"`
	WebhookSigningSecret    string `mapstructure:"WEBHOOK_SIGNING_SECRET"`

	StorageProvider string `mapstructure:"STORAGE_PROVIDER"`
	CloudinaryURL   string `mapstructure:"CLOUDINARY_URL"`
	GCSBucket       string `mapstructure:"GCS_BUCKET"`
	UploadDir       string `mapstructure:"UPLOAD_DIR"`
	MaxUploadSizeMB int64  `mapstructure:"MAX_UPLOAD_SIZE_MB"`

	RedisURL     string        `mapstructure:"REDIS_URL"`
	PageCacheTTL time.Duration `mapstructure:"PAGE_CACHE_TTL"`

	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	MailFromEmail     string `mapstructure:"MAIL_FROM_EMAIL"`
	RecaptchaSecret   string `mapstructure:"RECAPTCHA_SECRET"`
	ModerationEnabled bool   `mapstructure:"MODERATION_ENABLED"`
}

var defaults = map[string]interface{}{
	"SERVER_ADDRESS":            ":8080",
	"PUBLIC_BASE_URL":           "http://localhost:8080",
	"MONGO_URI":                 "mongodb://localhost:27017",
	"MONGO_DB":                  "tripreport",
	"AUTH_PROVIDER":             AuthFirebase,
	"JWT_SECRET":                "",
	"FIREBASE_PROJECT_ID":       "",
	"FIREBASE_CREDENTIALS_JSON": "",
	"WEBHOOK_SIGNING_SECRET":    "",
	"STORAGE_PROVIDER":          StorageCloudinary,
	"CLOUDINARY_URL":            "",
	"GCS_BUCKET":                "",
	"UPLOAD_DIR":                "./uploads",
	"MAX_UPLOAD_SIZE_MB":        25,
	"REDIS_URL":                 "",
	"PAGE_CACHE_TTL":            "5m",
	"SENDGRID_API_KEY":          "",
	"MAIL_FROM_EMAIL":           "",
	"RECAPTCHA_SECRET":          "",
	"MODERATION_ENABLED":        false,
}

// Load reads configuration from the environment, after loading an optional
// .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.AuthProvider = strings.ToLower(strings.TrimSpace(cfg.AuthProvider))
	cfg.StorageProvider = strings.ToLower(strings.TrimSpace(cfg.StorageProvider))
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	switch c.AuthProvider {
	case AuthFirebase:
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_PROVIDER=%s", AuthJWT)
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}
	switch c.StorageProvider {
	case StorageCloudinary:
		if c.CloudinaryURL == "" {
			return fmt.Errorf("CLOUDINARY_URL is required when STORAGE_PROVIDER=%s", StorageCloudinary)
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STORAGE_PROVIDER=%s", StorageGCS)
		}
	case StorageDisk:
	default:
		return fmt.Errorf("unknown STORAGE_PROVIDER %q", c.StorageProvider)
	}
	if c.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be positive")
	}
	return nil
}
