package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type BKashConfig struct {
	BaseURL     string
	Username    string
	Password    string
	AppKey      string
	AppSecret   string
	CallbackURL string
}

// Enabled reports whether enough credentials are present to talk to the gateway.
func (b BKashConfig) Enabled() bool {
	return b.BaseURL != "" && b.Username != "" && b.Password != ""
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
	RatePerSec   float64
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.Bucket != ""
}

type Config struct {
	Port            string
	DatabaseURL     string
	AllowedOrigins  []string
	GatewayToken    string
	JWTSecret       string
	PaymentRequired bool
	RegistrationFee float64
	FrontendURL     string
	BKash           BKashConfig
	Email           EmailConfig
	R2              R2Config
	Catalog         *Catalog
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "4000"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		GatewayToken:    os.Getenv("GATEWAY_TOKEN"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		PaymentRequired: getBool("PAYMENT_REQUIRED", false),
		RegistrationFee: getFloat("REGISTRATION_FEE", 300),
		FrontendURL:     strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		BKash: BKashConfig{
			BaseURL:     strings.TrimRight(os.Getenv("BKASH_BASE_URL"), "/"),
			Username:    os.Getenv("BKASH_USERNAME"),
			Password:    os.Getenv("BKASH_PASSWORD"),
			AppKey:      os.Getenv("BKASH_APP_KEY"),
			AppSecret:   os.Getenv("BKASH_APP_SECRET"),
			CallbackURL: os.Getenv("BKASH_CALLBACK_URL"),
		},
		Email: EmailConfig{
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			From:         getEnv("EMAIL_FROM", "Zero Olympiad <onboarding@resend.dev>"),
			RatePerSec:   getFloat("EMAIL_RATE_PER_SEC", 2),
		},
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      strings.TrimRight(os.Getenv("CDN_BASE_URL"), "/"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	catalog, err := LoadCatalog(os.Getenv("CATALOG_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Catalog = catalog
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
