package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config 应用配置，全部来自环境变量 (.env 由 main 先行加载)
type Config struct {
	Port          string
	Env           string
	DatabaseURL   string
	JWTSecret     string
	JWTTTL        time.Duration
	SessionSecret string
	ClientURL     string
	APIURL        string
	CORSOrigins   []string

	// 反向代理地址，空表示不信任 X-Forwarded-For
	TrustedProxies []string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	RedisURL string

	GoogleClientID     string
	GoogleClientSecret string

	S3Bucket    string
	S3Region    string
	S3PublicURL string

	LogLevel string
	LogFile  string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("APP_ENV", "development"),
		DatabaseURL:   getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=quill port=5432 sslmode=disable"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		ClientURL:     strings.TrimSuffix(getEnv("CLIENT_URL", "http://localhost:3000"), "/"),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: os.Getenv("SMTP_PORT"),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		SMTPFrom: os.Getenv("SMTP_FROM"),

		RedisURL: os.Getenv("REDIS_URL"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),

		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3PublicURL: strings.TrimSuffix(os.Getenv("S3_PUBLIC_URL"), "/"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "server.log"),
	}
	cfg.APIURL = strings.TrimSuffix(getEnv("API_URL", "http://localhost:"+cfg.Port), "/")

	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "168h"))
	if err != nil {
		return nil, errors.New("config: JWT_TTL must be a duration like 24h")
	}
	cfg.JWTTTL = ttl

	cfg.TrustedProxies = splitList(os.Getenv("TRUSTED_PROXIES"))
	cfg.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{cfg.ClientURL}
	}

	if cfg.IsProduction() {
		if cfg.JWTSecret == "" || cfg.SessionSecret == "" {
			return nil, errors.New("config: JWT_SECRET and SESSION_SECRET are required in production")
		}
	}
	// 开发环境兜底
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev_jwt_secret_change_me"
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "secret_key_change_me"
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MailEnabled reports whether every SMTP setting is present.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.SMTPFrom != ""
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.TrimSuffix(p, "/"))
		}
	}
	return out
}
