// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Shopify     ShopifyConfig
	Picsart     PicsartConfig
	Fulfillment FulfillmentConfig
	Log         LogConfig
	I18n        I18nConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	MaxUploadMB  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

// RedisConfig is optional. An empty Host disables the distributed artist lock.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	LockTTL  int // in seconds
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	PublicBaseURL   string
	FrameKeyPrefix  string
	TimeoutSeconds  int
	MaxRetries      int
}

type ShopifyConfig struct {
	BaseURL           string
	AccessToken       string
	APIVersion        string
	TemplateSuffix    string
	TimeoutSeconds    int
	MaxRetries        int
	RequestsPerSecond float64
}

type PicsartConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	MaxRetries     int
}

type FulfillmentConfig struct {
	AwaitPrintAssets   bool
	RequestTimeout     int // in seconds, covers validation through preview attachment
	PrintAssetsTimeout int // in seconds
	WorkerCount        int
}

type LogConfig struct {
	Level  string
	Format string
}

type I18nConfig struct {
	DefaultLocale string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 300),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			MaxUploadMB:  getEnvAsInt("MAX_UPLOAD_MB", 50),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "rated_arts"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsInt("REDIS_LOCK_TTL", 300),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "rated-arts-assets"),
			PublicBaseURL:   getEnv("AWS_PUBLIC_BASE_URL", ""),
			FrameKeyPrefix:  getEnv("FRAME_KEY_PREFIX", "bg/"),
			TimeoutSeconds:  getEnvAsInt("AWS_TIMEOUT_SECONDS", 60),
			MaxRetries:      getEnvAsInt("AWS_MAX_RETRIES", 3),
		},
		Shopify: ShopifyConfig{
			BaseURL:           getEnv("SHOPIFY_API_URL", ""),
			AccessToken:       getEnv("SHOPIFY_ACCESS_TOKEN", ""),
			APIVersion:        getEnv("SHOPIFY_API_VERSION", "2023-04"),
			TemplateSuffix:    getEnv("SHOPIFY_TEMPLATE_SUFFIX", "4"),
			TimeoutSeconds:    getEnvAsInt("SHOPIFY_TIMEOUT_SECONDS", 30),
			MaxRetries:        getEnvAsInt("SHOPIFY_MAX_RETRIES", 3),
			RequestsPerSecond: getEnvAsFloat("SHOPIFY_REQUESTS_PER_SECOND", 2),
		},
		Picsart: PicsartConfig{
			BaseURL:        getEnv("PICSART_URL", "https://api.picsart.io/tools/1.0"),
			APIKey:         getEnv("PICSART_API_KEY", ""),
			TimeoutSeconds: getEnvAsInt("PICSART_TIMEOUT_SECONDS", 120),
			MaxRetries:     getEnvAsInt("PICSART_MAX_RETRIES", 2),
		},
		Fulfillment: FulfillmentConfig{
			AwaitPrintAssets:   getEnvAsBool("AWAIT_PRINT_ASSETS", false),
			RequestTimeout:     getEnvAsInt("FULFILLMENT_REQUEST_TIMEOUT", 240),
			PrintAssetsTimeout: getEnvAsInt("PRINT_ASSETS_TIMEOUT", 900),
			WorkerCount:        getEnvAsInt("COMPOSITE_WORKERS", 4),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Fulfillment.WorkerCount < 1 {
		return fmt.Errorf("COMPOSITE_WORKERS must be at least 1")
	}
	if c.Redis.Enabled() && c.Redis.LockTTL <= c.Fulfillment.RequestTimeout {
		return fmt.Errorf("REDIS_LOCK_TTL (%ds) must exceed FULFILLMENT_REQUEST_TIMEOUT (%ds)", c.Redis.LockTTL, c.Fulfillment.RequestTimeout)
	}

	if c.Environment != "production" {
		return nil
	}

	if c.Database.Password == "" {
		return fmt.Errorf("database password is required in production")
	}
	if c.Shopify.BaseURL == "" || c.Shopify.AccessToken == "" {
		return fmt.Errorf("shopify API URL and access token are required in production")
	}
	if c.Picsart.APIKey == "" {
		return fmt.Errorf("picsart API key is required in production")
	}
	if c.AWS.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required in production")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
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
