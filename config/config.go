package config

import (
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppPort     string `env:"APP_PORT" envDefault:"8080"`
	AppMode     string `env:"APP_MODE" envDefault:"debug"`
	LogMode     string `env:"LOG_MODE" envDefault:"development"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	DBHost        string `env:"DB_HOST" envDefault:"localhost"`
	DBUser        string `env:"DB_USER" envDefault:"postgres"`
	DBPassword    string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName        string `env:"DB_NAME" envDefault:"pulse_chat"`
	DBPort        string `env:"DB_PORT" envDefault:"5432"`
	DBSSLMode     string `env:"DB_SSLMODE" envDefault:"disable"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	JWTSecret      string `env:"JWT_SECRET" envDefault:"change-me"`
	JWTExpiryHours int    `env:"JWT_EXPIRY_HOURS" envDefault:"24"`

	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	MessageRateLimit        int           `env:"MESSAGE_RATE_LIMIT" envDefault:"60"`
	WSEventsPerSecond       float64       `env:"WS_EVENTS_PER_SECOND" envDefault:"20"`
	WSEventBurst            int           `env:"WS_EVENT_BURST" envDefault:"40"`
	WSMaxConnectionsPerUser int           `env:"WS_MAX_CONNECTIONS_PER_USER" envDefault:"10"`
	WSPresenceRefresh       time.Duration `env:"WS_PRESENCE_REFRESH" envDefault:"1m"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	InviteBaseURL      string   `env:"INVITE_BASE_URL" envDefault:"http://localhost:3000/invite"`

	S3Region     string        `env:"S3_REGION"`
	S3Bucket     string        `env:"S3_BUCKET"`
	S3AccessKey  string        `env:"S3_ACCESS_KEY"`
	S3SecretKey  string        `env:"S3_SECRET_KEY"`
	S3Endpoint   string        `env:"S3_ENDPOINT"`
	S3PublicBase string        `env:"S3_PUBLIC_BASE"`
	S3PresignTTL time.Duration `env:"S3_PRESIGN_TTL" envDefault:"15m"`
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}
	return &cfg
}

// DSN is the gorm/pgx connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// DatabaseURL is the URL form golang-migrate expects.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%s", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

func (c *Config) S3Enabled() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}
