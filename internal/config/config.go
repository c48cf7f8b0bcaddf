package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Identity IdentityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"spritenest-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LoginKey    string `envconfig:"LOGIN_KEY" default:""` // Admin endpoints login key
}

// DatabaseConfig holds relational storage settings for the assets and
// downloads tables. Type selects the backend.
type DatabaseConfig struct {
	Type string `envconfig:"DB_TYPE" default:"sqlite"` // sqlite, postgres, or mysql
	Path string `envconfig:"DB_PATH" default:"./data/spritenest.db"`

	// PostgreSQL settings
	PGHost     string `envconfig:"DB_PG_HOST" default:"localhost"`
	PGPort     int    `envconfig:"DB_PG_PORT" default:"5432"`
	PGName     string `envconfig:"DB_PG_NAME" default:"spritenest"`
	PGUser     string `envconfig:"DB_PG_USER" default:"postgres"`
	PGPassword string `envconfig:"DB_PG_PASS" default:""`
	PGSSLMode  string `envconfig:"DB_PG_SSLMODE" default:"disable"`

	// MySQL settings
	MyHost     string `envconfig:"DB_MY_HOST" default:"localhost"`
	MyPort     int    `envconfig:"DB_MY_PORT" default:"3306"`
	MyName     string `envconfig:"DB_MY_NAME" default:"spritenest"`
	MyUser     string `envconfig:"DB_MY_USER" default:"root"`
	MyPassword string `envconfig:"DB_MY_PASS" default:""`

	// Optional MongoDB download log (append-only events only)
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"spritenest"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"downloads"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"`
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"1m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// StorageConfig holds object storage settings for the assets bucket.
type StorageConfig struct {
	Backend string `envconfig:"STORAGE_BACKEND" default:"local"` // local or gcs

	// Local filesystem backend
	LocalRoot     string `envconfig:"STORAGE_LOCAL_ROOT" default:"./data/objects"`
	PublicBaseURL string `envconfig:"STORAGE_PUBLIC_BASE_URL" default:"http://localhost:8080/files"`
	SigningSecret string `envconfig:"STORAGE_SIGNING_SECRET" default:""`

	// Google Cloud Storage backend
	GCSBucket string `envconfig:"STORAGE_GCS_BUCKET" default:""`
	CDNDomain string `envconfig:"STORAGE_CDN_DOMAIN" default:""`

	// Validity window for signed download URLs
	SignedURLTTL time.Duration `envconfig:"STORAGE_SIGNED_URL_TTL" default:"60s"`
}

// IdentityConfig holds the external identity provider settings.
type IdentityConfig struct {
	ProviderURL string        `envconfig:"IDENTITY_PROVIDER_URL" default:""`
	APIKey      string        `envconfig:"IDENTITY_API_KEY" default:""`
	JWTSecret   string        `envconfig:"IDENTITY_JWT_SECRET" default:""`
	CacheTTL    time.Duration `envconfig:"IDENTITY_CACHE_TTL" default:"5m"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.PGUser, d.PGPassword, d.PGHost, d.PGPort, d.PGName, d.PGSSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (d *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.MyUser, d.MyPassword, d.MyHost, d.MyPort, d.MyName)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
