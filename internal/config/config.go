package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretLength is the minimum signing key size accepted in prod
const MinSecretLength = 32

// devSecret is only ever used when APP_MODE=dev and no secret is configured
const devSecret = "mindfeed-dev-only-signing-secret-change-me"

// Token store backends
const (
	TokenStoreDatabase = "database"
	TokenStoreRedis    = "redis"
)

// Config holds all configuration for the application
type Config struct {
	AppMode       string
	Port          string
	Database      DatabaseConfig
	JWT           JWTConfig
	Auth          AuthConfig
	Redis         RedisConfig
	RabbitMQ      RabbitMQConfig
	Cookie        CookieConfig
	AdminSeed     AdminSeedConfig
	SentryDSN     string
	PruneSchedule string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds token signing configuration
type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthConfig holds credential and session policy
type AuthConfig struct {
	BcryptCost       int
	RefreshRotation  bool
	PasswordResetTTL time.Duration
	AllowQueryToken  bool
	TokenStore       string
}

// RedisConfig holds Redis connection settings (TOKEN_STORE=redis)
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TLS       bool
	KeyPrefix string
}

// RabbitMQConfig holds event publishing settings. Empty URL disables the broker.
type RabbitMQConfig struct {
	URL   string
	Queue string
}

// AdminSeedConfig bootstraps the first admin account
type AdminSeedConfig struct {
	Username string
	Email    string
	Password string
}

// CookieConfig holds cookie configuration
type CookieConfig struct {
	Secure   bool
	SameSite string
	Domain   string
}

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current process environment
func FromEnv() (*Config, error) {
	// Trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	jwtCfg, err := loadJWTConfig(appMode)
	if err != nil {
		return nil, err
	}
	authCfg, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}
	dbCfg, err := loadDatabaseConfig(appMode)
	if err != nil {
		return nil, err
	}

	config := &Config{
		AppMode:       appMode,
		Port:          getEnv("PORT", "3000"),
		Database:      dbCfg,
		JWT:           jwtCfg,
		Auth:          authCfg,
		Redis:         loadRedisConfig(),
		RabbitMQ:      loadRabbitMQConfig(),
		Cookie:        loadCookieConfig(appMode),
		AdminSeed:     loadAdminSeedConfig(),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		PruneSchedule: getEnv("PRUNE_SCHEDULE", "@hourly"),
	}

	log.Printf("✅ Configuration loaded successfully [MODE: %s]", appMode)
	return config, nil
}

func modePrefix(mode string) string {
	if mode == "prod" {
		return "PROD_"
	}
	return "DEV_"
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) (DatabaseConfig, error) {
	prefix := modePrefix(mode)

	driver := strings.ToLower(getEnv("DB_DRIVER", DriverMySQL))
	if driver != DriverMySQL && driver != DriverPostgres {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_DRIVER: '%s' (must be '%s' or '%s')", driver, DriverMySQL, DriverPostgres)
	}

	defaultPort := "3306"
	if driver == DriverPostgres {
		defaultPort = "5432"
	}

	return DatabaseConfig{
		Driver:   driver,
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", defaultPort),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "mindfeed"),
		SSLMode:  getEnv(prefix+"DB_SSLMODE", "disable"),
	}, nil
}

// loadJWTConfig loads signing config. Prod refuses to start without a real secret.
func loadJWTConfig(mode string) (JWTConfig, error) {
	secret := getEnv(modePrefix(mode)+"JWT_SECRET", getEnv("JWT_SECRET", ""))
	if mode == "prod" {
		if secret == "" {
			return JWTConfig{}, fmt.Errorf("JWT_SECRET is required in prod mode")
		}
		if len(secret) < MinSecretLength {
			return JWTConfig{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLength)
		}
	} else if secret == "" {
		log.Println("⚠️ JWT_SECRET not set, using development secret")
		secret = devSecret
	}

	accessTTL, err := getSeconds("ACCESS_TOKEN_TTL", 3600)
	if err != nil {
		return JWTConfig{}, err
	}
	refreshTTL, err := getSeconds("REFRESH_TOKEN_TTL", 604800)
	if err != nil {
		return JWTConfig{}, err
	}

	return JWTConfig{
		Secret:     secret,
		Issuer:     getEnv("JWT_ISSUER", "mindfeed-auth"),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}, nil
}

func loadAuthConfig() (AuthConfig, error) {
	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", "12"))
	if err != nil {
		return AuthConfig{}, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	resetTTL, err := getSeconds("PASSWORD_RESET_TTL", 3600)
	if err != nil {
		return AuthConfig{}, err
	}

	store := strings.ToLower(getEnv("TOKEN_STORE", TokenStoreDatabase))
	if store != TokenStoreDatabase && store != TokenStoreRedis {
		return AuthConfig{}, fmt.Errorf("invalid TOKEN_STORE: '%s' (must be '%s' or '%s')", store, TokenStoreDatabase, TokenStoreRedis)
	}

	return AuthConfig{
		BcryptCost:       cost,
		RefreshRotation:  getBool("REFRESH_ROTATION", false),
		PasswordResetTTL: resetTTL,
		AllowQueryToken:  getBool("AUTH_ALLOW_QUERY_TOKEN", false),
		TokenStore:       store,
	}, nil
}

func loadRedisConfig() RedisConfig {
	addr := getEnv("REDIS_ADDR", "")
	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return RedisConfig{
		Addr:      addr,
		Password:  getEnv("REDIS_PASSWORD", ""),
		DB:        db,
		TLS:       getBool("REDIS_TLS", false),
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "mindfeed"),
	}
}

func loadRabbitMQConfig() RabbitMQConfig {
	return RabbitMQConfig{
		URL:   getEnv("RABBITMQ_URL", ""),
		Queue: getEnv("AUTH_EVENTS_QUEUE", "auth.events"),
	}
}

func loadAdminSeedConfig() AdminSeedConfig {
	return AdminSeedConfig{
		Username: getEnv("ADMIN_USERNAME", "admin"),
		Email:    getEnv("ADMIN_EMAIL", ""),
		Password: getEnv("ADMIN_PASSWORD", ""),
	}
}

// loadCookieConfig loads cookie config based on mode
func loadCookieConfig(mode string) CookieConfig {
	return CookieConfig{
		Secure:   getBool(modePrefix(mode)+"COOKIE_SECURE", mode == "prod"),
		SameSite: getEnv("COOKIE_SAMESITE", "lax"),
		Domain:   getEnv("COOKIE_DOMAIN", ""),
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

// getSeconds reads a positive whole number of seconds
func getSeconds(key string, defaultValue int) (time.Duration, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive number of seconds", key)
	}
	return time.Duration(n) * time.Second, nil
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "https://mindfeed.app"
	}
	return origins
}
