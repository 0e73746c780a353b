package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_MODE", "dev")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.JWT.Secret != devSecret {
		t.Errorf("dev should fall back to the development secret")
	}
	if cfg.JWT.AccessTTL != time.Hour || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Errorf("ttl = %v / %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.JWT.Issuer != "mindfeed-auth" {
		t.Errorf("issuer = %q", cfg.JWT.Issuer)
	}
	if cfg.Auth.BcryptCost != 12 || cfg.Auth.AllowQueryToken || cfg.Auth.RefreshRotation {
		t.Errorf("auth defaults = %+v", cfg.Auth)
	}
	if cfg.Auth.TokenStore != TokenStoreDatabase {
		t.Errorf("token store = %q", cfg.Auth.TokenStore)
	}
	if cfg.Database.Driver != DriverMySQL || cfg.Database.Port != "3306" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.RabbitMQ.Queue != "auth.events" || cfg.PruneSchedule != "@hourly" {
		t.Errorf("queue = %q schedule = %q", cfg.RabbitMQ.Queue, cfg.PruneSchedule)
	}
	if cfg.GetAllowedOrigins() != "*" {
		t.Errorf("dev origins = %q", cfg.GetAllowedOrigins())
	}
}

func TestFromEnvProdRequiresStrongSecret(t *testing.T) {
	t.Setenv("APP_MODE", "prod")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PROD_JWT_SECRET", "")

	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("missing secret err = %v", err)
	}

	t.Setenv("JWT_SECRET", "too-short")
	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "at least") {
		t.Fatalf("short secret err = %v", err)
	}

	t.Setenv("PROD_JWT_SECRET", strings.Repeat("k", MinSecretLength))
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !cfg.IsProd() || !cfg.Cookie.Secure {
		t.Errorf("prod mode=%q secure=%v", cfg.AppMode, cfg.Cookie.Secure)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_MODE", "dev")
	t.Setenv("ACCESS_TOKEN_TTL", "900")
	t.Setenv("REFRESH_ROTATION", "true")
	t.Setenv("AUTH_ALLOW_QUERY_TOKEN", "true")
	t.Setenv("TOKEN_STORE", "redis")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Errorf("access ttl = %v", cfg.JWT.AccessTTL)
	}
	if !cfg.Auth.RefreshRotation || !cfg.Auth.AllowQueryToken || cfg.Auth.TokenStore != TokenStoreRedis {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.Port != "5432" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Redis.Addr != "cache:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"mode":        {"APP_MODE", "staging"},
		"ttl":         {"ACCESS_TOKEN_TTL", "-5"},
		"token store": {"TOKEN_STORE", "memcached"},
		"driver":      {"DB_DRIVER", "oracle"},
		"cost":        {"BCRYPT_COST", "twelve"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_MODE", "dev")
			t.Setenv(kv[0], kv[1])
			if _, err := FromEnv(); err == nil {
				t.Fatalf("%s=%s accepted", kv[0], kv[1])
			}
		})
	}
}

func TestBuildDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "auth", SSLMode: "require"}
	if got := buildPostgresDSN(d); !strings.Contains(got, "host=db") || !strings.Contains(got, "sslmode=require") {
		t.Errorf("postgres dsn = %q", got)
	}
	if got := buildMySQLDSN(d); got != "u:p@tcp(db:5432)/auth?charset=utf8mb4&parseTime=True&loc=UTC" {
		t.Errorf("mysql dsn = %q", got)
	}
	if _, err := buildDialector(DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("unsupported driver accepted")
	}
}
