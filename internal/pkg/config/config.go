package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	API    APIConfig
	Portal PortalConfig
	Mongo  MongoConfig
	Redis  RedisConfig
	Audit  AuditConfig
}

// APIConfig points at the remote marketplace API.
type APIConfig struct {
	BaseURL    string        `env:"API_BASE_URL,    required"`
	Timeout    time.Duration `env:"API_TIMEOUT,     default=10s"`
	UploadPath string        `env:"API_UPLOAD_PATH, default=/upload"`
}

type PortalConfig struct {
	// VisitorSecret signs the visitor cookie.
	VisitorSecret string        `env:"VISITOR_SECRET, required"`
	CookieName    string        `env:"VISITOR_COOKIE, default=portal_visitor"`
	CookieSecure  bool          `env:"COOKIE_SECURE,  default=false"`
	CookieTTL     time.Duration `env:"COOKIE_TTL,     default=24h"`
	ReadyWait     time.Duration `env:"READY_WAIT,     default=2s"`
	MountTimeout  time.Duration `env:"MOUNT_TIMEOUT,  default=10s"`
	IdleTTL       time.Duration `env:"IDLE_TTL,       default=30m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL, default=1m"`
	MaxVisitors   int           `env:"MAX_VISITORS,   default=10000"`
	LoginRate     float64       `env:"LOGIN_RATE,     default=0.5"`
	LoginBurst    int           `env:"LOGIN_BURST,    default=5"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=portal"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
}

// IsDevelopment reports whether the portal runs in the development env.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads envFile into the process environment when it exists, then
// decodes the environment with go-envconfig. Variables already set win over
// the file.
func Load(ctx context.Context, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Portal.ReadyWait < 0 {
		return nil, errors.New("config: READY_WAIT must not be negative")
	}
	if cfg.Portal.IdleTTL <= 0 || cfg.Portal.SweepInterval <= 0 {
		return nil, errors.New("config: IDLE_TTL and SWEEP_INTERVAL must be positive")
	}
	if cfg.Portal.MaxVisitors <= 0 {
		return nil, errors.New("config: MAX_VISITORS must be positive")
	}
	return &cfg, nil
}
