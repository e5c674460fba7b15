package infra

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string   `env:"APP_ENV" env-default:"development"`
	Port           string   `env:"PORT" env-default:"8080"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	MongoURL       string   `env:"MONGO_URL"`
	JWTSecret      string   `env:"JWT_SECRET"`
	JWTIssuer      string   `env:"JWT_ISSUER" env-default:"companion-api"`
	DefaultLocale  string   `env:"DEFAULT_LOCALE" env-default:"en"`
	GoogleClientID string   `env:"GOOGLE_CLIENT_ID"`
	GoogleIssuer   string   `env:"GOOGLE_ISSUER" env-default:"https://accounts.google.com"`
	CORSOrigins    []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	StartingCoins  int      `env:"STARTING_COINS" env-default:"20"`
	LedgerDriver   string   `env:"LEDGER_DRIVER" env-default:"postgres"`

	RateLimitPerMin         int `env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`
	HTTPReadTimeoutSeconds  int `env:"HTTP_READ_TIMEOUT_SECONDS" env-default:"15"`
	HTTPWriteTimeoutSeconds int `env:"HTTP_WRITE_TIMEOUT_SECONDS" env-default:"150"`
	HTTPIdleTimeoutSeconds  int `env:"HTTP_IDLE_TIMEOUT_SECONDS" env-default:"60"`

	JWTTTL            time.Duration `env:"JWT_TTL" env-default:"24h"`
	WizardIdleTimeout time.Duration `env:"WIZARD_IDLE_TIMEOUT" env-default:"2h"`

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	Generation GenerationConfig
	Storage    StorageConfig
}

// GenerationConfig selects and tunes the upstream image services.
type GenerationConfig struct {
	Provider          string        `env:"IMAGE_PROVIDER" env-default:"firebase"`
	FaceEndpointURL   string        `env:"FACE_ENDPOINT_URL"`
	BodyEndpointURL   string        `env:"BODY_ENDPOINT_URL"`
	ReplicateBaseURL  string        `env:"REPLICATE_BASE_URL" env-default:"https://api.replicate.com/v1"`
	ReplicateAPIToken string        `env:"REPLICATE_API_TOKEN"`
	ReplicateModel    string        `env:"REPLICATE_MODEL"`
	PollInterval      time.Duration `env:"REPLICATE_POLL_INTERVAL" env-default:"1s"`
	MaxAttempts       int           `env:"GENERATION_MAX_ATTEMPTS" env-default:"2"`
	RetryDelay        time.Duration `env:"GENERATION_RETRY_DELAY" env-default:"1s"`
	FaceTimeout       time.Duration `env:"FACE_TIMEOUT" env-default:"60s"`
	BodyTimeout       time.Duration `env:"BODY_TIMEOUT" env-default:"120s"`
}

// StorageConfig describes where rehosted companion images live.
type StorageConfig struct {
	Driver          string   `env:"STORAGE_DRIVER" env-default:"filesystem"`
	Path            string   `env:"STORAGE_PATH" env-default:"./data/objects"`
	BaseURL         string   `env:"STORAGE_BASE_URL"`
	S3Endpoint      string   `env:"S3_ENDPOINT"`
	S3AccessKey     string   `env:"S3_ACCESS_KEY"`
	S3SecretKey     string   `env:"S3_SECRET_KEY"`
	S3Bucket        string   `env:"S3_BUCKET" env-default:"companions"`
	S3PublicBaseURL string   `env:"S3_PUBLIC_BASE_URL"`
	SourceAllowlist []string `env:"IMAGE_SOURCE_HOST_ALLOWLIST" env-separator:","`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	cfg.LedgerDriver = strings.ToLower(strings.TrimSpace(cfg.LedgerDriver))
	switch cfg.LedgerDriver {
	case "", "postgres":
		cfg.LedgerDriver = "postgres"
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported LEDGER_DRIVER %q", cfg.LedgerDriver)
	}
	if strings.TrimSpace(cfg.MongoURL) == "" {
		return nil, fmt.Errorf("MONGO_URL is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StartingCoins < 0 {
		return nil, fmt.Errorf("STARTING_COINS must not be negative")
	}

	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8080"
	}
	cfg.HTTPReadTimeout = time.Duration(cfg.HTTPReadTimeoutSeconds) * time.Second
	cfg.HTTPWriteTimeout = time.Duration(cfg.HTTPWriteTimeoutSeconds) * time.Second
	cfg.HTTPIdleTimeout = time.Duration(cfg.HTTPIdleTimeoutSeconds) * time.Second

	if strings.TrimSpace(cfg.Storage.BaseURL) == "" {
		cfg.Storage.BaseURL = fmt.Sprintf("http://localhost:%s/static", cfg.Port)
	}
	cfg.Storage.SourceAllowlist = normalizeHosts(cfg.Storage.SourceAllowlist)
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)

	if err := cfg.Generation.validate(); err != nil {
		return nil, err
	}
	if floor := cfg.Generation.ResponseDeadline(); cfg.HTTPWriteTimeout > 0 && cfg.HTTPWriteTimeout < floor {
		cfg.HTTPWriteTimeout = floor
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MaxDuration is the longest a face+body generation can run: every attempt
// of both stages hitting its timeout, plus the delays between attempts.
func (g GenerationConfig) MaxDuration() time.Duration {
	attempts := time.Duration(max(g.MaxAttempts, 1))
	return attempts*(g.FaceTimeout+g.BodyTimeout) + 2*(attempts-1)*g.RetryDelay
}

// ResponseDeadline leaves room after MaxDuration to write the result.
func (g GenerationConfig) ResponseDeadline() time.Duration {
	return g.MaxDuration() + 30*time.Second
}

func (g *GenerationConfig) validate() error {
	g.Provider = strings.ToLower(strings.TrimSpace(g.Provider))
	switch g.Provider {
	case "firebase":
		if g.FaceEndpointURL == "" || g.BodyEndpointURL == "" {
			return fmt.Errorf("FACE_ENDPOINT_URL and BODY_ENDPOINT_URL are required for the firebase provider")
		}
	case "replicate":
		if g.ReplicateAPIToken == "" {
			return fmt.Errorf("REPLICATE_API_TOKEN is required for the replicate provider")
		}
	default:
		return fmt.Errorf("unsupported IMAGE_PROVIDER %q", g.Provider)
	}
	if g.MaxAttempts < 1 {
		return fmt.Errorf("GENERATION_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case "filesystem":
		return nil
	case "minio":
		if s.S3Endpoint == "" || s.S3Bucket == "" {
			return fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required for the minio driver")
		}
		return nil
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", s.Driver)
	}
}

// normalizeHosts lowercases, dedupes and sorts host entries. Entries given as
// URLs are reduced to their hostname.
func normalizeHosts(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if u, err := url.Parse(v); err == nil && u.Host != "" {
			v = u.Hostname()
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
