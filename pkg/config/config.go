package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultConfigPath is read when present; environment variables always override it.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for askdb-engine.
// Configuration can come from a YAML file, a .env file or environment variables.
// Secrets (API keys, passwords) only come from the environment.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`

	Logging     LoggingConfig     `yaml:"logging"`
	LLM         LLMConfig         `yaml:"llm"`
	Generation  GenerationConfig  `yaml:"generation"`
	Query       QueryConfig       `yaml:"query"`
	Datasource  DatasourceConfig  `yaml:"datasource"`
	SchemaCache SchemaCacheConfig `yaml:"schema_cache"`
	Redis       RedisConfig       `yaml:"redis"`

	// Database is the engine's own store for dashboard item execution history.
	Database DatabaseConfig `yaml:"database"`

	// MCP enables the MCP endpoint on the HTTP server.
	MCPEnabled bool `yaml:"mcp_enabled" env:"MCP_ENABLED" env-default:"true"`
}

// LoggingConfig selects the zap logger flavor.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // json or console
}

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Endpoint       string        `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://openrouter.ai/api/v1"`
	Model          string        `yaml:"model" env:"LLM_MODEL" env-default:"openai/gpt-4o-mini"`
	APIKey         string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens      int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"LLM_REQUEST_TIMEOUT" env-default:"120s"`
	AppName        string        `yaml:"app_name" env:"LLM_APP_NAME" env-default:"askdb"`
	AppURL         string        `yaml:"app_url" env:"LLM_APP_URL" env-default:""`
}

// GenerationConfig bounds the generation loop.
type GenerationConfig struct {
	MaxTurns          int  `yaml:"max_turns" env:"GENERATION_MAX_TURNS" env-default:"10"`
	ParallelToolCalls bool `yaml:"parallel_tool_calls" env:"GENERATION_PARALLEL_TOOL_CALLS" env-default:"false"`
}

// QueryConfig holds read-only execution policy.
type QueryConfig struct {
	AdHocTimeout   time.Duration `yaml:"ad_hoc_timeout" env:"QUERY_AD_HOC_TIMEOUT" env-default:"5s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"QUERY_REFRESH_TIMEOUT" env-default:"10s"`
}

// DatasourceConfig holds target database pool settings.
type DatasourceConfig struct {
	// PoolIdleTTL is how long an unused pool is kept before it is closed.
	PoolIdleTTL  time.Duration `yaml:"pool_idle_ttl" env:"DATASOURCE_POOL_IDLE_TTL" env-default:"30m"`
	PoolMaxConns int32         `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	PoolMinConns int32         `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"0"`
}

// SchemaCacheConfig configures schema snapshot caching.
type SchemaCacheConfig struct {
	TTL time.Duration `yaml:"ttl" env:"SCHEMA_CACHE_TTL" env-default:"1h"`
}

// RedisConfig enables a shared schema cache when Host is set.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Enabled reports whether redis is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL settings for the execution-history store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"askdb"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"askdb_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL keyword/value connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Load reads .env (if present), then the YAML file at path (if present), with
// environment variables overriding both.
func Load(version, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{Version: version}

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{Scheme: "http", Host: "localhost:" + cfg.Port}).String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.LLM.Endpoint == "" {
		return errors.New("llm.endpoint is required")
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Generation.MaxTurns <= 0 {
		return fmt.Errorf("generation.max_turns must be positive, got %d", c.Generation.MaxTurns)
	}
	if c.Query.AdHocTimeout <= 0 || c.Query.RefreshTimeout <= 0 {
		return errors.New("query timeouts must be positive")
	}
	if c.SchemaCache.TTL < 0 {
		return errors.New("schema_cache.ttl must not be negative")
	}
	return nil
}

// ListenAddr returns bind_addr:port.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}
