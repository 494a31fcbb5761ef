// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "AGENTDECK"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Backend() BackendConfig
	Server() ServerConfig
	Session() SessionConfig
	Access() AccessConfig
	Chat() ChatConfig
	Grants() GrantsConfig
	Chain() ChainConfig

	// Setters used by CLI flags.
	SetServerListenAddr(addr string)
	SetBackendBaseURL(u string)
}

// Config holds the entire application configuration. Fields are exported so
// viper can decode into them; callers go through the getter methods.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BackendCfg  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	SessionCfg  SessionConfig  `mapstructure:"session" yaml:"session"`
	AccessCfg   AccessConfig   `mapstructure:"access" yaml:"access"`
	ChatCfg     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	GrantsCfg   GrantsConfig   `mapstructure:"grants" yaml:"grants"`
	ChainCfg    ChainConfig    `mapstructure:"chain" yaml:"chain"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Backend() BackendConfig   { return c.BackendCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Session() SessionConfig   { return c.SessionCfg }
func (c *Config) Access() AccessConfig     { return c.AccessCfg }
func (c *Config) Chat() ChatConfig         { return c.ChatCfg }
func (c *Config) Grants() GrantsConfig     { return c.GrantsCfg }
func (c *Config) Chain() ChainConfig       { return c.ChainCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetServerListenAddr(addr string) { c.ServerCfg.ListenAddr = addr }
func (c *Config) SetBackendBaseURL(u string)      { c.BackendCfg.BaseURL = u }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL
// disables the postgres transcript store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BackendConfig points at the upstream dashboard API.
type BackendConfig struct {
	BaseURL   string            `mapstructure:"base_url" yaml:"base_url"`
	Timeout   time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64           `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Burst     int               `mapstructure:"burst" yaml:"burst"`
	Headers   map[string]string `mapstructure:"headers" yaml:"headers"`
	// ForceHTTP2 enables h2 negotiation on the upstream transport.
	ForceHTTP2 bool `mapstructure:"force_http2" yaml:"force_http2"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SessionConfig holds the key used to verify session tokens.
type SessionConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"-"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
}

// AccessConfig tunes the access gate.
type AccessConfig struct {
	// SettleTimeout bounds how long the gate waits for agent, personality and
	// session to resolve before evaluating with whatever has arrived.
	SettleTimeout time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	NotifyTimeout time.Duration `mapstructure:"notify_timeout" yaml:"notify_timeout"`
}

// ChatConfig tunes the chat orchestrator.
type ChatConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPollingTime     time.Duration `mapstructure:"max_polling_time" yaml:"max_polling_time"`
	TypewriterSpeed    time.Duration `mapstructure:"typewriter_speed" yaml:"typewriter_speed"`
	ConfirmationDelay  time.Duration `mapstructure:"confirmation_delay" yaml:"confirmation_delay"`
	TokenDeployerAgent string        `mapstructure:"token_deployer_agent" yaml:"token_deployer_agent"`
	// TranscriptDir is where the file mirror writes histories. "~" is expanded.
	TranscriptDir string `mapstructure:"transcript_dir" yaml:"transcript_dir"`
}

// GrantsConfig tunes the grant workbench.
type GrantsConfig struct {
	EnabledAgents []string `mapstructure:"enabled_agents" yaml:"enabled_agents"`
	Timezone      string   `mapstructure:"timezone" yaml:"timezone"`
	AmountStep    float64  `mapstructure:"amount_step" yaml:"amount_step"`
}

// Enabled reports whether the grant workbench is shown for the named agent.
func (g GrantsConfig) Enabled(agentName string) bool {
	for _, name := range g.EnabledAgents {
		if strings.EqualFold(name, agentName) {
			return true
		}
	}
	return false
}

// Location resolves the configured timezone, falling back to UTC.
func (g GrantsConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TokenConfig describes one ERC-20 token shown in the balances panel.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol" yaml:"symbol"`
	Address  string `mapstructure:"address" yaml:"address"`
	Decimals int    `mapstructure:"decimals" yaml:"decimals"`
}

// ChainConfig points at the Base JSON-RPC endpoint used for balance reads.
type ChainConfig struct {
	RPCURL  string        `mapstructure:"rpc_url" yaml:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	USDC    TokenConfig   `mapstructure:"usdc" yaml:"usdc"`
	A0X     TokenConfig   `mapstructure:"a0x" yaml:"a0x"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "agentdeck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Backend --
	v.SetDefault("backend.base_url", "http://localhost:3000")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("backend.rate_limit", 10.0)
	v.SetDefault("backend.burst", 20)
	v.SetDefault("backend.force_http2", false)

	// -- Server --
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.request_timeout", "30s")

	// -- Session --
	v.SetDefault("session.issuer", "")

	// -- Access --
	v.SetDefault("access.settle_timeout", "5s")
	v.SetDefault("access.notify_timeout", "10s")

	// -- Chat --
	v.SetDefault("chat.poll_interval", "2s")
	v.SetDefault("chat.max_polling_time", "10m")
	v.SetDefault("chat.typewriter_speed", "30ms")
	v.SetDefault("chat.confirmation_delay", "10s")
	v.SetDefault("chat.token_deployer_agent", "token-deployer")
	v.SetDefault("chat.transcript_dir", "~/.agentdeck/transcripts")

	// -- Grants --
	v.SetDefault("grants.enabled_agents", []string{"jessexbt"})
	v.SetDefault("grants.timezone", "UTC")
	v.SetDefault("grants.amount_step", 10.0)

	// -- Chain --
	v.SetDefault("chain.rpc_url", "https://mainnet.base.org")
	v.SetDefault("chain.timeout", "10s")
	v.SetDefault("chain.usdc.symbol", "USDC")
	v.SetDefault("chain.usdc.address", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	v.SetDefault("chain.usdc.decimals", 6)
	v.SetDefault("chain.a0x.symbol", "A0X")
	v.SetDefault("chain.a0x.address", "")
	v.SetDefault("chain.a0x.decimals", 18)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("session.jwt_secret", EnvPrefix+"_SESSION_JWT_SECRET")
	v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the secret if Unmarshal didn't pick it up
	if cfg.SessionCfg.JWTSecret == "" {
		cfg.SessionCfg.JWTSecret = os.Getenv(EnvPrefix + "_SESSION_JWT_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BackendCfg.Validate(); err != nil {
		return fmt.Errorf("backend configuration invalid: %w", err)
	}
	if c.AccessCfg.SettleTimeout <= 0 {
		return fmt.Errorf("access.settle_timeout must be a positive duration")
	}
	if err := c.ChatCfg.Validate(); err != nil {
		return fmt.Errorf("chat configuration invalid: %w", err)
	}
	if c.GrantsCfg.AmountStep <= 0 {
		return fmt.Errorf("grants.amount_step must be positive")
	}
	if c.GrantsCfg.Timezone != "" {
		if _, err := time.LoadLocation(c.GrantsCfg.Timezone); err != nil {
			return fmt.Errorf("grants.timezone %q is not a known location: %w", c.GrantsCfg.Timezone, err)
		}
	}
	return nil
}

// Validate checks the Backend configuration.
func (b *BackendConfig) Validate() error {
	u, err := url.Parse(b.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", b.BaseURL)
	}
	if b.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if b.RateLimit > 0 && b.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate_limit is set")
	}
	return nil
}

// Validate checks the Chat configuration.
func (c *ChatConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if c.MaxPollingTime < c.PollInterval {
		return fmt.Errorf("max_polling_time must be at least poll_interval")
	}
	if c.TypewriterSpeed < 0 || c.ConfirmationDelay < 0 {
		return fmt.Errorf("typewriter_speed and confirmation_delay must not be negative")
	}
	return nil
}
