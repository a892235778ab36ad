package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research agent system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	Research  ResearchConfig  `mapstructure:"research"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address           string `mapstructure:"address"`
	JWTSecret         string `mapstructure:"jwt_secret"`
	AuthRequired      bool   `mapstructure:"auth_required"`
	RunStreamEnabled  bool   `mapstructure:"run_stream_enabled"`
	StreamPingSeconds int    `mapstructure:"stream_ping_seconds"`
}

// LLMConfig contains delegate model configuration
type LLMConfig struct {
	APIKey     string                 `mapstructure:"api_key"`
	BaseURL    string                 `mapstructure:"base_url"`
	Timeout    time.Duration          `mapstructure:"timeout"`
	Tasks      map[string]TaskModel   `mapstructure:"tasks"`
	Fallbacks  map[string][]string    `mapstructure:"fallbacks"`
	ModelCosts map[string]ModelPrice  `mapstructure:"model_costs"`
	Headers    map[string]string      `mapstructure:"headers"`
	Options    map[string]interface{} `mapstructure:"options"`
}

// TaskModel pins a task (supervisor, planner, verifier...) to a model slug.
type TaskModel struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ModelPrice lists per-1K-token prices for cost accounting.
type ModelPrice struct {
	InputPer1K  float64 `mapstructure:"input_per_1k"`
	OutputPer1K float64 `mapstructure:"output_per_1k"`
}

// ToolsConfig contains web search and scrape settings
type ToolsConfig struct {
	Search SearchConfig `mapstructure:"search"`
	Scrape ScrapeConfig `mapstructure:"scrape"`
}

// SearchConfig contains web search provider settings
type SearchConfig struct {
	Provider      string        `mapstructure:"provider"` // tavily, serper, brave
	TavilyAPIKey  string        `mapstructure:"tavily_api_key"`
	SerperAPIKey  string        `mapstructure:"serper_api_key"`
	BraveAPIKey   string        `mapstructure:"brave_api_key"`
	MaxResults    int           `mapstructure:"max_results"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheDisabled bool          `mapstructure:"cache_disabled"`
}

// ScrapeConfig contains web scrape settings
type ScrapeConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	MaxChars         int           `mapstructure:"max_chars"`
	PolitenessDelay  time.Duration `mapstructure:"politeness_delay"`
	UseHeadless      bool          `mapstructure:"use_headless"`
	HeadlessTimeout  time.Duration `mapstructure:"headless_timeout"`
	HeadlessMaxChars int           `mapstructure:"headless_max_chars"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("redis.port required")
	}
	return nil
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Neo4jConfig contains identity-graph database settings
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

func (n Neo4jConfig) Validate() error {
	if strings.TrimSpace(n.URI) == "" {
		return fmt.Errorf("neo4j.uri required")
	}
	return nil
}

// ResearchConfig bounds the supervisor loop and the specialist steps.
type ResearchConfig struct {
	DefaultMaxPhases        int `mapstructure:"default_max_phases"`
	RecursionLimit          int `mapstructure:"recursion_limit"`
	MaxQueriesPerBatch      int `mapstructure:"max_queries_per_batch"`
	MaxVerificationSearches int `mapstructure:"max_verification_searches"`
	MinFactsForVerification int `mapstructure:"min_facts_for_verification"`
	ToolLoopLimit           int `mapstructure:"tool_loop_limit"`
	JobTTLDays              int `mapstructure:"job_ttl_days"`
	EvalStateTTLDays        int `mapstructure:"eval_state_ttl_days"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoadConfig loads config from file, with ARGUS_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "120s")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.run_stream_enabled", true)
	viper.SetDefault("server.stream_ping_seconds", 30)
	viper.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.timeout", "90s")
	viper.SetDefault("tools.search.provider", "tavily")
	viper.SetDefault("tools.search.max_results", 5)
	viper.SetDefault("tools.search.timeout", "20s")
	viper.SetDefault("tools.search.cache_ttl", "1h")
	viper.SetDefault("tools.scrape.timeout", "30s")
	viper.SetDefault("tools.scrape.max_retries", 3)
	viper.SetDefault("tools.scrape.max_chars", 15000)
	viper.SetDefault("tools.scrape.politeness_delay", "2s")
	viper.SetDefault("tools.scrape.headless_timeout", "15s")
	viper.SetDefault("tools.scrape.headless_max_chars", 20000)
	viper.SetDefault("redis.timeout", "5s")
	viper.SetDefault("research.default_max_phases", 5)
	viper.SetDefault("research.recursion_limit", 150)
	viper.SetDefault("research.max_queries_per_batch", 6)
	viper.SetDefault("research.max_verification_searches", 10)
	viper.SetDefault("research.min_facts_for_verification", 5)
	viper.SetDefault("research.tool_loop_limit", 24)
	viper.SetDefault("research.job_ttl_days", 7)
	viper.SetDefault("research.eval_state_ttl_days", 30)
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ARGUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Neo4j.Validate(); err != nil {
		panic(err)
	}
	return &config
}
