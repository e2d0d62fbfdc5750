// Package config handles briefer configuration loading.
//
// A single YAML file configures both binaries: the agent client reads
// the anthropic, agent, mcp, usage, and listen sections; the tool server
// reads the tools section. Values of the form ${NAME} are expanded from
// the environment before parsing, which is how API keys are normally
// supplied.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/briefer/internal/paths"
)

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given: ./config.yaml, ~/.config/briefer/config.yaml,
// /etc/briefer/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "briefer", "config.yaml"))
	}

	return append(paths, "/etc/briefer/config.yaml")
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise the first existing entry of DefaultSearchPaths is
// returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all briefer configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Agent     AgentConfig     `yaml:"agent"`
	MCP       MCPConfig       `yaml:"mcp"`
	Tools     ToolsConfig     `yaml:"tools"`
	Usage     UsageConfig     `yaml:"usage"`
	Listen    ListenConfig    `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

// AnthropicConfig defines the model gateway settings.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	// BaseURL overrides the Messages API endpoint (tests, proxies).
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool {
	return c.APIKey != ""
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	// MaxToolRounds bounds model calls per query. Default 12.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// SideEffectTool names the tool that must succeed at most once per
	// query. Default "save_briefing".
	SideEffectTool string `yaml:"side_effect_tool"`

	// EnforceSingleSideEffect answers repeat requests for the side-effect
	// tool with a canned result instead of calling it again. Off by
	// default: the guard is otherwise prompt-level only.
	EnforceSingleSideEffect bool `yaml:"enforce_single_side_effect"`

	// ParallelTools executes the tool calls of one round concurrently.
	ParallelTools bool `yaml:"parallel_tools"`

	// SkillsFile is a markdown contract injected into the system prompt.
	SkillsFile     string `yaml:"skills_file"`
	SkillsMaxChars int    `yaml:"skills_max_chars"`

	// ToolTimeout bounds a single tool call. Zero means no per-call limit.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// MCPConfig describes how to reach the tool server.
type MCPConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"` // "stdio" or "http"

	// Command is the server endpoint for stdio. A path ending in .py is
	// run with python and .js with node; anything else is executed
	// directly.
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     []string          `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	InitTimeout time.Duration `yaml:"init_timeout"`

	// HealthInterval is how often `briefer serve` pings the tool server
	// and reconnects after it goes away.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// ToolsConfig configures the tool server process.
type ToolsConfig struct {
	Search      SearchConfig `yaml:"search"`
	StoragePath string       `yaml:"storage_path"`
	FetchChars  int          `yaml:"fetch_max_chars"`
	UserAgent   string       `yaml:"user_agent"`
	// GeoURL and WeatherURL override the public endpoints.
	GeoURL     string `yaml:"geo_url"`
	WeatherURL string `yaml:"weather_url"`
}

// SearchConfig selects and configures web search providers.
type SearchConfig struct {
	Primary string        `yaml:"primary"`
	Brave   BraveConfig   `yaml:"brave"`
	SearXNG SearXNGConfig `yaml:"searxng"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether a Brave API key is set.
func (c BraveConfig) Configured() bool { return c.APIKey != "" }

// SearXNGConfig holds the SearXNG instance URL.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether a SearXNG URL is set.
func (c SearXNGConfig) Configured() bool { return c.URL != "" }

// UsageConfig controls the token usage ledger.
type UsageConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Path    string                  `yaml:"path"`
	Pricing map[string]PricingEntry `yaml:"pricing"`
}

// PricingEntry is the USD price per million tokens for one model.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// ListenConfig defines the HTTP shell bind address.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Defaults.
const (
	DefaultModel          = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens      = 1000
	DefaultMaxToolRounds  = 12
	DefaultSideEffectTool = "save_briefing"
	DefaultSkillsMaxChars = 12000
	DefaultPort           = 8484
	DefaultStorageFile    = "briefings.json"
	DefaultUsageFile      = "usage.db"
)

// Load reads configuration from a YAML file, expanding environment
// variables and applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with every default applied and no
// secrets. The API key is taken from ANTHROPIC_API_KEY when set.
func Default() *Config {
	cfg := &Config{
		Anthropic: AnthropicConfig{APIKey: os.Getenv("ANTHROPIC_API_KEY")},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = DefaultModel
	}
	if c.Anthropic.MaxTokens <= 0 {
		c.Anthropic.MaxTokens = DefaultMaxTokens
	}
	if c.Agent.MaxToolRounds <= 0 {
		c.Agent.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Agent.SideEffectTool == "" {
		c.Agent.SideEffectTool = DefaultSideEffectTool
	}
	if c.Agent.SkillsMaxChars <= 0 {
		c.Agent.SkillsMaxChars = DefaultSkillsMaxChars
	}
	if c.MCP.Name == "" {
		c.MCP.Name = "briefer-tools"
	}
	if c.MCP.Transport == "" {
		if c.MCP.URL != "" && c.MCP.Command == "" {
			c.MCP.Transport = "http"
		} else {
			c.MCP.Transport = "stdio"
		}
	}
	if c.MCP.InitTimeout <= 0 {
		c.MCP.InitTimeout = 30 * time.Second
	}
	if c.MCP.HealthInterval <= 0 {
		c.MCP.HealthInterval = 30 * time.Second
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.DataDir = paths.ExpandHome(c.DataDir)
	if c.Tools.StoragePath == "" {
		c.Tools.StoragePath = filepath.Join(c.DataDir, DefaultStorageFile)
	}
	if c.Tools.Search.Primary == "" {
		switch {
		case c.Tools.Search.SearXNG.Configured():
			c.Tools.Search.Primary = "searxng"
		case c.Tools.Search.Brave.Configured():
			c.Tools.Search.Primary = "brave"
		}
	}
	if c.Usage.Path == "" {
		c.Usage.Path = filepath.Join(c.DataDir, DefaultUsageFile)
	}

	// File paths may be written as ~/... or data:...
	r := paths.New(map[string]string{"data": c.DataDir})
	c.Tools.StoragePath = r.Resolve(c.Tools.StoragePath)
	c.Usage.Path = r.Resolve(c.Usage.Path)
	c.Agent.SkillsFile = r.Resolve(c.Agent.SkillsFile)
	if c.Listen.Port == 0 {
		c.Listen.Port = DefaultPort
	}
}

// Validate checks for values that would fail later in confusing ways.
// It does not require an API key: the tool server never needs one.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q invalid (expected text or json)", c.LogFormat)
	}
	switch c.MCP.Transport {
	case "stdio":
	case "http":
		if c.MCP.URL == "" {
			return fmt.Errorf("mcp.url is required for the http transport")
		}
	default:
		return fmt.Errorf("mcp.transport %q invalid (expected stdio or http)", c.MCP.Transport)
	}
	if c.Agent.ToolTimeout < 0 {
		return fmt.Errorf("agent.tool_timeout must not be negative")
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	switch c.Tools.Search.Primary {
	case "", "brave", "searxng":
	default:
		return fmt.Errorf("tools.search.primary %q invalid (expected brave or searxng)", c.Tools.Search.Primary)
	}
	return nil
}
