package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	LLM         LLMConfig        `toml:"llm"`
	Generation  GenerationConfig `toml:"generation"`
	Agent       AgentConfig      `toml:"agent"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path (ignored when in_memory)
	InMemory       bool   `toml:"in_memory"`        // Keep agent jobs in memory only (default: true)
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// WebSocketConfig contains configuration for the live snapshot feed
type WebSocketConfig struct {
	// Minimum interval between broadcasts of the same message type. Empty disables throttling.
	// The latest snapshot is always delivered once the interval elapses.
	ThrottleInterval string `toml:"throttle_interval"`

	// Job log lines forwarded to clients as "log" messages
	MinLevel        string   `toml:"min_level"`        // "debug", "info", "warn" or "error"
	ExcludePatterns []string `toml:"exclude_patterns"` // messages containing any of these are not forwarded
}

// GeminiConfig contains Google Gemini API configuration for script, image and reasoning calls
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // Draft/reasoning model (default: "gemini-2.5-flash")
	ImageModel  string  `toml:"image_model"` // Image model (default: "imagen-4.0-generate-001")
	Timeout     string  `toml:"timeout"`     // Per-call timeout (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum spacing between image requests, empty = no pacing
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the text provider. Images always use Gemini.
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"`
}

// GenerationConfig controls the campaign generation pipeline
type GenerationConfig struct {
	MaxConcurrentImages int    `toml:"max_concurrent_images"` // 0 = one in-flight call per draft
	AspectRatio         string `toml:"aspect_ratio"`
	ImageMIMEType       string `toml:"image_mime_type"`
}

// AgentConfig contains configuration for the OODA agent backend and the job watcher
type AgentConfig struct {
	BackendURL      string `toml:"backend_url"`      // Remote job backend; empty = in-process backend
	PollInterval    string `toml:"poll_interval"`    // Job status poll period (default: "1s")
	RequestTimeout  string `toml:"request_timeout"`  // HTTP timeout against a remote backend
	DatasetPath     string `toml:"dataset_path"`     // CSV dataset; empty = built-in demo rows
	DemoRows        int    `toml:"demo_rows"`        // Rows of the dataset to analyse (default: 3)
	StepDelay       string `toml:"step_delay"`       // Pause between log entries (default: "1s")
	CleanupSchedule string `toml:"cleanup_schedule"` // Cron spec for pruning finished jobs
	JobRetention    string `toml:"job_retention"`    // Age after which finished jobs are pruned
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 5001,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:     "./data",
				InMemory: true,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		WebSocket: WebSocketConfig{
			ThrottleInterval: "",
			MinLevel:         "info",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			ImageModel:  "imagen-4.0-generate-001",
			Timeout:     "2m",
			RateLimit:   "",
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   4096,
			Timeout:     "2m",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Generation: GenerationConfig{
			MaxConcurrentImages: 0,
			AspectRatio:         "16:9",
			ImageMIMEType:       "image/jpeg",
		},
		Agent: AgentConfig{
			BackendURL:      "",
			PollInterval:    "1s",
			RequestTimeout:  "10s",
			DemoRows:        3,
			StepDelay:       "1s",
			CleanupSchedule: "@every 10m",
			JobRetention:    "1h",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ADFORGE_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("ADFORGE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ADFORGE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("ADFORGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if inMemory := os.Getenv("ADFORGE_BADGER_IN_MEMORY"); inMemory != "" {
		if b, err := strconv.ParseBool(inMemory); err == nil {
			config.Storage.Badger.InMemory = b
		}
	}

	// Logging configuration
	if level := os.Getenv("ADFORGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ADFORGE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// WebSocket configuration
	if minLevel := os.Getenv("ADFORGE_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}

	// Gemini configuration
	if apiKey := os.Getenv("ADFORGE_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("ADFORGE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if imageModel := os.Getenv("ADFORGE_GEMINI_IMAGE_MODEL"); imageModel != "" {
		config.Gemini.ImageModel = imageModel
	}
	if timeout := os.Getenv("ADFORGE_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("ADFORGE_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}

	// Claude configuration
	if apiKey := os.Getenv("ADFORGE_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("ADFORGE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	if provider := os.Getenv("ADFORGE_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}

	// Generation configuration
	if maxConcurrent := os.Getenv("ADFORGE_GENERATION_MAX_CONCURRENT_IMAGES"); maxConcurrent != "" {
		if n, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Generation.MaxConcurrentImages = n
		}
	}

	// Agent configuration
	if backendURL := os.Getenv("ADFORGE_AGENT_BACKEND_URL"); backendURL != "" {
		config.Agent.BackendURL = backendURL
	}
	if pollInterval := os.Getenv("ADFORGE_AGENT_POLL_INTERVAL"); pollInterval != "" {
		config.Agent.PollInterval = pollInterval
	}
	if datasetPath := os.Getenv("ADFORGE_AGENT_DATASET_PATH"); datasetPath != "" {
		config.Agent.DatasetPath = datasetPath
	}
	if stepDelay := os.Getenv("ADFORGE_AGENT_STEP_DELAY"); stepDelay != "" {
		config.Agent.StepDelay = stepDelay
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks durations and schedules so bad values fail at startup instead of mid-run
func (c *Config) Validate() error {
	durations := map[string]string{
		"gemini.timeout":        c.Gemini.Timeout,
		"gemini.rate_limit":     c.Gemini.RateLimit,
		"claude.timeout":        c.Claude.Timeout,
		"websocket.throttle":    c.WebSocket.ThrottleInterval,
		"agent.poll_interval":   c.Agent.PollInterval,
		"agent.request_timeout": c.Agent.RequestTimeout,
		"agent.step_delay":      c.Agent.StepDelay,
		"agent.job_retention":   c.Agent.JobRetention,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s '%s': %w", name, value, err)
		}
	}

	if d := ParseDurationOr(c.Agent.PollInterval, 0); d <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive, got '%s'", c.Agent.PollInterval)
	}

	if c.Generation.MaxConcurrentImages < 0 {
		return fmt.Errorf("generation.max_concurrent_images cannot be negative")
	}

	switch c.LLM.DefaultProvider {
	case LLMProviderGemini, LLMProviderClaude:
	default:
		return fmt.Errorf("unknown llm.default_provider '%s'", c.LLM.DefaultProvider)
	}

	if c.Agent.CleanupSchedule != "" {
		if err := ValidateCleanupSchedule(c.Agent.CleanupSchedule); err != nil {
			return err
		}
	}

	return nil
}

// ValidateCleanupSchedule validates a cron schedule expression (standard 5 fields or descriptors like "@every 10m")
func ValidateCleanupSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule '%s': %w", schedule, err)
	}
	return nil
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ResolveAPIKey resolves an API key by provider name.
// Resolution order: ADFORGE_* environment variable -> provider standard variables -> config fallback -> error
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"ADFORGE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"},
		"anthropic_api_key": {"ADFORGE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
