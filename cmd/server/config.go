package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MegaGrindStone/site-assistant/internal/services"
	"github.com/MegaGrindStone/site-assistant/internal/session"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(logger *slog.Logger) (session.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider   string                 `yaml:"provider"`
	Model      string                 `yaml:"model"`
	Parameters services.LLMParameters `yaml:"parameters"`
}

type config struct {
	Port         string        `yaml:"port"`
	LogLevel     string        `yaml:"logLevel"`
	SystemPrompt string        `yaml:"systemPrompt"`
	LLM          llmConfig     `yaml:"llm"`
	Fetcher      fetcherConfig `yaml:"fetcher"`
	Store        storeConfig   `yaml:"store"`
	CORS         corsConfig    `yaml:"cors"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type fetcherConfig struct {
	Provider      string `yaml:"provider"`
	ContentFormat string `yaml:"contentFormat"`

	// Firecrawl
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`

	// MCP
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
	Tool    string   `yaml:"tool"`
}

type storeConfig struct {
	Provider string `yaml:"provider"`

	// Bolt
	Path string `yaml:"path"`

	// Redis
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type corsConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

const (
	appName = "site-assistant"

	defaultOpenAIModel        = "gpt-4o"
	defaultOpenAITemperature  = float32(0.7)
	defaultAnthropicMaxTokens = 4096
	defaultOllamaHost         = "http://localhost:11434"
)

func defaultConfig() config {
	oa := &openAIConfig{BaseLLMConfig: BaseLLMConfig{Provider: "openai"}}
	oa.applyDefaults()

	return config{
		Port:     "5000",
		LogLevel: "info",
		LLM:      oa,
		Fetcher: fetcherConfig{
			Provider:      "firecrawl",
			ContentFormat: "markdown",
		},
		Store: storeConfig{
			Provider: "memory",
			Addr:     "localhost:6379",
			Prefix:   appName + ":",
		},
		CORS: corsConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

func defaultConfigDir() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, appName), nil
}

// loadConfig reads the config file at path on top of the defaults. When path is empty the default
// location is used, and a missing file there is not an error.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		dir, err := defaultConfigDir()
		if err != nil {
			return config{}, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	rawConfig := struct {
		Port         string         `yaml:"port"`
		LogLevel     string         `yaml:"logLevel"`
		SystemPrompt string         `yaml:"systemPrompt"`
		LLM          map[string]any `yaml:"llm"`
		Fetcher      fetcherConfig  `yaml:"fetcher"`
		Store        storeConfig    `yaml:"store"`
		CORS         corsConfig     `yaml:"cors"`
	}{
		Port:         c.Port,
		LogLevel:     c.LogLevel,
		SystemPrompt: c.SystemPrompt,
		Fetcher:      c.Fetcher,
		Store:        c.Store,
		CORS:         c.CORS,
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel
	c.SystemPrompt = rawConfig.SystemPrompt
	c.Fetcher = rawConfig.Fetcher
	c.Store = rawConfig.Store
	c.CORS = rawConfig.CORS

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}
	if oa, ok := llm.(*openAIConfig); ok {
		oa.applyDefaults()
	}

	c.LLM = llm

	return nil
}

// applyDefaults fills the model and sampling temperature left unset in the config file.
func (o *openAIConfig) applyDefaults() {
	if o.Model == "" {
		o.Model = defaultOpenAIModel
	}
	if o.Parameters.Temperature == nil {
		temperature := defaultOpenAITemperature
		o.Parameters.Temperature = &temperature
	}
}

func (o openAIConfig) llm(logger *slog.Logger) (session.LLM, error) {
	o.applyDefaults()

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.Parameters, logger)
}

func (a anthropicConfig) llm(logger *slog.Logger) (session.LLM, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	maxTokens := a.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, "", a.Model, maxTokens, a.Parameters, logger)
}

func (o openRouterConfig) llm(logger *slog.Logger) (session.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return services.NewOpenRouter(apiKey, "", o.Model, o.Parameters, logger)
}

func (o ollamaConfig) llm(logger *slog.Logger) (session.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	return services.NewOllama(host, o.Model, o.Parameters, logger)
}

// fetcher builds the configured content fetcher. The returned close function releases any server
// connection the fetcher holds.
func (f fetcherConfig) fetcher(ctx context.Context, logger *slog.Logger) (session.Fetcher, func() error, error) {
	var (
		fetcher session.Fetcher
		closeFn = func() error { return nil }
	)

	switch f.Provider {
	case "", "firecrawl":
		apiKey := f.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("FIRECRAWL_API_KEY")
		}
		fc, err := services.NewFirecrawl(apiKey, f.BaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		fetcher = fc
	case "mcp":
		mf, err := services.NewMCPFetcher(ctx, services.MCPFetcherOptions{
			Command: f.Command,
			Args:    f.Args,
			URL:     f.URL,
			Tool:    f.Tool,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		fetcher = mf
		closeFn = mf.Close
	default:
		return nil, nil, fmt.Errorf("unknown fetcher provider: %s", f.Provider)
	}

	switch f.ContentFormat {
	case "", "markdown":
	case "text":
		fetcher = services.NewPlainTextFetcher(fetcher)
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("unknown content format: %s", f.ContentFormat)
	}

	return fetcher, closeFn, nil
}

type threadStore interface {
	session.Store
	Close() error
}

func (s storeConfig) store(ctx context.Context) (threadStore, error) {
	switch s.Provider {
	case "", "memory":
		return services.NewMemory(), nil
	case "bolt":
		path := s.Path
		if path == "" {
			dir, err := defaultConfigDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "threads.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("error creating store directory: %w", err)
		}
		return services.NewBoltDB(path)
	case "redis":
		return services.NewRedis(ctx, services.RedisOptions{
			Addr:     s.Addr,
			Password: s.Password,
			DB:       s.DB,
			Prefix:   s.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown store provider: %s", s.Provider)
	}
}

func (c config) promptBuilder() (session.PromptBuilder, error) {
	if c.SystemPrompt == "" {
		return session.DefaultPromptBuilder(), nil
	}
	return session.NewPromptBuilder(c.SystemPrompt)
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
