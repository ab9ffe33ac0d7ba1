package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "DAILY_DIGEST_CONFIG"
	ledgerPathEnv      = "DAILY_DIGEST_LEDGER"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	smtpPasswordEnv    = "SMTP_PASSWORD"
	mailAPIKeyEnv      = "MAIL_API_KEY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Budget    BudgetConfig    `yaml:"budget"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Routes    RoutesConfig    `yaml:"routes"`
	Providers ProvidersConfig `yaml:"providers"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sites     []SiteConfig    `yaml:"sites"`
}

// BudgetConfig caps total spend for one cycle.
type BudgetConfig struct {
	Ceiling float64 `yaml:"ceiling"`
}

// ScheduleConfig defines the daily trigger instant at a fixed UTC offset.
// DST-aware calendars are out of scope; the offset never shifts.
type ScheduleConfig struct {
	Hour             int `yaml:"hour"`
	Minute           int `yaml:"minute"`
	UTCOffsetMinutes int `yaml:"utcOffsetMinutes"`
}

// Location resolves the fixed offset to a time.Location.
func (s ScheduleConfig) Location() *time.Location {
	if s.UTCOffsetMinutes == 0 {
		return time.UTC
	}
	return time.FixedZone("digest", s.UTCOffsetMinutes*60)
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	MaxItems       int    `yaml:"maxItems"`
	SelectTop      int    `yaml:"selectTop"`
	Workers        int    `yaml:"workers"`
	TestMaxItems   int    `yaml:"testMaxItems"`
	RetryAttempts  int    `yaml:"retryAttempts"`
	RetryBaseDelay string `yaml:"retryBaseDelay"`
	WriterPrompt   string `yaml:"writerPrompt"`
	EditorPrompt   string `yaml:"editorPrompt"`
	SelectorPrompt string `yaml:"selectorPrompt"`
}

// RetryDelay parses the configured base delay, defaulting to 500ms.
func (p PipelineConfig) RetryDelay() time.Duration {
	if d, err := time.ParseDuration(p.RetryBaseDelay); err == nil && d > 0 {
		return d
	}
	return 500 * time.Millisecond
}

// RouteConfig is one provider/model entry in a task's fallback ordering.
type RouteConfig struct {
	Provider         string  `yaml:"provider"`
	Model            string  `yaml:"model"`
	InputPricePer1K  float64 `yaml:"inputPricePer1k"`
	OutputPricePer1K float64 `yaml:"outputPricePer1k"`
	FlatPrice        float64 `yaml:"flatPrice"`
	MaxTokens        int     `yaml:"maxTokens"`
}

// RoutesConfig orders providers per task kind; the first entry is primary,
// the second the single allowed fallback.
type RoutesConfig struct {
	Select  []RouteConfig `yaml:"select"`
	Write   []RouteConfig `yaml:"write"`
	Edit    []RouteConfig `yaml:"edit"`
	Deliver []RouteConfig `yaml:"deliver"`
}

// ProvidersConfig wires generation provider credentials.
type ProvidersConfig struct {
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
}

// AnthropicConfig defines how to contact the Claude Messages API.
type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OpenAIConfig defines an OpenAI-compatible chat-completions endpoint.
type OpenAIConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// DeliveryConfig selects exactly one active transport per deployment.
type DeliveryConfig struct {
	Transport  string        `yaml:"transport"`
	Recipients []string      `yaml:"recipients"`
	Subject    string        `yaml:"subject"`
	SMTP       SMTPConfig    `yaml:"smtp"`
	API        MailAPIConfig `yaml:"api"`
}

// SMTPConfig wires the local-relay transport.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MailAPIConfig wires the transactional HTTP transport.
type MailAPIConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	From     string `yaml:"from"`
}

// LedgerConfig locates the embedded run ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls handler level and format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SiteConfig describes a single feed site with its scanner strategy.
type SiteConfig struct {
	Name     string            `yaml:"name"`
	Scanner  string            `yaml:"scanner"`
	Sections []SectionConfig   `yaml:"sections"`
	Options  map[string]string `yaml:"options"`
}

// SectionConfig holds a concrete endpoint to scan.
type SectionConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(ledgerPathEnv); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv(anthropicAPIKeyEnv); v != "" {
		c.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv(smtpPasswordEnv); v != "" {
		c.Delivery.SMTP.Password = v
	}
	if v := os.Getenv(mailAPIKeyEnv); v != "" {
		c.Delivery.API.APIKey = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Budget.Ceiling > 0 {
		base.Budget = override.Budget
	}

	if override.Schedule.Hour != 0 || override.Schedule.Minute != 0 || override.Schedule.UTCOffsetMinutes != 0 {
		base.Schedule = override.Schedule
	}

	base.Pipeline = mergePipeline(base.Pipeline, override.Pipeline)

	if len(override.Routes.Select) > 0 {
		base.Routes.Select = override.Routes.Select
	}
	if len(override.Routes.Write) > 0 {
		base.Routes.Write = override.Routes.Write
	}
	if len(override.Routes.Edit) > 0 {
		base.Routes.Edit = override.Routes.Edit
	}
	if len(override.Routes.Deliver) > 0 {
		base.Routes.Deliver = override.Routes.Deliver
	}

	if override.Providers.Anthropic.APIKey != "" || override.Providers.Anthropic.Model != "" {
		base.Providers.Anthropic = override.Providers.Anthropic
	}
	if override.Providers.OpenAI.Endpoint != "" || override.Providers.OpenAI.APIKey != "" {
		base.Providers.OpenAI = override.Providers.OpenAI
	}

	if override.Delivery.Transport != "" {
		base.Delivery.Transport = override.Delivery.Transport
	}
	if len(override.Delivery.Recipients) > 0 {
		base.Delivery.Recipients = override.Delivery.Recipients
	}
	if override.Delivery.Subject != "" {
		base.Delivery.Subject = override.Delivery.Subject
	}
	if override.Delivery.SMTP.Host != "" {
		base.Delivery.SMTP = override.Delivery.SMTP
	}
	if override.Delivery.API.Endpoint != "" {
		base.Delivery.API = override.Delivery.API
	}

	if override.Ledger.Path != "" {
		base.Ledger = override.Ledger
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func mergePipeline(base, override PipelineConfig) PipelineConfig {
	if override.MaxItems > 0 {
		base.MaxItems = override.MaxItems
	}
	if override.SelectTop > 0 {
		base.SelectTop = override.SelectTop
	}
	if override.Workers > 0 {
		base.Workers = override.Workers
	}
	if override.TestMaxItems > 0 {
		base.TestMaxItems = override.TestMaxItems
	}
	if override.RetryAttempts > 0 {
		base.RetryAttempts = override.RetryAttempts
	}
	if override.RetryBaseDelay != "" {
		base.RetryBaseDelay = override.RetryBaseDelay
	}
	if override.WriterPrompt != "" {
		base.WriterPrompt = override.WriterPrompt
	}
	if override.EditorPrompt != "" {
		base.EditorPrompt = override.EditorPrompt
	}
	if override.SelectorPrompt != "" {
		base.SelectorPrompt = override.SelectorPrompt
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Budget:   BudgetConfig{Ceiling: 5.0},
		Schedule: ScheduleConfig{Hour: 6, Minute: 30},
		Pipeline: PipelineConfig{
			MaxItems:       30,
			SelectTop:      5,
			Workers:        2,
			TestMaxItems:   2,
			RetryAttempts:  3,
			RetryBaseDelay: "500ms",
			SelectorPrompt: "You pick the most newsworthy stories for a daily technology digest.",
			WriterPrompt:   "You write concise, engaging news articles from headlines and summaries.",
			EditorPrompt:   "You edit articles for clarity, accuracy of tone, and length.",
		},
		Routes: RoutesConfig{
			Select: []RouteConfig{
				{Provider: "anthropic", Model: "claude-3-5-haiku-latest", InputPricePer1K: 0.0008, OutputPricePer1K: 0.004, MaxTokens: 512},
			},
			Write: []RouteConfig{
				{Provider: "anthropic", Model: "claude-3-5-sonnet-latest", InputPricePer1K: 0.003, OutputPricePer1K: 0.015, MaxTokens: 1024},
				{Provider: "openai", Model: "gpt-4o-mini", InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006, MaxTokens: 1024},
			},
			Edit: []RouteConfig{
				{Provider: "anthropic", Model: "claude-3-5-haiku-latest", InputPricePer1K: 0.0008, OutputPricePer1K: 0.004, MaxTokens: 1024},
				{Provider: "openai", Model: "gpt-4o-mini", InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006, MaxTokens: 1024},
			},
			Deliver: []RouteConfig{
				{Provider: "smtp"},
			},
		},
		Providers: ProvidersConfig{
			Anthropic: AnthropicConfig{Model: "claude-3-5-sonnet-latest"},
			OpenAI: OpenAIConfig{
				Endpoint: "https://api.openai.com/v1/chat/completions",
				Model:    "gpt-4o-mini",
			},
		},
		Delivery: DeliveryConfig{
			Transport: "smtp",
			Subject:   "Daily Digest",
			SMTP:      SMTPConfig{Host: "localhost", Port: 25, From: "digest@localhost"},
		},
		Ledger:  LedgerConfig{Path: "digest.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Sites: []SiteConfig{
			{
				Name:    "hn-front",
				Scanner: "headline",
				Sections: []SectionConfig{
					{Name: "front", URL: "https://news.ycombinator.com/"},
				},
				Options: map[string]string{
					"itemSelector":  ".athing",
					"titleSelector": ".titleline > a",
					"linkSelector":  ".titleline > a",
				},
			},
		},
	}
}
