package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ContentPipeline/internal/domain"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "CONTENT_PIPELINE_CONFIG"
	databaseDSNEnv      = "DATABASE_DSN"
	databaseDriverEnv   = "DATABASE_DRIVER"
	anthropicAPIKeyEnv  = "ANTHROPIC_API_KEY"
	openAIAPIKeyEnv     = "OPENAI_API_KEY"
	replicateTokenEnv   = "REPLICATE_API_TOKEN"
	wordpressURLEnv     = "WP_URL"
	wordpressUserEnv    = "WP_USER"
	wordpressPassEnv    = "WP_APP_PASS"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	redisAddrEnv        = "REDIS_ADDR"
	logLevelEnv         = "LOG_LEVEL"
	defaultImageRules   = "Do not include any text, letters, logos, watermarks or signage in the image."
	defaultOutlineBrand = "YardBonita is a home and yard care blog focused on seasonal, regional advice for U.S. homeowners."
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig        `yaml:"logging"`
	Database      DatabaseConfig       `yaml:"database"`
	Scheduler     SchedulerConfig      `yaml:"scheduler"`
	Anthropic     AnthropicConfig      `yaml:"anthropic"`
	OpenAI        OpenAIConfig         `yaml:"openai"`
	Replicate     ReplicateConfig      `yaml:"replicate"`
	WordPress     WordPressConfig      `yaml:"wordpress"`
	Notifications NotificationConfig   `yaml:"notifications"`
	Redis         RedisConfig          `yaml:"redis"`
	Paths         PathsConfig          `yaml:"paths"`
	Outlines      OutlineConfig        `yaml:"outlines"`
	Images        ImageConfig          `yaml:"images"`
	Submit        StageConfig          `yaml:"submit"`
	Publish       StageConfig          `yaml:"publish"`
	Prompts       PromptsConfig        `yaml:"prompts"`
	Categories    map[string]int64     `yaml:"categories"`
	Flair         map[string]string    `yaml:"flair"`
	Persona       domain.AuthorPersona `yaml:"defaultPersona"`
	AuthorsFile   string               `yaml:"authorsFile"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig describes the record store connection.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// SchedulerConfig holds one cron spec per stage; an empty spec disables it.
type SchedulerConfig struct {
	Timezone string         `yaml:"timezone"`
	Outlines string         `yaml:"outlines"`
	Submit   string         `yaml:"submit"`
	Ingest   string         `yaml:"ingest"`
	Images   string         `yaml:"images"`
	Publish  string         `yaml:"publish"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// AnthropicConfig defines how to reach the message batches API.
type AnthropicConfig struct {
	Endpoint    string  `yaml:"endpoint" validate:"required,url"`
	APIKey      string  `yaml:"apiKey"`
	Version     string  `yaml:"version"`
	Model       string  `yaml:"model" validate:"required"`
	MaxTokens   int     `yaml:"maxTokens" validate:"gt=0"`
	Temperature float64 `yaml:"temperature"`
}

// OpenAIConfig defines the chat completions endpoint used for outlines.
type OpenAIConfig struct {
	Endpoint    string  `yaml:"endpoint" validate:"required,url"`
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model" validate:"required"`
	MaxTokens   int     `yaml:"maxTokens" validate:"gt=0"`
	Temperature float64 `yaml:"temperature"`
	Brand       string  `yaml:"brand"`
}

// ReplicateConfig describes the image prediction API.
type ReplicateConfig struct {
	Endpoint    string `yaml:"endpoint" validate:"required,url"`
	APIToken    string `yaml:"apiToken"`
	Model       string `yaml:"model" validate:"required"`
	AspectRatio string `yaml:"aspectRatio"`
}

// WordPressConfig holds the CMS REST credentials.
type WordPressConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	User        string `yaml:"user"`
	AppPassword string `yaml:"appPassword"`
	SEOPath     string `yaml:"seoPath"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// RedisConfig enables the shared outline cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PathsConfig is the pipeline's filesystem layout.
type PathsConfig struct {
	BatchIDFile      string `yaml:"batchIdFile"`
	DebugDir         string `yaml:"debugDir"`
	ImageDir         string `yaml:"imageDir"`
	OutlineCacheFile string `yaml:"outlineCacheFile"`
}

// OutlineConfig bounds the outline fan-out.
type OutlineConfig struct {
	Days           int           `yaml:"days" validate:"gte=0"`
	PerDay         int           `yaml:"perDay" validate:"gte=0"`
	Concurrency    int           `yaml:"concurrency" validate:"gte=0"`
	PerCallTimeout time.Duration `yaml:"perCallTimeout"`
	OverallTimeout time.Duration `yaml:"overallTimeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	BackoffBase    time.Duration `yaml:"backoffBase"`
	BackoffStep    time.Duration `yaml:"backoffStep"`
}

// ImageConfig controls prompt constraints and prediction polling.
type ImageConfig struct {
	Constraints  string        `yaml:"constraints"`
	Marker       string        `yaml:"marker"`
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxWait      time.Duration `yaml:"maxWait"`
	Limit        int           `yaml:"limit"`
}

// StageConfig caps how many records one run handles; zero means no cap.
type StageConfig struct {
	Limit        int           `yaml:"limit"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// PromptsConfig points at the generation prompt text.
type PromptsConfig struct {
	SystemFile   string `yaml:"systemFile"`
	System       string `yaml:"system"`
	Instructions string `yaml:"instructions"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.loadSystemPrompt()

	return cfg
}

// ReadFile decodes one YAML config file without defaults.
func ReadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setFromEnv(&c.Database.DSN, databaseDSNEnv)
	setFromEnv(&c.Database.Driver, databaseDriverEnv)
	setFromEnv(&c.Anthropic.APIKey, anthropicAPIKeyEnv)
	setFromEnv(&c.OpenAI.APIKey, openAIAPIKeyEnv)
	setFromEnv(&c.Replicate.APIToken, replicateTokenEnv)
	setFromEnv(&c.WordPress.BaseURL, wordpressURLEnv)
	setFromEnv(&c.WordPress.User, wordpressUserEnv)
	setFromEnv(&c.WordPress.AppPassword, wordpressPassEnv)
	setFromEnv(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setFromEnv(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)
	setFromEnv(&c.Redis.Addr, redisAddrEnv)
	setFromEnv(&c.Logging.Level, logLevelEnv)
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func (c *Config) loadSystemPrompt() {
	if c.Prompts.SystemFile == "" || c.Prompts.System != "" {
		return
	}
	raw, err := os.ReadFile(c.Prompts.SystemFile)
	if err != nil {
		log.Printf("config: cannot read system prompt %s: %v", c.Prompts.SystemFile, err)
		return
	}
	c.Prompts.System = string(raw)
}

func mergeConfig(base, override Config) Config {
	mergeString(&base.Logging.Level, override.Logging.Level)
	mergeString(&base.Logging.Format, override.Logging.Format)

	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
		base.Database.Driver = override.Database.Driver
	}
	if base.Database.Driver == "" {
		base.Database.Driver = "sqlite"
	}

	mergeString(&base.Scheduler.Timezone, override.Scheduler.Timezone)
	mergeString(&base.Scheduler.Outlines, override.Scheduler.Outlines)
	mergeString(&base.Scheduler.Submit, override.Scheduler.Submit)
	mergeString(&base.Scheduler.Ingest, override.Scheduler.Ingest)
	mergeString(&base.Scheduler.Images, override.Scheduler.Images)
	mergeString(&base.Scheduler.Publish, override.Scheduler.Publish)

	mergeString(&base.Anthropic.Endpoint, override.Anthropic.Endpoint)
	mergeString(&base.Anthropic.APIKey, override.Anthropic.APIKey)
	mergeString(&base.Anthropic.Version, override.Anthropic.Version)
	mergeString(&base.Anthropic.Model, override.Anthropic.Model)
	mergeInt(&base.Anthropic.MaxTokens, override.Anthropic.MaxTokens)
	mergeFloat(&base.Anthropic.Temperature, override.Anthropic.Temperature)

	mergeString(&base.OpenAI.Endpoint, override.OpenAI.Endpoint)
	mergeString(&base.OpenAI.APIKey, override.OpenAI.APIKey)
	mergeString(&base.OpenAI.Model, override.OpenAI.Model)
	mergeInt(&base.OpenAI.MaxTokens, override.OpenAI.MaxTokens)
	mergeFloat(&base.OpenAI.Temperature, override.OpenAI.Temperature)
	mergeString(&base.OpenAI.Brand, override.OpenAI.Brand)

	mergeString(&base.Replicate.Endpoint, override.Replicate.Endpoint)
	mergeString(&base.Replicate.APIToken, override.Replicate.APIToken)
	mergeString(&base.Replicate.Model, override.Replicate.Model)
	mergeString(&base.Replicate.AspectRatio, override.Replicate.AspectRatio)

	mergeString(&base.WordPress.BaseURL, override.WordPress.BaseURL)
	mergeString(&base.WordPress.User, override.WordPress.User)
	mergeString(&base.WordPress.AppPassword, override.WordPress.AppPassword)
	mergeString(&base.WordPress.SEOPath, override.WordPress.SEOPath)

	mergeString(&base.Notifications.Telegram.BotToken, override.Notifications.Telegram.BotToken)
	mergeString(&base.Notifications.Telegram.ChatID, override.Notifications.Telegram.ChatID)

	mergeString(&base.Redis.Addr, override.Redis.Addr)
	mergeString(&base.Redis.Password, override.Redis.Password)
	mergeInt(&base.Redis.DB, override.Redis.DB)
	mergeDuration(&base.Redis.TTL, override.Redis.TTL)

	mergeString(&base.Paths.BatchIDFile, override.Paths.BatchIDFile)
	mergeString(&base.Paths.DebugDir, override.Paths.DebugDir)
	mergeString(&base.Paths.ImageDir, override.Paths.ImageDir)
	mergeString(&base.Paths.OutlineCacheFile, override.Paths.OutlineCacheFile)

	mergeInt(&base.Outlines.Days, override.Outlines.Days)
	mergeInt(&base.Outlines.PerDay, override.Outlines.PerDay)
	mergeInt(&base.Outlines.Concurrency, override.Outlines.Concurrency)
	mergeDuration(&base.Outlines.PerCallTimeout, override.Outlines.PerCallTimeout)
	mergeDuration(&base.Outlines.OverallTimeout, override.Outlines.OverallTimeout)
	mergeInt(&base.Outlines.MaxRetries, override.Outlines.MaxRetries)
	mergeDuration(&base.Outlines.BackoffBase, override.Outlines.BackoffBase)
	mergeDuration(&base.Outlines.BackoffStep, override.Outlines.BackoffStep)

	mergeString(&base.Images.Constraints, override.Images.Constraints)
	mergeString(&base.Images.Marker, override.Images.Marker)
	mergeDuration(&base.Images.PollInterval, override.Images.PollInterval)
	mergeDuration(&base.Images.MaxWait, override.Images.MaxWait)
	mergeInt(&base.Images.Limit, override.Images.Limit)

	mergeInt(&base.Submit.Limit, override.Submit.Limit)
	mergeDuration(&base.Submit.PollInterval, override.Submit.PollInterval)
	mergeInt(&base.Publish.Limit, override.Publish.Limit)

	mergeString(&base.Prompts.SystemFile, override.Prompts.SystemFile)
	mergeString(&base.Prompts.System, override.Prompts.System)
	mergeString(&base.Prompts.Instructions, override.Prompts.Instructions)

	for slug, id := range override.Categories {
		base.Categories[slug] = id
	}
	for name, desc := range override.Flair {
		base.Flair[name] = desc
	}

	if override.Persona.Name != "" {
		base.Persona = override.Persona
	}
	mergeString(&base.AuthorsFile, override.AuthorsFile)

	return base
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:content.db?_pragma=busy_timeout(5000)"},
		Scheduler: SchedulerConfig{
			Timezone: defaultTimezone,
			Outlines: "0 5 * * *",
			Submit:   "30 5 * * *",
			Ingest:   "*/15 * * * *",
			Images:   "0 * * * *",
			Publish:  "30 * * * *",
			location: tz,
		},
		Anthropic: AnthropicConfig{
			Endpoint:    "https://api.anthropic.com/v1/messages/batches",
			Version:     "2023-06-01",
			Model:       "claude-3-opus-20240229",
			MaxTokens:   4096,
			Temperature: 0.5,
		},
		OpenAI: OpenAIConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-3.5-turbo",
			MaxTokens:   500,
			Temperature: 0.7,
			Brand:       defaultOutlineBrand,
		},
		Replicate: ReplicateConfig{
			Endpoint:    "https://api.replicate.com/v1",
			Model:       "black-forest-labs/flux-schnell",
			AspectRatio: "16:9",
		},
		WordPress: WordPressConfig{SEOPath: "/wp-json/yardbonita/v1/yoast-meta"},
		Redis:     RedisConfig{TTL: 30 * 24 * time.Hour},
		Paths: PathsConfig{
			BatchIDFile:      "batch_id.txt",
			DebugDir:         "debug_payloads",
			ImageDir:         "images",
			OutlineCacheFile: "outline_cache.json",
		},
		Outlines: OutlineConfig{
			Days:           1,
			PerDay:         5,
			Concurrency:    1,
			PerCallTimeout: 30 * time.Second,
			OverallTimeout: 600 * time.Second,
			MaxRetries:     5,
			BackoffBase:    10 * time.Second,
			BackoffStep:    5 * time.Second,
		},
		Images: ImageConfig{
			Constraints:  defaultImageRules,
			PollInterval: 2 * time.Second,
			MaxWait:      5 * time.Minute,
		},
		Submit:     StageConfig{PollInterval: 120 * time.Second},
		Categories: map[string]int64{},
		Flair: map[string]string{
			"pro_tip_flags":   "Short, bolded pro tips called out inline.",
			"local_reference": "Mentions of local landmarks, climate or regional conditions.",
			"anecdote":        "A brief first-person story from the author's own yard work.",
			"myth_busting":    "Correcting a common misconception with a clear explanation.",
		},
		Persona: domain.AuthorPersona{
			Slug:      "gilbert",
			Name:      "Gilbert",
			City:      "Phoenix",
			Specialty: "Seasonal Yard Care",
			Tone:      "Natural and helpful",
		},
	}
}
