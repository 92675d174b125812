package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"
)

const sampleYAML = `
logging:
  format: json
database:
  driver: postgres
  dsn: postgres://u:p@localhost/content
scheduler:
  timezone: America/Phoenix
  images: ""
outlines:
  concurrency: 3
  overallTimeout: 90s
images:
  pollInterval: 500ms
categories:
  lawn-care: 12
flair:
  anecdote: Short personal story.
defaultPersona:
  name: Rosa Vega
  city: Tucson
  specialty: Native Plants
  tone: Friendly
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv(configPathEnv, writeConfig(t, sampleYAML))
	t.Setenv(anthropicAPIKeyEnv, "sk-ant")
	t.Setenv(logLevelEnv, "debug")

	cfg := Load()

	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://u:p@localhost/content" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Anthropic.APIKey != "sk-ant" || cfg.Anthropic.MaxTokens != 4096 {
		t.Fatalf("anthropic = %+v", cfg.Anthropic)
	}
	if cfg.Outlines.Concurrency != 3 || cfg.Outlines.PerDay != 5 || cfg.Outlines.OverallTimeout != 90*time.Second {
		t.Fatalf("outlines = %+v", cfg.Outlines)
	}
	if cfg.Images.PollInterval != 500*time.Millisecond || cfg.Images.Constraints == "" {
		t.Fatalf("images = %+v", cfg.Images)
	}
	if cfg.Categories["lawn-care"] != 12 {
		t.Fatalf("categories = %v", cfg.Categories)
	}
	if cfg.Flair["anecdote"] != "Short personal story." || cfg.Flair["pro_tip_flags"] == "" {
		t.Fatalf("flair = %v", cfg.Flair)
	}
	if cfg.Persona.Name != "Rosa Vega" {
		t.Fatalf("persona = %+v", cfg.Persona)
	}
	if cfg.Scheduler.Location().String() != "America/Phoenix" {
		t.Fatalf("timezone = %s", cfg.Scheduler.Location())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFallsBackOnBrokenFile(t *testing.T) {
	t.Setenv(configPathEnv, writeConfig(t, "database: [unterminated"))

	cfg := Load()
	if cfg.Database.Driver != "sqlite" || cfg.Persona.Name != "Gilbert" {
		t.Fatalf("defaults not used: %+v", cfg.Database)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("timezone = %s", cfg.Scheduler.Location())
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSystemPromptFile(t *testing.T) {
	dir := t.TempDir()
	prompt := filepath.Join(dir, "system.txt")
	if err := os.WriteFile(prompt, []byte("You are a yard care writer."), 0o600); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	t.Setenv(configPathEnv, writeConfig(t, "prompts:\n  systemFile: "+prompt+"\n"))

	if got := Load().Prompts.System; got != "You are a yard care writer." {
		t.Fatalf("system prompt = %q", got)
	}
}
