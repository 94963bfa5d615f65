package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig() Config {
	return Config{
		App:       AppConfig{Env: "local", Port: 8080},
		OpenAI:    OpenAIConfig{MaxTokens: 180},
		Assistant: AssistantConfig{DefaultLanguage: "en", HistoryWindow: 10},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_MinimalLocalAppliesDefaults(t *testing.T) {
	c := baseConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Notify.Mode != "log" {
		t.Fatalf("expected notify mode log, got %q", c.Notify.Mode)
	}
	if c.OpenAI.Timeout != 6*time.Second {
		t.Fatalf("expected 6s llm timeout, got %s", c.OpenAI.Timeout)
	}
	if c.Session.IdleTimeout <= 0 || c.Session.EvictionGrace <= 0 || c.Session.JanitorInterval <= 0 {
		t.Fatalf("expected session defaults, got %+v", c.Session)
	}
	if c.DBEnabled() || c.RedisEnabled() || c.AdminEnabled() || c.OutboundEnabled() || c.LLMEnabled() {
		t.Fatalf("expected optional subsystems disabled")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := baseConfig()
	c.App.Env = "production"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "assistant", SSLMode: ""}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := baseConfig()
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "assistant", SSLMode: ""}
	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	c.Auth = AuthConfig{JWTSecret: "secret"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_RejectsUnsupportedLanguage(t *testing.T) {
	c := baseConfig()
	c.Assistant.DefaultLanguage = "fr"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unsupported default language")
	}
}

func TestValidate_GraphModeRequiresCredentials(t *testing.T) {
	c := baseConfig()
	c.Notify.Mode = "graph+webhook"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for graph mode without credentials")
	}
	if !strings.Contains(err.Error(), "MS365_TENANT_ID") || !strings.Contains(err.Error(), "NOTIFY_WEBHOOK_URL") {
		t.Fatalf("expected graph and webhook errors, got %v", err)
	}
}

func TestValidate_OutboundRequiresTwilioSettings(t *testing.T) {
	c := baseConfig()
	c.Twilio.AccountSID = "AC123"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for outbound without auth token")
	}
}

func TestNotifyModes_SplitsAndTrims(t *testing.T) {
	c := Config{Notify: NotifyConfig{Mode: " graph + webhook+"}}
	got := c.NotifyModes()
	if len(got) != 2 || got[0] != "graph" || got[1] != "webhook" {
		t.Fatalf("unexpected modes %v", got)
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("ASSISTANT_DEFAULT_LANGUAGE", "es")
	t.Setenv("SESSION_IDLE_TIMEOUT", "3m")
	t.Setenv("NOTIFY_OFFLOAD", "false")
	t.Setenv("FAREWELL_TOKENS_ES", " chao, hasta luego ,,")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected addr %q", c.HTTPAddr())
	}
	if c.Assistant.DefaultLanguage != "es" {
		t.Fatalf("expected es default, got %q", c.Assistant.DefaultLanguage)
	}
	if c.Session.IdleTimeout != 3*time.Minute {
		t.Fatalf("expected 3m idle timeout, got %s", c.Session.IdleTimeout)
	}
	if c.Notify.Offload {
		t.Fatalf("expected offload disabled")
	}
	if got := c.Assistant.FarewellTokensES; len(got) != 2 || got[0] != "chao" || got[1] != "hasta luego" {
		t.Fatalf("unexpected es farewell tokens %q", got)
	}
	if c.Assistant.FarewellTokensEN != nil {
		t.Fatalf("expected unset en farewell tokens, got %q", c.Assistant.FarewellTokensEN)
	}
}
