package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
//
// Optional subsystems are enabled by the presence of their settings:
// DB_HOST enables the call archive, REDIS_HOST the notification guard,
// JWT_SECRET the admin API, TWILIO_ACCOUNT_SID outbound calls, OPENAI_API_KEY the real LLM.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Twilio    TwilioConfig
	OpenAI    OpenAIConfig
	Assistant AssistantConfig
	Session   SessionConfig
	Notify    NotifyConfig
}

type AppConfig struct {
	Env  string
	Port int

	// MetricsNamespace prefixes all prometheus instruments.
	MetricsNamespace string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int

	// GuardTTL bounds how long a notification claim is remembered.
	GuardTTL time.Duration
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AdminAPIKey gates token issuance.
	AdminAPIKey string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// PublicBaseURL is the externally reachable base of this service,
	// used for Gather actions, Redirects and outbound call webhooks.
	PublicBaseURL string
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type AssistantConfig struct {
	DefaultLanguage string
	SystemPromptEN  string
	SystemPromptES  string
	VoiceEN         string
	VoiceES         string

	// FarewellTokensEN/ES replace the built-in farewell vocabulary when set.
	FarewellTokensEN []string
	FarewellTokensES []string

	// HistoryWindow is the number of prior turns sent to the LLM.
	HistoryWindow int
	ListenTimeout time.Duration
}

type SessionConfig struct {
	IdleTimeout     time.Duration
	EvictionGrace   time.Duration
	TombstoneTTL    time.Duration
	JanitorInterval time.Duration
}

type NotifyConfig struct {
	// Mode is a "+"-separated list of: log, graph, webhook.
	Mode          string
	SubjectPrefix string
	Timeout       time.Duration
	Summarize     bool
	Offload       bool

	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	MailFrom          string
	MailTo            string

	WebhookURL string
}

const (
	defaultSystemPromptEN = "You are a professional, polite and helpful AI receptionist for a property management company. Help callers with maintenance, lease and rent questions. Ask one question at a time and keep answers short enough to be spoken on the phone."
	defaultSystemPromptES = "Eres un recepcionista de IA profesional, cortés y servicial para una empresa de administración de propiedades. Ayuda con mantenimiento, contratos de arrendamiento y pagos de renta. Haz una pregunta a la vez y responde de forma breve."
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", "phone_assistant")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.GuardTTL = mustDuration("REDIS_GUARD_TTL")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.AdminAPIKey = os.Getenv("ADMIN_API_KEY")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.OpenAI.Model = envOrDefault("OPENAI_MODEL", "gpt-4o")
	c.OpenAI.Timeout = mustDuration("OPENAI_TIMEOUT")
	{
		f, err := floatOr("OPENAI_TEMPERATURE", 0.6)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.OpenAI.Temperature = f
	}
	{
		n, err := intOr("OPENAI_MAX_TOKENS", 180)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.OpenAI.MaxTokens = n
	}

	c.Assistant.DefaultLanguage = envOrDefault("ASSISTANT_DEFAULT_LANGUAGE", "en")
	c.Assistant.SystemPromptEN = envOrDefault("ASSISTANT_SYSTEM_PROMPT_EN", defaultSystemPromptEN)
	c.Assistant.SystemPromptES = envOrDefault("ASSISTANT_SYSTEM_PROMPT_ES", defaultSystemPromptES)
	c.Assistant.VoiceEN = envOrDefault("ASSISTANT_VOICE_EN", "Polly.Joanna")
	c.Assistant.VoiceES = envOrDefault("ASSISTANT_VOICE_ES", "Polly.Conchita")
	c.Assistant.FarewellTokensEN = listFromEnv("FAREWELL_TOKENS_EN")
	c.Assistant.FarewellTokensES = listFromEnv("FAREWELL_TOKENS_ES")
	{
		n, err := intOr("ASSISTANT_HISTORY_WINDOW", 10)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Assistant.HistoryWindow = n
	}
	c.Assistant.ListenTimeout = mustDuration("ASSISTANT_LISTEN_TIMEOUT")

	c.Session.IdleTimeout = mustDuration("SESSION_IDLE_TIMEOUT")
	c.Session.EvictionGrace = mustDuration("SESSION_EVICTION_GRACE")
	c.Session.TombstoneTTL = mustDuration("SESSION_TOMBSTONE_TTL")
	c.Session.JanitorInterval = mustDuration("SESSION_JANITOR_INTERVAL")

	c.Notify.Mode = strings.ToLower(strings.TrimSpace(os.Getenv("NOTIFY_MODE")))
	c.Notify.SubjectPrefix = envOrDefault("NOTIFY_SUBJECT_PREFIX", "Tenant Call Summary")
	c.Notify.Timeout = mustDuration("NOTIFY_TIMEOUT")
	{
		b, err := boolOr("NOTIFY_SUMMARIZE", true)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Notify.Summarize = b
	}
	{
		b, err := boolOr("NOTIFY_OFFLOAD", true)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Notify.Offload = b
	}
	c.Notify.GraphTenantID = strings.TrimSpace(os.Getenv("MS365_TENANT_ID"))
	c.Notify.GraphClientID = strings.TrimSpace(os.Getenv("MS365_CLIENT_ID"))
	c.Notify.GraphClientSecret = os.Getenv("MS365_CLIENT_SECRET")
	c.Notify.MailFrom = strings.TrimSpace(os.Getenv("EMAIL_FROM"))
	c.Notify.MailTo = strings.TrimSpace(os.Getenv("EMAIL_TO"))
	c.Notify.WebhookURL = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required settings and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.MetricsNamespace == "" {
		c.App.MetricsNamespace = "phone_assistant"
	}

	if c.DBEnabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if strings.TrimSpace(c.DB.SSLMode) == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.RedisEnabled() {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}
	if c.Redis.GuardTTL <= 0 {
		c.Redis.GuardTTL = 24 * time.Hour
	}

	if c.AdminEnabled() {
		if c.IsProduction() {
			if c.Auth.JWTIssuer == "" {
				errs = append(errs, errors.New("JWT_ISSUER is required in production"))
			}
			if c.Auth.JWTAudience == "" {
				errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
			}
		}
		if c.Auth.AccessTokenTTL <= 0 {
			c.Auth.AccessTokenTTL = 15 * time.Minute
		}
		if c.Auth.RefreshTokenTTL <= 0 {
			c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
		}
		if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
			errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
		}
	}

	if c.OutboundEnabled() {
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when TWILIO_ACCOUNT_SID is set"))
		}
		if c.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required when TWILIO_ACCOUNT_SID is set"))
		}
		if c.Twilio.PublicBaseURL == "" {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required when TWILIO_ACCOUNT_SID is set"))
		}
	}

	if c.OpenAI.Timeout <= 0 {
		// Telephony webhooks expect an answer within single-digit seconds.
		c.OpenAI.Timeout = 6 * time.Second
	}
	if c.OpenAI.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("OPENAI_MAX_TOKENS must be positive, got %d", c.OpenAI.MaxTokens))
	}

	switch c.Assistant.DefaultLanguage {
	case "en", "es":
	default:
		errs = append(errs, fmt.Errorf("ASSISTANT_DEFAULT_LANGUAGE must be one of en, es, got %q", c.Assistant.DefaultLanguage))
	}
	if c.Assistant.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("ASSISTANT_HISTORY_WINDOW must be >= 0, got %d", c.Assistant.HistoryWindow))
	}
	if c.Assistant.ListenTimeout <= 0 {
		c.Assistant.ListenTimeout = 5 * time.Second
	}

	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = 10 * time.Minute
	}
	if c.Session.EvictionGrace <= 0 {
		c.Session.EvictionGrace = 2 * time.Minute
	}
	if c.Session.TombstoneTTL <= 0 {
		c.Session.TombstoneTTL = time.Hour
	}
	if c.Session.JanitorInterval <= 0 {
		c.Session.JanitorInterval = 15 * time.Second
	}

	if c.Notify.Mode == "" {
		c.Notify.Mode = "log"
	}
	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	for _, m := range c.NotifyModes() {
		switch m {
		case "log":
		case "graph":
			if c.Notify.GraphTenantID == "" || c.Notify.GraphClientID == "" || c.Notify.GraphClientSecret == "" {
				errs = append(errs, errors.New("MS365_TENANT_ID, MS365_CLIENT_ID and MS365_CLIENT_SECRET are required for NOTIFY_MODE graph"))
			}
			if c.Notify.MailFrom == "" || c.Notify.MailTo == "" {
				errs = append(errs, errors.New("EMAIL_FROM and EMAIL_TO are required for NOTIFY_MODE graph"))
			}
		case "webhook":
			if c.Notify.WebhookURL == "" {
				errs = append(errs, errors.New("NOTIFY_WEBHOOK_URL is required for NOTIFY_MODE webhook"))
			}
		default:
			errs = append(errs, fmt.Errorf("NOTIFY_MODE entries must be log, graph or webhook, got %q", m))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) DBEnabled() bool       { return c.DB.Host != "" }
func (c Config) RedisEnabled() bool    { return c.Redis.Host != "" }
func (c Config) AdminEnabled() bool    { return c.Auth.JWTSecret != "" }
func (c Config) OutboundEnabled() bool { return c.Twilio.AccountSID != "" }
func (c Config) LLMEnabled() bool      { return c.OpenAI.APIKey != "" }

// NotifyModes splits NOTIFY_MODE ("graph+webhook") into its entries.
func (c Config) NotifyModes() []string {
	var out []string
	for _, m := range strings.Split(c.Notify.Mode, "+") {
		m = strings.TrimSpace(m)
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func intOr(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func floatOr(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func boolOr(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return fallback, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// listFromEnv splits a comma-separated variable, dropping blanks. Unset yields nil.
func listFromEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
