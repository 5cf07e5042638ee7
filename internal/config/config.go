// Package config loads the bot configuration.
//
// Sources, highest precedence first: environment variables, the YAML file
// passed with --config, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in defaults.
const (
	DefaultSystemPrompt        = "You are a helpful chatbot"
	DefaultTemperature         = 0.7
	DefaultEmitThreshold       = 40
	DefaultEditPaceMS          = 30
	DefaultChatTimeoutSeconds  = 10
	DefaultImageTimeoutSeconds = 25
)

// BotConfig holds configuration for the chat bot process.
type BotConfig struct {
	Commander     string `yaml:"commander"`
	ModelProvider string `yaml:"model_provider"`
	ImageProvider string `yaml:"image_provider"`

	TelegramToken   string `yaml:"telegram_bot_token"`
	TelegramAPIBase string `yaml:"telegram_api_base"`
	Timeout         int    `yaml:"tg_timeout"`
	SleepSeconds    int    `yaml:"tg_sleep_seconds"`
	DropPending     bool   `yaml:"tg_drop_pending"`

	PendingWindowSeconds int64 `yaml:"tg_pending_window_seconds"`
	PendingMaxMessages   int   `yaml:"tg_pending_max_messages"`

	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	OpenAIModel      string `yaml:"openai_model"`
	OpenAIImageModel string `yaml:"openai_image_model"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	AnthropicModel   string `yaml:"anthropic_model"`

	SystemPrompt        string  `yaml:"system_prompt"`
	Temperature         float64 `yaml:"model_temperature"`
	EmitThreshold       int     `yaml:"emit_threshold"`
	EditPaceMS          int     `yaml:"edit_pace_ms"`
	ChatTimeoutSeconds  int     `yaml:"chat_timeout_seconds"`
	ImageTimeoutSeconds int     `yaml:"image_timeout_seconds"`

	SessionStore      string `yaml:"session_store"`
	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	RedisDB           int    `yaml:"redis_db"`
	BoltPath          string `yaml:"bolt_path"`
	SessionTTLSeconds int    `yaml:"session_ttl_seconds"`
	ContextMaxTurns   int    `yaml:"context_max_turns"`
	SerializeSameUser bool   `yaml:"serialize_same_user"`

	DBPath   string `yaml:"db_path"`
	ImageDir string `yaml:"image_dir"`

	LogLevel    string `yaml:"log_level"`
	LogPretty   bool   `yaml:"log_pretty"`
	MetricsAddr string `yaml:"metrics_addr"`

	DummyProviderScript  string `yaml:"dummy_provider_script"`
	DummyCommanderScript string `yaml:"dummy_commander_script"`
	DummySendScript      string `yaml:"dummy_send_script"`
	DummyEditScript      string `yaml:"dummy_edit_script"`
	DummyImageScript     string `yaml:"dummy_image_script"`
	DummyImageURL        string `yaml:"dummy_image_url"`
}

// DefaultBotConfig returns the built-in defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Commander:            "telegram",
		ModelProvider:        "openai",
		ImageProvider:        "openai",
		Timeout:              30,
		SleepSeconds:         1,
		DropPending:          true,
		PendingWindowSeconds: 600,
		PendingMaxMessages:   50,
		OpenAIModel:          "gpt-4o-mini",
		OpenAIImageModel:     "dall-e-2",
		AnthropicModel:       "claude-sonnet-4-20250514",
		SystemPrompt:         DefaultSystemPrompt,
		Temperature:          DefaultTemperature,
		EmitThreshold:        DefaultEmitThreshold,
		EditPaceMS:           DefaultEditPaceMS,
		ChatTimeoutSeconds:   DefaultChatTimeoutSeconds,
		ImageTimeoutSeconds:  DefaultImageTimeoutSeconds,
		SessionStore:         "redis",
		RedisAddr:            "localhost:6379",
		BoltPath:             "/state/sessions.db",
		DBPath:               "/state/chatbot.db",
		ImageDir:             "/state/images",
		LogLevel:             "info",
		DummyProviderScript:  "ok",
		DummyCommanderScript: "ok",
		DummySendScript:      "ok",
		DummyEditScript:      "ok",
		DummyImageScript:     "ok",
	}
}

// LoadBotConfig reads the optional YAML file at path, applies environment
// overrides and validates the result.
func LoadBotConfig(path string) (BotConfig, error) {
	cfg, err := ReadBotConfig(path)
	if err != nil {
		return BotConfig{}, err
	}
	if err := cfg.validate(); err != nil {
		return BotConfig{}, err
	}
	return cfg, nil
}

// ReadBotConfig is LoadBotConfig without validation. Offline tools use it
// to find paths when no credentials are configured.
func ReadBotConfig(path string) (BotConfig, error) {
	cfg := DefaultBotConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return BotConfig{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return BotConfig{}, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.TelegramAPIBase == "" {
		cfg.TelegramAPIBase = fmt.Sprintf("https://api.telegram.org/bot%s", cfg.TelegramToken)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *BotConfig) {
	cfg.Commander = envOrDefault("COMMANDER", cfg.Commander)
	cfg.ModelProvider = envOrDefault("MODEL_PROVIDER", cfg.ModelProvider)
	cfg.ImageProvider = envOrDefault("IMAGE_PROVIDER", cfg.ImageProvider)

	cfg.TelegramToken = envOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramToken)
	cfg.TelegramAPIBase = envOrDefault("TELEGRAM_API_BASE", cfg.TelegramAPIBase)
	cfg.Timeout = envIntOrDefault("TG_TIMEOUT", cfg.Timeout)
	cfg.SleepSeconds = envIntOrDefault("TG_SLEEP_SECONDS", cfg.SleepSeconds)
	cfg.DropPending = envBoolOrDefault("TG_DROP_PENDING", cfg.DropPending)
	cfg.PendingWindowSeconds = int64(envIntOrDefault("TG_PENDING_WINDOW_SECONDS", int(cfg.PendingWindowSeconds)))
	cfg.PendingMaxMessages = envIntOrDefault("TG_PENDING_MAX_MESSAGES", cfg.PendingMaxMessages)

	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIImageModel = envOrDefault("OPENAI_IMAGE_MODEL", cfg.OpenAIImageModel)
	cfg.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicBaseURL = envOrDefault("ANTHROPIC_BASE_URL", cfg.AnthropicBaseURL)
	cfg.AnthropicModel = envOrDefault("ANTHROPIC_MODEL", cfg.AnthropicModel)

	cfg.SystemPrompt = envOrDefault("SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.Temperature = envFloatOrDefault("MODEL_TEMPERATURE", cfg.Temperature)
	cfg.EmitThreshold = envIntOrDefault("EMIT_THRESHOLD", cfg.EmitThreshold)
	cfg.EditPaceMS = envIntOrDefault("EDIT_PACE_MS", cfg.EditPaceMS)
	cfg.ChatTimeoutSeconds = envIntOrDefault("CHAT_TIMEOUT_SECONDS", cfg.ChatTimeoutSeconds)
	cfg.ImageTimeoutSeconds = envIntOrDefault("IMAGE_TIMEOUT_SECONDS", cfg.ImageTimeoutSeconds)

	cfg.SessionStore = envOrDefault("SESSION_STORE", cfg.SessionStore)
	cfg.RedisAddr = envOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envIntOrDefault("REDIS_DB", cfg.RedisDB)
	cfg.BoltPath = envOrDefault("BOLT_PATH", cfg.BoltPath)
	cfg.SessionTTLSeconds = envIntOrDefault("SESSION_TTL_SECONDS", cfg.SessionTTLSeconds)
	cfg.ContextMaxTurns = envIntOrDefault("CONTEXT_MAX_TURNS", cfg.ContextMaxTurns)
	cfg.SerializeSameUser = envBoolOrDefault("SERIALIZE_SAME_USER", cfg.SerializeSameUser)

	cfg.DBPath = envOrDefault("DB_PATH", cfg.DBPath)
	cfg.ImageDir = envOrDefault("IMAGE_DIR", cfg.ImageDir)

	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = envBoolOrDefault("LOG_PRETTY", cfg.LogPretty)
	cfg.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.MetricsAddr)

	cfg.DummyProviderScript = envOrDefault("DUMMY_PROVIDER_SCRIPT", cfg.DummyProviderScript)
	cfg.DummyCommanderScript = envOrDefault("DUMMY_COMMANDER_SCRIPT", cfg.DummyCommanderScript)
	cfg.DummySendScript = envOrDefault("DUMMY_COMMANDER_SEND_SCRIPT", cfg.DummySendScript)
	cfg.DummyEditScript = envOrDefault("DUMMY_COMMANDER_EDIT_SCRIPT", cfg.DummyEditScript)
	cfg.DummyImageScript = envOrDefault("DUMMY_IMAGE_SCRIPT", cfg.DummyImageScript)
	cfg.DummyImageURL = envOrDefault("DUMMY_IMAGE_URL", cfg.DummyImageURL)
}

func (c BotConfig) validate() error {
	if err := oneOf("COMMANDER", c.Commander, "telegram", "dummy"); err != nil {
		return err
	}
	if err := oneOf("MODEL_PROVIDER", c.ModelProvider, "openai", "anthropic", "dummy"); err != nil {
		return err
	}
	if err := oneOf("IMAGE_PROVIDER", c.ImageProvider, "openai", "dummy", "none"); err != nil {
		return err
	}
	if err := oneOf("SESSION_STORE", c.SessionStore, "redis", "bolt"); err != nil {
		return err
	}

	if c.Commander == "telegram" && c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required in environment when COMMANDER=telegram")
	}
	if c.ModelProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in environment when MODEL_PROVIDER=openai")
	}
	if c.ImageProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in environment when IMAGE_PROVIDER=openai")
	}
	if c.ModelProvider == "anthropic" && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required in environment when MODEL_PROVIDER=anthropic")
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("invalid MODEL_TEMPERATURE: must be within [0, 2]")
	}
	if c.EmitThreshold <= 0 {
		return fmt.Errorf("invalid EMIT_THRESHOLD: must be > 0")
	}
	if c.EditPaceMS < 0 {
		return fmt.Errorf("invalid EDIT_PACE_MS: must be >= 0")
	}
	if c.ChatTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid CHAT_TIMEOUT_SECONDS: must be > 0")
	}
	if c.ImageTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid IMAGE_TIMEOUT_SECONDS: must be > 0")
	}
	if c.SessionTTLSeconds < 0 {
		return fmt.Errorf("invalid SESSION_TTL_SECONDS: must be >= 0")
	}
	if c.ContextMaxTurns < 0 {
		return fmt.Errorf("invalid CONTEXT_MAX_TURNS: must be >= 0")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid TG_TIMEOUT: must be >= 0")
	}
	return nil
}

// EditPace returns the pause after every applied edit.
func (c BotConfig) EditPace() time.Duration {
	return time.Duration(c.EditPaceMS) * time.Millisecond
}

// ChatTimeout returns the total bound on one model stream.
func (c BotConfig) ChatTimeout() time.Duration {
	return time.Duration(c.ChatTimeoutSeconds) * time.Second
}

// ImageTimeout returns the bound on one image generation.
func (c BotConfig) ImageTimeout() time.Duration {
	return time.Duration(c.ImageTimeoutSeconds) * time.Second
}

// SessionTTL returns the session retention. Zero means unbounded.
func (c BotConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be one of %s", key, v, strings.Join(allowed, ", "))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
