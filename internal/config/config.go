// Package config reads the runtime configuration from the environment.
// Every knob has a default that works for local development against an
// on-disk SQLite database.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	APIBaseURL  string
	DataDir     string
	DBPath      string
	PromptsDir  string

	LLMAPIKey            string
	LLMBaseURL           string
	LLMModel             string
	LLMFallbackModelsCSV string
	LLMEmbedModel        string
	LLMTimeoutSec        int

	RetrievalTopK      int
	ClarificationLimit int
	MaxReplyTokens     int
	CredentialToolsCSV string

	HandoffWebhookURL   string
	HandoffWebhookToken string
	HandoffTimeoutSec   int

	JobPollSec     int
	JobBatchSize   int
	JobConcurrency int
	JobMaxAttempts int

	TelegramToken string
	TelegramAPI   string
	TelegramPoll  int

	WhatsAppVerifyToken   string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppAPI           string

	SunshineAppID     string
	SunshineKeyID     string
	SunshineKeySecret string
	SunshineAPI       string

	SupportOpenHour        int
	SupportCloseHour       int
	SupportOpenSaturday    bool
	SessionIdleMinutes     int
	JobRetentionDays       int
	AnalyticsRetentionDays int
}

func FromEnv() Config {
	dataDir := stringOrDefault("DESTEK_DATA_DIR", "/data")

	return Config{
		Environment: stringOrDefault("DESTEK_ENV", "development"),
		HTTPAddr:    stringOrDefault("DESTEK_HTTP_ADDR", ":8080"),
		APIBaseURL:  stringOrDefault("DESTEK_API_URL", "http://127.0.0.1:8080"),
		DataDir:     dataDir,
		DBPath:      stringOrDefault("DESTEK_DB_PATH", filepath.Join(dataDir, "destek", "meta.sqlite")),
		PromptsDir:  stringOrDefault("DESTEK_PROMPTS_DIR", filepath.Join(dataDir, "destek", "prompts")),

		LLMAPIKey:            strings.TrimSpace(os.Getenv("DESTEK_LLM_API_KEY")),
		LLMBaseURL:           stringOrDefault("DESTEK_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:             stringOrDefault("DESTEK_LLM_MODEL", "gpt-4o-mini"),
		LLMFallbackModelsCSV: strings.TrimSpace(os.Getenv("DESTEK_LLM_FALLBACK_MODELS")),
		LLMEmbedModel:        stringOrDefault("DESTEK_LLM_EMBED_MODEL", "text-embedding-3-small"),
		LLMTimeoutSec:        intOrDefault("DESTEK_LLM_TIMEOUT_SECONDS", 15),

		RetrievalTopK:      intOrDefault("DESTEK_RETRIEVAL_TOP_K", 3),
		ClarificationLimit: intOrDefault("DESTEK_CLARIFICATION_LIMIT", 3),
		MaxReplyTokens:     intOrDefault("DESTEK_MAX_REPLY_TOKENS", 400),
		CredentialToolsCSV: stringOrDefault("DESTEK_CREDENTIAL_TOOLS", "anydesk,teamviewer,alpemix"),

		HandoffWebhookURL:   strings.TrimSpace(os.Getenv("DESTEK_HANDOFF_WEBHOOK_URL")),
		HandoffWebhookToken: os.Getenv("DESTEK_HANDOFF_WEBHOOK_TOKEN"),
		HandoffTimeoutSec:   intOrDefault("DESTEK_HANDOFF_TIMEOUT_SECONDS", 10),

		JobPollSec:     intOrDefault("DESTEK_JOB_POLL_SECONDS", 5),
		JobBatchSize:   intOrDefault("DESTEK_JOB_BATCH_SIZE", 20),
		JobConcurrency: intOrDefault("DESTEK_JOB_CONCURRENCY", 4),
		JobMaxAttempts: intOrDefault("DESTEK_JOB_MAX_ATTEMPTS", 5),

		TelegramToken: os.Getenv("DESTEK_TELEGRAM_TOKEN"),
		TelegramAPI:   stringOrDefault("DESTEK_TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramPoll:  intOrDefault("DESTEK_TELEGRAM_POLL_SECONDS", 25),

		WhatsAppVerifyToken:   strings.TrimSpace(os.Getenv("DESTEK_WHATSAPP_VERIFY_TOKEN")),
		WhatsAppAccessToken:   os.Getenv("DESTEK_WHATSAPP_ACCESS_TOKEN"),
		WhatsAppPhoneNumberID: strings.TrimSpace(os.Getenv("DESTEK_WHATSAPP_PHONE_NUMBER_ID")),
		WhatsAppAPI:           stringOrDefault("DESTEK_WHATSAPP_API_BASE", "https://graph.facebook.com/v19.0"),

		SunshineAppID:     strings.TrimSpace(os.Getenv("DESTEK_SUNSHINE_APP_ID")),
		SunshineKeyID:     strings.TrimSpace(os.Getenv("DESTEK_SUNSHINE_KEY_ID")),
		SunshineKeySecret: os.Getenv("DESTEK_SUNSHINE_KEY_SECRET"),
		SunshineAPI:       stringOrDefault("DESTEK_SUNSHINE_API_BASE", "https://api.smooch.io"),

		SupportOpenHour:        intOrDefault("DESTEK_SUPPORT_OPEN_HOUR", 9),
		SupportCloseHour:       intOrDefault("DESTEK_SUPPORT_CLOSE_HOUR", 18),
		SupportOpenSaturday:    boolOrDefault("DESTEK_SUPPORT_OPEN_SATURDAY", true),
		SessionIdleMinutes:     intOrDefault("DESTEK_SESSION_IDLE_MINUTES", 120),
		JobRetentionDays:       intOrDefault("DESTEK_JOB_RETENTION_DAYS", 7),
		AnalyticsRetentionDays: intOrDefault("DESTEK_ANALYTICS_RETENTION_DAYS", 90),
	}
}

// FallbackModels is the ordered model chain: the primary model followed by
// any configured fallbacks.
func (c Config) FallbackModels() []string {
	models := []string{c.LLMModel}
	for _, model := range strings.Split(c.LLMFallbackModelsCSV, ",") {
		model = strings.TrimSpace(model)
		if model != "" && model != c.LLMModel {
			models = append(models, model)
		}
	}
	return models
}

func (c Config) CredentialTools() []string {
	tools := []string{}
	for _, tool := range strings.Split(c.CredentialToolsCSV, ",") {
		tool = strings.TrimSpace(strings.ToLower(tool))
		if tool != "" {
			tools = append(tools, tool)
		}
	}
	return tools
}

func stringOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOrDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
