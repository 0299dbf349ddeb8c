package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/validation"
)

// scanAndPublishMargin covers the deal scan before the run deadline starts and digest delivery after it.
const scanAndPublishMargin = 60000

// envAliases binds the plain environment variable names operators already use to config keys.
// Bound variables take precedence over the config file.
var envAliases = map[string][]string{
	"integrations.hubspot.access_token": {"HUBSPOT_ACCESS_TOKEN"},
	"integrations.slack.bot_token":      {"SLACK_BOT_TOKEN"},
	"integrations.fireflies.api_key":    {"FIREFLIES_API_KEY"},
	"integrations.sendgrid.api_key":     {"SENDGRID_API_KEY"},
	"integrations.smtp.host":            {"SMTP_HOST"},
	"integrations.smtp.port":            {"SMTP_PORT"},
	"integrations.smtp.username":        {"SMTP_USER"},
	"integrations.smtp.password":        {"SMTP_PASSWORD"},
	"integrations.smtp.from_email":      {"SMTP_FROM_EMAIL"},
	"generation.api_key":                {"GENERATION_API_KEY", "ANTHROPIC_API_KEY"},
	"followup.target_stages":            {"TARGET_STAGES"},
	"followup.stale_threshold_days":     {"STALE_THRESHOLD_DAYS"},
	"sources.chat.channels":             {"SLACK_CHANNELS"},
	"digest.recipients":                 {"DIGEST_RECIPIENTS"},
	"digest.from_email":                 {"FROM_EMAIL"},
	"apis.web_search.api_key":           {"WEB_SEARCH_API_KEY"},
	"apis.web_search.engine_id":         {"WEB_SEARCH_ENGINE_ID"},
	"database.postgres.user":            {"DB_USER"},
	"database.postgres.password":        {"DB_PASSWORD"},
	"camunda.broker_address":            {"ZEEBE_ADDRESS"},
}

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	applyDefaults(v)
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	normalize(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "followup-agent")
	v.SetDefault("app.environment", "development")

	v.SetDefault("camunda.max_jobs_active", 1)
	v.SetDefault("camunda.timeout", 30000)
	v.SetDefault("camunda.request_timeout", 30000)

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.max_connections", 10)
	v.SetDefault("database.postgres.max_idle", 2)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.elasticsearch.transcript_index", "call-transcripts")

	v.SetDefault("followup.target_stages", []string{"appointmentscheduled", "qualifiedtobuy"})
	v.SetDefault("followup.stale_threshold_days", 14)
	v.SetDefault("followup.worker_pool_size", 4)
	v.SetDefault("followup.scan_concurrency", 4)
	v.SetDefault("followup.run_deadline", 15*60*1000)
	v.SetDefault("followup.aggregation_timeout", 45000)

	v.SetDefault("sources.crm.provider", "hubspot")
	v.SetDefault("sources.crm.evidence_cap", 10)
	v.SetDefault("sources.chat.enabled", true)
	v.SetDefault("sources.chat.evidence_cap", 10)
	v.SetDefault("sources.chat.channels", []string{"sales", "marketing"})
	v.SetDefault("sources.chat.lookback_days", 90)
	v.SetDefault("sources.chat.max_queries", 2)
	v.SetDefault("sources.calls.enabled", true)
	v.SetDefault("sources.calls.provider", "fireflies")
	v.SetDefault("sources.calls.evidence_cap", 5)
	v.SetDefault("sources.web.enabled", true)
	v.SetDefault("sources.web.evidence_cap", 5)

	v.SetDefault("rate_limits.max_wait", 30000)
	v.SetDefault("rate_limits.default.requests", 5)
	v.SetDefault("rate_limits.default.window", 1000)
	v.SetDefault("rate_limits.keys.hubspot.requests", 100)
	v.SetDefault("rate_limits.keys.hubspot.window", 10000)

	v.SetDefault("generation.base_url", "https://api.anthropic.com/v1/")
	v.SetDefault("generation.model", "claude-sonnet-4-5")
	v.SetDefault("generation.max_tokens", 2000)
	v.SetDefault("generation.temperature", 0.4)
	v.SetDefault("generation.timeout", 60000)
	v.SetDefault("generation.max_retries", 1)
	v.SetDefault("generation.backoff_initial", 1000)
	v.SetDefault("generation.backoff_max", 10000)
	v.SetDefault("generation.max_prompt_chars", 24000)
	v.SetDefault("generation.snippet_chars", 500)
	v.SetDefault("generation.profile_path", "configs/prompt_profile.yaml")

	v.SetDefault("integrations.hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("integrations.hubspot.timeout", 15000)
	v.SetDefault("integrations.slack.base_url", "https://slack.com/api")
	v.SetDefault("integrations.slack.timeout", 10000)
	v.SetDefault("integrations.fireflies.base_url", "https://api.fireflies.ai/graphql")
	v.SetDefault("integrations.fireflies.timeout", 15000)
	v.SetDefault("integrations.aws.region", "us-east-1")
	v.SetDefault("integrations.smtp.port", 587)
	v.SetDefault("integrations.smtp.use_tls", true)
	v.SetDefault("integrations.sendgrid.base_url", "https://api.sendgrid.com")

	v.SetDefault("apis.web_search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("apis.web_search.timeout", 10000)

	v.SetDefault("digest.from_email", "noreply@example.com")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("observability.service_name", "followup-agent")
	v.SetDefault("observability.metrics_address", ":8080")
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Integrations.SMTP.FromEmail == "" {
		cfg.Integrations.SMTP.FromEmail = cfg.Integrations.SMTP.Username
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("POSTGRES_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Database.Redis.Address = val
		}
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 1
		}
		if worker.Timeout == 0 {
			worker.Timeout = RunBudget(cfg) + scanAndPublishMargin
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// normalize cleans list values coming from comma-separated env vars and switches off optional
// sources whose credentials are missing.
func normalize(cfg *Config) {
	cfg.Followup.TargetStages = cleanList(cfg.Followup.TargetStages, "")
	cfg.Sources.Chat.Channels = cleanList(cfg.Sources.Chat.Channels, "#")
	cfg.Digest.Recipients = cleanList(cfg.Digest.Recipients, "")

	if cfg.Integrations.Slack.BotToken == "" {
		cfg.Sources.Chat.Enabled = false
	}
	switch cfg.Sources.Calls.Provider {
	case "elasticsearch":
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			cfg.Sources.Calls.Enabled = false
		}
	default:
		if cfg.Integrations.Fireflies.APIKey == "" {
			cfg.Sources.Calls.Enabled = false
		}
	}
	if cfg.APIs.WebSearch.APIKey == "" {
		cfg.Sources.Web.Enabled = false
	}
}

func cleanList(in []string, trimPrefix string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if trimPrefix != "" {
				part = strings.TrimPrefix(part, trimPrefix)
			}
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.Followup.TargetStages) == 0 {
		return apperrors.NewConfigInvalidError("followup.target_stages must not be empty")
	}
	if cfg.Followup.StaleThresholdDays < 0 {
		return apperrors.NewConfigInvalidError("followup.stale_threshold_days must be >= 0")
	}
	if cfg.Followup.WorkerPoolSize <= 0 {
		return apperrors.NewConfigInvalidError("followup.worker_pool_size must be positive")
	}

	switch cfg.Sources.CRM.Provider {
	case "hubspot":
		if cfg.Integrations.HubSpot.AccessToken == "" {
			return apperrors.NewConfigInvalidError("integrations.hubspot.access_token is required (HUBSPOT_ACCESS_TOKEN)")
		}
	case "postgres":
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
			return apperrors.NewConfigInvalidError("database.postgres.host and database are required for the postgres CRM provider")
		}
	default:
		return apperrors.NewConfigInvalidError(fmt.Sprintf("unknown sources.crm.provider %q", cfg.Sources.CRM.Provider))
	}

	if cfg.Generation.APIKey == "" {
		return apperrors.NewConfigInvalidError("generation.api_key is required (GENERATION_API_KEY or ANTHROPIC_API_KEY)")
	}
	if cfg.Generation.MaxRetries < 0 {
		return apperrors.NewConfigInvalidError("generation.max_retries must be >= 0")
	}

	if cfg.RateLimits.Shared && cfg.Database.Redis.Address == "" {
		return apperrors.NewConfigInvalidError("database.redis.address is required when rate_limits.shared is set")
	}

	if DigestProvider(cfg) != "none" && len(cfg.Digest.Recipients) == 0 {
		return apperrors.NewConfigInvalidError("digest.recipients is required when a delivery provider is configured (DIGEST_RECIPIENTS)")
	}
	for _, addr := range cfg.Digest.Recipients {
		if !validation.ValidateEmail(addr) {
			return apperrors.NewConfigInvalidError(fmt.Sprintf("digest.recipients contains a malformed address %q", addr))
		}
	}
	if cfg.Digest.FromEmail != "" && !validation.ValidateEmail(cfg.Digest.FromEmail) {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("digest.from_email %q is not a valid address", cfg.Digest.FromEmail))
	}

	budget := RunBudget(cfg)
	for name, worker := range cfg.Workers {
		if worker.Enabled && worker.Timeout <= budget {
			return apperrors.NewConfigInvalidError(fmt.Sprintf(
				"workers.%s.timeout (%dms) must exceed the run budget of %dms", name, worker.Timeout, budget))
		}
	}

	return nil
}

// RunBudget is how long a run may hold its job in milliseconds: the run deadline, plus one more
// aggregation and every generation attempt for deals already in flight when the deadline fires.
func RunBudget(cfg *Config) int {
	gen := cfg.Generation
	return cfg.Followup.RunDeadline +
		cfg.Followup.AggregationTimeout +
		(gen.MaxRetries+1)*gen.Timeout +
		gen.MaxRetries*gen.BackoffMax
}

// DigestProvider resolves which delivery provider the digest goes through.
func DigestProvider(cfg *Config) string {
	if cfg.Digest.Provider != "" {
		return cfg.Digest.Provider
	}
	switch {
	case cfg.Integrations.SendGrid.APIKey != "":
		return "sendgrid"
	case cfg.Integrations.AWS.SES.Enabled:
		return "ses"
	case cfg.Integrations.SMTP.Host != "":
		return "smtp"
	default:
		return "none"
	}
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 1,
		Timeout:       RunBudget(cfg) + scanAndPublishMargin,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
