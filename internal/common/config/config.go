package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Followup      FollowupConfig          `mapstructure:"followup"`
	Sources       SourcesConfig           `mapstructure:"sources"`
	RateLimits    RateLimitConfig         `mapstructure:"rate_limits"`
	Generation    GenerationConfig        `mapstructure:"generation"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Digest        DigestConfig            `mapstructure:"digest"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses       []string `mapstructure:"addresses"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	TranscriptIndex string   `mapstructure:"transcript_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// FollowupConfig drives the scanner and the orchestrator.
type FollowupConfig struct {
	TargetStages       []string `mapstructure:"target_stages"`
	StaleThresholdDays int      `mapstructure:"stale_threshold_days"`
	WorkerPoolSize     int      `mapstructure:"worker_pool_size"`
	ScanConcurrency    int      `mapstructure:"scan_concurrency"`
	RunDeadline        int      `mapstructure:"run_deadline"`        // milliseconds
	AggregationTimeout int      `mapstructure:"aggregation_timeout"` // milliseconds
}

type SourcesConfig struct {
	CRM   CRMSourceConfig  `mapstructure:"crm"`
	Chat  ChatSourceConfig `mapstructure:"chat"`
	Calls CallSourceConfig `mapstructure:"calls"`
	Web   WebSourceConfig  `mapstructure:"web"`
}

type CRMSourceConfig struct {
	// Provider is "hubspot" or "postgres".
	Provider    string `mapstructure:"provider"`
	EvidenceCap int    `mapstructure:"evidence_cap"`
}

type ChatSourceConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	EvidenceCap  int      `mapstructure:"evidence_cap"`
	Channels     []string `mapstructure:"channels"`
	LookbackDays int      `mapstructure:"lookback_days"`
	MaxQueries   int      `mapstructure:"max_queries"`
}

type CallSourceConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Provider is "fireflies" or "elasticsearch".
	Provider    string `mapstructure:"provider"`
	EvidenceCap int    `mapstructure:"evidence_cap"`
}

type WebSourceConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	EvidenceCap int  `mapstructure:"evidence_cap"`
}

type QuotaConfig struct {
	Requests int `mapstructure:"requests"`
	Window   int `mapstructure:"window"` // milliseconds
}

type RateLimitConfig struct {
	MaxWait int                    `mapstructure:"max_wait"` // milliseconds
	Default QuotaConfig            `mapstructure:"default"`
	Keys    map[string]QuotaConfig `mapstructure:"keys"`
	Shared  bool                   `mapstructure:"shared"`
}

type GenerationConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	Timeout        int     `mapstructure:"timeout"` // milliseconds
	MaxRetries     int     `mapstructure:"max_retries"`
	BackoffInitial int     `mapstructure:"backoff_initial"` // milliseconds
	BackoffMax     int     `mapstructure:"backoff_max"`     // milliseconds
	ProfilePath    string  `mapstructure:"profile_path"`
	MaxPromptChars int     `mapstructure:"max_prompt_chars"`
	SnippetChars   int     `mapstructure:"snippet_chars"`
}

type IntegrationConfig struct {
	HubSpot   HubSpotConfig   `mapstructure:"hubspot"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Fireflies FirefliesConfig `mapstructure:"fireflies"`
	AWS       AWSConfig       `mapstructure:"aws"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	SendGrid  SendGridConfig  `mapstructure:"sendgrid"`
}

type HubSpotConfig struct {
	AccessToken string `mapstructure:"access_token"`
	BaseURL     string `mapstructure:"base_url"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

type SlackConfig struct {
	BotToken string `mapstructure:"bot_token"`
	BaseURL  string `mapstructure:"base_url"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

type FirefliesConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
	SES    struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"ses"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	UseTLS    bool   `mapstructure:"use_tls"`
}

type SendGridConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type APIsConfig struct {
	WebSearch struct {
		BaseURL  string `mapstructure:"base_url"`
		APIKey   string `mapstructure:"api_key"`
		EngineID string `mapstructure:"engine_id"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"web_search"`
}

type DigestConfig struct {
	Recipients []string `mapstructure:"recipients"`
	FromEmail  string   `mapstructure:"from_email"`
	OutputDir  string   `mapstructure:"output_dir"`
	// Provider forces a delivery provider: sendgrid, ses, smtp or none. Empty picks the first configured.
	Provider string `mapstructure:"provider"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	MetricsAddress string `mapstructure:"metrics_address"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
