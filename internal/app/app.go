// Package app wires configuration into a runnable follow-up service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/aws"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/crmstore"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/database"
	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/fireflies"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/genai"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/hubspot"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/observability"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/ratelimit"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/slack"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/transcripts"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/websearch"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/digest"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/drafter"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/pipeline"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/prompt"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/scanner"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/sources"
)

// CRM is everything the service reads from the system of record.
type CRM interface {
	scanner.DealSource
	pipeline.PartyResolver
	sources.ActivityReader
}

// Deps are the external collaborators. Nil optional searchers disable their source.
type Deps struct {
	CRM       CRM
	Chat      sources.ChatSearcher
	Calls     sources.TranscriptSearcher
	Web       sources.WebSearcher
	Generator drafter.Generator
	Profile   *prompt.Profile
	Sender    digest.Sender
	Alerter   digest.Alerter
	Obs       *observability.Observability
	Now       func() time.Time
	closers   []func() error
}

// Build constructs every collaborator named in cfg. Connections are released by Service.Close.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Service, error) {
	log = logger.ForComponent(log, "app")
	deps := &Deps{Obs: observability.New(cfg.Observability.ServiceName)}

	limiter, err := buildLimiter(ctx, cfg, log, deps)
	if err != nil {
		deps.close(log)
		return nil, err
	}
	limited := func(key string) http.RoundTripper {
		return &ratelimit.Transport{Limiter: limiter, Key: key}
	}

	if err := buildCRM(ctx, cfg, limiter, limited, deps); err != nil {
		deps.close(log)
		return nil, err
	}

	if cfg.Sources.Chat.Enabled {
		deps.Chat = slack.NewClient(slack.Config{
			BotToken:  cfg.Integrations.Slack.BotToken,
			BaseURL:   cfg.Integrations.Slack.BaseURL,
			Timeout:   config.GetDuration(cfg.Integrations.Slack.Timeout),
			Transport: limited(slack.RateLimitKey),
		})
	}

	if cfg.Sources.Calls.Enabled {
		if err := buildCalls(cfg, limited, deps); err != nil {
			deps.close(log)
			return nil, err
		}
	}

	if cfg.Sources.Web.Enabled {
		deps.Web = websearch.NewClient(websearch.Config{
			BaseURL:   cfg.APIs.WebSearch.BaseURL,
			APIKey:    cfg.APIs.WebSearch.APIKey,
			EngineID:  cfg.APIs.WebSearch.EngineID,
			Timeout:   config.GetDuration(cfg.APIs.WebSearch.Timeout),
			Transport: limited(websearch.RateLimitKey),
		})
	}

	deps.Generator = genai.NewClient(genai.Config{
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		Timeout:     config.GetDuration(cfg.Generation.Timeout),
		Transport:   limited(genai.RateLimitKey),
	})

	deps.Profile, err = prompt.LoadProfile(cfg.Generation.ProfilePath)
	if err != nil {
		deps.close(log)
		return nil, apperrors.NewConfigInvalidError(err.Error())
	}

	if err := buildDelivery(ctx, cfg, deps); err != nil {
		deps.close(log)
		return nil, err
	}

	svc, err := New(cfg, *deps, log)
	if err != nil {
		deps.close(log)
		return nil, err
	}
	return svc, nil
}

func buildLimiter(ctx context.Context, cfg *config.Config, log logger.Logger, deps *Deps) (*ratelimit.Limiter, error) {
	opts := ratelimit.Options{
		Default: quota(cfg.RateLimits.Default),
		Quotas:  make(map[string]ratelimit.Quota, len(cfg.RateLimits.Keys)),
		MaxWait: config.GetDuration(cfg.RateLimits.MaxWait),
		Logger:  log,
	}
	for key, q := range cfg.RateLimits.Keys {
		opts.Quotas[key] = quota(q)
	}

	if cfg.RateLimits.Shared {
		rdb, err := database.OpenRedis(ctx, cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, rdb.Close)
		opts.Shared = ratelimit.NewRedisWindow(rdb, "")
		log.Info("Using shared rate limit windows", map[string]interface{}{"redis": cfg.Database.Redis.Address})
	}
	return ratelimit.New(opts), nil
}

func quota(q config.QuotaConfig) ratelimit.Quota {
	return ratelimit.Quota{Requests: q.Requests, Window: config.GetDuration(q.Window)}
}

func buildCRM(ctx context.Context, cfg *config.Config, limiter *ratelimit.Limiter, limited func(string) http.RoundTripper, deps *Deps) error {
	switch cfg.Sources.CRM.Provider {
	case "postgres":
		db, err := database.OpenPostgres(ctx, cfg.Database.Postgres)
		if err != nil {
			return err
		}
		deps.closers = append(deps.closers, db.Close)
		deps.CRM = crmstore.New(db, limiter, 0)
	default:
		deps.CRM = hubspot.NewClient(hubspot.Config{
			AccessToken: cfg.Integrations.HubSpot.AccessToken,
			BaseURL:     cfg.Integrations.HubSpot.BaseURL,
			Timeout:     config.GetDuration(cfg.Integrations.HubSpot.Timeout),
			Transport:   limited(hubspot.RateLimitKey),
		})
	}
	return nil
}

func buildCalls(cfg *config.Config, limited func(string) http.RoundTripper, deps *Deps) error {
	switch cfg.Sources.Calls.Provider {
	case "elasticsearch":
		es, err := database.OpenElasticsearch(cfg.Database.Elasticsearch, limited(transcripts.RateLimitKey))
		if err != nil {
			return err
		}
		deps.Calls = transcripts.New(es, cfg.Database.Elasticsearch.TranscriptIndex)
	default:
		deps.Calls = fireflies.NewClient(fireflies.Config{
			APIKey:    cfg.Integrations.Fireflies.APIKey,
			BaseURL:   cfg.Integrations.Fireflies.BaseURL,
			Timeout:   config.GetDuration(cfg.Integrations.Fireflies.Timeout),
			Transport: limited(fireflies.RateLimitKey),
		})
	}
	return nil
}

func buildDelivery(ctx context.Context, cfg *config.Config, deps *Deps) error {
	var clients *aws.Clients
	awsClients := func() (*aws.Clients, error) {
		if clients != nil {
			return clients, nil
		}
		c, err := aws.New(ctx, cfg.Integrations.AWS)
		if err != nil {
			return nil, err
		}
		clients = c
		return clients, nil
	}

	switch provider := config.DigestProvider(cfg); provider {
	case "sendgrid":
		deps.Sender = digest.NewSendGridSender(cfg.Integrations.SendGrid.APIKey, cfg.Integrations.SendGrid.BaseURL, 30*time.Second)
	case "ses":
		clients, err := awsClients()
		if err != nil {
			return err
		}
		deps.Sender = digest.NewSESSender(clients.SES())
	case "smtp":
		smtp := cfg.Integrations.SMTP
		deps.Sender = digest.NewSMTPSender(digest.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			UseTLS:   smtp.UseTLS,
		})
	case "none":
	default:
		return apperrors.NewConfigInvalidError(fmt.Sprintf("unknown digest provider %q", provider))
	}

	if cfg.Integrations.AWS.SNS.Enabled && cfg.Integrations.AWS.SNS.TopicARN != "" {
		clients, err := awsClients()
		if err != nil {
			return err
		}
		deps.Alerter = digest.NewSNSAlerter(clients.SNS(), cfg.Integrations.AWS.SNS.TopicARN)
	}
	return nil
}

func (d *Deps) close(log logger.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn("Close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	d.closers = nil
}
