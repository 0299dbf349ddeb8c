package app

import (
	"context"
	"strings"
	"time"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/aggregator"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/digest"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/drafter"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/pipeline"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/prompt"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/scanner"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/sources"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

// Service runs scan, research, drafting and digest delivery end to end.
type Service struct {
	cfg          *config.Config
	scanner      *scanner.Scanner
	orchestrator *pipeline.Orchestrator
	publisher    *digest.Publisher
	deps         Deps
	log          logger.Logger
}

// RunOptions override configuration for a single run. Zero values keep the configured setting.
type RunOptions struct {
	Stages             []string
	StaleThresholdDays *int
	DryRun             bool
}

type RunResult struct {
	RunID        string            `json:"runId"`
	DealsScanned int               `json:"dealsScanned"`
	StaleDeals   int               `json:"staleDeals"`
	Unresolved   int               `json:"unresolved"`
	Counts       models.RunCounts  `json:"counts"`
	DigestPath   string            `json:"digestPath,omitempty"`
	DigestSent   bool              `json:"digestSent"`
	Report       *models.RunReport `json:"-"`
}

// New assembles the pipeline from already constructed collaborators.
func New(cfg *config.Config, deps Deps, log logger.Logger) (*Service, error) {
	if deps.CRM == nil {
		return nil, apperrors.NewConfigInvalidError("crm collaborator is required")
	}
	if deps.Generator == nil || deps.Profile == nil {
		return nil, apperrors.NewConfigInvalidError("generator and prompt profile are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log = logger.ForComponent(log, "followup")
	snippet := cfg.Generation.SnippetChars

	srcs := []sources.Source{sources.NewCRM(deps.CRM, cfg.Sources.CRM.EvidenceCap, snippet)}
	if deps.Chat != nil {
		srcs = append(srcs, sources.NewChat(deps.Chat, sources.ChatOptions{
			Channels:     cfg.Sources.Chat.Channels,
			Cap:          cfg.Sources.Chat.EvidenceCap,
			MaxQueries:   cfg.Sources.Chat.MaxQueries,
			LookbackDays: cfg.Sources.Chat.LookbackDays,
			SnippetChars: snippet,
			Now:          deps.Now,
		}))
	}
	if deps.Calls != nil {
		srcs = append(srcs, sources.NewCall(deps.Calls, cfg.Sources.Calls.EvidenceCap, snippet))
	}
	if deps.Web != nil {
		srcs = append(srcs, sources.NewWeb(deps.Web, deps.Profile.SearchTopics, cfg.Sources.Web.EvidenceCap, snippet))
	}

	agg, err := aggregator.New(srcs, aggregator.Options{
		Timeout: config.GetDuration(cfg.Followup.AggregationTimeout),
		Logger:  log,
		Obs:     deps.Obs,
	})
	if err != nil {
		return nil, err
	}

	builder := prompt.NewBuilder(deps.Profile, cfg.Generation.MaxPromptChars, 0)
	draft := drafter.New(deps.Generator, builder, drafter.Options{
		MaxRetries:     cfg.Generation.MaxRetries,
		BackoffInitial: config.GetDuration(cfg.Generation.BackoffInitial),
		BackoffMax:     config.GetDuration(cfg.Generation.BackoffMax),
		Timeout:        config.GetDuration(cfg.Generation.Timeout),
		Logger:         log,
		Obs:            deps.Obs,
	})

	from := cfg.Digest.FromEmail
	if from == "" {
		from = cfg.Integrations.SMTP.FromEmail
	}

	return &Service{
		cfg: cfg,
		scanner: scanner.New(deps.CRM, scanner.Options{
			Concurrency: cfg.Followup.ScanConcurrency,
			Logger:      log,
			Obs:         deps.Obs,
			Now:         deps.Now,
		}),
		orchestrator: pipeline.New(deps.CRM, agg, draft, pipeline.Options{
			PoolSize:    cfg.Followup.WorkerPoolSize,
			RunDeadline: config.GetDuration(cfg.Followup.RunDeadline),
			Logger:      log,
			Obs:         deps.Obs,
			Now:         deps.Now,
		}),
		publisher: digest.NewPublisher(digest.Options{
			Recipients: cfg.Digest.Recipients,
			From:       from,
			OutputDir:  cfg.Digest.OutputDir,
			Sender:     deps.Sender,
			Alerter:    deps.Alerter,
			Logger:     log,
			Now:        deps.Now,
		}),
		deps: deps,
		log:  log,
	}, nil
}

// Run scans for stale deals, drafts follow-ups and publishes the digest.
// Per-deal failures are reported in the result; only scan and delivery failures return an error.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	stages := opts.Stages
	if len(stages) == 0 {
		stages = s.cfg.Followup.TargetStages
	}
	threshold := s.cfg.Followup.StaleThresholdDays
	if opts.StaleThresholdDays != nil {
		threshold = *opts.StaleThresholdDays
	}

	s.log.Info("Starting follow-up run", map[string]interface{}{
		"stages":    strings.Join(stages, ","),
		"threshold": threshold,
		"dryRun":    opts.DryRun,
	})

	scan, err := s.scanner.Scan(ctx, stages, threshold)
	if err != nil {
		if _, ok := apperrors.AsStandardError(err); ok {
			return nil, err
		}
		return nil, apperrors.NewRequiredSourceFailedError(string(models.SourceCRM), err)
	}

	report := s.orchestrator.Run(ctx, scan.Deals)
	for _, u := range scan.Unresolved {
		report.Entries = append(report.Entries, u.ReportEntry())
	}

	res := &RunResult{
		RunID:        report.RunID,
		DealsScanned: scan.Fetched,
		StaleDeals:   len(scan.Deals),
		Unresolved:   len(scan.Unresolved),
		Counts:       report.Counts(),
		Report:       report,
	}

	published, err := s.publisher.Publish(ctx, report, opts.DryRun)
	if published != nil {
		res.DigestPath = published.Path
		res.DigestSent = published.Sent
	}
	if err != nil {
		return res, err
	}

	s.log.Info("Follow-up run finished", map[string]interface{}{
		"runId":      res.RunID,
		"staleDeals": res.StaleDeals,
		"drafted":    len(report.Drafted()),
		"digestPath": res.DigestPath,
		"digestSent": res.DigestSent,
	})
	return res, nil
}

// Close releases connections opened by Build and flushes metrics.
func (s *Service) Close() {
	s.deps.close(s.log)
	if s.deps.Obs != nil {
		s.deps.Obs.Shutdown()
	}
}
