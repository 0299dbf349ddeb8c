// Package pipeline runs resolve, aggregate and draft for every stale deal on a bounded
// worker pool and collects one report entry per deal.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/metrics"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/observability"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/prompt"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/scanner"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultPoolSize    = 4
	DefaultRunDeadline = 15 * time.Minute
)

type PartyResolver interface {
	Contact(ctx context.Context, deal models.Deal) (*models.Contact, error)
	Company(ctx context.Context, deal models.Deal) (*models.Company, error)
}

type ContextAggregator interface {
	Aggregate(ctx context.Context, deal models.Deal, contact *models.Contact, company *models.Company) models.Context
}

type EmailDrafter interface {
	Draft(ctx context.Context, in prompt.Input) models.DraftEmail
}

type Options struct {
	PoolSize    int
	RunDeadline time.Duration
	Logger      logger.Logger
	Obs         *observability.Observability
	Now         func() time.Time
}

type Orchestrator struct {
	parties    PartyResolver
	aggregator ContextAggregator
	drafter    EmailDrafter
	opts       Options
	log        logger.Logger
}

func New(parties PartyResolver, aggregator ContextAggregator, drafter EmailDrafter, opts Options) *Orchestrator {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.RunDeadline <= 0 {
		opts.RunDeadline = DefaultRunDeadline
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		parties:    parties,
		aggregator: aggregator,
		drafter:    drafter,
		opts:       opts,
		log:        logger.ForComponent(opts.Logger, "pipeline"),
	}
}

// Run processes deals in input order and returns exactly one entry per deal at the same index.
// Once the run deadline passes no further deal is started; deals already in flight finish
// under ctx and their own per-stage budgets.
func (o *Orchestrator) Run(ctx context.Context, deals []scanner.StaleDeal) *models.RunReport {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: o.opts.Now(),
		Entries:   make([]models.ReportEntry, len(deals)),
	}
	log := o.log.WithFields(map[string]interface{}{"runId": report.RunID})
	log.Info("Run started", map[string]interface{}{"deals": len(deals), "poolSize": o.opts.PoolSize})

	gate, cancel := context.WithTimeout(ctx, o.opts.RunDeadline)
	defer cancel()

	p := pool.New().WithMaxGoroutines(o.opts.PoolSize)
	for i, sd := range deals {
		p.Go(func() {
			if err := gate.Err(); err != nil {
				report.Entries[i] = skipped(sd, err)
				return
			}
			report.Entries[i] = o.process(ctx, log, sd)
		})
	}
	p.Wait()

	report.FinishedAt = o.opts.Now()
	counts := report.Counts()
	status := "ok"
	if counts.Failed > 0 || counts.SkippedTimeout > 0 {
		status = "degraded"
	}
	o.opts.Obs.RecordRun(ctx, report.FinishedAt.Sub(report.StartedAt), status)
	log.Info("Run finished", map[string]interface{}{
		"total":          counts.Total,
		"ok":             counts.OK,
		"partial":        counts.Partial,
		"fallback":       counts.Fallback,
		"failed":         counts.Failed,
		"skippedTimeout": counts.SkippedTimeout,
	})
	return report
}

func skipped(sd scanner.StaleDeal, cause error) models.ReportEntry {
	metrics.DealOutcomes.WithLabelValues(string(models.OutcomeSkippedTimeout)).Inc()
	return models.ReportEntry{
		Deal:               sd.Deal,
		DaysSinceLastEmail: sd.DaysSinceLastEmail(),
		Outcome:            models.OutcomeSkippedTimeout,
		Error:              apperrors.NewTimeoutError("run", cause).Error(),
	}
}

func (o *Orchestrator) process(ctx context.Context, log logger.Logger, sd scanner.StaleDeal) (entry models.ReportEntry) {
	start := time.Now()
	ctx, span := o.opts.Obs.StartSpan(ctx, "followup.deal", attribute.String("deal.id", sd.Deal.ID))

	entry = models.ReportEntry{
		Deal:               sd.Deal,
		DaysSinceLastEmail: sd.DaysSinceLastEmail(),
	}
	defer func() {
		if r := recover(); r != nil {
			entry.Outcome = models.OutcomeFailed
			entry.Error = apperrors.NewInternalError(fmt.Errorf("panic processing deal: %v", r)).Error()
		}
		span.SetAttributes(attribute.String("outcome", string(entry.Outcome)))
		span.End()
		metrics.DealOutcomes.WithLabelValues(string(entry.Outcome)).Inc()
		o.opts.Obs.RecordDeal(ctx, time.Since(start), string(entry.Outcome))
		log.Info("Deal processed", map[string]interface{}{
			"dealId":  sd.Deal.ID,
			"outcome": string(entry.Outcome),
		})
	}()

	contact, err := o.parties.Contact(ctx, sd.Deal)
	if err != nil {
		return failed(entry, apperrors.NewRequiredSourceFailedError(string(models.SourceCRM), err))
	}
	entry.Contact = contact

	company, err := o.parties.Company(ctx, sd.Deal)
	if err != nil {
		return failed(entry, apperrors.NewRequiredSourceFailedError(string(models.SourceCRM), err))
	}
	entry.Company = company

	research := o.aggregator.Aggregate(ctx, sd.Deal, contact, company)
	summary := research.Summary()
	entry.Context = &summary
	if !research.Usable {
		entry.Outcome = models.OutcomeFailed
		entry.Error = research.Failure
		return entry
	}

	draft := o.drafter.Draft(ctx, prompt.Input{
		Deal:               sd.Deal,
		Contact:            contact,
		Company:            company,
		DaysSinceLastEmail: sd.DaysSinceLastEmail(),
		Context:            research,
	})
	entry.Draft = &draft
	entry.Outcome = Outcome(research, draft)
	if entry.Outcome == models.OutcomeFailed && len(draft.Flags) > 0 {
		entry.Error = draft.Flags[0]
	}
	return entry
}

func failed(entry models.ReportEntry, err error) models.ReportEntry {
	entry.Outcome = models.OutcomeFailed
	entry.Error = err.Error()
	return entry
}

// Outcome maps a usable context and its draft to the deal's outcome.
func Outcome(research models.Context, draft models.DraftEmail) models.Outcome {
	switch draft.Status {
	case models.DraftFailed:
		return models.OutcomeFailed
	case models.DraftFallback:
		return models.OutcomeFallback
	}
	if len(research.FailedSources()) > 0 {
		return models.OutcomePartial
	}
	return models.OutcomeOK
}
