// Package aggregator fans evidence fetches for one deal out to every enabled source and
// merges the results into a models.Context.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/metrics"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/observability"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/sources"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const DefaultTimeout = 45 * time.Second

type Options struct {
	// Timeout bounds one Aggregate call. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  logger.Logger
	Obs     *observability.Observability
}

type Aggregator struct {
	sources []sources.Source
	enabled map[models.SourceType]bool
	timeout time.Duration
	log     logger.Logger
	obs     *observability.Observability
}

// New binds the enabled sources. A CRM source is mandatory and each type may appear once.
func New(srcs []sources.Source, opts Options) (*Aggregator, error) {
	enabled := make(map[models.SourceType]bool, len(srcs))
	for _, s := range srcs {
		if s == nil {
			return nil, apperrors.NewConfigInvalidError("nil source")
		}
		if enabled[s.Type()] {
			return nil, apperrors.NewConfigInvalidError(fmt.Sprintf("source %s registered twice", s.Type()))
		}
		enabled[s.Type()] = true
	}
	if !enabled[models.SourceCRM] {
		return nil, apperrors.NewConfigInvalidError("crm source is required")
	}

	ordered := make([]sources.Source, 0, len(srcs))
	for _, t := range models.SourceOrder {
		for _, s := range srcs {
			if s.Type() == t {
				ordered = append(ordered, s)
			}
		}
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Aggregator{
		sources: ordered,
		enabled: enabled,
		timeout: opts.Timeout,
		log:     logger.ForComponent(opts.Logger, "aggregator"),
		obs:     opts.Obs,
	}, nil
}

type fetchResult struct {
	slot  int
	items []models.Evidence
	err   error
}

// Aggregate never returns an error; failures are recorded per source in the Context.
func (a *Aggregator) Aggregate(ctx context.Context, deal models.Deal, contact *models.Contact, company *models.Company) models.Context {
	ctx, span := a.obs.StartSpan(ctx, "followup.aggregate", attribute.String("deal.id", deal.ID))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := sources.Request{Deal: deal, Contact: contact, Company: company}
	results := make(chan fetchResult, len(a.sources))
	for i, src := range a.sources {
		go a.fetch(ctx, i, src, req, results)
	}

	collected := make([]*fetchResult, len(a.sources))
	var abort error
	for pending := len(a.sources); pending > 0 && abort == nil; {
		select {
		case r := <-results:
			pending--
			collected[r.slot] = &r
			if r.err != nil && a.sources[r.slot].Type() == models.SourceCRM {
				abort = fmt.Errorf("cancelled after required source failure: %w", r.err)
				cancel()
			}
		case <-ctx.Done():
			abort = apperrors.NewTimeoutError("aggregate", ctx.Err())
		}
	}

	out := models.Context{
		DealID:   deal.ID,
		Groups:   make([]models.EvidenceGroup, 0, len(a.sources)),
		Statuses: make(map[models.SourceType]models.SourceResult, len(models.SourceOrder)),
		Usable:   true,
	}
	for _, t := range models.SourceOrder {
		if !a.enabled[t] {
			out.Statuses[t] = models.SourceResult{Status: models.StatusSkippedDisabled}
		}
	}

	for i, src := range a.sources {
		t := src.Type()
		r := collected[i]
		if r == nil {
			r = &fetchResult{slot: i, err: abort}
		}

		group := models.EvidenceGroup{Source: t}
		switch {
		case r.err != nil:
			out.Statuses[t] = models.SourceResult{Status: models.StatusFailed, Error: r.err.Error()}
			if t == models.SourceCRM {
				out.Usable = false
				out.Failure = apperrors.NewRequiredSourceFailedError(string(t), r.err).Error()
			} else {
				a.log.Warn("Optional source failed", map[string]interface{}{
					"dealId": deal.ID,
					"source": string(t),
					"error":  r.err.Error(),
				})
			}
		default:
			group.Items = Dedupe(r.items)
			status := models.StatusOK
			if len(group.Items) == 0 {
				status = models.StatusEmpty
			}
			out.Statuses[t] = models.SourceResult{Status: status, Count: len(group.Items)}
		}
		metrics.SourceFetches.WithLabelValues(string(t), string(out.Statuses[t].Status)).Inc()
		out.Groups = append(out.Groups, group)
	}

	if !out.Usable {
		span.SetStatus(codes.Error, out.Failure)
	}
	a.log.Debug("Aggregated context", map[string]interface{}{
		"dealId": deal.ID,
		"usable": out.Usable,
		"failed": len(out.FailedSources()),
	})
	return out
}

func (a *Aggregator) fetch(ctx context.Context, slot int, src sources.Source, req sources.Request, results chan<- fetchResult) {
	t := src.Type()
	ctx, span := a.obs.StartSpan(ctx, "followup.source.fetch", attribute.String("source", string(t)))
	start := time.Now()

	res := fetchResult{slot: slot}
	defer func() {
		if p := recover(); p != nil {
			res.items = nil
			res.err = apperrors.NewInternalError(fmt.Errorf("source %s panicked: %v", t, p))
		}
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		}
		span.End()
		metrics.SourceFetchDuration.WithLabelValues(string(t)).Observe(time.Since(start).Seconds())
		results <- res
	}()

	res.items, res.err = src.FetchEvidence(ctx, req)
	if res.err == nil && ctx.Err() != nil {
		res.err = apperrors.NewTimeoutError("source "+string(t), ctx.Err())
	}
}

// Dedupe drops items whose normalized snippet repeats an earlier one. The surviving item
// keeps its position, takes the earliest known timestamp and is relevant if any duplicate was.
func Dedupe(items []models.Evidence) []models.Evidence {
	if len(items) == 0 {
		return items
	}
	index := make(map[string]int, len(items))
	out := make([]models.Evidence, 0, len(items))
	for _, ev := range items {
		key := normalize(ev.Snippet)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, ev)
			continue
		}
		kept := &out[i]
		if ev.Timestamp != nil && (kept.Timestamp == nil || ev.Timestamp.Before(*kept.Timestamp)) {
			ts := *ev.Timestamp
			kept.Timestamp = &ts
		}
		kept.Relevant = kept.Relevant || ev.Relevant
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
