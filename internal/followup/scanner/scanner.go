// Package scanner selects deals whose last outbound email is older than a threshold.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/metrics"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/observability"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const DefaultConcurrency = 8

type DealSource interface {
	ListDeals(ctx context.Context, stages []string) ([]models.Deal, error)
	LastEmailSentAt(ctx context.Context, deal models.Deal) (*time.Time, error)
}

type Options struct {
	Concurrency int
	Logger      logger.Logger
	Obs         *observability.Observability
	Now         func() time.Time
}

type Scanner struct {
	deals       DealSource
	concurrency int
	log         logger.Logger
	obs         *observability.Observability
	now         func() time.Time
}

// StaleDeal is a deal selected for follow-up. HasEmail is false when no sent email exists.
type StaleDeal struct {
	Deal     models.Deal
	Days     int
	HasEmail bool
}

// DaysSinceLastEmail returns nil for a deal that never received an email.
func (s StaleDeal) DaysSinceLastEmail() *int {
	if !s.HasEmail {
		return nil
	}
	d := s.Days
	return &d
}

type Unresolved struct {
	Deal  models.Deal
	Error string
}

// ReportEntry lists the deal as failed so it still shows up in the digest.
func (u Unresolved) ReportEntry() models.ReportEntry {
	return models.ReportEntry{
		Deal:    u.Deal,
		Outcome: models.OutcomeFailed,
		Error:   fmt.Sprintf("%s: last email lookup failed: %s", apperrors.ErrCodeRequiredSourceFailed, u.Error),
	}
}

type Result struct {
	Fetched    int
	Deals      []StaleDeal
	Unresolved []Unresolved
}

func New(deals DealSource, opts Options) *Scanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{
		deals:       deals,
		concurrency: opts.Concurrency,
		log:         logger.ForComponent(opts.Logger, "scanner"),
		obs:         opts.Obs,
		now:         opts.Now,
	}
}

// Scan lists deals in the given stages and keeps those at least thresholdDays past their last
// sent email, most stale first. Deals with no sent email are always kept and sort first.
func (s *Scanner) Scan(ctx context.Context, stages []string, thresholdDays int) (*Result, error) {
	ctx, span := s.obs.StartSpan(ctx, "followup.scan", attribute.StringSlice("stages", stages))
	defer span.End()

	if thresholdDays < 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("threshold must be non-negative, got %d", thresholdDays))
	}

	deals, err := s.deals.ListDeals(ctx, stages)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.log.Info("Fetched deals", map[string]interface{}{"stages": stages, "count": len(deals)})

	now := s.now()
	type lookup struct {
		at  *time.Time
		err error
	}
	lookups := make([]lookup, len(deals))

	p := pool.New().WithMaxGoroutines(s.concurrency)
	for i := range deals {
		p.Go(func() {
			at, err := s.deals.LastEmailSentAt(ctx, deals[i])
			lookups[i] = lookup{at: at, err: err}
		})
	}
	p.Wait()

	result := &Result{Fetched: len(deals)}
	for i, deal := range deals {
		l := lookups[i]
		if l.err != nil {
			s.log.Warn("Could not resolve last email", map[string]interface{}{
				"dealId": deal.ID,
				"error":  l.err.Error(),
			})
			result.Unresolved = append(result.Unresolved, Unresolved{Deal: deal, Error: l.err.Error()})
			metrics.DealsScanned.WithLabelValues("unresolved").Inc()
			continue
		}

		deal.LastEmailSentAt = l.at
		days, hasEmail := deal.DaysSinceLastEmail(now)
		if hasEmail && days < thresholdDays {
			metrics.DealsScanned.WithLabelValues("fresh").Inc()
			continue
		}
		metrics.DealsScanned.WithLabelValues("stale").Inc()
		result.Deals = append(result.Deals, StaleDeal{Deal: deal, Days: days, HasEmail: hasEmail})
	}

	sort.SliceStable(result.Deals, func(i, j int) bool {
		a, b := result.Deals[i], result.Deals[j]
		if a.HasEmail != b.HasEmail {
			return !a.HasEmail
		}
		if a.Days != b.Days {
			return a.Days > b.Days
		}
		return a.Deal.ID < b.Deal.ID
	})

	s.log.Info("Scan complete", map[string]interface{}{
		"fetched":    result.Fetched,
		"stale":      len(result.Deals),
		"unresolved": len(result.Unresolved),
		"threshold":  thresholdDays,
	})
	return result, nil
}
