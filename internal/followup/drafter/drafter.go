// Package drafter turns a deal's research context into a structured follow-up email.
package drafter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/metrics"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/observability"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/validation"
	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/prompt"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	FallbackSubject = "Following up on our conversation"
	ParseFailedFlag = "Failed to parse structured response"

	DefaultMaxRetries     = 1
	DefaultBackoffInitial = time.Second
	DefaultBackoffMax     = 10 * time.Second
	DefaultTimeout        = 60 * time.Second
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	// MaxRetries is the number of retries after the first call; negative means none.
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// Timeout bounds each generation call.
	Timeout time.Duration
	Logger  logger.Logger
	Obs     *observability.Observability
	Sleep   func(ctx context.Context, d time.Duration) error
}

type Drafter struct {
	gen     Generator
	builder *prompt.Builder
	opts    Options
	log     logger.Logger
}

func New(gen Generator, builder *prompt.Builder, opts Options) *Drafter {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = DefaultBackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Drafter{
		gen:     gen,
		builder: builder,
		opts:    opts,
		log:     logger.ForComponent(opts.Logger, "drafter"),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff is the wait before retry number attempt (1-based).
func (d *Drafter) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 && retryAfter < d.opts.BackoffMax {
		return retryAfter
	}
	wait := d.opts.BackoffInitial
	for i := 1; i < attempt && wait < d.opts.BackoffMax; i++ {
		wait *= 2
	}
	if wait > d.opts.BackoffMax {
		wait = d.opts.BackoffMax
	}
	return wait
}

// Draft never returns an error: generation failures yield status failed and unparseable
// output yields status fallback.
func (d *Drafter) Draft(ctx context.Context, in prompt.Input) models.DraftEmail {
	ctx, span := d.opts.Obs.StartSpan(ctx, "followup.draft", attribute.String("deal.id", in.Deal.ID))
	defer span.End()

	text, attempts, err := d.generate(ctx, d.builder.Build(in))

	var draft models.DraftEmail
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.log.Error("Draft generation failed", map[string]interface{}{
			"dealId":   in.Deal.ID,
			"attempts": attempts,
			"error":    err.Error(),
		})
		draft = models.DraftEmail{
			Status:        models.DraftFailed,
			TalkingPoints: []string{},
			Flags:         []string{"Email generation failed: " + rootMessage(err)},
		}
	default:
		draft = Parse(text)
		if draft.Status == models.DraftFallback {
			d.log.Warn("Generation output was not valid draft JSON", map[string]interface{}{
				"dealId": in.Deal.ID,
			})
		}
	}

	draft.DealID = in.Deal.ID
	draft.Attempts = attempts
	draft.Flags = append(draft.Flags, DegradationFlags(in.Context)...)
	metrics.Drafts.WithLabelValues(string(draft.Status)).Inc()
	return draft
}

func (d *Drafter) generate(ctx context.Context, p string) (string, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if !apperrors.IsRetryable(lastErr) {
				break
			}
			var hinted interface{ RetryAfter() time.Duration }
			var retryAfter time.Duration
			if errors.As(lastErr, &hinted) {
				retryAfter = hinted.RetryAfter()
			}
			wait := d.Backoff(attempt, retryAfter)
			d.log.Debug("Retrying generation", map[string]interface{}{"attempt": attempt, "wait": wait.String()})
			if err := d.opts.Sleep(ctx, wait); err != nil {
				return "", attempts, apperrors.NewTimeoutError("generation", err)
			}
		}

		attempts++
		callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		text, err := d.gen.Generate(callCtx, p)
		attemptExpired := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return text, attempts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attemptExpired {
			lastErr = retryable(err)
		}
	}
	return "", attempts, lastErr
}

// retryable marks err as worth another attempt, keeping its code and details.
func retryable(err error) error {
	if se, ok := apperrors.AsStandardError(err); ok {
		marked := *se
		marked.Retryable = true
		return &marked
	}
	return apperrors.NewGenerationFailedError(err, true)
}

func rootMessage(err error) string {
	if se, ok := apperrors.AsStandardError(err); ok && se.Details != "" {
		return se.Details
	}
	return err.Error()
}

// DegradationFlags names every optional source whose research failed.
func DegradationFlags(c models.Context) []string {
	var flags []string
	for _, src := range c.FailedSources() {
		if src == models.SourceCRM {
			continue
		}
		reason := c.Statuses[src].Error
		if reason == "" {
			reason = "unknown error"
		}
		flags = append(flags, fmt.Sprintf("%s research unavailable: %s", src, reason))
	}
	return flags
}

const draftSchema = `{
  "type": "object",
  "required": ["subject", "body"],
  "properties": {
    "subject": {"type": "string", "minLength": 1},
    "body": {"type": "string", "minLength": 1},
    "talking_points": {"type": "array", "items": {"type": "string"}},
    "flags": {"type": "array", "items": {"type": "string"}},
    "research_summary": {"type": "object"}
  }
}`

var schema = validation.MustCompile(draftSchema)

type response struct {
	ResearchSummary map[string]interface{} `json:"research_summary"`
	Subject         string                 `json:"subject"`
	Body            string                 `json:"body"`
	TalkingPoints   []string               `json:"talking_points"`
	Flags           []string               `json:"flags"`
}

// ExtractJSON returns the contents of the first ```json fence, else the first ``` fence,
// else the trimmed text.
func ExtractJSON(text string) string {
	for _, fence := range []string{"```json", "```"} {
		if i := strings.Index(text, fence); i >= 0 {
			rest := text[i+len(fence):]
			if j := strings.Index(rest, "```"); j >= 0 {
				rest = rest[:j]
			}
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(text)
}

// Parse decodes generation output into a draft, falling back to the raw text as body.
func Parse(text string) models.DraftEmail {
	raw := []byte(ExtractJSON(text))
	if res := schema.ValidateJSON(raw); !res.Valid {
		return fallback(text)
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return fallback(text)
	}

	subject, body := strings.TrimSpace(r.Subject), strings.TrimSpace(r.Body)
	if subject == "" || body == "" {
		return fallback(text)
	}

	draft := models.DraftEmail{
		Subject:         subject,
		Body:            body,
		TalkingPoints:   r.TalkingPoints,
		Flags:           r.Flags,
		ResearchSummary: flatten(r.ResearchSummary),
		Status:          models.DraftOK,
	}
	if draft.TalkingPoints == nil {
		draft.TalkingPoints = []string{}
	}
	return draft
}

func fallback(text string) models.DraftEmail {
	return models.DraftEmail{
		Subject:       FallbackSubject,
		Body:          text,
		TalkingPoints: []string{},
		Flags:         []string{ParseFailedFlag},
		ResearchSummary: map[string]string{
			"their_situation": "Unable to parse - see raw response",
		},
		Status: models.DraftFallback,
	}
}

func flatten(in map[string]interface{}) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[k] = strings.Join(parts, "; ")
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
