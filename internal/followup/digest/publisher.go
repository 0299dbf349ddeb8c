package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

// Subject is the digest email subject for the day of t.
func Subject(t time.Time) string {
	return "Daily Follow-up Digest - " + t.Format("January 2, 2006")
}

// FileName is the local copy name for a digest generated at t.
func FileName(t time.Time) string {
	return "followup_digest_" + t.Format("20060102_150405") + ".html"
}

type Options struct {
	Recipients []string
	From       string
	// OutputDir receives the local copy; empty means the OS temp dir.
	OutputDir string
	// Sender may be nil, in which case only the local copy is written.
	Sender  Sender
	Alerter Alerter
	Logger  logger.Logger
	Now     func() time.Time
}

type Publisher struct {
	opts Options
	log  logger.Logger
}

type Result struct {
	Path     string
	Sent     bool
	Provider string
}

func NewPublisher(opts Options) *Publisher {
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{opts: opts, log: logger.ForComponent(opts.Logger, "digest")}
}

// Publish renders the report, writes the local copy and, unless dryRun, sends it.
// A failed local write is logged and does not stop delivery.
func (p *Publisher) Publish(ctx context.Context, report *models.RunReport, dryRun bool) (*Result, error) {
	now := p.opts.Now()
	html, err := Render(report, now)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	res := &Result{}
	path := filepath.Join(p.opts.OutputDir, FileName(now))
	if err := os.WriteFile(path, html, 0o644); err != nil {
		p.log.Warn("Could not write local digest copy", map[string]interface{}{"path": path, "error": err.Error()})
	} else {
		res.Path = path
		p.log.Info("Digest written", map[string]interface{}{"path": path})
	}

	counts := report.Counts()
	if counts.Failed > 0 || counts.SkippedTimeout > 0 {
		p.alert(ctx, "Follow-up run degraded", fmt.Sprintf(
			"Run %s: %d of %d deals failed, %d skipped at the run deadline.",
			report.RunID, counts.Failed, counts.Total, counts.SkippedTimeout))
	}

	switch {
	case dryRun:
		p.log.Info("Dry run, digest not sent", nil)
		return res, nil
	case p.opts.Sender == nil:
		p.log.Info("No delivery provider configured, digest not sent", nil)
		return res, nil
	case len(p.opts.Recipients) == 0:
		p.log.Warn("No digest recipients configured", nil)
		return res, nil
	}

	res.Provider = p.opts.Sender.Name()
	err = p.opts.Sender.Send(ctx, Message{
		From:    p.opts.From,
		To:      p.opts.Recipients,
		Subject: Subject(now),
		HTML:    string(html),
	})
	if err != nil {
		derr := apperrors.NewDeliveryFailedError(res.Provider, err)
		p.alert(ctx, "Follow-up digest delivery failed", derr.Error())
		return res, derr
	}

	res.Sent = true
	p.log.Info("Digest sent", map[string]interface{}{
		"provider":   res.Provider,
		"recipients": len(p.opts.Recipients),
	})
	return res, nil
}

func (p *Publisher) alert(ctx context.Context, subject, message string) {
	if p.opts.Alerter == nil {
		return
	}
	if err := p.opts.Alerter.Alert(ctx, subject, message); err != nil {
		p.log.Warn("Alert publish failed", map[string]interface{}{"error": err.Error()})
	}
}
