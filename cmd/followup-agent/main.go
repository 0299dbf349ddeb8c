// cmd/followup-agent/main.go runs one follow-up pass and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/sneurgaonkar/sales-ai-agents/internal/app"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a config file (default: configs/config.yaml lookup)")
	dryRun := flag.Bool("dry-run", false, "write the digest locally without delivering it")
	stages := flag.String("stages", "", "comma-separated pipeline stages, overriding followup.target_stages")
	threshold := flag.Int("threshold", -1, "days without a sent email before a deal is stale, overriding followup.stale_threshold_days")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return 1
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	if err != nil {
		zapLog.Warn("tracing disabled", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	svc, err := app.Build(ctx, cfg, log)
	if err != nil {
		zapLog.Error("service wiring failed", zap.Error(err))
		return 1
	}
	defer svc.Close()

	opts := app.RunOptions{DryRun: *dryRun}
	if *stages != "" {
		for _, s := range strings.Split(*stages, ",") {
			if s = strings.TrimSpace(s); s != "" {
				opts.Stages = append(opts.Stages, s)
			}
		}
	}
	if *threshold >= 0 {
		opts.StaleThresholdDays = threshold
	}

	res, err := svc.Run(ctx, opts)
	if res != nil {
		zapLog.Info("Run summary",
			zap.String("runId", res.RunID),
			zap.Int("dealsScanned", res.DealsScanned),
			zap.Int("staleDeals", res.StaleDeals),
			zap.Int("ok", res.Counts.OK),
			zap.Int("partial", res.Counts.Partial),
			zap.Int("fallback", res.Counts.Fallback),
			zap.Int("failed", res.Counts.Failed),
			zap.Int("skipped", res.Counts.SkippedTimeout),
			zap.String("digestPath", res.DigestPath),
			zap.Bool("digestSent", res.DigestSent),
		)
	}
	if err != nil {
		zapLog.Error("follow-up run failed", zap.Error(err))
		return 1
	}
	return 0
}
