package runfollowupdigest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/sneurgaonkar/sales-ai-agents/internal/app"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/metrics"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/validation"
)

const TaskType = "run-followup-digest"

var inputSchema = validation.MustCompile(`{
  "type": "object",
  "properties": {
    "stages": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "staleThresholdDays": {"type": "integer", "minimum": 0},
    "dryRun": {"type": "boolean"}
  }
}`)

// Runner executes one follow-up run.
type Runner interface {
	Run(ctx context.Context, opts app.RunOptions) (*app.RunResult, error)
}

type Handler struct {
	config       *Config
	runner       Runner
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Runner       Runner
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := opts.CustomConfig
	if workerConfig == nil {
		workerConfig = ConfigFromApp(opts.AppConfig)
	}
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("invalid configuration for %s: runner is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.With(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       workerConfig,
		runner:       opts.Runner,
		logger:       log,
		errorHandler: errors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Config() *Config { return h.config }

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing follow-up digest job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job.GetVariables())
	if err == nil {
		var output *Output
		output, err = h.Execute(ctx, input)
		if err == nil {
			h.completeJob(ctx, client, job, output)
			metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
			metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
			return
		}
	}

	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	if strings.TrimSpace(variables) == "" {
		variables = "{}"
	}

	result := inputSchema.ValidateJSON([]byte(variables))
	if !result.Valid {
		return nil, errors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("failed to parse job variables: %v", err))
	}
	return &input, nil
}

// Execute runs the pipeline and maps the result to job variables.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.runner.Run(ctx, app.RunOptions{
		Stages:             input.Stages,
		StaleThresholdDays: input.StaleThresholdDays,
		DryRun:             input.DryRun,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("followup run", err)
		}
		return nil, err
	}
	return toOutput(res), nil
}

func toOutput(res *app.RunResult) *Output {
	return &Output{
		RunID:        res.RunID,
		DealsScanned: res.DealsScanned,
		StaleDeals:   res.StaleDeals,
		Drafted:      res.Counts.OK + res.Counts.Partial,
		Fallback:     res.Counts.Fallback,
		Failed:       res.Counts.Failed,
		Skipped:      res.Counts.SkippedTimeout,
		DigestPath:   res.DigestPath,
		DigestSent:   res.DigestSent,
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	h.logger.Info("Follow-up digest job completed", map[string]interface{}{
		"jobKey":     job.GetKey(),
		"runId":      output.RunID,
		"staleDeals": output.StaleDeals,
		"drafted":    output.Drafted,
		"digestSent": output.DigestSent,
	})
}
