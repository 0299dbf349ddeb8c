package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler turns run-level failures into Zeebe job failures or BPMN errors.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Decision is what the handler does with a failed job.
type Decision struct {
	Error *BPMNError
	// Retry fails the job with Retries left; otherwise the BPMN error is thrown.
	Retry   bool
	Retries int
}

// Decide maps err to a decision given the retries the job has left. The last attempt always
// throws a BPMN error instead of exhausting retries into an incident.
func Decide(err error, jobRetries int32) Decision {
	bpmnErr := ConvertToBPMNError(Normalize(err))
	if bpmnErr.Retries == 0 || jobRetries <= 1 {
		return Decision{Error: bpmnErr}
	}

	retries := bpmnErr.Retries
	if left := int(jobRetries) - 1; left < retries {
		retries = left
	}
	return Decision{Error: bpmnErr, Retry: true, Retries: retries}
}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	d := Decide(stdErr, job.Retries)
	h.logDecision(job, stdErr, d)

	vars, marshalErr := json.Marshal(d.Error.ToErrorVariables())

	if d.Retry {
		cmd := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(int32(d.Retries)).
			ErrorMessage(d.Error.Message)
		if marshalErr == nil {
			if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
				_, err = withVars.Send(ctx)
				h.report(job, "fail", err)
				return
			}
		}
		_, err := cmd.Send(ctx)
		h.report(job, "fail", err)
		return
	}

	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(d.Error.Code).
		ErrorMessage(d.Error.Message)
	if marshalErr == nil {
		if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
			_, err = withVars.Send(ctx)
			h.report(job, "throw", err)
			return
		}
	}
	_, sendErr := cmd.Send(ctx)
	h.report(job, "throw", sendErr)
}

func (h *ErrorHandler) report(job entities.Job, action string, err error) {
	if err == nil {
		return
	}
	h.logger.Error("failed to report job outcome", map[string]interface{}{
		"jobKey": job.Key,
		"action": action,
		"error":  err.Error(),
	})
}

func (h *ErrorHandler) logDecision(job entities.Job, stdErr *StandardError, d Decision) {
	fields := map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    d.Error.Code,
		"message":          d.Error.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retriesLeft":      d.Retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	}
	if d.Retry {
		h.logger.Warn("job failed, will retry", fields)
		return
	}
	h.logger.Error("job failed", fields)
}

// Normalize returns err as a *StandardError, wrapping unknown errors as INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}
