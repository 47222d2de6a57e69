// internal/common/camunda/orchestrator_jobs.go
package camunda

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/common/metrics"
	"loan-workers/internal/models"
	"loan-workers/internal/workflow/orchestrator"
	"loan-workers/internal/workflow/statemachine"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Task types served by the orchestrator side of the process. Stage
// workers compute verdicts; these tasks record them against the loan
// record and route the next stage.
const (
	TaskIntake             = "loan-intake"
	TaskResubmit           = "loan-resubmit"
	TaskRecordCompleteness = "record-completeness-outcome"
	TaskRecordSubCheck     = "record-eligibility-result"
	TaskEligibilityTimeout = "eligibility-timeout"
	TaskRecordAgreement    = "record-agreement-terms"
	TaskApplicantResponse  = "record-applicant-response"
)

// OrchestratorJobs adapts broker jobs onto orchestrator operations.
// Anomalies (unknown records, illegal or stale transitions) are
// already absorbed by the orchestrator, so a redelivered job completes
// cleanly; only transport and store faults fail the job and leave it
// to the broker's retry budget.
type OrchestratorJobs struct {
	orc     *orchestrator.Orchestrator
	errors  *apperrors.ErrorHandler
	timeout time.Duration
	logger  logger.Logger
}

func NewOrchestratorJobs(orc *orchestrator.Orchestrator, timeout time.Duration, log logger.Logger) *OrchestratorJobs {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jobLog := log.WithFields(map[string]interface{}{"component": "orchestrator-jobs"})
	return &OrchestratorJobs{
		orc:     orc,
		errors:  apperrors.NewErrorHandler(jobLog),
		timeout: timeout,
		logger:  jobLog,
	}
}

func (j *OrchestratorJobs) HandleIntake(client worker.JobClient, job entities.Job) {
	defer j.observe(job.Type, time.Now())

	var input struct {
		Fields map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		j.fail(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	app, err := j.orc.Intake(ctx, input.Fields)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidPayload) {
			j.fail(client, job, apperrors.NewInvalidIntakePayloadError(err.Error()))
			return
		}
		j.fail(client, job, apperrors.NewTransitionApplyFailedError(job.Type, err))
		return
	}

	j.completeJob(client, job, map[string]interface{}{
		"recordId": app.ID,
		"status":   string(app.Status),
	})
}

func (j *OrchestratorJobs) HandleResubmit(client worker.JobClient, job entities.Job) {
	defer j.observe(job.Type, time.Now())

	var input struct {
		RecordID string                 `json:"recordId"`
		Fields   map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		j.fail(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.orc.Resubmit(ctx, input.RecordID, input.Fields); err != nil {
		j.fail(client, job, apperrors.NewTransitionApplyFailedError(job.Type, err))
		return
	}
	j.completeJob(client, job, nil)
}

func (j *OrchestratorJobs) HandleCompletenessOutcome(client worker.JobClient, job entities.Job) {
	defer j.observe(job.Type, time.Now())

	var input struct {
		RecordID      string                    `json:"recordId"`
		Attempt       int                       `json:"attempt"`
		Complete      bool                      `json:"complete"`
		MissingFields []statemachine.FieldError `json:"missingFields"`
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		j.fail(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.orc.HandleCompletenessOutcome(ctx, input.RecordID, input.Attempt, input.Complete, input.MissingFields); err != nil {
		j.fail(client, job, apperrors.NewTransitionApplyFailedError(job.Type, err))
		return
	}
	j.completeJob(client, job, nil)
}

func (j *OrchestratorJobs) HandleSubCheckResult(client worker.JobClient, job entities.Job) {
	defer j.observe(job.Type, time.Now())

	var input struct {
		RecordID string `json:"recordId"`
		Check    string `json:"check"`
		Passed   bool   `json:"passed"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		j.fail(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	sub := models.SubCheckResult{
		Check:      input.Check,
		Passed:     input.Passed,
		Reason:     input.Reason,
		ReportedAt: time.Now().UTC(),
	}
	if err := j.orc.HandleEligibilitySubResult(ctx, input.RecordID, sub); err != nil {
		j.fail(client, job, apperrors.NewTransitionApplyFailedError(job.Type, err))
		return
	}
	j.completeJob(client, job, nil)
}

func (j *OrchestratorJobs) HandleEligibilityTimeout(client worker.JobClient, job entities.Job) {
	defer j.observe(job.Type, time.Now())

	var input struct {
		RecordID string `json:"recordId"`
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		j.fail(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.orc.ExpireEligibility(ctx, input.RecordID); err != nil {
		j.fail(client, job, apperrors.NewTransitionApplyFailedError(job.Type, err))
		return
	}
	j.completeJob(client, job, nil)
}

func (j *OrchestratorJobs) HandleAgreementTerms(client worker.JobClient, job entities.Job) {
	defer j.observe(job.Type, time.Now())

	var input struct {
		RecordID     string            `json:"recordId"`
		WithinLimits bool              `json:"withinLimits"`
		Violations   []string          `json:"violations"`
		Agreement    *models.Agreement `json:"agreement"`
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		j.fail(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.orc.HandleReimbursementOutcome(ctx, input.RecordID, input.WithinLimits, input.Violations, input.Agreement); err != nil {
		j.fail(client, job, apperrors.NewTransitionApplyFailedError(job.Type, err))
		return
	}
	j.completeJob(client, job, nil)
}

func (j *OrchestratorJobs) HandleApplicantResponse(client worker.JobClient, job entities.Job) {
	defer j.observe(job.Type, time.Now())

	var input struct {
		RecordID string `json:"recordId"`
		Accepted bool   `json:"accepted"`
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		j.fail(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.orc.HandleApplicantResponse(ctx, input.RecordID, input.Accepted); err != nil {
		j.fail(client, job, apperrors.NewTransitionApplyFailedError(job.Type, err))
		return
	}
	j.completeJob(client, job, nil)
}

func (j *OrchestratorJobs) completeJob(client worker.JobClient, job entities.Job, vars map[string]interface{}) {
	cmd := client.NewCompleteJobCommand().JobKey(job.Key)
	if vars != nil {
		withVars, err := cmd.VariablesFromMap(vars)
		if err != nil {
			j.logger.Error("failed to marshal job variables", map[string]interface{}{
				"jobKey": job.Key,
				"error":  err,
			})
			return
		}
		if _, err := withVars.Send(context.Background()); err != nil {
			j.logger.Error("failed to complete job", map[string]interface{}{
				"jobKey": job.Key,
				"error":  err,
			})
			return
		}
		metrics.WorkerJobsCompleted.WithLabelValues(job.Type).Inc()
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		j.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(job.Type).Inc()
}

// fail delegates to the shared error handler, which decides between a
// retrying job failure and a BPMN error throw based on the error code.
func (j *OrchestratorJobs) fail(client worker.JobClient, job entities.Job, stdErr *apperrors.StandardError) {
	metrics.WorkerJobsFailed.WithLabelValues(job.Type, string(stdErr.Code)).Inc()
	j.errors.HandleJobError(context.Background(), client, job, stdErr)
}

func (j *OrchestratorJobs) observe(taskType string, start time.Time) {
	metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
}
