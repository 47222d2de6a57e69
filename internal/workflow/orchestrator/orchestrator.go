// internal/workflow/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/common/metrics"
	"loan-workers/internal/models"
	"loan-workers/internal/workflow/audit"
	"loan-workers/internal/workflow/join"
	"loan-workers/internal/workflow/statemachine"
	"loan-workers/internal/workflow/store"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidPayload is returned by Intake for payloads that are not a
// flat field mapping. Field-level validation is the completeness
// stage's job, not intake's.
var ErrInvalidPayload = errors.New("INVALID_INTAKE_PAYLOAD")

// intakeSchema constrains the submission to a flat mapping of scalar
// field values.
const intakeSchema = `{
	"type": "object",
	"additionalProperties": {
		"type": ["string", "number", "integer", "boolean", "null"]
	}
}`

// Config carries the externally supplied workflow rules the
// orchestrator owns.
type Config struct {
	// MaxAttempts caps completeness verification cycles. Default 3.
	MaxAttempts int
	// SubCheckTimeout fails a missing eligibility sub-result closed.
	// Zero disables the in-process timer (tests drive Expire directly).
	SubCheckTimeout time.Duration
}

// Orchestrator owns the transition table. It looks records up by id,
// validates each stage outcome against the current status, applies the
// transition atomically through the store and routes the record to the
// next stage. Redelivered outcome events are detected by the store's
// status compare-and-swap and never applied twice.
type Orchestrator struct {
	config     Config
	store      store.RecordStore
	barrier    join.Barrier
	dispatcher Dispatcher
	sink       audit.Sink
	logger     logger.Logger
	schema     *gojsonschema.Schema
}

func New(cfg Config, st store.RecordStore, barrier join.Barrier, dispatcher Dispatcher, sink audit.Sink, log logger.Logger) (*Orchestrator, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(intakeSchema))
	if err != nil {
		return nil, fmt.Errorf("compile intake schema: %w", err)
	}

	return &Orchestrator{
		config:     cfg,
		store:      st,
		barrier:    barrier,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		schema:     schema,
	}, nil
}

// Intake accepts a new application payload, assigns an id and
// dispatches the record to the completeness queue with status
// RECEIVED.
func (o *Orchestrator) Intake(ctx context.Context, fields map[string]interface{}) (*models.LoanApplication, error) {
	result, err := o.schema.Validate(gojsonschema.NewGoLoader(fields))
	if err != nil {
		return nil, fmt.Errorf("validate intake payload: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(details, "; "))
	}

	status, err := statemachine.Next("", statemachine.Submission{})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	app := &models.LoanApplication{
		ID:        uuid.New().String(),
		Status:    status,
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
		History: []models.StatusTransition{{
			RecordID:   "",
			Timestamp:  now,
			FromStatus: "",
			ToStatus:   status,
			Stage:      StageIntake,
			Detail:     "application submitted",
		}},
	}
	app.History[0].RecordID = app.ID

	if err := o.store.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	o.audit(ctx, app.History[0])
	metrics.TransitionsApplied.WithLabelValues(StageIntake).Inc()

	if err := o.dispatchCompleteness(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// Resubmit re-enters the completeness check for an INCOMPLETE record
// after the applicant supplied updated field values.
func (o *Orchestrator) Resubmit(ctx context.Context, recordID string, fields map[string]interface{}) error {
	app, err := o.store.Get(ctx, recordID)
	if err != nil {
		return o.anomaly("resubmission", recordID, err)
	}
	if app.Status != models.StatusIncomplete {
		return o.anomaly("resubmission", recordID,
			fmt.Errorf("%w: resubmission on status %s", statemachine.ErrIllegalTransition, app.Status))
	}

	updated, err := o.store.Apply(ctx, recordID, models.StatusIncomplete, func(a *models.LoanApplication) error {
		for k, v := range fields {
			a.Fields[k] = v
		}
		return nil
	})
	if err != nil {
		return o.anomaly("resubmission", recordID, err)
	}
	return o.dispatchCompleteness(ctx, updated)
}

// HandleCompletenessOutcome consumes the completeness stage's verdict
// for one verification cycle. attempt is the cycle number echoed from
// the dispatch, which makes a redelivered outcome detectable even on
// the INCOMPLETE self-loop where the status alone cannot: the counter
// moves exactly once per cycle. The orchestrator owns the counter, and
// an INCOMPLETE verdict at the configured maximum becomes the terminal
// REJECTED_INCOMPLETE instead.
func (o *Orchestrator) HandleCompletenessOutcome(ctx context.Context, recordID string, attempt int, complete bool, missing []statemachine.FieldError) error {
	app, err := o.store.Get(ctx, recordID)
	if err != nil {
		return o.anomaly(StageCompleteness, recordID, err)
	}
	if attempt != app.AttemptCount+1 {
		return o.anomaly(StageCompleteness, recordID,
			fmt.Errorf("%w: outcome for attempt %d, counter at %d", store.ErrStatusConflict, attempt, app.AttemptCount))
	}

	ev := statemachine.CompletenessOutcome{
		Complete:          complete,
		AttemptsExhausted: !complete && app.AttemptCount+1 >= o.config.MaxAttempts,
		MissingFields:     missing,
	}

	detail := fmt.Sprintf("verification attempt %d", attempt)
	if !complete {
		detail += ": " + describeMissing(missing)
	}

	next, err := o.applyTransition(ctx, app, ev, StageCompleteness, detail, func(a *models.LoanApplication) error {
		if a.AttemptCount+1 != attempt {
			return fmt.Errorf("%w: attempt %d already recorded", store.ErrStatusConflict, attempt)
		}
		a.AttemptCount++
		return nil
	})
	if err != nil {
		return err
	}
	if next == nil {
		return nil // anomaly, dropped
	}

	switch next.Status {
	case models.StatusComplete:
		return o.dispatchEligibility(ctx, next)

	case models.StatusIncomplete:
		return o.notify(ctx, next, models.NotificationMissingFields,
			"Your application is incomplete. "+describeMissing(missing))

	case models.StatusRejectedIncomplete:
		return o.notify(ctx, next, models.NotificationStatusUpdate,
			"Your application was rejected: the maximum number of verification attempts was reached.")
	}
	return nil
}

// HandleEligibilitySubResult feeds one sub-check report into the join
// barrier. The combined decision is only evaluated once both results
// are present, regardless of arrival order.
func (o *Orchestrator) HandleEligibilitySubResult(ctx context.Context, recordID string, sub models.SubCheckResult) error {
	app, err := o.store.Get(ctx, recordID)
	if err != nil {
		return o.anomaly(StageEligibility, recordID, err)
	}
	if app.Status != models.StatusUnderReview {
		return o.anomaly(StageEligibility, recordID,
			fmt.Errorf("%w: sub-check %q reported on status %s", statemachine.ErrIllegalTransition, sub.Check, app.Status))
	}

	results, done, err := o.barrier.Record(ctx, recordID, sub)
	if err != nil {
		return fmt.Errorf("record sub-check %s for %s: %w", sub.Check, recordID, err)
	}
	if !done {
		return nil
	}
	return o.settleEligibility(ctx, app, results)
}

// ExpireEligibility fails any sub-check still missing past the
// configured timeout closed, so a lost result cannot stall the join
// barrier indefinitely.
func (o *Orchestrator) ExpireEligibility(ctx context.Context, recordID string) error {
	app, err := o.store.Get(ctx, recordID)
	if err != nil {
		return o.anomaly(StageEligibility, recordID, err)
	}
	if app.Status != models.StatusUnderReview {
		return nil // decision already settled
	}

	results, done, err := o.barrier.Expire(ctx, recordID)
	if err != nil {
		return fmt.Errorf("expire join for %s: %w", recordID, err)
	}
	if !done {
		// Nothing pending in the barrier while the record is still
		// UNDER_REVIEW: both sub-check messages were lost. Fail both
		// closed rather than leave the record stalled.
		now := time.Now().UTC()
		results = &models.EligibilityResults{
			Credit:    models.SubCheckResult{Check: models.CheckCredit, Reason: join.TimeoutReason, ReportedAt: now},
			DebtRatio: models.SubCheckResult{Check: models.CheckDebtRatio, Reason: join.TimeoutReason, ReportedAt: now},
		}
	}
	return o.settleEligibility(ctx, app, results)
}

func (o *Orchestrator) settleEligibility(ctx context.Context, app *models.LoanApplication, results *models.EligibilityResults) error {
	ev := statemachine.EligibilityOutcome{
		Eligible:     results.Eligible,
		FailedChecks: results.FailedChecks(),
	}

	detail := "both eligibility checks passed"
	if !results.Eligible {
		detail = describeFailedChecks(results)
	}

	next, err := o.applyTransition(ctx, app, ev, StageEligibility, detail, func(a *models.LoanApplication) error {
		a.Eligibility = results
		return nil
	})
	if err != nil || next == nil {
		return err
	}

	if next.Status == models.StatusPendingAgreement {
		return o.dispatch(ctx, next, StageReimbursement)
	}
	return o.notify(ctx, next, models.NotificationStatusUpdate,
		"Your application was rejected: "+detail)
}

// HandleReimbursementOutcome applies the reimbursement stage's limit
// verdict. Within limits, the record stays PENDING_AGREEMENT carrying
// the computed terms and awaits the applicant's response.
func (o *Orchestrator) HandleReimbursementOutcome(ctx context.Context, recordID string, withinLimits bool, violations []string, agreement *models.Agreement) error {
	app, err := o.store.Get(ctx, recordID)
	if err != nil {
		return o.anomaly(StageReimbursement, recordID, err)
	}

	ev := statemachine.ReimbursementOutcome{
		WithinLimits: withinLimits,
		Violations:   violations,
		Agreement:    agreement,
	}

	detail := "agreement terms prepared"
	if !withinLimits {
		detail = "limit violations: " + strings.Join(violations, ", ")
	}

	next, err := o.applyTransition(ctx, app, ev, StageReimbursement, detail, func(a *models.LoanApplication) error {
		if withinLimits {
			// PENDING_AGREEMENT to PENDING_AGREEMENT is a self-loop
			// the status check cannot dedup; terms already on the
			// record mean this outcome was applied before.
			if a.Agreement != nil {
				return fmt.Errorf("%w: agreement terms already recorded", store.ErrStatusConflict)
			}
			a.Agreement = agreement
		}
		return nil
	})
	if err != nil || next == nil {
		return err
	}

	if next.Status == models.StatusPendingAgreement {
		return o.notify(ctx, next, models.NotificationAgreementReady,
			fmt.Sprintf("Your reimbursement agreement is ready: monthly payment %.2f over %d years.",
				agreement.MonthlyPayment, agreement.DurationYears))
	}
	return o.notify(ctx, next, models.NotificationStatusUpdate,
		"Your application was rejected: "+detail)
}

// HandleApplicantResponse settles the applicant's answer to the
// prepared agreement. Acceptance finalizes the application.
func (o *Orchestrator) HandleApplicantResponse(ctx context.Context, recordID string, accepted bool) error {
	app, err := o.store.Get(ctx, recordID)
	if err != nil {
		return o.anomaly(StageAgreement, recordID, err)
	}
	if app.Agreement == nil {
		return o.anomaly(StageAgreement, recordID,
			fmt.Errorf("%w: applicant response before agreement terms", statemachine.ErrIllegalTransition))
	}

	detail := "applicant accepted the agreement"
	if !accepted {
		detail = "applicant rejected the agreement"
	}

	next, err := o.applyTransition(ctx, app, statemachine.ApplicantResponse{Accepted: accepted}, StageAgreement, detail, nil)
	if err != nil || next == nil {
		return err
	}

	if next.Status == models.StatusAgreementAccepted {
		final, err := o.applyTransition(ctx, next, statemachine.Finalization{}, StageAgreement,
			fmt.Sprintf("application completed after %d verification attempt(s) in %s",
				next.AttemptCount, time.Since(next.CreatedAt).Round(time.Second)), nil)
		if err != nil || final == nil {
			return err
		}
		return o.notify(ctx, final, models.NotificationStatusUpdate,
			"Congratulations, your loan application has been completed.")
	}
	return o.notify(ctx, next, models.NotificationStatusUpdate, "You have rejected the agreement.")
}

// applyTransition runs the pure transition function, then commits the
// result through the store's compare-and-swap. A nil record return
// (with nil error) means the event was an anomaly and was dropped.
func (o *Orchestrator) applyTransition(ctx context.Context, app *models.LoanApplication, ev statemachine.Event, stage, detail string, extra func(*models.LoanApplication) error) (*models.LoanApplication, error) {
	next, err := statemachine.Next(app.Status, ev)
	if err != nil {
		return nil, o.anomaly(stage, app.ID, err)
	}

	transition := models.StatusTransition{
		RecordID:   app.ID,
		Timestamp:  time.Now().UTC(),
		FromStatus: app.Status,
		ToStatus:   next,
		Stage:      stage,
		Detail:     detail,
	}

	// The status compare-and-swap cannot tell a redelivered self-loop
	// outcome apart from a fresh one, so extra runs inside the atomic
	// apply and may raise ErrStatusConflict from its own dedup check.
	updated, err := o.store.Apply(ctx, app.ID, app.Status, func(a *models.LoanApplication) error {
		if extra != nil {
			if err := extra(a); err != nil {
				return err
			}
		}
		a.Status = next
		a.History = append(a.History, transition)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			// Redelivery lost the race to a concurrent apply.
			return nil, o.anomaly(stage, app.ID, err)
		}
		return nil, fmt.Errorf("apply %s transition for %s: %w", stage, app.ID, err)
	}

	o.audit(ctx, transition)
	metrics.TransitionsApplied.WithLabelValues(stage).Inc()
	if statemachine.IsTerminal(next) {
		metrics.ApplicationsFinalized.WithLabelValues(string(next)).Inc()
	}
	return updated, nil
}

// dispatchCompleteness queues one verification cycle, stamping the
// cycle number the worker must echo back with its verdict.
func (o *Orchestrator) dispatchCompleteness(ctx context.Context, app *models.LoanApplication) error {
	msg := StageMessage{
		RecordID: app.ID,
		Stage:    StageCompleteness,
		Attempt:  app.AttemptCount + 1,
		Payload:  app.Fields,
	}
	if err := o.dispatcher.Dispatch(ctx, msg); err != nil {
		return fmt.Errorf("dispatch %s for %s: %w", StageCompleteness, app.ID, err)
	}
	return nil
}

// dispatchEligibility queues both sub-checks as independent units of
// work and arms the fail-closed timer, then moves the record into
// UNDER_REVIEW.
func (o *Orchestrator) dispatchEligibility(ctx context.Context, app *models.LoanApplication) error {
	next, err := o.applyTransition(ctx, app, statemachine.ReviewDispatch{}, StageEligibility, "dispatched for eligibility review", nil)
	if err != nil || next == nil {
		return err
	}

	if err := o.dispatch(ctx, next, StageCredit); err != nil {
		return err
	}
	if err := o.dispatch(ctx, next, StageDebtRatio); err != nil {
		return err
	}

	if o.config.SubCheckTimeout > 0 {
		recordID := next.ID
		time.AfterFunc(o.config.SubCheckTimeout, func() {
			if err := o.ExpireEligibility(context.Background(), recordID); err != nil {
				o.logger.Error("eligibility expiry failed", map[string]interface{}{
					"recordId": recordID,
					"error":    err.Error(),
				})
			}
		})
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, app *models.LoanApplication, stage string) error {
	msg := StageMessage{
		RecordID: app.ID,
		Stage:    stage,
		Payload:  app.Fields,
	}
	if err := o.dispatcher.Dispatch(ctx, msg); err != nil {
		return fmt.Errorf("dispatch %s for %s: %w", stage, app.ID, err)
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, app *models.LoanApplication, notifType, message string) error {
	n := models.Notification{
		ID:       uuid.New().String(),
		RecordID: app.ID,
		Type:     notifType,
		Channel:  "email",
		Message:  message,
		Payload:  map[string]interface{}{"status": app.Status},
	}
	if err := o.dispatcher.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify %s for %s: %w", notifType, app.ID, err)
	}
	return nil
}

// anomaly logs a protocol violation (unknown record, illegal or stale
// transition) and drops the event without state change.
func (o *Orchestrator) anomaly(stage, recordID string, err error) error {
	reason := "unknown"
	switch {
	case errors.Is(err, store.ErrNotFound):
		reason = "record_not_found"
	case errors.Is(err, store.ErrStatusConflict):
		reason = "status_conflict"
	case errors.Is(err, statemachine.ErrIllegalTransition):
		reason = "illegal_transition"
	}

	o.logger.Warn("anomalous event dropped", map[string]interface{}{
		"stage":    stage,
		"recordId": recordID,
		"reason":   reason,
		"error":    err.Error(),
	})
	metrics.AnomaliesDropped.WithLabelValues(reason).Inc()
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, event models.StatusTransition) {
	if err := o.sink.Write(ctx, event); err != nil {
		// Sink failures never roll a transition back.
		o.logger.Error("audit sink write failed", map[string]interface{}{
			"recordId": event.RecordID,
			"error":    err.Error(),
		})
	}
}

func describeMissing(missing []statemachine.FieldError) string {
	if len(missing) == 0 {
		return "no field details reported"
	}
	parts := make([]string, 0, len(missing))
	for _, fe := range missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", fe.Field, fe.Message))
	}
	return "missing or invalid fields: " + strings.Join(parts, ", ")
}

func describeFailedChecks(results *models.EligibilityResults) string {
	var parts []string
	if !results.Credit.Passed {
		parts = append(parts, results.Credit.Reason)
	}
	if !results.DebtRatio.Passed {
		parts = append(parts, results.DebtRatio.Reason)
	}
	return strings.Join(parts, "; ")
}
