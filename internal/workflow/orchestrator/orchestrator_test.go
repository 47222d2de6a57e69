// internal/workflow/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"testing"
	"time"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/models"
	"loan-workers/internal/workflow/audit"
	"loan-workers/internal/workflow/join"
	"loan-workers/internal/workflow/statemachine"
	"loan-workers/internal/workflow/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	orc        *Orchestrator
	store      *store.MemoryStore
	barrier    *join.MemoryBarrier
	dispatcher *MemoryDispatcher
	sink       *audit.MemorySink
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		store:      store.NewMemoryStore(),
		barrier:    join.NewMemoryBarrier(),
		dispatcher: NewMemoryDispatcher(),
		sink:       audit.NewMemorySink(),
	}

	orc, err := New(Config{MaxAttempts: 3}, env.store, env.barrier, env.dispatcher, env.sink, logger.NewTestLogger(t))
	require.NoError(t, err)
	env.orc = orc
	return env
}

func sampleFields() map[string]interface{} {
	return map[string]interface{}{
		"client_name":           "Alexandre Dubois",
		"address":               "25 Avenue Montaigne, 75008 Paris",
		"email":                 "alexandre.dubois@email.com",
		"phone":                 "+33 6 12 34 56 78",
		"loan_amount":           2500000.0,
		"loan_duration_years":   25,
		"property_description":  "Apartment with terrace",
		"monthly_income":        35000.0,
		"monthly_expenses":      8000.0,
		"credit_score":          720,
		"identity_verification": "passport-FR-123",
	}
}

func (env *testEnv) intake(t *testing.T) *models.LoanApplication {
	app, err := env.orc.Intake(context.Background(), sampleFields())
	require.NoError(t, err)
	return app
}

// advance drives a record through completeness pass into UNDER_REVIEW.
func (env *testEnv) advanceToReview(t *testing.T, id string) {
	require.NoError(t, env.orc.HandleCompletenessOutcome(context.Background(), id, 1, true, nil))
	env.requireStatus(t, id, models.StatusUnderReview)
}

func (env *testEnv) requireStatus(t *testing.T, id string, want models.LoanStatus) {
	app, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, app.Status)
}

func TestIntake(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)

	assert.NotEmpty(t, app.ID)
	assert.Equal(t, models.StatusReceived, app.Status)
	assert.Zero(t, app.AttemptCount)

	msgs := env.dispatcher.MessagesFor(StageCompleteness)
	require.Len(t, msgs, 1)
	assert.Equal(t, app.ID, msgs[0].RecordID)

	events := env.sink.EventsFor(app.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.StatusReceived, events[0].ToStatus)
	assert.Equal(t, StageIntake, events[0].Stage)
}

func TestIntake_RejectsNonScalarPayload(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orc.Intake(context.Background(), map[string]interface{}{
		"client_name": "Alexandre Dubois",
		"nested":      map[string]interface{}{"not": "allowed"},
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCompletenessRetryLoop_AttemptsBounded(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	ctx := context.Background()

	missing := []statemachine.FieldError{{Field: "identity_verification", Message: "required field missing"}}

	// Three failed verification cycles in a row.
	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 1, false, missing))
	env.requireStatus(t, app.ID, models.StatusIncomplete)

	require.NoError(t, env.orc.Resubmit(ctx, app.ID, map[string]interface{}{"phone": "+33 6 00 00 00 00"}))
	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 2, false, missing))
	env.requireStatus(t, app.ID, models.StatusIncomplete)

	require.NoError(t, env.orc.Resubmit(ctx, app.ID, map[string]interface{}{"phone": "+33 6 00 00 00 01"}))
	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 3, false, missing))
	env.requireStatus(t, app.ID, models.StatusRejectedIncomplete)

	got, err := env.store.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AttemptCount, "exactly three recorded attempts")

	var statuses []models.LoanStatus
	for _, e := range env.sink.EventsFor(app.ID) {
		statuses = append(statuses, e.ToStatus)
	}
	assert.Equal(t, []models.LoanStatus{
		models.StatusReceived,
		models.StatusIncomplete,
		models.StatusIncomplete,
		models.StatusRejectedIncomplete,
	}, statuses)

	// A fourth verification cycle is never scheduled.
	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 4, false, missing))
	got, err = env.store.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AttemptCount)
}

func TestCompletenessIncomplete_NotifiesMissingFields(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)

	missing := []statemachine.FieldError{
		{Field: "email", Message: "invalid email format"},
		{Field: "monthly_income", Message: "required field missing"},
	}
	require.NoError(t, env.orc.HandleCompletenessOutcome(context.Background(), app.ID, 1, false, missing))

	notifs := env.dispatcher.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationMissingFields, notifs[0].Type)
	assert.Contains(t, notifs[0].Message, "email (invalid email format)")
	assert.Contains(t, notifs[0].Message, "monthly_income (required field missing)")
}

func TestCompletenessPass_DispatchesBothSubChecks(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)

	env.advanceToReview(t, app.ID)

	assert.Len(t, env.dispatcher.MessagesFor(StageCredit), 1)
	assert.Len(t, env.dispatcher.MessagesFor(StageDebtRatio), 1)
}

func TestEligibility_NoDecisionOnPartialResults(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()

	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, models.SubCheckResult{
		Check: models.CheckCredit, Passed: true, ReportedAt: time.Now().UTC(),
	}))

	// One result must never trigger a transition.
	env.requireStatus(t, app.ID, models.StatusUnderReview)
	assert.Empty(t, env.dispatcher.MessagesFor(StageReimbursement))
}

func TestEligibility_JoinOrderIndependence(t *testing.T) {
	credit := models.SubCheckResult{Check: models.CheckCredit, Passed: true, ReportedAt: time.Now().UTC()}
	debtRatio := models.SubCheckResult{Check: models.CheckDebtRatio, Passed: true, ReportedAt: time.Now().UTC()}

	orders := map[string][]models.SubCheckResult{
		"credit first":     {credit, debtRatio},
		"debt ratio first": {debtRatio, credit},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			app := env.intake(t)
			env.advanceToReview(t, app.ID)
			ctx := context.Background()

			for _, sub := range order {
				require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, sub))
			}

			env.requireStatus(t, app.ID, models.StatusPendingAgreement)
			assert.Len(t, env.dispatcher.MessagesFor(StageReimbursement), 1)
		})
	}
}

func TestEligibility_DTIFailureAnnotated(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()

	// income=5000, expenses=2200: ratio 0.44 > 0.43, credit 700 passes.
	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, models.SubCheckResult{
		Check: models.CheckCredit, Passed: true, ReportedAt: time.Now().UTC(),
	}))
	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, models.SubCheckResult{
		Check: models.CheckDebtRatio, Passed: false, Reason: "DTI exceeded", ReportedAt: time.Now().UTC(),
	}))

	env.requireStatus(t, app.ID, models.StatusRejectedIneligible)

	got, err := env.store.Get(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Eligibility)
	assert.Equal(t, []string{models.CheckDebtRatio}, got.Eligibility.FailedChecks())

	events := env.sink.EventsFor(app.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.StatusRejectedIneligible, last.ToStatus)
	assert.Contains(t, last.Detail, "DTI exceeded")
}

func TestEligibility_CreditFailureAnnotated(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()

	// credit 600 < 650, DTI 0.40 passes.
	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, models.SubCheckResult{
		Check: models.CheckDebtRatio, Passed: true, ReportedAt: time.Now().UTC(),
	}))
	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, models.SubCheckResult{
		Check: models.CheckCredit, Passed: false, Reason: "credit score below minimum", ReportedAt: time.Now().UTC(),
	}))

	env.requireStatus(t, app.ID, models.StatusRejectedIneligible)

	events := env.sink.EventsFor(app.ID)
	assert.Contains(t, events[len(events)-1].Detail, "credit score below minimum")
}

func TestEligibility_TimeoutFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()

	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, models.SubCheckResult{
		Check: models.CheckCredit, Passed: true, ReportedAt: time.Now().UTC(),
	}))
	require.NoError(t, env.orc.ExpireEligibility(ctx, app.ID))

	env.requireStatus(t, app.ID, models.StatusRejectedIneligible)

	got, err := env.store.Get(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Eligibility)
	assert.Equal(t, join.TimeoutReason, got.Eligibility.DebtRatio.Reason)
}

func TestReimbursement_LimitViolationRejects(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()
	settleEligible(t, env, app.ID)

	// Monthly payment 5200 over the configured 5000 maximum.
	require.NoError(t, env.orc.HandleReimbursementOutcome(ctx, app.ID, false,
		[]string{"monthly payment 5200.00 exceeds maximum 5000.00"}, nil))

	env.requireStatus(t, app.ID, models.StatusRejected)

	events := env.sink.EventsFor(app.ID)
	assert.Contains(t, events[len(events)-1].Detail, "monthly payment 5200.00 exceeds maximum 5000.00")
}

func TestReimbursement_WithinLimitsAwaitsApplicant(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()
	settleEligible(t, env, app.ID)

	agreement := &models.Agreement{
		LoanAmount:     2500000,
		DurationYears:  25,
		MonthlyPayment: 13193.46,
		TotalPayments:  300,
	}
	require.NoError(t, env.orc.HandleReimbursementOutcome(ctx, app.ID, true, nil, agreement))

	env.requireStatus(t, app.ID, models.StatusPendingAgreement)

	got, err := env.store.Get(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Agreement)
	assert.Equal(t, 300, got.Agreement.TotalPayments)

	notifs := env.dispatcher.Notifications()
	require.NotEmpty(t, notifs)
	assert.Equal(t, models.NotificationAgreementReady, notifs[len(notifs)-1].Type)
}

func TestApplicantResponse_BeforeTermsIsAnomaly(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	settleEligible(t, env, app.ID)

	// No agreement prepared yet.
	require.NoError(t, env.orc.HandleApplicantResponse(context.Background(), app.ID, true))
	env.requireStatus(t, app.ID, models.StatusPendingAgreement)
}

func TestApplicantRejects(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()
	settleEligible(t, env, app.ID)
	require.NoError(t, env.orc.HandleReimbursementOutcome(ctx, app.ID, true, nil, &models.Agreement{MonthlyPayment: 4200, DurationYears: 20}))

	require.NoError(t, env.orc.HandleApplicantResponse(ctx, app.ID, false))
	env.requireStatus(t, app.ID, models.StatusAgreementRejected)
}

func TestFullRoundTrip_GapFreeAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	ctx := context.Background()

	env.advanceToReview(t, app.ID)
	settleEligible(t, env, app.ID)
	require.NoError(t, env.orc.HandleReimbursementOutcome(ctx, app.ID, true, nil,
		&models.Agreement{MonthlyPayment: 4200, DurationYears: 20, TotalPayments: 240}))
	require.NoError(t, env.orc.HandleApplicantResponse(ctx, app.ID, true))

	env.requireStatus(t, app.ID, models.StatusCompleted)

	events := env.sink.EventsFor(app.ID)
	var statuses []models.LoanStatus
	for i, e := range events {
		statuses = append(statuses, e.ToStatus)
		if i > 0 {
			assert.Equal(t, events[i-1].ToStatus, e.FromStatus, "audit trail must be gap-free")
			assert.False(t, e.Timestamp.Before(events[i-1].Timestamp), "audit trail must be monotonic")
		}
	}
	assert.Equal(t, []models.LoanStatus{
		models.StatusReceived,
		models.StatusComplete,
		models.StatusUnderReview,
		models.StatusPendingAgreement,
		models.StatusPendingAgreement,
		models.StatusAgreementAccepted,
		models.StatusCompleted,
	}, statuses)

	// COMPLETED_APPLICATION is reached exactly once.
	completed := 0
	for _, s := range statuses {
		if s == models.StatusCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestRedelivery_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	ctx := context.Background()

	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 1, true, nil))
	env.requireStatus(t, app.ID, models.StatusUnderReview)
	before := len(env.sink.EventsFor(app.ID))

	// Broker redelivers the same outcome event.
	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 1, true, nil))

	env.requireStatus(t, app.ID, models.StatusUnderReview)
	assert.Equal(t, before, len(env.sink.EventsFor(app.ID)), "redelivery must not append transitions")
	assert.Len(t, env.dispatcher.MessagesFor(StageCredit), 1, "sub-checks dispatched once")
}

func TestTerminalState_EventsDropped(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	ctx := context.Background()

	missing := []statemachine.FieldError{{Field: "email", Message: "required field missing"}}
	for attempt := 1; attempt <= 3; attempt++ {
		require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, attempt, false, missing))
	}
	env.requireStatus(t, app.ID, models.StatusRejectedIncomplete)
	before := len(env.sink.EventsFor(app.ID))

	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 4, true, nil))
	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, app.ID, models.SubCheckResult{Check: models.CheckCredit, Passed: true}))
	require.NoError(t, env.orc.HandleReimbursementOutcome(ctx, app.ID, true, nil, &models.Agreement{}))
	require.NoError(t, env.orc.HandleApplicantResponse(ctx, app.ID, true))

	env.requireStatus(t, app.ID, models.StatusRejectedIncomplete)
	assert.Equal(t, before, len(env.sink.EventsFor(app.ID)))
}

func TestUnknownRecord_EventDropped(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.orc.HandleCompletenessOutcome(context.Background(), "no-such-record", 1, true, nil))
	assert.NoError(t, env.orc.HandleApplicantResponse(context.Background(), "no-such-record", true))
	assert.Empty(t, env.dispatcher.Messages())
}

func TestEligibilityTimeout_NoResultsRecordedFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()

	// Both sub-check messages were lost: the barrier holds nothing for
	// the record, but the timeout must still settle the decision.
	require.NoError(t, env.orc.ExpireEligibility(ctx, app.ID))

	env.requireStatus(t, app.ID, models.StatusRejectedIneligible)

	got, err := env.store.Get(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Eligibility)
	assert.False(t, got.Eligibility.Eligible)
	assert.Equal(t, join.TimeoutReason, got.Eligibility.Credit.Reason)
	assert.Equal(t, join.TimeoutReason, got.Eligibility.DebtRatio.Reason)
}

func TestIncompleteRedelivery_CountsOneAttempt(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	ctx := context.Background()

	missing := []statemachine.FieldError{{Field: "email", Message: "required field missing"}}

	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 1, false, missing))
	env.requireStatus(t, app.ID, models.StatusIncomplete)
	events := len(env.sink.EventsFor(app.ID))
	notifs := len(env.dispatcher.Notifications())

	// The INCOMPLETE self-loop passes the status check, so the echoed
	// attempt number is what keeps a redelivered verdict from counting
	// a second verification cycle.
	require.NoError(t, env.orc.HandleCompletenessOutcome(ctx, app.ID, 1, false, missing))

	got, err := env.store.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttemptCount, "one verification cycle, one increment")
	assert.Equal(t, events, len(env.sink.EventsFor(app.ID)), "redelivery must not append transitions")
	assert.Equal(t, notifs, len(env.dispatcher.Notifications()), "redelivery must not re-notify")
}

func TestReimbursementRedelivery_RecordsTermsOnce(t *testing.T) {
	env := newTestEnv(t)
	app := env.intake(t)
	env.advanceToReview(t, app.ID)
	ctx := context.Background()
	settleEligible(t, env, app.ID)

	agreement := &models.Agreement{MonthlyPayment: 4200, DurationYears: 20, TotalPayments: 240}
	require.NoError(t, env.orc.HandleReimbursementOutcome(ctx, app.ID, true, nil, agreement))
	events := len(env.sink.EventsFor(app.ID))
	notifs := len(env.dispatcher.Notifications())

	// Within-limits replays the PENDING_AGREEMENT status, so the
	// already-recorded terms are what mark the outcome as applied.
	require.NoError(t, env.orc.HandleReimbursementOutcome(ctx, app.ID, true, nil, agreement))

	env.requireStatus(t, app.ID, models.StatusPendingAgreement)
	assert.Equal(t, events, len(env.sink.EventsFor(app.ID)), "redelivery must not append transitions")
	assert.Equal(t, notifs, len(env.dispatcher.Notifications()), "redelivery must not re-notify")
}

func settleEligible(t *testing.T, env *testEnv, id string) {
	ctx := context.Background()
	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, id, models.SubCheckResult{
		Check: models.CheckCredit, Passed: true, ReportedAt: time.Now().UTC(),
	}))
	require.NoError(t, env.orc.HandleEligibilitySubResult(ctx, id, models.SubCheckResult{
		Check: models.CheckDebtRatio, Passed: true, ReportedAt: time.Now().UTC(),
	}))
	env.requireStatus(t, id, models.StatusPendingAgreement)
}
