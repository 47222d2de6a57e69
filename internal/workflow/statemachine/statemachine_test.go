// internal/workflow/statemachine/statemachine_test.go
package statemachine

import (
	"errors"
	"testing"

	"loan-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_TransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		current models.LoanStatus
		event   Event
		want    models.LoanStatus
	}{
		{
			name:    "submission creates received record",
			current: "",
			event:   Submission{},
			want:    models.StatusReceived,
		},
		{
			name:    "completeness pass from received",
			current: models.StatusReceived,
			event:   CompletenessOutcome{Complete: true},
			want:    models.StatusComplete,
		},
		{
			name:    "completeness fail with attempts remaining",
			current: models.StatusReceived,
			event:   CompletenessOutcome{Complete: false},
			want:    models.StatusIncomplete,
		},
		{
			name:    "completeness pass after resubmission",
			current: models.StatusIncomplete,
			event:   CompletenessOutcome{Complete: true},
			want:    models.StatusComplete,
		},
		{
			name:    "completeness fail repeats incomplete",
			current: models.StatusIncomplete,
			event:   CompletenessOutcome{Complete: false},
			want:    models.StatusIncomplete,
		},
		{
			name:    "attempts exhausted is terminal rejection",
			current: models.StatusIncomplete,
			event:   CompletenessOutcome{Complete: false, AttemptsExhausted: true},
			want:    models.StatusRejectedIncomplete,
		},
		{
			name:    "dispatch to review",
			current: models.StatusComplete,
			event:   ReviewDispatch{},
			want:    models.StatusUnderReview,
		},
		{
			name:    "both eligibility checks pass",
			current: models.StatusUnderReview,
			event:   EligibilityOutcome{Eligible: true},
			want:    models.StatusPendingAgreement,
		},
		{
			name:    "any eligibility check fails",
			current: models.StatusUnderReview,
			event:   EligibilityOutcome{Eligible: false, FailedChecks: []string{models.CheckCredit}},
			want:    models.StatusRejectedIneligible,
		},
		{
			name:    "agreement within limits awaits applicant",
			current: models.StatusPendingAgreement,
			event:   ReimbursementOutcome{WithinLimits: true},
			want:    models.StatusPendingAgreement,
		},
		{
			name:    "agreement limit violation rejects",
			current: models.StatusPendingAgreement,
			event:   ReimbursementOutcome{WithinLimits: false, Violations: []string{"monthly payment exceeds maximum"}},
			want:    models.StatusRejected,
		},
		{
			name:    "applicant accepts",
			current: models.StatusPendingAgreement,
			event:   ApplicantResponse{Accepted: true},
			want:    models.StatusAgreementAccepted,
		},
		{
			name:    "applicant rejects",
			current: models.StatusPendingAgreement,
			event:   ApplicantResponse{Accepted: false},
			want:    models.StatusAgreementRejected,
		},
		{
			name:    "finalization completes the application",
			current: models.StatusAgreementAccepted,
			event:   Finalization{},
			want:    models.StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.current, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_TerminalStatesAreFinal(t *testing.T) {
	terminals := []models.LoanStatus{
		models.StatusRejectedIncomplete,
		models.StatusRejectedIneligible,
		models.StatusRejected,
		models.StatusAgreementRejected,
		models.StatusCompleted,
	}

	events := []Event{
		Submission{},
		CompletenessOutcome{Complete: true},
		ReviewDispatch{},
		EligibilityOutcome{Eligible: true},
		ReimbursementOutcome{WithinLimits: true},
		ApplicantResponse{Accepted: true},
		Finalization{},
	}

	for _, status := range terminals {
		assert.True(t, IsTerminal(status), "expected %s to be terminal", status)
		for _, ev := range events {
			got, err := Next(status, ev)
			assert.ErrorIs(t, err, ErrIllegalTransition, "status %s, event %s", status, ev.Name())
			assert.Equal(t, status, got, "terminal status must not move")
		}
	}
}

func TestNext_IllegalFromNonTerminal(t *testing.T) {
	tests := []struct {
		name    string
		current models.LoanStatus
		event   Event
	}{
		{"submission on existing record", models.StatusReceived, Submission{}},
		{"eligibility outcome before review", models.StatusReceived, EligibilityOutcome{Eligible: true}},
		{"reimbursement outcome before agreement phase", models.StatusUnderReview, ReimbursementOutcome{WithinLimits: true}},
		{"applicant response without pending agreement", models.StatusComplete, ApplicantResponse{Accepted: true}},
		{"completeness outcome after completion", models.StatusComplete, CompletenessOutcome{Complete: true}},
		{"finalization without acceptance", models.StatusPendingAgreement, Finalization{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.current, tt.event)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIllegalTransition))
			assert.Equal(t, tt.current, got)
		})
	}
}

func TestNext_RedeliveryIsDetectable(t *testing.T) {
	// Redelivered outcome events no longer match their expected source
	// status once applied, so reapplication surfaces as illegal.
	status, err := Next(models.StatusUnderReview, EligibilityOutcome{Eligible: true})
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingAgreement, status)

	_, err = Next(status, EligibilityOutcome{Eligible: true})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}
