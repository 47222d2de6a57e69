// internal/workers/loan/verify-completeness/handler_test.go
package verifycompleteness

import (
	"context"
	"testing"

	"loan-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHandler(t *testing.T) *Handler {
	return NewHandler(LoadConfig(), logger.NewTestLogger(t))
}

func createCompletePayload() map[string]interface{} {
	return map[string]interface{}{
		"client_name":           "Alexandre Dubois",
		"address":               "25 Avenue Montaigne, 75008 Paris",
		"email":                 "alexandre.dubois@email.com",
		"phone":                 "+33612345678",
		"loan_amount":           2500000.0,
		"loan_duration_years":   25.0,
		"property_description":  "Apartment with terrace",
		"monthly_income":        35000.0,
		"monthly_expenses":      8000.0,
		"identity_verification": "passport-FR-123",
	}
}

func TestExecute_CompletePayload(t *testing.T) {
	h := createTestHandler(t)

	output, err := h.Execute(context.Background(), &Input{
		RecordID: "rec-1",
		Payload:  createCompletePayload(),
	})
	require.NoError(t, err)

	assert.True(t, output.Complete)
	assert.Empty(t, output.MissingFields)
	assert.Equal(t, "rec-1", output.RecordID)
}

func TestExecute_FieldFindings(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(payload map[string]interface{})
		wantField   string
		wantMessage string
	}{
		{
			name:        "missing identity verification",
			mutate:      func(p map[string]interface{}) { delete(p, "identity_verification") },
			wantField:   "identity_verification",
			wantMessage: "required field missing",
		},
		{
			name:        "missing monthly income",
			mutate:      func(p map[string]interface{}) { delete(p, "monthly_income") },
			wantField:   "monthly_income",
			wantMessage: "required field missing",
		},
		{
			name:        "blank client name",
			mutate:      func(p map[string]interface{}) { p["client_name"] = "   " },
			wantField:   "client_name",
			wantMessage: "required field missing",
		},
		{
			name:        "invalid email",
			mutate:      func(p map[string]interface{}) { p["email"] = "not-an-email" },
			wantField:   "email",
			wantMessage: "invalid email format",
		},
		{
			name:        "invalid phone",
			mutate:      func(p map[string]interface{}) { p["phone"] = "abc" },
			wantField:   "phone",
			wantMessage: "invalid phone format",
		},
		{
			name:        "zero loan amount",
			mutate:      func(p map[string]interface{}) { p["loan_amount"] = 0.0 },
			wantField:   "loan_amount",
			wantMessage: "must be a positive number",
		},
		{
			name:        "non-numeric loan amount",
			mutate:      func(p map[string]interface{}) { p["loan_amount"] = "a lot" },
			wantField:   "loan_amount",
			wantMessage: "must be a number",
		},
		{
			name:        "negative expenses",
			mutate:      func(p map[string]interface{}) { p["monthly_expenses"] = -100.0 },
			wantField:   "monthly_expenses",
			wantMessage: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t)
			payload := createCompletePayload()
			tt.mutate(payload)

			output, err := h.Execute(context.Background(), &Input{RecordID: "rec-1", Payload: payload})
			require.NoError(t, err)

			assert.False(t, output.Complete)
			require.Len(t, output.MissingFields, 1)
			assert.Equal(t, tt.wantField, output.MissingFields[0].Field)
			assert.Equal(t, tt.wantMessage, output.MissingFields[0].Message)
		})
	}
}

func TestExecute_ReportsAllFindingsAtOnce(t *testing.T) {
	h := createTestHandler(t)
	payload := createCompletePayload()
	delete(payload, "email")
	delete(payload, "identity_verification")
	payload["phone"] = "nope"

	output, err := h.Execute(context.Background(), &Input{RecordID: "rec-1", Payload: payload})
	require.NoError(t, err)

	assert.False(t, output.Complete)
	assert.Len(t, output.MissingFields, 3)
}

func TestExecute_ZeroExpensesAllowed(t *testing.T) {
	h := createTestHandler(t)
	payload := createCompletePayload()
	payload["monthly_expenses"] = 0.0

	output, err := h.Execute(context.Background(), &Input{RecordID: "rec-1", Payload: payload})
	require.NoError(t, err)
	assert.True(t, output.Complete)
}

func TestExecute_MissingRecordID(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), &Input{Payload: createCompletePayload()})
	assert.Error(t, err)
}
