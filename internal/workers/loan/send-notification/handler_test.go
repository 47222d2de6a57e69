// internal/workers/loan/send-notification/handler_test.go
package sendnotification

import (
	"context"
	"errors"
	"testing"
	"time"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/models"
	"loan-workers/internal/workflow/store"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	sent []*ses.SendEmailInput
	err  error
}

func (m *mockSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, params)
	return &ses.SendEmailOutput{}, nil
}

type mockSNS struct {
	published []*sns.PublishInput
	err       error
}

func (m *mockSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.published = append(m.published, params)
	return &sns.PublishOutput{}, nil
}

func createTestHandler(t *testing.T, cfg *Config, records store.RecordStore, sesMock SESService, snsMock SNSService) *Handler {
	return &Handler{
		config:      cfg,
		records:     records,
		logger:      logger.NewTestLogger(t),
		sesClient:   sesMock,
		snsClient:   snsMock,
		templateMap: loadTemplates(),
	}
}

func seedRecord(t *testing.T, fields map[string]interface{}) (*store.MemoryStore, string) {
	st := store.NewMemoryStore()
	app := &models.LoanApplication{
		ID:        "rec-1",
		Status:    models.StatusReceived,
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Create(context.Background(), app))
	return st, app.ID
}

func TestExecute_SendsEmail(t *testing.T) {
	st, recordID := seedRecord(t, map[string]interface{}{
		"email": "alexandre.dubois@email.com",
		"phone": "+33612345678",
	})
	sesMock := &mockSES{}
	snsMock := &mockSNS{}

	h := createTestHandler(t, &Config{
		EmailEnabled: true,
		FromEmail:    "loans@example.com",
		Timeout:      5 * time.Second,
	}, st, sesMock, snsMock)

	output, err := h.Execute(context.Background(), &Input{
		RecordID:         recordID,
		NotificationType: TypeMissingFields,
		Message:          "Your application is incomplete. missing or invalid fields: email",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSent, output.Status)
	require.Len(t, sesMock.sent, 1)
	assert.Equal(t, "alexandre.dubois@email.com", sesMock.sent[0].Destination.ToAddresses[0])
	assert.Equal(t, "Your loan application needs attention", *sesMock.sent[0].Message.Subject.Data)
	assert.Contains(t, *sesMock.sent[0].Message.Body.Text.Data, "incomplete")
	assert.Empty(t, snsMock.published)
}

func TestExecute_HighPrioritySendsSMS(t *testing.T) {
	st, recordID := seedRecord(t, map[string]interface{}{
		"email": "alexandre.dubois@email.com",
		"phone": "+33612345678",
	})
	sesMock := &mockSES{}
	snsMock := &mockSNS{}

	h := createTestHandler(t, &Config{
		EmailEnabled: true,
		SMSEnabled:   true,
		FromEmail:    "loans@example.com",
		Timeout:      5 * time.Second,
	}, st, sesMock, snsMock)

	output, err := h.Execute(context.Background(), &Input{
		RecordID:         recordID,
		NotificationType: TypeAgreementReady,
		Message:          "Your reimbursement agreement is ready.",
		Priority:         "high",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSent, output.Status)
	assert.Len(t, sesMock.sent, 1)
	require.Len(t, snsMock.published, 1)
	assert.Equal(t, "+33612345678", *snsMock.published[0].PhoneNumber)
}

func TestExecute_NormalPrioritySkipsSMS(t *testing.T) {
	st, recordID := seedRecord(t, map[string]interface{}{
		"email": "alexandre.dubois@email.com",
		"phone": "+33612345678",
	})
	sesMock := &mockSES{}
	snsMock := &mockSNS{}

	h := createTestHandler(t, &Config{
		EmailEnabled: true,
		SMSEnabled:   true,
		FromEmail:    "loans@example.com",
		Timeout:      5 * time.Second,
	}, st, sesMock, snsMock)

	_, err := h.Execute(context.Background(), &Input{
		RecordID:         recordID,
		NotificationType: TypeStatusUpdate,
		Message:          "Your application moved forward.",
	})
	require.NoError(t, err)
	assert.Empty(t, snsMock.published)
}

func TestExecute_EmailFailureReportsFailedStatus(t *testing.T) {
	st, recordID := seedRecord(t, map[string]interface{}{
		"email": "alexandre.dubois@email.com",
	})
	sesMock := &mockSES{err: errors.New("ses unavailable")}

	h := createTestHandler(t, &Config{
		EmailEnabled: true,
		FromEmail:    "loans@example.com",
		Timeout:      5 * time.Second,
	}, st, sesMock, &mockSNS{})

	output, err := h.Execute(context.Background(), &Input{
		RecordID:         recordID,
		NotificationType: TypeStatusUpdate,
		Message:          "update",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, output.Status)
}

func TestExecute_UnknownRecordDisabled(t *testing.T) {
	h := createTestHandler(t, &Config{
		EmailEnabled: true,
		Timeout:      5 * time.Second,
	}, store.NewMemoryStore(), &mockSES{}, &mockSNS{})

	output, err := h.Execute(context.Background(), &Input{
		RecordID:         "no-such-record",
		NotificationType: TypeStatusUpdate,
		Message:          "update",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, output.Status)
}

func TestExecute_ChannelsDisabled(t *testing.T) {
	st, recordID := seedRecord(t, map[string]interface{}{
		"email": "alexandre.dubois@email.com",
	})

	h := createTestHandler(t, &Config{Timeout: 5 * time.Second}, st, &mockSES{}, &mockSNS{})

	output, err := h.Execute(context.Background(), &Input{
		RecordID:         recordID,
		NotificationType: TypeStatusUpdate,
		Message:          "update",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, output.Status)
}
