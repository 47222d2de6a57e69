// internal/workers/loan/verify-completeness/handler.go
package verifycompleteness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"loan-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "verify-completeness"
)

var (
	ErrApplicationIncomplete = errors.New("APPLICATION_INCOMPLETE")
)

// fieldValidator checks one field value. A nil return means valid.
type fieldValidator func(value interface{}) *FieldError

type Handler struct {
	config     *Config
	logger     logger.Logger
	validators map[string]fieldValidator
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if len(config.RequiredFields) == 0 {
		config.RequiredFields = LoadConfig().RequiredFields
	}
	if len(config.RequiredDocuments) == 0 {
		config.RequiredDocuments = LoadConfig().RequiredDocuments
	}

	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		validators: map[string]fieldValidator{
			"client_name":          nonEmptyString("client_name"),
			"address":              nonEmptyString("address"),
			"email":                emailField("email"),
			"phone":                phoneField("phone"),
			"loan_amount":          positiveNumber("loan_amount"),
			"loan_duration_years":  positiveNumber("loan_duration_years"),
			"property_description": nonEmptyString("property_description"),
			"monthly_income":       positiveNumber("monthly_income"),
			"monthly_expenses":     nonNegativeNumber("monthly_expenses"),
		},
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout())
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, "APPLICATION_INCOMPLETE", err.Error())
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
	}
}

// execute checks every required field and document. An incomplete
// payload is a verdict, not an error: the orchestrator owns the retry
// loop, so the job completes with the list of findings.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input.RecordID == "" {
		return nil, fmt.Errorf("recordId is required")
	}

	var missing []FieldError

	for _, field := range h.config.RequiredFields {
		value, ok := input.Payload[field]
		if !ok || value == nil {
			missing = append(missing, FieldError{Field: field, Message: "required field missing"})
			continue
		}

		validator, exists := h.validators[field]
		if !exists {
			validator = nonEmptyString(field)
		}
		if fe := validator(value); fe != nil {
			missing = append(missing, *fe)
		}
	}

	for _, doc := range h.config.RequiredDocuments {
		value, ok := input.Payload[doc]
		if !ok || value == nil {
			missing = append(missing, FieldError{Field: doc, Message: "required field missing"})
			continue
		}
		if fe := nonEmptyString(doc)(value); fe != nil {
			missing = append(missing, *fe)
		}
	}

	complete := len(missing) == 0
	h.logger.Info("completeness verified", map[string]interface{}{
		"recordId":     input.RecordID,
		"complete":     complete,
		"missingCount": len(missing),
	})

	if missing == nil {
		missing = []FieldError{}
	}
	return &Output{
		RecordID:      input.RecordID,
		Attempt:       input.Attempt,
		Complete:      complete,
		MissingFields: missing,
	}, nil
}

func nonEmptyString(field string) fieldValidator {
	return func(value interface{}) *FieldError {
		s, ok := value.(string)
		if !ok {
			return &FieldError{Field: field, Message: "must be a string"}
		}
		if strings.TrimSpace(s) == "" {
			return &FieldError{Field: field, Message: "required field missing"}
		}
		return nil
	}
}

func emailField(field string) fieldValidator {
	return func(value interface{}) *FieldError {
		s, ok := value.(string)
		if !ok {
			return &FieldError{Field: field, Message: "must be a string"}
		}
		if !emailRegex.MatchString(strings.TrimSpace(s)) {
			return &FieldError{Field: field, Message: "invalid email format"}
		}
		return nil
	}
}

func phoneField(field string) fieldValidator {
	return func(value interface{}) *FieldError {
		s, ok := value.(string)
		if !ok {
			return &FieldError{Field: field, Message: "must be a string"}
		}
		// Strip separators before matching
		s = regexp.MustCompile(`[^\d\+]`).ReplaceAllString(strings.TrimSpace(s), "")
		if s == "" || !phoneRegex.MatchString(s) {
			return &FieldError{Field: field, Message: "invalid phone format"}
		}
		return nil
	}
}

func positiveNumber(field string) fieldValidator {
	return func(value interface{}) *FieldError {
		n, err := toFloat(value)
		if err != nil {
			return &FieldError{Field: field, Message: "must be a number"}
		}
		if n <= 0 {
			return &FieldError{Field: field, Message: "must be a positive number"}
		}
		return nil
	}
}

func nonNegativeNumber(field string) fieldValidator {
	return func(value interface{}) *FieldError {
		n, err := toFloat(value)
		if err != nil {
			return &FieldError{Field: field, Message: "must be a number"}
		}
		if n < 0 {
			return &FieldError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

func toFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("not a number")
	}
}

func (h *Handler) timeout() time.Duration {
	if h.config.Timeout > 0 {
		return h.config.Timeout
	}
	return 30 * time.Second
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, _ = client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
