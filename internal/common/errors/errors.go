// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Business Rule / Workflow Errors
const (
	ErrCodeApplicationIncomplete ErrorCode = "APPLICATION_INCOMPLETE"
	ErrCodeAttemptsExhausted     ErrorCode = "ATTEMPTS_EXHAUSTED"

	ErrCodeCreditScoreBelowMinimum ErrorCode = "CREDIT_SCORE_BELOW_MINIMUM"
	ErrCodeDebtRatioExceeded       ErrorCode = "DEBT_RATIO_EXCEEDED"
	ErrCodeEligibilityTimeout      ErrorCode = "ELIGIBILITY_TIMEOUT"

	ErrCodeRepaymentLimitsExceeded ErrorCode = "REPAYMENT_LIMITS_EXCEEDED"
	ErrCodeAgreementNotPrepared    ErrorCode = "AGREEMENT_NOT_PREPARED"

	ErrCodeRecordNotFound        ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeIllegalTransition     ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeStatusConflict        ErrorCode = "STATUS_CONFLICT"
	ErrCodeParseError            ErrorCode = "PARSE_ERROR"
	ErrCodeInvalidIntakePayload  ErrorCode = "INVALID_INTAKE_PAYLOAD"
	ErrCodeTransitionApplyFailed ErrorCode = "TRANSITION_APPLY_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeDuplicateApplication     ErrorCode = "DUPLICATE_APPLICATION"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeAuditWriteFailed              ErrorCode = "AUDIT_WRITE_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewApplicationIncompleteError creates a non-retryable completeness error.
func NewApplicationIncompleteError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationIncomplete,
		Message:   "Application is missing required fields",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAttemptsExhaustedError creates a non-retryable retry-cap error.
func NewAttemptsExhaustedError(attempts int) *StandardError {
	return &StandardError{
		Code:      ErrCodeAttemptsExhausted,
		Message:   "Maximum completeness verification attempts reached",
		Details:   fmt.Sprintf("attempts: %d", attempts),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCreditScoreBelowMinimumError creates a non-retryable eligibility error.
func NewCreditScoreBelowMinimumError(score, minimum int) *StandardError {
	return &StandardError{
		Code:      ErrCodeCreditScoreBelowMinimum,
		Message:   "Credit score below minimum",
		Details:   fmt.Sprintf("score: %d, minimum: %d", score, minimum),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDebtRatioExceededError creates a non-retryable eligibility error.
func NewDebtRatioExceededError(ratio, maximum float64) *StandardError {
	return &StandardError{
		Code:      ErrCodeDebtRatioExceeded,
		Message:   "Debt-to-income ratio exceeds maximum",
		Details:   fmt.Sprintf("ratio: %.4f, maximum: %.4f", ratio, maximum),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEligibilityTimeoutError creates a non-retryable timeout error;
// the missing sub-check is failed closed rather than retried.
func NewEligibilityTimeoutError(check string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEligibilityTimeout,
		Message:   "Eligibility sub-check result did not arrive in time",
		Details:   fmt.Sprintf("check: %s", check),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRepaymentLimitsExceededError creates a non-retryable limit error.
func NewRepaymentLimitsExceededError(violations []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRepaymentLimitsExceeded,
		Message:   "Prepared agreement violates repayment limits",
		Details:   strings.Join(violations, ", "),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAgreementNotPreparedError creates a non-retryable protocol error.
func NewAgreementNotPreparedError(recordID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAgreementNotPrepared,
		Message:   "Applicant response received before agreement terms were prepared",
		Details:   fmt.Sprintf("recordId: %s", recordID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordNotFoundError creates a non-retryable lookup error.
func NewRecordNotFoundError(recordID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotFound,
		Message:   "Loan application record not found",
		Details:   fmt.Sprintf("recordId: %s", recordID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIllegalTransitionError creates a non-retryable protocol error.
func NewIllegalTransitionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIllegalTransition,
		Message:   "Stage outcome does not apply to the record's current status",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStatusConflictError creates a non-retryable conflict error. A
// conflict means a concurrent or redelivered event already applied the
// transition, so retrying would double-apply it.
func NewStatusConflictError(recordID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStatusConflict,
		Message:   "Record status changed since the event was issued",
		Details:   fmt.Sprintf("recordId: %s", recordID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewParseError creates a non-retryable job variable parse error.
func NewParseError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeParseError,
		Message:   "Failed to parse job variables",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidIntakePayloadError creates a non-retryable intake
// validation error. Malformed submissions are rejected outright and
// never enter the workflow.
func NewInvalidIntakePayloadError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidIntakePayload,
		Message:   "Intake payload failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransitionApplyFailedError creates a retryable transition error
// for store or broker faults. The CAS guard makes a redelivered apply
// a no-op once the original succeeds.
func NewTransitionApplyFailedError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransitionApplyFailed,
		Message:   fmt.Sprintf("Failed to apply %s transition", stage),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateApplicationError creates a non-retryable duplicate application error.
func NewDuplicateApplicationError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateApplication,
		Message:   "Application already exists",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeElasticsearchConnectionFailed,
		Message:   "Elasticsearch connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditWriteFailedError creates a retryable audit sink error.
func NewAuditWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditWriteFailed,
		Message:   "Process log write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      "BUSINESS_RULE_VIOLATION",
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes (same as internal).
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeApplicationIncomplete:         "APPLICATION_INCOMPLETE",
	ErrCodeAttemptsExhausted:             "ATTEMPTS_EXHAUSTED",
	ErrCodeCreditScoreBelowMinimum:       "CREDIT_SCORE_BELOW_MINIMUM",
	ErrCodeDebtRatioExceeded:             "DEBT_RATIO_EXCEEDED",
	ErrCodeEligibilityTimeout:            "ELIGIBILITY_TIMEOUT",
	ErrCodeRepaymentLimitsExceeded:       "REPAYMENT_LIMITS_EXCEEDED",
	ErrCodeAgreementNotPrepared:          "AGREEMENT_NOT_PREPARED",
	ErrCodeRecordNotFound:                "RECORD_NOT_FOUND",
	ErrCodeIllegalTransition:             "ILLEGAL_TRANSITION",
	ErrCodeStatusConflict:                "STATUS_CONFLICT",
	ErrCodeParseError:                    "PARSE_ERROR",
	ErrCodeInvalidIntakePayload:          "INVALID_INTAKE_PAYLOAD",
	ErrCodeTransitionApplyFailed:         "TRANSITION_APPLY_FAILED",
	ErrCodeDatabaseConnectionFailed:      "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryExecutionFailed:          "QUERY_EXECUTION_FAILED",
	ErrCodeDatabaseInsertFailed:          "DATABASE_INSERT_FAILED",
	ErrCodeDuplicateApplication:          "DUPLICATE_APPLICATION",
	ErrCodeElasticsearchConnectionFailed: "ELASTICSEARCH_CONNECTION_FAILED",
	ErrCodeAuditWriteFailed:              "AUDIT_WRITE_FAILED",
	ErrCodeNotificationSendFailed:        "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeTransitionApplyFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeAuditWriteFailed,
		ErrCodeNotificationSendFailed:
		return 3 // Retryable technical errors

	default:
		return 0 // Business and protocol errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code) // Fallback
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CREDIT") || strings.Contains(codeStr, "DEBT") || strings.Contains(codeStr, "ELIGIBILITY"):
		return "ELIGIBILITY"
	case strings.Contains(codeStr, "AGREEMENT") || strings.Contains(codeStr, "REPAYMENT"):
		return "REIMBURSEMENT"
	case strings.Contains(codeStr, "INCOMPLETE") || strings.Contains(codeStr, "ATTEMPTS"):
		return "COMPLETENESS"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "DUPLICATE"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "AUDIT"):
		return "AUDIT"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "CONFLICT") || strings.Contains(codeStr, "RECORD"):
		return "WORKFLOW"
	default:
		return "GENERAL"
	}
}
