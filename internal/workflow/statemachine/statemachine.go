// internal/workflow/statemachine/statemachine.go
package statemachine

import (
	"errors"
	"fmt"

	"loan-workers/internal/models"
)

// ErrIllegalTransition is returned when an event is not legal from the
// record's current status. The orchestrator logs these as anomalies
// and drops the event.
var ErrIllegalTransition = errors.New("ILLEGAL_TRANSITION")

// Event is a tagged stage outcome consumed by the transition function.
type Event interface {
	Name() string
}

// Submission starts a new application.
type Submission struct{}

func (Submission) Name() string { return "submission" }

// FieldError describes one missing or invalid required field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CompletenessOutcome is the completeness stage's verdict. The
// orchestrator owns the attempt counter and sets AttemptsExhausted
// when the configured maximum has been reached.
type CompletenessOutcome struct {
	Complete          bool         `json:"complete"`
	AttemptsExhausted bool         `json:"attemptsExhausted"`
	MissingFields     []FieldError `json:"missingFields,omitempty"`
}

func (CompletenessOutcome) Name() string { return "completeness_outcome" }

// ReviewDispatch moves a verified-complete record into eligibility
// review as its sub-checks are queued.
type ReviewDispatch struct{}

func (ReviewDispatch) Name() string { return "review_dispatch" }

// EligibilityOutcome is the reconciled result of both sub-checks. It
// is only ever produced by the join barrier once both have reported.
type EligibilityOutcome struct {
	Eligible     bool     `json:"eligible"`
	FailedChecks []string `json:"failedChecks,omitempty"`
}

func (EligibilityOutcome) Name() string { return "eligibility_outcome" }

// ReimbursementOutcome reports whether the computed agreement terms
// respect the configured limits.
type ReimbursementOutcome struct {
	WithinLimits bool              `json:"withinLimits"`
	Violations   []string          `json:"violations,omitempty"`
	Agreement    *models.Agreement `json:"agreement,omitempty"`
}

func (ReimbursementOutcome) Name() string { return "reimbursement_outcome" }

// ApplicantResponse is the applicant's answer to a prepared agreement.
type ApplicantResponse struct {
	Accepted bool `json:"accepted"`
}

func (ApplicantResponse) Name() string { return "applicant_response" }

// Finalization closes out an accepted agreement.
type Finalization struct{}

func (Finalization) Name() string { return "finalization" }

var terminal = map[models.LoanStatus]bool{
	models.StatusRejectedIncomplete: true,
	models.StatusRejectedIneligible: true,
	models.StatusRejected:           true,
	models.StatusAgreementRejected:  true,
	models.StatusCompleted:          true,
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s models.LoanStatus) bool {
	return terminal[s]
}

// Next is the pure transition function (status, event) -> status. It
// never mutates anything; callers apply the result atomically through
// the record store.
func Next(current models.LoanStatus, ev Event) (models.LoanStatus, error) {
	if IsTerminal(current) {
		return current, fmt.Errorf("%w: event %q on terminal status %s", ErrIllegalTransition, ev.Name(), current)
	}

	switch e := ev.(type) {
	case Submission:
		if current == "" {
			return models.StatusReceived, nil
		}

	case CompletenessOutcome:
		if current == models.StatusReceived || current == models.StatusIncomplete {
			switch {
			case e.Complete:
				return models.StatusComplete, nil
			case e.AttemptsExhausted:
				return models.StatusRejectedIncomplete, nil
			default:
				return models.StatusIncomplete, nil
			}
		}

	case ReviewDispatch:
		if current == models.StatusComplete {
			return models.StatusUnderReview, nil
		}

	case EligibilityOutcome:
		if current == models.StatusUnderReview {
			if e.Eligible {
				return models.StatusPendingAgreement, nil
			}
			return models.StatusRejectedIneligible, nil
		}

	case ReimbursementOutcome:
		if current == models.StatusPendingAgreement {
			if e.WithinLimits {
				// Stays PENDING_AGREEMENT awaiting the applicant; the
				// orchestrator attaches the computed terms.
				return models.StatusPendingAgreement, nil
			}
			return models.StatusRejected, nil
		}

	case ApplicantResponse:
		if current == models.StatusPendingAgreement {
			if e.Accepted {
				return models.StatusAgreementAccepted, nil
			}
			return models.StatusAgreementRejected, nil
		}

	case Finalization:
		if current == models.StatusAgreementAccepted {
			return models.StatusCompleted, nil
		}
	}

	return current, fmt.Errorf("%w: event %q not legal from status %s", ErrIllegalTransition, ev.Name(), current)
}
