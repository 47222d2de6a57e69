// internal/models/application.go
package models

import "time"

// LoanStatus is the workflow status of a loan application. Only the
// orchestrator mutates it, in response to stage outcome events.
type LoanStatus string

const (
	StatusReceived          LoanStatus = "RECEIVED"
	StatusIncomplete        LoanStatus = "INCOMPLETE"
	StatusComplete          LoanStatus = "COMPLETE"
	StatusUnderReview       LoanStatus = "UNDER_REVIEW"
	StatusPendingAgreement  LoanStatus = "PENDING_AGREEMENT"
	StatusAgreementAccepted LoanStatus = "AGREEMENT_ACCEPTED"
	StatusAgreementRejected LoanStatus = "AGREEMENT_REJECTED"

	StatusRejectedIncomplete LoanStatus = "REJECTED_INCOMPLETE"
	StatusRejectedIneligible LoanStatus = "REJECTED_INELIGIBLE"
	StatusRejected           LoanStatus = "REJECTED"
	StatusCompleted          LoanStatus = "COMPLETED_APPLICATION"
)

// LoanApplication is the record that moves through the pipeline.
type LoanApplication struct {
	ID           string                 `json:"id"`
	Status       LoanStatus             `json:"status"`
	Fields       map[string]interface{} `json:"fields"`
	AttemptCount int                    `json:"attemptCount"`
	Eligibility  *EligibilityResults    `json:"eligibility,omitempty"`
	Agreement    *Agreement             `json:"agreement,omitempty"`
	History      []StatusTransition     `json:"history,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Eligibility sub-check names. The check name is an open string so a
// further variant (e.g. property evaluation) slots in without touching
// the join barrier.
const (
	CheckCredit    = "credit"
	CheckDebtRatio = "debt_ratio"
)

// SubCheckResult is the report of one independently scheduled
// eligibility sub-check.
type SubCheckResult struct {
	Check      string    `json:"check"`
	Passed     bool      `json:"passed"`
	Reason     string    `json:"reason,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}

// EligibilityResults holds both sub-check reports. It is only attached
// to the record once both have arrived; a partial pair never drives a
// transition.
type EligibilityResults struct {
	Credit    SubCheckResult `json:"credit"`
	DebtRatio SubCheckResult `json:"debtRatio"`
	Eligible  bool           `json:"eligible"`
}

// FailedChecks lists the sub-checks that did not pass, for the audit
// annotation on REJECTED_INELIGIBLE.
func (e *EligibilityResults) FailedChecks() []string {
	var failed []string
	if !e.Credit.Passed {
		failed = append(failed, CheckCredit)
	}
	if !e.DebtRatio.Passed {
		failed = append(failed, CheckDebtRatio)
	}
	return failed
}

// Agreement holds the computed reimbursement terms.
type Agreement struct {
	LoanAmount         float64    `json:"loanAmount"`
	DurationYears      int        `json:"durationYears"`
	AnnualInterestRate float64    `json:"annualInterestRate"`
	MonthlyPayment     float64    `json:"monthlyPayment"`
	TotalPayments      int        `json:"totalPayments"`
	TotalRepayment     float64    `json:"totalRepayment"`
	RepaymentRatio     float64    `json:"repaymentRatio"`
	FirstPaymentDate   string     `json:"firstPaymentDate"`
	Insurance          *Insurance `json:"insurance,omitempty"`
}

// Insurance is an optional add-on priced and recorded on the
// agreement. It never participates in the limit checks.
type Insurance struct {
	Coverage    []string `json:"coverage"`
	MonthlyCost float64  `json:"monthlyCost"`
}

// StatusTransition is one audit event: a single applied transition.
type StatusTransition struct {
	RecordID   string     `json:"recordId"`
	Timestamp  time.Time  `json:"timestamp"`
	FromStatus LoanStatus `json:"fromStatus"`
	ToStatus   LoanStatus `json:"toStatus"`
	Stage      string     `json:"stage"`
	Detail     string     `json:"detail,omitempty"`
}
