// internal/workers/loan/prepare-agreement/handler.go
package prepareagreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "prepare-agreement"
)

var (
	ErrRepaymentLimitsExceeded = errors.New("REPAYMENT_LIMITS_EXCEEDED")
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	defaults := LoadConfig()
	if config.BaseAnnualRate == 0 {
		config.BaseAnnualRate = defaults.BaseAnnualRate
	}
	if config.RiskPremium == 0 {
		config.RiskPremium = defaults.RiskPremium
	}
	if config.MaxDurationYears == 0 {
		config.MaxDurationYears = defaults.MaxDurationYears
	}
	if config.MaxRepaymentRatio == 0 {
		config.MaxRepaymentRatio = defaults.MaxRepaymentRatio
	}

	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		h.failJob(client, job, "AGREEMENT_PREPARATION_FAILED", err.Error())
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

// execute computes the reimbursement agreement with the standard
// annuity formula, then verifies the terms against the configured
// limits. Limit violations are a verdict carried in the output, not a
// job failure.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input.RecordID == "" {
		return nil, fmt.Errorf("recordId is required")
	}

	amount, err := numberField(input.Payload, "loan_amount")
	if err != nil {
		return nil, err
	}
	years, err := numberField(input.Payload, "loan_duration_years")
	if err != nil {
		return nil, err
	}
	income, err := numberField(input.Payload, "monthly_income")
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("loan_amount must be positive")
	}
	if years <= 0 || years != math.Trunc(years) {
		return nil, fmt.Errorf("loan_duration_years must be a positive whole number")
	}
	if income <= 0 {
		return nil, fmt.Errorf("monthly_income must be positive")
	}

	// Declared expenses feed the payment-buffer check. Completeness
	// validates presence, so an absent value here means zero.
	expenses := 0.0
	if _, ok := input.Payload["monthly_expenses"]; ok {
		expenses, err = numberField(input.Payload, "monthly_expenses")
		if err != nil {
			return nil, err
		}
		if expenses < 0 {
			return nil, fmt.Errorf("monthly_expenses must not be negative")
		}
	}

	agreement := h.computeAgreement(amount, int(years))
	violations := h.verifyLimits(agreement, income, expenses)

	h.logger.Info("agreement prepared", map[string]interface{}{
		"recordId":       input.RecordID,
		"monthlyPayment": agreement.MonthlyPayment,
		"withinLimits":   len(violations) == 0,
	})

	output := &Output{
		RecordID:     input.RecordID,
		WithinLimits: len(violations) == 0,
		Violations:   violations,
	}
	if output.WithinLimits {
		output.Agreement = agreement
	}
	if output.Violations == nil {
		output.Violations = []string{}
	}
	return output, nil
}

func (h *Handler) computeAgreement(amount float64, years int) *models.Agreement {
	annualRate := h.config.BaseAnnualRate + h.config.RiskPremium
	monthlyRate := annualRate / 12
	n := years * 12

	var payment float64
	if monthlyRate == 0 {
		payment = amount / float64(n)
	} else {
		factor := math.Pow(1+monthlyRate, float64(n))
		payment = amount * (monthlyRate * factor) / (factor - 1)
	}
	payment = roundMoney(payment)
	total := roundMoney(payment * float64(n))

	agreement := &models.Agreement{
		LoanAmount:         amount,
		DurationYears:      years,
		AnnualInterestRate: annualRate,
		MonthlyPayment:     payment,
		TotalPayments:      n,
		TotalRepayment:     total,
		// Total repayment over principal, the multiple the ratio
		// limit is verified against.
		RepaymentRatio:   math.Round(total/amount*10000) / 10000,
		FirstPaymentDate: firstOfNextMonth(time.Now().UTC()).Format("2006-01-02"),
	}

	if h.config.InsuranceEnabled && amount > h.config.InsuranceAmountThreshold {
		agreement.Insurance = &models.Insurance{
			Coverage:    []string{"death", "disability", "job_loss"},
			MonthlyCost: roundMoney(amount * h.config.InsuranceMonthlyRate),
		}
	}
	return agreement
}

func (h *Handler) verifyLimits(a *models.Agreement, income, expenses float64) []string {
	var violations []string

	if h.config.MaxMonthlyPayment > 0 && a.MonthlyPayment > h.config.MaxMonthlyPayment {
		violations = append(violations,
			fmt.Sprintf("monthly payment %.2f exceeds maximum %.2f", a.MonthlyPayment, h.config.MaxMonthlyPayment))
	}
	if a.DurationYears > h.config.MaxDurationYears {
		violations = append(violations,
			fmt.Sprintf("duration %d years exceeds maximum %d", a.DurationYears, h.config.MaxDurationYears))
	}
	if a.RepaymentRatio > h.config.MaxRepaymentRatio {
		violations = append(violations,
			fmt.Sprintf("total repayment is %.4f times the principal, exceeding maximum %.4f",
				a.RepaymentRatio, h.config.MaxRepaymentRatio))
	}
	if h.config.MinPaymentBuffer > 0 {
		headroom := (income - expenses - a.MonthlyPayment) / income
		if headroom < h.config.MinPaymentBuffer {
			violations = append(violations,
				fmt.Sprintf("income headroom %.4f below required fraction %.4f", headroom, h.config.MinPaymentBuffer))
		}
	}
	return violations
}

func firstOfNextMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func numberField(payload map[string]interface{}, field string) (float64, error) {
	raw, ok := payload[field]
	if !ok {
		return 0, fmt.Errorf("%s is required", field)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number", field)
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
