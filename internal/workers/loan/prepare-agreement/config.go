// internal/workers/loan/prepare-agreement/config.go
package prepareagreement

import "time"

type Config struct {
	BaseAnnualRate    float64
	RiskPremium       float64
	MaxMonthlyPayment float64
	MaxDurationYears  int
	// MaxRepaymentRatio caps total repayment as a multiple of the
	// principal.
	MaxRepaymentRatio float64
	// MinPaymentBuffer is the minimum fraction of income that must
	// remain after expenses and the monthly payment. Zero disables
	// the check.
	MinPaymentBuffer float64

	InsuranceEnabled         bool
	InsuranceAmountThreshold float64
	InsuranceMonthlyRate     float64

	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		BaseAnnualRate:    0.03,
		RiskPremium:       0.01,
		MaxDurationYears:  30,
		MaxRepaymentRatio: 1.6,

		InsuranceEnabled:         true,
		InsuranceAmountThreshold: 500000,
		InsuranceMonthlyRate:     0.0002,

		Timeout: 30 * time.Second,
	}
}
