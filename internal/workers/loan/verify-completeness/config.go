// internal/workers/loan/verify-completeness/config.go
package verifycompleteness

import "time"

type Config struct {
	RequiredFields    []string
	RequiredDocuments []string
	Timeout           time.Duration
}

func LoadConfig() *Config {
	return &Config{
		RequiredFields: []string{
			"client_name",
			"address",
			"email",
			"phone",
			"loan_amount",
			"loan_duration_years",
			"property_description",
			"monthly_income",
			"monthly_expenses",
		},
		RequiredDocuments: []string{"identity_verification"},
		Timeout:           30 * time.Second,
	}
}
