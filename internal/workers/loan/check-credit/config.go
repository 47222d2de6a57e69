// internal/workers/loan/check-credit/config.go
package checkcredit

import "time"

type Config struct {
	MinCreditScore int
	Timeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MinCreditScore: 650,
		Timeout:        30 * time.Second,
	}
}
