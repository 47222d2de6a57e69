// internal/workers/loan/check-debt-ratio/config.go
package checkdebtratio

import "time"

type Config struct {
	MaxDebtRatio float64
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MaxDebtRatio: 0.43,
		Timeout:      30 * time.Second,
	}
}
