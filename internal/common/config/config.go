// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Loan          LoanConfig              `mapstructure:"loan"`
	Reimbursement ReimbursementConfig     `mapstructure:"reimbursement"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Specific Configuration Sections ---

// LoanConfig holds the application workflow rules: which fields a
// submission must carry, how often completeness verification may be
// retried and the eligibility thresholds.
type LoanConfig struct {
	RequiredFields  []string `mapstructure:"required_fields"`
	MaxAttempts     int      `mapstructure:"max_attempts"`
	MinCreditScore  int      `mapstructure:"min_credit_score"`
	MaxDebtRatio    float64  `mapstructure:"max_debt_ratio"`
	SubCheckTimeout int      `mapstructure:"sub_check_timeout"` // milliseconds
}

// ReimbursementConfig holds the agreement computation parameters and
// the limits a prepared agreement is verified against.
type ReimbursementConfig struct {
	BaseAnnualRate    float64 `mapstructure:"base_annual_rate"`
	RiskPremium       float64 `mapstructure:"risk_premium"`
	MaxMonthlyPayment float64 `mapstructure:"max_monthly_payment"`
	MaxDurationYears  int     `mapstructure:"max_duration_years"`
	MaxRepaymentRatio float64 `mapstructure:"max_repayment_ratio"`
	MinPaymentBuffer  float64 `mapstructure:"min_payment_buffer"`

	Insurance InsuranceConfig `mapstructure:"insurance"`
}

// InsuranceConfig describes the optional insurance add-on attached to
// agreements over the amount threshold.
type InsuranceConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	AmountThreshold float64 `mapstructure:"amount_threshold"`
	MonthlyRate     float64 `mapstructure:"monthly_rate"` // fraction of loan amount per month
}

// NotificationConfig holds settings for the send-notification worker.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled           bool   `mapstructure:"enabled"`
		PriorityThreshold string `mapstructure:"priority_threshold"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
