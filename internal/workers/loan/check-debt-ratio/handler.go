// internal/workers/loan/check-debt-ratio/handler.go
package checkdebtratio

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
	TaskType = "check-debt-ratio"
)

var (
	ErrDebtRatioExceeded = errors.New("DEBT_RATIO_EXCEEDED")
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config.MaxDebtRatio == 0 {
		config.MaxDebtRatio = LoadConfig().MaxDebtRatio
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
		h.failJob(client, job, "DEBT_RATIO_CHECK_FAILED", err.Error())
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

// execute computes the debt-to-income ratio from declared monthly
// figures. A ratio over the maximum is a verdict, not a job failure;
// the join barrier reconciles it with the credit result.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input.RecordID == "" {
		return nil, fmt.Errorf("recordId is required")
	}

	// A figure the check cannot compute from is a failed sub-check,
	// not a job failure: the record was supposed to arrive validated,
	// so fail closed and let the join barrier carry the reason.
	if reason := unusableInput(input.Payload); reason != "" {
		h.logger.Warn("debt ratio not computable", map[string]interface{}{
			"recordId": input.RecordID,
			"reason":   reason,
		})
		return &Output{
			RecordID: input.RecordID,
			Check:    models.CheckDebtRatio,
			Passed:   false,
			Reason:   reason,
		}, nil
	}

	income, _ := numberField(input.Payload, "monthly_income")
	expenses, _ := numberField(input.Payload, "monthly_expenses")

	// Round to 4 decimals so boundary cases like 2200/5000 compare
	// exactly against the configured maximum.
	ratio := math.Round(expenses/income*10000) / 10000

	output := &Output{
		RecordID: input.RecordID,
		Check:    models.CheckDebtRatio,
		Passed:   ratio <= h.config.MaxDebtRatio,
		Ratio:    ratio,
	}
	if !output.Passed {
		output.Reason = fmt.Sprintf("DTI exceeded: %.4f > %.4f", ratio, h.config.MaxDebtRatio)
	}

	h.logger.Info("debt ratio check completed", map[string]interface{}{
		"recordId": input.RecordID,
		"ratio":    ratio,
		"passed":   output.Passed,
	})
	return output, nil
}

// unusableInput returns the verdict reason when the declared figures
// cannot produce a ratio, or "" when they can.
func unusableInput(payload map[string]interface{}) string {
	income, err := numberField(payload, "monthly_income")
	if err != nil {
		return err.Error()
	}
	if income <= 0 {
		return "monthly_income must be positive"
	}
	expenses, err := numberField(payload, "monthly_expenses")
	if err != nil {
		return err.Error()
	}
	if expenses < 0 {
		return "monthly_expenses must not be negative"
	}
	return ""
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
