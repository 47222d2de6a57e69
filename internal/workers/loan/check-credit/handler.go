// internal/workers/loan/check-credit/handler.go
package checkcredit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "check-credit"
)

var (
	ErrCreditScoreBelowMinimum = errors.New("CREDIT_SCORE_BELOW_MINIMUM")
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config.MinCreditScore == 0 {
		config.MinCreditScore = LoadConfig().MinCreditScore
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
		h.failJob(client, job, "CREDIT_CHECK_FAILED", err.Error())
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

// execute reports the credit sub-check verdict. A score below the
// minimum is a verdict, not a job failure: the orchestrator's join
// barrier reconciles it with the debt-ratio result.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input.RecordID == "" {
		return nil, fmt.Errorf("recordId is required")
	}

	score, reason := h.resolveScore(input)
	if reason != "" {
		h.logger.Warn("credit score not resolvable", map[string]interface{}{
			"recordId": input.RecordID,
			"reason":   reason,
		})
		return &Output{
			RecordID: input.RecordID,
			Check:    models.CheckCredit,
			Passed:   false,
			Reason:   reason,
		}, nil
	}

	output := &Output{
		RecordID: input.RecordID,
		Check:    models.CheckCredit,
		Passed:   score >= h.config.MinCreditScore,
		Score:    score,
	}
	if !output.Passed {
		output.Reason = fmt.Sprintf("credit score below minimum: %d < %d", score, h.config.MinCreditScore)
	}

	h.logger.Info("credit check completed", map[string]interface{}{
		"recordId": input.RecordID,
		"score":    score,
		"passed":   output.Passed,
	})
	return output, nil
}

// resolveScore reads the reported score, falling back to a
// deterministic simulated bureau lookup only when no score was
// reported at all. A score that is present but not a number is a
// failed verdict, reported through the reason.
// TODO: replace the fallback with the real bureau API once the
// integration account is provisioned.
func (h *Handler) resolveScore(input *Input) (int, string) {
	if raw, ok := input.Payload["credit_score"]; ok {
		switch v := raw.(type) {
		case float64:
			return int(v), ""
		case int:
			return v, ""
		default:
			return 0, "credit_score must be a number"
		}
	}

	name, _ := input.Payload["client_name"].(string)
	hash := fnv.New32a()
	hash.Write([]byte(name))
	return 550 + int(hash.Sum32()%251), "" // 550..800
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
