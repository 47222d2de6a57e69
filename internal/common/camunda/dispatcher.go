// internal/common/camunda/dispatcher.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"loan-workers/internal/models"
	"loan-workers/internal/workflow/orchestrator"
)

// ZeebeDispatcher publishes stage messages to the Zeebe broker. Each
// message is correlated on the record id so the process instance for
// that application picks it up. Duplicate publications are safe: the
// consuming handlers apply transitions through the store's
// compare-and-swap.
type ZeebeDispatcher struct {
	client *Client
	ttl    time.Duration
}

func NewZeebeDispatcher(client *Client) *ZeebeDispatcher {
	return &ZeebeDispatcher{client: client, ttl: 5 * time.Minute}
}

func (d *ZeebeDispatcher) Dispatch(ctx context.Context, msg orchestrator.StageMessage) error {
	vars := map[string]interface{}{
		"recordId": msg.RecordID,
		"stage":    msg.Stage,
	}
	if msg.Attempt > 0 {
		vars["attempt"] = msg.Attempt
	}
	if msg.Payload != nil {
		vars["payload"] = msg.Payload
	}
	return d.publish(ctx, msg.Stage, msg.RecordID, vars)
}

func (d *ZeebeDispatcher) Notify(ctx context.Context, n models.Notification) error {
	vars := map[string]interface{}{
		"notificationId":   n.ID,
		"recordId":         n.RecordID,
		"notificationType": n.Type,
		"channel":          n.Channel,
		"message":          n.Message,
	}
	if n.Payload != nil {
		vars["payload"] = n.Payload
	}
	return d.publish(ctx, orchestrator.StageNotification, n.RecordID, vars)
}

func (d *ZeebeDispatcher) publish(ctx context.Context, messageName, correlationKey string, vars map[string]interface{}) error {
	_, err := d.client.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		cmd, err := d.client.GetClient().NewPublishMessageCommand().
			MessageName(messageName).
			CorrelationKey(correlationKey).
			TimeToLive(d.ttl).
			VariablesFromMap(vars)
		if err != nil {
			return nil, fmt.Errorf("marshal message variables: %w", err)
		}
		return cmd.Send(ctx)
	}, "publish-"+messageName)
	return err
}
