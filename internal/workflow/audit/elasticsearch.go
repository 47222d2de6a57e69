// internal/workflow/audit/elasticsearch.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"loan-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const defaultIndex = "loan-process-log"

// ElasticsearchSink indexes one document per transition so the audit
// trail is searchable by record id and status.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	if index == "" {
		index = defaultIndex
	}
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Write(ctx context.Context, event models.StatusTransition) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transition event: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index transition event for %s: %w", event.RecordID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index transition event for %s: %s", event.RecordID, res.Status())
	}
	return nil
}
