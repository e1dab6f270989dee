// Package sink holds helpers shared by the record sinks in its subpackages.
package sink

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Marshal encodes a record in the JSON shape every sink writes.
func Marshal(record crawler.EmittedRecord) ([]byte, error) {
	if record.ExternalID == "" {
		return nil, fmt.Errorf("record external id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", record.ExternalID, err)
	}
	return data, nil
}
