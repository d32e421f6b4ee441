package report

import (
	"encoding/json"
	"fmt"
	"time"
)

// Parse decodes a summary previously rendered by JSON, so archived runs
// re-render without replaying them. The duration travels as integer
// milliseconds on the wire.
func Parse(data []byte) (Summary, error) {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("parse summary: %w", err)
	}
	s.Duration *= time.Millisecond
	return s, nil
}
