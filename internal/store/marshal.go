package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// marshalDetails converts diagnostic details to canonical JSON TEXT.
// Canonical form keeps journals of the same replay byte-identical.
func marshalDetails(details map[string]string) (string, error) {
	obj := make(map[string]any, len(details))
	for k, v := range details {
		obj[k] = v
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	return string(data), nil
}

// unmarshalDetails parses details TEXT. Empty objects read back as nil.
func unmarshalDetails(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var details map[string]string
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	return details, nil
}

func marshalSummary(sum ir.SessionSummary) (string, error) {
	data, err := json.Marshal(sum)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(data), nil
}

func unmarshalSummary(data string) (ir.SessionSummary, error) {
	var sum ir.SessionSummary
	if data == "" {
		return sum, nil
	}
	if err := json.Unmarshal([]byte(data), &sum); err != nil {
		return sum, fmt.Errorf("unmarshal summary: %w", err)
	}
	return sum, nil
}

func parseSeverity(s string) diag.Severity {
	if s == diag.SeverityError.String() {
		return diag.SeverityError
	}
	return diag.SeverityWarn
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
