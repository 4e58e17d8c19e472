package format

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"
)

// JSON stores the payload as a JSON object. Parsing is lenient: comments
// and trailing commas in hand-edited files are tolerated.
type JSON struct{}

func (j *JSON) Extension() string { return "json" }

func (j *JSON) Stringify(payload map[string]any) (string, error) {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format: json: %w", err)
	}
	return string(out) + "\n", nil
}

func (j *JSON) Parse(contents string) (map[string]any, error) {
	std, err := hujson.Standardize([]byte(contents))
	if err != nil {
		return nil, fmt.Errorf("format: json: %w", err)
	}
	payload := make(map[string]any)
	if err := json.Unmarshal(std, &payload); err != nil {
		return nil, fmt.Errorf("format: json: %w", err)
	}
	return payload, nil
}
