package format

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// Markdown encodes payloads as YAML frontmatter between fences, followed
// by the raw body.
type Markdown struct {
	ext string
}

func (m *Markdown) Extension() string { return m.ext }

func (m *Markdown) Stringify(payload map[string]any) (string, error) {
	front := make(map[string]any, len(payload))
	body := ""
	for k, v := range payload {
		if k == BodyKey {
			body, _ = v.(string)
			continue
		}
		front[k] = v
	}
	var sb strings.Builder
	sb.WriteString(fence)
	sb.WriteString("\n")
	if len(front) > 0 {
		out, err := yaml.Marshal(front)
		if err != nil {
			return "", fmt.Errorf("format: frontmatter: %w", err)
		}
		sb.Write(out)
	}
	sb.WriteString(fence)
	sb.WriteString("\n")
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
	}
	return sb.String(), nil
}

func (m *Markdown) Parse(contents string) (map[string]any, error) {
	payload := make(map[string]any)
	body := contents
	if strings.HasPrefix(contents, fence+"\n") || contents == fence {
		rest := strings.TrimPrefix(contents, fence+"\n")
		head, tail, found := strings.Cut(rest, "\n"+fence)
		if !found && strings.HasPrefix(rest, fence) {
			// empty frontmatter, closing fence on the next line
			head, tail, found = "", strings.TrimPrefix(rest, fence), true
		}
		if found {
			if err := yaml.Unmarshal([]byte(head), &payload); err != nil {
				return nil, fmt.Errorf("format: frontmatter: %w", err)
			}
			if payload == nil {
				payload = make(map[string]any)
			}
			body = strings.TrimPrefix(tail, "\n")
			body = strings.TrimPrefix(body, "\n")
		}
	}
	if body != "" {
		payload[BodyKey] = body
	}
	return payload, nil
}
