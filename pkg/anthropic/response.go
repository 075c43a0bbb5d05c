package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Text concatenates the text content blocks of a response.
func (r *MessageResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// DecodeJSON unmarshals the response text into v. Models sometimes wrap JSON
// in markdown fences or lead with prose, so the decoder first strips fences
// and then falls back to the outermost JSON object in the text.
func (r *MessageResponse) DecodeJSON(v any) error {
	text := StripFences(r.Text())
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return eris.New("anthropic: response contains no JSON")
	}
	end := strings.LastIndexAny(text, "}]")
	if end <= start {
		return eris.New("anthropic: response contains no JSON")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return eris.Wrap(err, "anthropic: decode response JSON")
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		// Drop the language tag line ("json", etc).
		first := strings.TrimSpace(trimmed[:nl])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			trimmed = trimmed[nl+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
