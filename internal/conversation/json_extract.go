package conversation

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("conversation: response contained no JSON object")

// decodeJSONObject unmarshals the outermost {...} in text into v. Models
// often wrap JSON in prose or code fences.
func decodeJSONObject(text string, v any) error {
	content := strings.TrimSpace(text)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return errNoJSONObject
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}
