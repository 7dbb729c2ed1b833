package loki

import (
	"bytes"
	"encoding/json"
)

// truncateString truncates a string to the specified maximum length.
// If the string is longer than maxLength, it will be truncated and "...truncated" will be appended.
func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}

	const ellipsis = "...truncated"

	if maxLength <= len(ellipsis) {
		return s[:maxLength]
	}

	return s[:maxLength-len(ellipsis)] + ellipsis
}

// marshalJSON is json.Marshal without HTML escaping, so <, > and & reach
// Loki as written.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
