package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeID accepts a JSON string or number and returns it as a string.
// The backend hands out integer job ids and uuid group ids; the placeholder
// handlers hand out strings for both.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number, got %s", raw)
	}
	return n.String(), nil
}

// firstID returns the first non-empty id among the candidates.
func firstID(candidates ...json.RawMessage) (string, error) {
	for _, c := range candidates {
		id, err := decodeID(c)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", nil
}
