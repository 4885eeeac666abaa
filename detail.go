package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeDetail turns a server error payload into one displayable string.
//
// The backend reports errors in a `detail` field that is either a plain
// string, a list of field errors shaped like {"loc": [...], "msg": "..."},
// or an object. Payloads without `detail` may carry a top level `message`,
// `msg` or `error`. When nothing usable is found fallback is returned.
func NormalizeDetail(body []byte, fallback string) string {
	if len(body) == 0 {
		return fallback
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}

	if raw, ok := payload["detail"]; ok {
		if msg := normalizeDetailValue(raw); msg != "" {
			return msg
		}
	}

	for _, key := range []string{"message", "msg", "error"} {
		if raw, ok := payload[key]; ok {
			if msg := normalizeDetailValue(raw); msg != "" {
				return msg
			}
		}
	}

	return fallback
}

func normalizeDetailValue(raw json.RawMessage) string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return detailString(value)
}

func detailString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if msg := detailString(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		return fieldErrorString(v)
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func fieldErrorString(v map[string]any) string {
	msg := ""
	for _, key := range []string{"msg", "message", "detail", "error"} {
		if s := detailString(v[key]); s != "" {
			msg = s
			break
		}
	}
	if msg == "" {
		return ""
	}

	loc := locationString(v["loc"])
	if loc == "" {
		return msg
	}
	return loc + ": " + msg
}

func locationString(value any) string {
	switch v := value.(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch p := item.(type) {
			case string:
				parts = append(parts, p)
			case float64:
				parts = append(parts, fmt.Sprint(p))
			}
		}
		return strings.Join(parts, ".")
	case string:
		return v
	default:
		return ""
	}
}
