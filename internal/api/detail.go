package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

type errorEnvelope struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

// fieldError is one entry of a list-style validation detail,
// e.g. {"loc": ["body", "password"], "msg": "Field required"}.
type fieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseDetail extracts a human-readable message from an error body.
// String details are returned verbatim, list details are flattened into
// "field: message" pairs.
func parseDetail(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if len(env.Detail) == 0 || string(env.Detail) == "null" {
		return env.Error
	}

	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return s
	}

	var fields []fieldError
	if err := json.Unmarshal(env.Detail, &fields); err == nil {
		msgs := make([]string, 0, len(fields))
		for _, f := range fields {
			if len(f.Loc) == 0 {
				msgs = append(msgs, f.Msg)
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%v: %s", f.Loc[len(f.Loc)-1], f.Msg))
		}
		return strings.Join(msgs, "; ")
	}

	return string(env.Detail)
}
