package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
)

var envelopeKeys = []string{"msg", "data", "transaction", "transactions", "result"}

// unwrapDetail normalizes the shapes a detail endpoint may answer with:
// {"msg":[{...}]}, {"data":{...}}, [{...}] or a bare {...}. When the payload is
// a list, the entry whose reference field matches wins, else the first one.
// An empty list yields nil.
func unwrapDetail(body any, reference string, refFields []string) map[string]any {
	for depth := 0; depth < 4; depth++ {
		switch v := body.(type) {
		case []any:
			body = pickEntry(v, reference, refFields)
			continue
		case map[string]any:
			if inner, ok := innerEnvelope(v); ok {
				body = inner
				continue
			}
			return v
		default:
			return nil
		}
	}
	m, _ := body.(map[string]any)
	return m
}

func innerEnvelope(m map[string]any) (any, bool) {
	for _, key := range envelopeKeys {
		switch inner := m[key].(type) {
		case map[string]any:
			return inner, true
		case []any:
			if len(inner) == 0 {
				return nil, true
			}
			return inner, true
		}
	}
	return nil, false
}

func pickEntry(list []any, reference string, refFields []string) any {
	if len(list) == 0 {
		return nil
	}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, f := range refFields {
			if reference != "" && stringValue(m[f]) == reference {
				return m
			}
		}
	}
	return list[0]
}

// stringValue renders a decoded JSON value as the string a gateway would have sent.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func firstOf(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstString(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// isTruthy accepts the several spellings gateways use for a boolean status.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "success", "ok":
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone strips formatting and an explicit "+91" country prefix,
// then requires exactly ten digits.
func NormalizePhone(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+91") {
		s = s[len("+91"):]
	}
	digits := digitsOnly(s)
	if len(digits) != 10 {
		return "", validationError("phone", "must contain exactly 10 digits")
	}
	return digits, nil
}
