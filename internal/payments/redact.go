package payments

import "strings"

var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"hmac",
	"hash",
	"signature",
}

// Redact returns a deep copy of m with sensitive values masked down to their
// last four characters.
func Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = maskValue(v)
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		items := make([]any, 0, len(t))
		for _, el := range t {
			items = append(items, redactValue(el))
		}
		return items
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return Redact(m)
	default:
		return v
	}
}

func maskValue(v any) any {
	switch t := v.(type) {
	case string:
		return MaskSecret(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = MaskSecret(s)
		}
		return out
	default:
		return "****"
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}

// MaskSecret keeps the last four characters of long values and hides short ones.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}
