// Package security provides log/audit redaction so credential values and
// other sensitive material never reach the audit ring or logs.
package security

import (
	"regexp"
	"strings"
)

type sensitivePattern struct {
	pattern *regexp.Regexp
	mask    string
}

var sensitivePatterns = []sensitivePattern{
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----[\s\S]*?-----END\s+(RSA\s+)?PRIVATE\s+KEY-----`), "[REDACTED_PRIVATE_KEY]"},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.]{20,}`), "Bearer [REDACTED_TOKEN]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey|access[_-]?key)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{12,})['"]?`), "$1=[REDACTED_API_KEY]"},
	{regexp.MustCompile(`(?i)(secret|client_secret)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{12,})['"]?`), "$1=[REDACTED_SECRET]"},
	{regexp.MustCompile(`(?i)authorization\s*:\s*['"]?([^'"\n]{10,})['"]?`), "Authorization: [REDACTED_AUTH]"},
}

var sensitiveHeaders = []string{"authorization", "x-api-key", "cookie", "set-cookie", "proxy-authorization"}

var sensitiveKeywords = []string{
	"password", "passwd", "pwd", "secret", "token", "key", "auth",
	"authorization", "credential", "private", "api_key", "apikey",
}

// SanitizeString masks any recognized sensitive substrings in input.
func SanitizeString(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, p := range sensitivePatterns {
		result = p.pattern.ReplaceAllString(result, p.mask)
	}
	return result
}

// SanitizeError sanitizes an error's message for logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeMap redacts sensitive keys and sanitizes string values in a map,
// used before writing request/response context into the audit log.
func SanitizeMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	sanitized := make(map[string]interface{}, len(data))
	for key, value := range data {
		if IsSensitiveKey(key) {
			sanitized[key] = "[REDACTED]"
			continue
		}
		if strVal, ok := value.(string); ok {
			sanitized[key] = SanitizeString(strVal)
		} else {
			sanitized[key] = value
		}
	}
	return sanitized
}

// SanitizeHeaders redacts sensitive HTTP headers before they are logged.
func SanitizeHeaders(headers map[string][]string) map[string][]string {
	if headers == nil {
		return nil
	}
	sanitized := make(map[string][]string, len(headers))
	for key, values := range headers {
		lowerKey := strings.ToLower(key)
		isSensitive := false
		for _, h := range sensitiveHeaders {
			if lowerKey == h {
				isSensitive = true
				break
			}
		}
		if isSensitive {
			sanitized[key] = []string{"[REDACTED]"}
			continue
		}
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = SanitizeString(v)
		}
		sanitized[key] = out
	}
	return sanitized
}

// IsSensitiveKey reports whether a key name suggests sensitive data.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lowerKey, kw) {
			return true
		}
	}
	return false
}
