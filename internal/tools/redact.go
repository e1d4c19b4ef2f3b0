package tools

import (
	"net/url"
	"strings"
)

// RedactKey keeps a short prefix of an access key so that it can be logged.
func RedactKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***"
}

// RedactedLogURL strips credentials and auth query parameter from URL.
func RedactedLogURL(s string) string {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return "<invalid_url>"
	}
	q := u.Query()
	if q.Has("auth") {
		q.Set("auth", "***")
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
