package security

import (
	"io"
	"regexp"
	"strings"
)

// secretKeys are log field names whose values are always credentials.
var secretKeys = []string{
	"token", "primary_token", "impersonation_token", "admin_token",
	"authorization", "password", "passphrase", "code", "totp_secret",
	"reset_token", "verification_code",
}

var secretPatterns = []*regexp.Regexp{
	// "token":"..." inside a JSON log line
	regexp.MustCompile(`(?i)"(` + strings.Join(secretKeys, "|") + `)"\s*:\s*"([^"]*)"`),
	regexp.MustCompile(`(?i)(bearer)\s+([A-Za-z0-9_\-\.=]+)`),
	regexp.MustCompile(`(?i)(token|password|passphrase)[=:]\s*["']?([^\s"'&,}]+)`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`),
}

// MaskToken keeps at most the first and last four characters of value.
func MaskToken(value string) string {
	n := len(value)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	}
	return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
}

// MaskString masks every credential-looking substring of s. Masked values
// never contain quotes, so a valid JSON line stays valid.
func MaskString(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllStringFunc(s, func(match string) string {
			groups := re.FindStringSubmatch(match)
			if len(groups) < 3 {
				return MaskToken(match)
			}
			if groups[2] == "" {
				return match
			}
			i := strings.LastIndex(match, groups[2])
			return match[:i] + MaskToken(groups[2]) + match[i+len(groups[2]):]
		})
	}
	return s
}

// ContainsSensitiveData reports whether MaskString would change s.
func ContainsSensitiveData(s string) bool {
	for _, re := range secretPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

type redactor struct{ w io.Writer }

// Redact returns a writer that masks credentials in each write before
// passing it on to w. zerolog hands over one event per write.
func Redact(w io.Writer) io.Writer { return redactor{w: w} }

func (r redactor) Write(p []byte) (int, error) {
	s := string(p)
	if !ContainsSensitiveData(s) {
		return r.w.Write(p)
	}
	if _, err := io.WriteString(r.w, MaskString(s)); err != nil {
		return 0, err
	}
	return len(p), nil
}
