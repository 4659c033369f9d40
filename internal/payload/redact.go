package payload

import "regexp"

// Redaction patterns applied to every outgoing message, independent of
// profile. Order matters: specific token formats run before the generic
// 40-character catch-all so the replacement text is not itself re-matched.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----(?s:.*?)(-----END [A-Z ]*PRIVATE KEY-----|\z)`), "[redacted-key]"},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}\b`), "[redacted-token]"},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), "[redacted-token]"},
	{regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`), "[redacted-token]"},
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), "[redacted-email]"},
	{regexp.MustCompile(`\+?\d{1,3}[-. ]?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`), "[redacted-phone]"},
	{regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*[:=]\s*\S+`), "$1=[redacted]"},
}

// Redact masks emails, phone numbers, common API-key and token formats,
// private-key material, and password assignments in message text.
func Redact(text string) string {
	for _, r := range redactions {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}
