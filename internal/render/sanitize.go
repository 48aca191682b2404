package render

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	"golang.org/x/text/unicode/norm"
)

const defaultMaxFieldLength = 100

// sanitizeText makes an untrusted value safe to embed in a message line:
// valid UTF-8, NFC form, no control characters or line breaks, single spaces.
func sanitizeText(value string, maxLen int) string {
	value = strings.ToValidUTF8(value, "")
	value = norm.NFC.String(value)

	var b strings.Builder
	b.Grow(len(value))
	pendingSpace := false
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if unicode.Is(unicode.Cf, r) {
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}

	out := b.String()
	if maxLen > 0 {
		runes := []rune(out)
		if len(runes) > maxLen {
			out = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return out
}

// normalizePhone strips common separators and rewrites the Korean country
// prefix, returning digits only.
func normalizePhone(value string, field string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}

	if strings.HasPrefix(trimmed, "+82") {
		trimmed = "0" + strings.TrimLeft(strings.TrimPrefix(trimmed, "+82"), " -0")
	}

	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == ' ', r == '.', r == '(', r == ')':
		default:
			return "", fmt.Errorf("%w: %s contains invalid character %q", domain.ErrValidation, field, r)
		}
	}

	digits := b.String()
	if len(digits) < 8 || len(digits) > 12 {
		return "", fmt.Errorf("%w: %s must have 8 to 12 digits (got %d)", domain.ErrValidation, field, len(digits))
	}
	return digits, nil
}

func normalizeURL(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url is required", domain.ErrValidation)
	}

	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url: %v", domain.ErrValidation, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: url scheme must be http or https", domain.ErrValidation)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: url host is required", domain.ErrValidation)
	}
	return parsed.String(), nil
}
