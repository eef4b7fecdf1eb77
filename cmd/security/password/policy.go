package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks password against the policy. Lengths count runes, not bytes.
// Length violations are returned as LengthError.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return LengthError{Kind: ErrPasswordTooShort, Limit: c.Policy.MinLength}
	}
	if c.Policy.MaxLength > 0 && n > c.Policy.MaxLength {
		return LengthError{Kind: ErrPasswordTooLong, Limit: c.Policy.MaxLength}
	}
	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}
	return nil
}

// looksVeryWeak is intentionally minimal. It is not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password1", "password123", "123456", "123456789", "qwerty", "qwerty123", "letmein", "abc123":
		return true
	}
	return false
}
