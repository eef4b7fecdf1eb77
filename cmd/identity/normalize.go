package identity

import "strings"

// Identity fields are matched case-sensitively, so normalization only trims
// surrounding whitespace. Case folding would merge accounts that already exist
// as distinct rows.

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(s string) string { return strings.TrimSpace(s) }

// NormalizeEmail trims surrounding whitespace.
func NormalizeEmail(s string) string { return strings.TrimSpace(s) }

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
