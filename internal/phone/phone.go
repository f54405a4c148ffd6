// Package phone generates the equivalent spellings of a subscriber phone number.
package phone

import (
	"strings"
)

// CountryCode is the dialing prefix used for the international forms.
const CountryCode = "62"

// national strips formatting, the plus sign, the country code or the trunk
// zero and returns the subscriber part ("81234567890"), or "" when raw has no digits.
func national(raw string) string {
	digits := Digits(raw)
	switch {
	case strings.HasPrefix(digits, CountryCode):
		digits = digits[len(CountryCode):]
	case strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	return strings.TrimLeft(digits, "0")
}

// Digits drops every non-digit rune.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Variants returns the spellings of raw a human or system may have stored,
// in lookup order: local (08...), country code (628...), plus-prefixed
// (+628...), bare (8...). The trimmed input is appended when it is none of
// those. The result has no duplicates and is nil for input without digits.
func Variants(raw string) []string {
	n := national(raw)
	if n == "" {
		return nil
	}
	candidates := []string{
		"0" + n,
		CountryCode + n,
		"+" + CountryCode + n,
		n,
		strings.TrimSpace(raw),
	}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Normalize returns the local leading-zero form, the storage convention
// for billing records. Input without digits yields "".
func Normalize(raw string) string {
	n := national(raw)
	if n == "" {
		return ""
	}
	return "0" + n
}

// International returns the country-code form without plus ("628..."),
// as used in chat gateway addresses.
func International(raw string) string {
	n := national(raw)
	if n == "" {
		return ""
	}
	return CountryCode + n
}

// LooksLikePhone reports whether s is plausibly a phone number: an optional
// leading plus followed by 8 to 15 digits, allowing spaces and dashes.
func LooksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	count := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			count++
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return count >= 8 && count <= 15
}
