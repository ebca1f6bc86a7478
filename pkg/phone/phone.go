// Package phone normalizes Brazilian phone numbers into the canonical
// country-code-qualified digit form used for WhatsApp addressing.
package phone

import "strings"

// CountryPrefix is the Brazilian national dialing prefix.
const CountryPrefix = "55"

// Digits strips every non-digit character from raw.
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

// Normalize maps a free-form phone string to its canonical dialable form.
// A 10-digit number is treated as area code plus legacy 8-digit subscriber
// and gains the mobile "9" after the area code. Numbers without the national
// prefix get it prepended. Normalize never fails; invalid numbers surface as
// delivery failures downstream.
func Normalize(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return ""
	}

	if len(digits) == 10 {
		digits = digits[:2] + "9" + digits[2:]
	}

	return EnsureCountry(digits)
}

// EnsureCountry prepends the national prefix when it is missing.
func EnsureCountry(digits string) string {
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, CountryPrefix) {
		return digits
	}
	return CountryPrefix + digits
}

// Variants returns the plausible stored spellings of a canonical phone:
// the canonical form itself, the form without the national prefix, and the
// prefix re-applied. Contact records predate normalization and may hold any
// of them.
func Variants(canonical string) []string {
	canonical = Digits(canonical)
	if canonical == "" {
		return nil
	}
	bare := strings.TrimPrefix(canonical, CountryPrefix)
	return []string{canonical, bare, CountryPrefix + bare}
}

// Match reports whether two phone spellings refer to the same number.
// After stripping, one side must contain the other; this tolerates records
// stored with or without the national prefix.
func Match(a, b string) bool {
	da := Digits(a)
	db := Digits(b)
	if da == "" || db == "" {
		return false
	}
	return strings.Contains(da, db) || strings.Contains(db, da)
}

// Format renders a canonical phone for display, dropping the national
// prefix and separating the area code: "5511987654321" -> "11 987654321".
func Format(canonical string) string {
	digits := strings.TrimPrefix(Digits(canonical), CountryPrefix)
	if len(digits) <= 2 {
		return digits
	}
	return digits[:2] + " " + digits[2:]
}
