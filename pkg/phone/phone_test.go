package phone_test

import (
	"strings"
	"testing"

	"github.com/zapvendas/messaging-api/pkg/phone"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"already canonical", "5511987654321", "5511987654321"},
		{"eleven digits without prefix", "11987654321", "5511987654321"},
		{"legacy ten digits gains mobile nine", "1187654321", "5511987654321"},
		{"formatted input", "(11) 98765-4321", "5511987654321"},
		{"plus and country code", "+55 11 98765-4321", "5511987654321"},
		{"empty", "", ""},
		{"no digits", "abc", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := phone.Normalize(tc.raw)
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeAlwaysPrefixedAndIdempotent(t *testing.T) {
	t.Parallel()

	raws := []string{
		"11987654321",
		"1187654321",
		"(21) 3456-7890",
		"+55 85 99999-0000",
		"85999990000",
	}

	for _, raw := range raws {
		canonical := phone.Normalize(raw)
		if !strings.HasPrefix(canonical, "55") {
			t.Errorf("Normalize(%q) = %q, expected national prefix", raw, canonical)
		}
		if again := phone.Normalize(canonical); again != canonical {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", raw, canonical, again)
		}
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"with and without prefix", "5511987654321", "11987654321", true},
		{"identical", "5511987654321", "5511987654321", true},
		{"formatted versus canonical", "(11) 98765-4321", "5511987654321", true},
		{"unrelated same length", "5511987654321", "5521912345678", false},
		{"empty left", "", "5511987654321", false},
		{"empty right", "5511987654321", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := phone.Match(tc.a, tc.b); got != tc.want {
				t.Fatalf("Match(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestVariants(t *testing.T) {
	t.Parallel()

	got := phone.Variants("5511987654321")
	want := []string{"5511987654321", "11987654321", "5511987654321"}
	if len(got) != len(want) {
		t.Fatalf("Variants returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Variants[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if phone.Variants("") != nil {
		t.Fatal("Variants of empty string should be nil")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := phone.Format("5511987654321"); got != "11 987654321" {
		t.Fatalf("Format = %q, want %q", got, "11 987654321")
	}
	if got := phone.Format("11987654321"); got != "11 987654321" {
		t.Fatalf("Format without prefix = %q, want %q", got, "11 987654321")
	}
}
