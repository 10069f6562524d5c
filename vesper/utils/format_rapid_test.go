package utils

import (
	"strconv"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestFormatNumberRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int64().Draw(t, "n")
		formatted := FormatNumber(n)

		parsed, err := strconv.ParseInt(strings.ReplaceAll(formatted, ",", ""), 10, 64)
		if err != nil {
			t.Fatalf("FormatNumber(%d) = %q: %v", n, formatted, err)
		}
		if parsed != n {
			t.Fatalf("FormatNumber(%d) = %q, parses back to %d", n, formatted, parsed)
		}
	})
}

func TestFormatNumberGroupsOfThree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int64().Draw(t, "n")
		formatted := strings.TrimPrefix(FormatNumber(n), "-")

		groups := strings.Split(formatted, ",")
		for i, g := range groups {
			if len(g) == 0 || len(g) > 3 {
				t.Fatalf("FormatNumber(%d) = %q: bad group %q", n, formatted, g)
			}
			if i > 0 && len(g) != 3 {
				t.Fatalf("FormatNumber(%d) = %q: interior group %q not 3 digits", n, formatted, g)
			}
		}
	})
}
