package finance

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw      string
		value    float64
		currency string
		ok       bool
	}{
		{"1,200", 1200, "", true},
		{"1,234,567.89", 1234567.89, "", true},
		{"240", 240, "", true},
		{"-240", -240, "", true},
		{"(1,200)", -1200, "", true},
		{"₪1,200", 1200, "ILS", true},
		{"1,200 NIS", 1200, "ILS", true},
		{"$240.50", 240.5, "USD", true},
		{"€3,100", 3100, "EUR", true},
		{"(£500)", -500, "GBP", true},
		{"12.5", 12.5, "", true},

		{"", 0, "", false},
		{"revenue", 0, "", false},
		{"12%", 0, "", false},
		{"1,23", 0, "", false},     // bad grouping
		{"1234,567", 0, "", false}, // first group too wide
		{"1,200.", 0, "", false},   // dangling decimal point
		{"(-240)", 0, "", false},   // double negation
		{"--5", 0, "", false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.raw)
		if ok != tc.ok {
			t.Errorf("ParseAmount(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.Value != tc.value || got.Currency != tc.currency {
			t.Errorf("ParseAmount(%q) = %+v, want value %v currency %q",
				tc.raw, got, tc.value, tc.currency)
		}
	}
}
