package finance

import (
	"strconv"
	"strings"
)

// Amount is a parsed monetary or plain numeric value. Currency is the ISO
// code when a symbol or code was attached, empty for bare numbers.
type Amount struct {
	Value    float64
	Currency string
}

var currencySymbols = map[string]string{
	"₪": "ILS",
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

var currencyCodes = map[string]string{
	"ILS": "ILS",
	"NIS": "ILS",
	"USD": "USD",
	"EUR": "EUR",
	"GBP": "GBP",
}

// ParseAmount applies the locale numeric grammar: optional currency symbol
// or ISO code on either side, comma thousands groups, dot decimals, and
// negatives written as a leading minus or accounting parentheses.
// Anything else — including percentages — is not an amount.
func ParseAmount(raw string) (Amount, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Amount{}, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	var currency string
	s, currency = stripCurrency(s)
	if s == "" {
		return Amount{}, false
	}

	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "−"):
		if negative {
			return Amount{}, false
		}
		negative = true
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "-"), "−"))
	}

	digits, ok := normalizeGroups(s)
	if !ok {
		return Amount{}, false
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return Amount{}, false
	}
	if negative {
		value = -value
	}
	return Amount{Value: value, Currency: currency}, true
}

func stripCurrency(s string) (string, string) {
	for symbol, code := range currencySymbols {
		if strings.HasPrefix(s, symbol) {
			return strings.TrimSpace(strings.TrimPrefix(s, symbol)), code
		}
		if strings.HasSuffix(s, symbol) {
			return strings.TrimSpace(strings.TrimSuffix(s, symbol)), code
		}
	}
	fields := strings.Fields(s)
	if len(fields) == 2 {
		if code, ok := currencyCodes[strings.ToUpper(fields[0])]; ok {
			return fields[1], code
		}
		if code, ok := currencyCodes[strings.ToUpper(fields[1])]; ok {
			return fields[0], code
		}
	}
	return s, ""
}

// normalizeGroups validates comma grouping (first group 1-3 digits, the
// rest exactly 3) and returns the bare digit string for ParseFloat.
func normalizeGroups(s string) (string, bool) {
	integer, fraction := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		integer, fraction = s[:dot], s[dot+1:]
		if fraction == "" || !allDigits(fraction) {
			return "", false
		}
	}
	if integer == "" {
		return "", false
	}

	groups := strings.Split(integer, ",")
	for i, g := range groups {
		if !allDigits(g) {
			return "", false
		}
		if i == 0 {
			if len(g) == 0 || len(g) > 3 && len(groups) > 1 {
				return "", false
			}
			continue
		}
		if len(g) != 3 {
			return "", false
		}
	}

	out := strings.Join(groups, "")
	if fraction != "" {
		out += "." + fraction
	}
	return out, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
