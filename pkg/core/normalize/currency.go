// Package normalize canonicalizes extracted values and resolves Investor
// and Fund identities.
package normalize

import "strings"

// currencyAliases maps symbols and spelled-out names to ISO-4217 codes.
var currencyAliases = map[string]string{
	"€": "EUR", "euro": "EUR", "euros": "EUR", "eur": "EUR",
	"$": "USD", "dollar": "USD", "dollars": "USD", "us dollar": "USD",
	"us dollars": "USD", "usd": "USD", "us$": "USD",
	"£": "GBP", "pound": "GBP", "pounds": "GBP", "pound sterling": "GBP", "gbp": "GBP",
	"chf": "CHF", "franken": "CHF", "swiss franc": "CHF",
	"¥": "JPY", "yen": "JPY", "jpy": "JPY",
	"sek": "SEK", "nok": "NOK", "dkk": "DKK",
}

// NormalizeCurrency maps a raw currency string to an ISO code. The second
// return is false when the input is unknown; callers then fall back to the
// configured reporting currency with a Medium audit entry.
func NormalizeCurrency(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if code, ok := currencyAliases[s]; ok {
		return code, true
	}
	// Already an ISO code we don't alias: accept any 3-letter uppercase.
	if len(raw) == 3 && strings.ToUpper(raw) == raw && isAlpha(raw) {
		return raw, true
	}
	return "", false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
