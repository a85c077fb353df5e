package parser

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// odiaDigitZero is U+0B66, the first of the Odia digit block ୦–୯.
const odiaDigitZero = '୦'

// digitMapper rewrites embedded Odia digits to their ASCII equivalents so
// numeric cells parse regardless of which script the site rendered them in.
var digitMapper = runes.Map(func(r rune) rune {
	if r >= odiaDigitZero && r <= odiaDigitZero+9 {
		return '0' + (r - odiaDigitZero)
	}
	return r
})

// normalizeDigits converts Odia digits in s to ASCII digits.
func normalizeDigits(s string) string {
	out, _, err := transform.String(digitMapper, s)
	if err != nil {
		return s
	}
	return out
}
