package inbox

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// asciiDigits folds Persian and Arabic-Indic digits into ASCII and drops
// everything that is not a digit afterwards. Chained transformers keep
// buffers, so each call builds its own.
func asciiDigits() transform.Transformer {
	return transform.Chain(
		runes.Map(func(r rune) rune {
			switch {
			case r >= '۰' && r <= '۹':
				return '0' + (r - '۰')
			case r >= '٠' && r <= '٩':
				return '0' + (r - '٠')
			}
			return r
		}),
		runes.Remove(runes.Predicate(func(r rune) bool {
			return r > unicode.MaxASCII || !unicode.IsDigit(r)
		})),
	)
}

// DigitsOnly is the phone form the provider expects in query strings.
func DigitsOnly(phone string) string {
	out, _, err := transform.String(asciiDigits(), phone)
	if err != nil {
		return ""
	}
	return out
}
