package valuation

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// numeralPattern matches the first float or integer numeral in a reply.
var numeralPattern = regexp.MustCompile(`[-+]?\d*\.\d+|\d+`)

// ParsePrice plucks a floating point number out of a model reply. Currency
// symbols and thousands separators are stripped first. A reply with no
// numeral parses to 0.0 rather than failing.
func ParsePrice(s string) float64 {
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	match := numeralPattern.FindString(s)
	if match == "" {
		return 0.0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0.0
	}
	return v
}

// hasNumeral reports whether a reply contains anything ParsePrice can use.
func hasNumeral(s string) bool {
	return numeralPattern.MatchString(s)
}

var usdPrinter = message.NewPrinter(language.English)

// FormatUSD renders a dollar amount with thousands separators for
// user-facing text, e.g. 1234.5 -> "$1,234.50".
func FormatUSD(v float64) string {
	return usdPrinter.Sprintf("$%.2f", v)
}
