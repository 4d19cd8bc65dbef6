package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Literal layouts for temporal values on the wire.
const (
	// DateLayout is the calendar-date literal format
	DateLayout = "2006-01-02"
	// DateTimeLayout is the timestamp literal format, second precision
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Zero-date sentinels the service emits for "never". They decode to null
// rather than failing the run; any other out-of-range component is an error.
var zeroDates = map[string]bool{
	"0000-00-00":          true,
	"0000-00-00 00:00:00": true,
}

// IsZeroDate reports whether text is the service's null-date sentinel.
func IsZeroDate(text string) bool {
	return zeroDates[text]
}

// htmlEntities is the fixed entity set unescaped in HtmlText values.
var htmlEntities = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#039;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
	"&amp;", "&",
)

// Parse converts a raw textual value into the kind's native representation:
// int64, float64, bool, string, or time.Time. The grammar is strict: a
// value that is not exactly representable fails instead of being truncated
// or guessed at.
func (k ScalarKind) Parse(text string) (interface{}, error) {
	switch k {
	case Integer:
		if !integerGrammar(text) {
			return nil, fmt.Errorf("%q is not an integer literal", text)
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("integer out of range: %q", text)
		}
		return v, nil

	case Decimal:
		if !decimalGrammar(text) {
			return nil, fmt.Errorf("%q is not a decimal literal", text)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("decimal out of range: %q", text)
		}
		return v, nil

	case Boolean:
		switch text {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		default:
			return nil, fmt.Errorf("%q is not a boolean literal", text)
		}

	case Text:
		return text, nil

	case HtmlText:
		return htmlEntities.Replace(text), nil

	case Date:
		t, err := time.Parse(DateLayout, text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a %s date", text, DateLayout)
		}
		return t, nil

	case DateTime:
		t, err := time.Parse(DateTimeLayout, text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a %s timestamp", text, DateTimeLayout)
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unknown scalar kind %q", string(k))
	}
}

// integerGrammar accepts [+-]?digits and nothing else. strconv alone would
// also accept these, but keeping the grammar explicit guards against future
// strconv leniency and gives a kind-specific error.
func integerGrammar(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	return allDigits(s)
}

// decimalGrammar accepts [+-]?digits(.digits)? and nothing else: no
// exponents, no inf/nan.
func decimalGrammar(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	whole, frac, dot := strings.Cut(s, ".")
	if !allDigits(whole) {
		return false
	}
	if dot && !allDigits(frac) {
		return false
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
