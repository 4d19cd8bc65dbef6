package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// ParseMembership parses a command-line membership constraint of the form
// "field=v1,v2,v3". A backslash escapes the next character, so literals may
// contain commas or equals signs. Returned literals keep their order;
// deduplication happens later in the Builder.
func ParseMembership(arg string) (field string, literals []string, err error) {
	field, rest, ok := strings.Cut(arg, "=")
	if !ok || field == "" {
		return "", nil, taberrors.New(taberrors.ErrorTypeQuery, "membership argument must look like field=v1,v2").
			WithDetail("argument", arg)
	}

	var cur strings.Builder
	escaped := false
	for _, c := range rest {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ',':
			literals = append(literals, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	if escaped {
		return "", nil, taberrors.New(taberrors.ErrorTypeQuery, "membership argument ends with a dangling escape").
			WithDetail("argument", arg)
	}
	literals = append(literals, cur.String())

	if len(literals) == 1 && literals[0] == "" {
		return "", nil, taberrors.New(taberrors.ErrorTypeQuery, "membership argument has no values").
			WithDetail("argument", arg)
	}
	return field, literals, nil
}

// ParseDateRange parses "2020-10-10..2021-10-10" into a half-open interval:
// the low bound is the start of the first day, the high bound the start of
// the day after the last, so the whole last day is included exactly once.
func ParseDateRange(arg string) (low, high time.Time, err error) {
	from, to, ok := strings.Cut(arg, "..")
	if !ok {
		return low, high, taberrors.New(taberrors.ErrorTypeQuery, "date range must look like 2020-10-10..2021-10-10").
			WithDetail("argument", arg)
	}
	low, err = time.Parse(schema.DateLayout, from)
	if err != nil {
		return low, high, taberrors.New(taberrors.ErrorTypeQuery, "invalid range start").
			WithDetail("value", from)
	}
	high, err = time.Parse(schema.DateLayout, to)
	if err != nil {
		return low, high, taberrors.New(taberrors.ErrorTypeQuery, "invalid range end").
			WithDetail("value", to)
	}
	high = high.AddDate(0, 0, 1)
	if !high.After(low) {
		return low, high, taberrors.New(taberrors.ErrorTypeQuery, "range end precedes range start").
			WithDetail("argument", arg)
	}
	return low, high, nil
}

// ParseLimit parses the CLI limit grammar: "all" (no limit, returns nil),
// "100" (first 100 records) or "50,100" (100 records starting at 50).
func ParseLimit(arg string) (*Limit, error) {
	if arg == "" || arg == "all" {
		return nil, nil
	}
	if off, count, ok := strings.Cut(arg, ","); ok {
		o, err1 := strconv.Atoi(off)
		c, err2 := strconv.Atoi(count)
		if err1 != nil || err2 != nil || o < 0 || c <= 0 {
			return nil, taberrors.New(taberrors.ErrorTypeQuery, "limit must be 'all', 'N' or 'OFFSET,N'").
				WithDetail("argument", arg)
		}
		return &Limit{Offset: o, Count: c}, nil
	}
	c, err := strconv.Atoi(arg)
	if err != nil || c <= 0 {
		return nil, taberrors.New(taberrors.ErrorTypeQuery, "limit must be 'all', 'N' or 'OFFSET,N'").
			WithDetail("argument", arg)
	}
	return &Limit{Count: c}, nil
}
