package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tabfetch/tabfetch/pkg/schema"
)

// Param is one wire query parameter. Parameters keep their order so request
// URLs are stable and loggable.
type Param struct {
	Key   string
	Value string
}

// Params renders the descriptor into the service's query-parameter
// conventions:
//
//	display=full | display=[f1,f2]
//	filter[field]=[v1|v2]
//	filter[field]=[low,high] with date=1 for date ranges
//	limit=count | limit=offset,count
//	sort=[field_ASC]
//
// The service's date filter is inclusive on both ends at its literal
// granularity, so the half-open upper bound is rendered as the last instant
// inside the interval: one second before High for timestamp fields, one day
// before for date fields.
func (d *Descriptor) Params() []Param {
	var params []Param

	if len(d.selected) > 0 {
		params = append(params, Param{"display", "[" + strings.Join(d.selected, ",") + "]"})
	} else {
		params = append(params, Param{"display", "full"})
	}

	dateFiltered := false
	for _, f := range d.filters {
		switch f := f.(type) {
		case Membership:
			params = append(params, Param{
				Key:   fmt.Sprintf("filter[%s]", f.FieldName),
				Value: "[" + strings.Join(f.Literals, "|") + "]",
			})
		case DateRange:
			params = append(params, Param{
				Key:   fmt.Sprintf("filter[%s]", f.FieldName),
				Value: "[" + renderBound(f.Low, f.Kind) + "," + renderUpperExclusive(f.High, f.Kind) + "]",
			})
			dateFiltered = true
		}
	}
	if dateFiltered {
		params = append(params, Param{"date", "1"})
	}

	if d.sort != nil {
		params = append(params, Param{
			Key:   "sort",
			Value: fmt.Sprintf("[%s_%s]", d.sort.Field, d.sort.Direction),
		})
	}

	if d.limit != nil {
		if d.limit.Offset > 0 {
			params = append(params, Param{"limit", strconv.Itoa(d.limit.Offset) + "," + strconv.Itoa(d.limit.Count)})
		} else {
			params = append(params, Param{"limit", strconv.Itoa(d.limit.Count)})
		}
	}

	return params
}

// WithWindow returns a copy of the descriptor whose limit is replaced by the
// given page window. The transport uses this to walk a paged fetch without
// mutating the run's descriptor.
func (d *Descriptor) WithWindow(offset, count int) *Descriptor {
	clone := *d
	clone.limit = &Limit{Offset: offset, Count: count}
	return &clone
}

func renderBound(t time.Time, kind schema.ScalarKind) string {
	if kind == schema.Date {
		return t.Format(schema.DateLayout)
	}
	return t.Format(schema.DateTimeLayout)
}

func renderUpperExclusive(t time.Time, kind schema.ScalarKind) string {
	if kind == schema.Date {
		return t.AddDate(0, 0, -1).Format(schema.DateLayout)
	}
	return t.Add(-time.Second).Format(schema.DateTimeLayout)
}
