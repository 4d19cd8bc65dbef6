package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("orders", []schema.FieldSpec{
		{Name: "id", Scalar: schema.Integer, Nullable: false},
		{Name: "reference", Scalar: schema.Text, Nullable: true},
		{Name: "total_paid", Scalar: schema.Decimal, Nullable: true},
		{Name: "valid", Scalar: schema.Boolean, Nullable: true},
		{Name: "date_add", Scalar: schema.DateTime, Nullable: true},
		{Name: "delivery_date", Scalar: schema.Date, Nullable: true},
	})
	require.NoError(t, err)
	return s
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(schema.DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestBuildValidDescriptor(t *testing.T) {
	s := testSchema(t)
	desc, err := NewBuilder(s).
		Select("id", "reference").
		WhereDateRange("date_add", date(t, "2023-01-01"), date(t, "2023-02-01")).
		WhereIn("id", "12", "54", "5").
		WithLimit(0, 100).
		OrderBy("id", Asc).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "reference"}, desc.SelectedFields())
	assert.Len(t, desc.Filters(), 2)
	assert.Equal(t, &Limit{Offset: 0, Count: 100}, desc.Limit())
	assert.Equal(t, &Sort{Field: "id", Direction: Asc}, desc.Sort())
}

func TestDateRangeOnTextFieldFails(t *testing.T) {
	s := testSchema(t)
	_, err := NewBuilder(s).
		WhereDateRange("reference", date(t, "2023-01-01"), date(t, "2023-02-01")).
		Build()
	require.Error(t, err)
	assert.True(t, taberrors.IsType(err, taberrors.ErrorTypeQuery))

	var e *taberrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "reference", e.Detail("field"))
	assert.Equal(t, "date or datetime", e.Detail("expected_kind"))
}

func TestUnknownFieldFails(t *testing.T) {
	s := testSchema(t)
	for _, build := range []func(*Builder) *Builder{
		func(b *Builder) *Builder { return b.Select("nope") },
		func(b *Builder) *Builder { return b.WhereIn("nope", "1") },
		func(b *Builder) *Builder { return b.OrderBy("nope", Desc) },
		func(b *Builder) *Builder {
			return b.WhereDateRange("nope", date(t, "2023-01-01"), date(t, "2023-02-01"))
		},
	} {
		_, err := build(NewBuilder(s)).Build()
		require.Error(t, err)
		assert.True(t, taberrors.IsType(err, taberrors.ErrorTypeQuery))
	}
}

func TestFirstErrorWins(t *testing.T) {
	s := testSchema(t)
	_, err := NewBuilder(s).
		Select("nope").
		WhereIn("id", "not-an-int").
		Build()
	require.Error(t, err)
	var e *taberrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "nope", e.Detail("field"))
}

func TestMembershipLiteralKindChecked(t *testing.T) {
	s := testSchema(t)
	_, err := NewBuilder(s).WhereIn("id", "12", "abc").Build()
	require.Error(t, err)
	var e *taberrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "abc", e.Detail("value"))
	assert.Equal(t, "integer", e.Detail("expected_kind"))

	// Boolean fields only accept the fixed token set.
	_, err = NewBuilder(s).WhereIn("valid", "yes").Build()
	require.Error(t, err)
}

func TestMembershipDedupeKeepsOrder(t *testing.T) {
	s := testSchema(t)
	desc, err := NewBuilder(s).WhereIn("id", "12", "54", "12", "5").Build()
	require.NoError(t, err)

	m := desc.Filters()[0].(Membership)
	assert.Equal(t, []string{"12", "54", "5"}, m.Literals)
	assert.True(t, m.Matches("54"))
	assert.False(t, m.Matches("55"))
}

func TestDateRangeHalfOpen(t *testing.T) {
	s := testSchema(t)
	low := date(t, "2023-01-01")
	high := date(t, "2023-02-01")
	desc, err := NewBuilder(s).WhereDateRange("date_add", low, high).Build()
	require.NoError(t, err)

	r := desc.Filters()[0].(DateRange)
	assert.True(t, r.Contains(low), "low bound is inclusive")
	assert.True(t, r.Contains(high.Add(-time.Second)))
	assert.False(t, r.Contains(high), "high bound is exclusive")
	assert.False(t, r.Contains(low.Add(-time.Nanosecond)))
}

func TestParamsRendering(t *testing.T) {
	s := testSchema(t)
	desc, err := NewBuilder(s).
		Select("id", "total_paid").
		WhereIn("id", "12", "54", "5").
		WhereDateRange("date_add", date(t, "2023-01-01"), date(t, "2023-02-01")).
		OrderBy("id", Desc).
		WithLimit(50, 100).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []Param{
		{"display", "[id,total_paid]"},
		{"filter[id]", "[12|54|5]"},
		{"filter[date_add]", "[2023-01-01 00:00:00,2023-01-31 23:59:59]"},
		{"date", "1"},
		{"sort", "[id_DESC]"},
		{"limit", "50,100"},
	}, desc.Params())
}

func TestParamsDateFieldGranularity(t *testing.T) {
	s := testSchema(t)
	desc, err := NewBuilder(s).
		WhereDateRange("delivery_date", date(t, "2023-01-01"), date(t, "2023-02-01")).
		Build()
	require.NoError(t, err)

	params := desc.Params()
	assert.Equal(t, Param{"display", "full"}, params[0])
	assert.Equal(t, Param{"filter[delivery_date]", "[2023-01-01,2023-01-31]"}, params[1])
}

func TestWithWindow(t *testing.T) {
	s := testSchema(t)
	desc, err := NewBuilder(s).WithLimit(0, 1000).Build()
	require.NoError(t, err)

	page := desc.WithWindow(200, 100)
	assert.Equal(t, &Limit{Offset: 200, Count: 100}, page.Limit())
	// The original descriptor is untouched.
	assert.Equal(t, &Limit{Offset: 0, Count: 1000}, desc.Limit())
}

func TestParseMembership(t *testing.T) {
	field, literals, err := ParseMembership(`state=12,54,5`)
	require.NoError(t, err)
	assert.Equal(t, "state", field)
	assert.Equal(t, []string{"12", "54", "5"}, literals)

	// Backslash escapes commas inside literals.
	field, literals, err = ParseMembership(`name=a\,b,c`)
	require.NoError(t, err)
	assert.Equal(t, "name", field)
	assert.Equal(t, []string{"a,b", "c"}, literals)

	for _, bad := range []string{"=a", "field=", "noequals", `x=a\`} {
		_, _, err := ParseMembership(bad)
		require.Error(t, err, bad)
	}
}

func TestParseDateRange(t *testing.T) {
	low, high, err := ParseDateRange("2020-10-10..2021-10-10")
	require.NoError(t, err)
	assert.Equal(t, date(t, "2020-10-10"), low)
	// The end day itself is inside the half-open interval.
	assert.Equal(t, date(t, "2021-10-11"), high)

	for _, bad := range []string{"2020-10-10", "2020-10-10..bogus", "2021-10-10..2020-10-10"} {
		_, _, err := ParseDateRange(bad)
		require.Error(t, err, bad)
	}
}

func TestParseLimit(t *testing.T) {
	l, err := ParseLimit("all")
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = ParseLimit("10")
	require.NoError(t, err)
	assert.Equal(t, &Limit{Count: 10}, l)

	l, err = ParseLimit("10,20")
	require.NoError(t, err)
	assert.Equal(t, &Limit{Offset: 10, Count: 20}, l)

	for _, bad := range []string{"x", "-1", "0", "1,-2", "a,b"} {
		_, err := ParseLimit(bad)
		require.Error(t, err, bad)
	}
}
