package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

const productSynopsis = `
<service>
	<product>
		<id_manufacturer format="isUnsignedId"/>
		<reference required="true" format="isReference"/>
		<price format="isPrice"/>
		<quantity format="isInt"/>
		<active format="isBool"/>
		<date_add format="isDate"/>
		<description format="isCleanHtml"/>
		<name format="isGenericName">
			<language id="1"/>
		</name>
		<associations>
			<categories nodeType="category">
				<category>
					<id format="isUnsignedId"/>
				</category>
			</categories>
		</associations>
	</product>
</service>`

func TestResolveProductSynopsis(t *testing.T) {
	s, err := Resolve("products", []byte(productSynopsis))
	require.NoError(t, err)

	// The identifier is injected up front when the synopsis omits it.
	id := s.Fields()[0]
	assert.Equal(t, "id", id.Name)
	assert.Equal(t, Integer, id.Scalar)
	assert.False(t, id.Nullable)

	cases := []struct {
		name     string
		kind     ScalarKind
		nullable bool
	}{
		{"id_manufacturer", Integer, true},
		{"reference", Text, false},
		{"price", Decimal, true},
		{"quantity", Integer, true},
		{"active", Boolean, true},
		{"date_add", DateTime, true},
		{"description", HtmlText, true},
	}
	for _, tc := range cases {
		f, ok := s.Field(tc.name)
		require.True(t, ok, "missing field %s", tc.name)
		assert.Equal(t, tc.kind, f.Scalar, tc.name)
		assert.Equal(t, tc.nullable, f.Nullable, tc.name)
		assert.False(t, f.IsAssociation(), tc.name)
	}
}

func TestResolveTranslatedField(t *testing.T) {
	s, err := Resolve("products", []byte(productSynopsis))
	require.NoError(t, err)

	name, ok := s.Field("name")
	require.True(t, ok)
	require.True(t, name.IsAssociation())
	assert.Equal(t, "language", name.Assoc.ElementName)
	assert.False(t, name.Assoc.Grouped)

	idAttr, ok := name.Assoc.Element.Field(IDAttrField)
	require.True(t, ok)
	assert.Equal(t, Integer, idAttr.Scalar)
	text, ok := name.Assoc.Element.Field(TextField)
	require.True(t, ok)
	assert.Equal(t, Text, text.Scalar)
}

func TestResolveGroupedAssociation(t *testing.T) {
	s, err := Resolve("products", []byte(productSynopsis))
	require.NoError(t, err)

	cats, ok := s.Field("categories")
	require.True(t, ok)
	require.True(t, cats.IsAssociation())
	assert.Equal(t, "category", cats.Assoc.ElementName)
	assert.True(t, cats.Assoc.Grouped)

	catID, ok := cats.Assoc.Element.Field("id")
	require.True(t, ok)
	assert.Equal(t, Integer, catID.Scalar)
}

func TestResolveNameHeuristics(t *testing.T) {
	synopsis := `<service><order><id_customer/><date_upd/><note/></order></service>`
	s, err := Resolve("orders", []byte(synopsis))
	require.NoError(t, err)

	f, _ := s.Field("id_customer")
	assert.Equal(t, Integer, f.Scalar)
	f, _ = s.Field("date_upd")
	assert.Equal(t, DateTime, f.Scalar)
	f, _ = s.Field("note")
	assert.Equal(t, Text, f.Scalar)
}

func TestResolveUnknownHintDefaultsToText(t *testing.T) {
	synopsis := `<service><thing><weird format="isHologram" required="true"/></thing></service>`
	s, err := Resolve("things", []byte(synopsis))
	require.NoError(t, err)

	f, ok := s.Field("weird")
	require.True(t, ok)
	assert.Equal(t, Text, f.Scalar)
	// The fallback forces nullability regardless of the declaration.
	assert.True(t, f.Nullable)
}

func TestResolveUnknownHintStrict(t *testing.T) {
	synopsis := `<service><thing><weird format="isHologram"/></thing></service>`
	r := Resolver{StrictHints: true}
	_, err := r.Resolve("things", []byte(synopsis))
	require.Error(t, err)
	assert.True(t, taberrors.IsType(err, taberrors.ErrorTypeSchema))

	var e *taberrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "weird", e.Detail("field"))
	assert.Equal(t, "isHologram", e.Detail("hint"))
}

func TestResolveMalformedSynopsis(t *testing.T) {
	for name, synopsis := range map[string]string{
		"truncated":      `<service><product><id/>`,
		"no resource":    `<service></service>`,
		"two resources":  `<service><a><x/></a><b><y/></b></service>`,
		"no fields":      `<service><product></product></service>`,
		"empty assoc":    `<service><p><associations><tags/></associations></p></service>`,
		"empty element":  `<service><p><associations><tags><tag/></tags></associations></p></service>`,
	} {
		_, err := Resolve("r", []byte(synopsis))
		require.Error(t, err, name)
		assert.True(t, taberrors.IsType(err, taberrors.ErrorTypeSchema), name)
	}
}

func TestDuplicateFieldName(t *testing.T) {
	_, err := New("r", []FieldSpec{
		{Name: "a", Scalar: Text, Nullable: true},
		{Name: "a", Scalar: Integer, Nullable: true},
	})
	require.Error(t, err)
	assert.True(t, taberrors.IsType(err, taberrors.ErrorTypeSchema))
}

func TestProject(t *testing.T) {
	s, err := Resolve("products", []byte(productSynopsis))
	require.NoError(t, err)

	p, err := s.Project([]string{"price", "id"})
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	// Projection preserves schema order, not request order.
	assert.Equal(t, "id", p.Fields()[0].Name)
	assert.Equal(t, "price", p.Fields()[1].Name)

	_, err = s.Project([]string{"nope"})
	require.Error(t, err)
	assert.True(t, taberrors.IsType(err, taberrors.ErrorTypeQuery))
}
