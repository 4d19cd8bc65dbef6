package schema

import (
	"fmt"
	"strings"
)

// String renders the schema as an indented field listing, association
// elements nested one level in.
func (s *Schema) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s {\n", s.resource)
	for _, f := range s.fields {
		writeField(&b, f, 1)
	}
	b.WriteString("}")
	return b.String()
}

func writeField(b *strings.Builder, f FieldSpec, depth int) {
	indent := strings.Repeat("    ", depth)
	if !f.IsAssociation() {
		null := ""
		if f.Nullable {
			null = "?"
		}
		fmt.Fprintf(b, "%s%s: %s%s\n", indent, f.Name, f.Scalar, null)
		return
	}
	fmt.Fprintf(b, "%s%s: [%s {\n", indent, f.Name, f.Assoc.ElementName)
	for _, ef := range f.Assoc.Element.Fields() {
		writeField(b, ef, depth+1)
	}
	fmt.Fprintf(b, "%s}]\n", indent)
}
