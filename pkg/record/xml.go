package record

import (
	"strings"

	"github.com/tabfetch/tabfetch/internal/xmlnode"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// associationsWrapper is the container element the wire format nests
// grouped one-to-many collections under inside each record.
const associationsWrapper = "associations"

// ParseXMLPage decodes one page of tag-structured markup into record trees,
// one per top-level record, preserving page order. The page wraps records
// two levels deep: a root element holding one collection element holding
// the records. A structurally malformed page fails as a whole.
func ParseXMLPage(data []byte, s *schema.Schema) ([]*Tree, error) {
	root, err := xmlnode.Parse(data)
	if err != nil {
		return nil, err
	}

	// An empty result set may omit the collection element entirely.
	if len(root.Children) == 0 {
		return nil, nil
	}
	if len(root.Children) != 1 {
		return nil, taberrors.New(taberrors.ErrorTypeParse, "page root must hold one record collection").
			WithDetail("elements", len(root.Children))
	}
	container := root.Children[0]

	trees := make([]*Tree, 0, len(container.Children))
	for _, el := range container.Children {
		tree, err := treeFromElement(el, s)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

// treeFromElement decodes one record element against its schema. The
// element's attributes surface as "@name" fields and its character data as
// "#text" when the schema declares them, so attribute-carrying elements
// like translated values decode without special cases.
func treeFromElement(el *xmlnode.Node, s *schema.Schema) (*Tree, error) {
	var entries []Entry

	// Declared attributes surface in schema order so entry order stays
	// deterministic.
	for _, spec := range s.Fields() {
		if !strings.HasPrefix(spec.Name, "@") {
			continue
		}
		if value, ok := el.Attr(strings.TrimPrefix(spec.Name, "@")); ok {
			entries = append(entries, scalar(spec.Name, value))
		}
	}
	if _, ok := s.Field(schema.TextField); ok {
		entries = append(entries, scalar(schema.TextField, el.Text))
	}

	fieldEntries, err := entriesFromChildren(el, s)
	if err != nil {
		return nil, err
	}
	return NewTree(append(entries, fieldEntries...)), nil
}

func entriesFromChildren(el *xmlnode.Node, s *schema.Schema) ([]Entry, error) {
	var entries []Entry
	for _, child := range el.Children {
		// The grouped-association wrapper is transparent: its children are
		// fields of the record.
		if child.Name == associationsWrapper {
			if _, declared := s.Field(child.Name); !declared {
				nested, err := entriesFromChildren(child, s)
				if err != nil {
					return nil, err
				}
				entries = append(entries, nested...)
				continue
			}
		}

		spec, ok := s.Field(child.Name)
		if !ok {
			return nil, taberrors.New(taberrors.ErrorTypeParse, "record field not declared in schema").
				WithDetail("field", child.Name).
				WithDetail("offset", child.Offset)
		}

		if spec.IsAssociation() {
			items := make([]*Tree, 0, len(child.Children))
			for _, item := range child.Children {
				if item.Name != spec.Assoc.ElementName {
					return nil, taberrors.New(taberrors.ErrorTypeParse, "unexpected element in association").
						WithDetail("field", child.Name).
						WithDetail("element", item.Name).
						WithDetail("offset", item.Offset)
				}
				sub, err := treeFromElement(item, spec.Assoc.Element)
				if err != nil {
					return nil, err
				}
				items = append(items, sub)
			}
			entries = append(entries, list(child.Name, items))
			continue
		}

		if len(child.Children) > 0 {
			return nil, taberrors.New(taberrors.ErrorTypeParse, "scalar field holds nested elements").
				WithDetail("field", child.Name).
				WithDetail("offset", child.Offset)
		}
		entries = append(entries, scalar(child.Name, child.Text))
	}
	return entries, nil
}
