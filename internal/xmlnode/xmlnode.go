// Package xmlnode builds a lightweight in-memory DOM from tag-structured
// markup. It exists so that the schema resolver and the record parser share
// one decoding path; both walk the same node shape instead of owning their
// own tokenizers.
package xmlnode

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Node is one element: a name, its attributes, its character data, and its
// child elements in document order.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node

	// Offset is the byte offset of the element's start tag, kept for
	// error reporting.
	Offset int64
}

// Attr returns the value of the named attribute and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Child returns the first child element with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// HasChildNamed reports whether any child element has the given name.
func (n *Node) HasChildNamed(name string) bool {
	return n.Child(name) != nil
}

// Parse decodes a whole document and returns its root element. Malformed
// nesting, unterminated elements, invalid escapes and invalid byte
// sequences surface as a parse error tagged with the decoder's byte offset.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// Strict mode stays on so structural violations fail the page as a whole.
	dec.Strict = true

	var root *Node
	var stack []*Node

	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, taberrors.Wrap(err, taberrors.ErrorTypeParse, "malformed markup").
				WithDetail("offset", offset)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local, Offset: offset}
			if len(t.Attr) > 0 {
				node.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					node.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, taberrors.New(taberrors.ErrorTypeParse, "multiple root elements").
						WithDetail("offset", offset)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, taberrors.New(taberrors.ErrorTypeParse, "unexpected end element").
					WithDetail("offset", offset)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if len(stack) != 0 {
		return nil, taberrors.New(taberrors.ErrorTypeParse, "unterminated element").
			WithDetail("element", stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, taberrors.New(taberrors.ErrorTypeParse, "document has no root element")
	}
	return root, nil
}
