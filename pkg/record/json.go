package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// ParseJSONPage decodes one page of brace-structured text into record trees.
// The page is either a bare array of record objects or an object with a
// single key holding that array. Scalar values keep their raw textual form:
// numbers and booleans are stringified so the typed coercion stage sees the
// same input regardless of wire format, and null means the field is absent.
func ParseJSONPage(data []byte, s *schema.Schema) ([]*Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, parseErr(err)
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, taberrors.New(taberrors.ErrorTypeParse, "trailing content after page document")
	}

	items, err := recordArray(doc)
	if err != nil {
		return nil, err
	}

	trees := make([]*Tree, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, taberrors.New(taberrors.ErrorTypeParse, "record is not an object").
				WithDetail("index", i)
		}
		tree, err := treeFromObject(obj, s)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

func recordArray(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
		if len(v) != 1 {
			return nil, taberrors.New(taberrors.ErrorTypeParse, "page object must hold one record collection").
				WithDetail("keys", len(v))
		}
		for _, inner := range v {
			items, ok := inner.([]any)
			if !ok {
				return nil, taberrors.New(taberrors.ErrorTypeParse, "record collection is not an array")
			}
			return items, nil
		}
	}
	return nil, taberrors.New(taberrors.ErrorTypeParse, "page document is neither array nor object")
}

func treeFromObject(obj map[string]any, s *schema.Schema) (*Tree, error) {
	entries := make([]Entry, 0, len(obj))
	for _, spec := range s.Fields() {
		raw, key, ok := lookupField(obj, spec.Name)
		if !ok {
			continue
		}
		entry, err := entryFromValue(key, raw, spec)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	for key := range obj {
		if key == associationsWrapper {
			continue
		}
		if !fieldDeclared(s, key) {
			return nil, taberrors.New(taberrors.ErrorTypeParse, "record field not declared in schema").
				WithDetail("field", key)
		}
	}
	return NewTree(entries), nil
}

// lookupField finds the wire key matching a schema field name. Attribute
// fields drop their "@" marker on this wire, and element text surfaces
// under "value".
func lookupField(obj map[string]any, name string) (any, string, bool) {
	if v, ok := obj[name]; ok {
		return v, name, true
	}
	if wrapper, ok := obj[associationsWrapper].(map[string]any); ok {
		if v, ok := wrapper[name]; ok {
			return v, name, true
		}
	}
	if bare, found := strings.CutPrefix(name, "@"); found {
		if v, ok := obj[bare]; ok {
			return v, name, true
		}
	}
	if name == schema.TextField {
		if v, ok := obj["value"]; ok {
			return v, name, true
		}
	}
	return nil, "", false
}

func fieldDeclared(s *schema.Schema, key string) bool {
	if _, ok := s.Field(key); ok {
		return true
	}
	if _, ok := s.Field("@" + key); ok {
		return true
	}
	if key == "value" {
		_, ok := s.Field(schema.TextField)
		return ok
	}
	return false
}

func entryFromValue(name string, raw any, spec schema.FieldSpec) (*Entry, error) {
	if raw == nil {
		return nil, nil
	}

	if spec.IsAssociation() {
		items, ok := raw.([]any)
		if !ok {
			// A single element may arrive unwrapped.
			obj, isObj := raw.(map[string]any)
			if !isObj {
				return nil, taberrors.New(taberrors.ErrorTypeParse, "association is not an array").
					WithDetail("field", name)
			}
			items = []any{obj}
		}
		trees := make([]*Tree, 0, len(items))
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, taberrors.New(taberrors.ErrorTypeParse, "association element is not an object").
					WithDetail("field", name)
			}
			sub, err := treeFromObject(obj, spec.Assoc.Element)
			if err != nil {
				return nil, err
			}
			trees = append(trees, sub)
		}
		e := list(name, trees)
		return &e, nil
	}

	text, err := scalarText(raw)
	if err != nil {
		return nil, taberrors.New(taberrors.ErrorTypeParse, "scalar field holds structured value").
			WithDetail("field", name)
	}
	e := scalar(name, text)
	return &e, nil
}

func scalarText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("unsupported scalar %T", raw)
	}
}

func parseErr(err error) error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return taberrors.Wrap(err, taberrors.ErrorTypeParse, "malformed page document").
			WithDetail("offset", syn.Offset)
	}
	return taberrors.Wrap(err, taberrors.ErrorTypeParse, "malformed page document")
}
