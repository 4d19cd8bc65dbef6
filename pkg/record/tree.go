// Package record decodes pages of raw hierarchical records into an
// in-memory tree-of-values form.
//
// Both supported wire encodings, tag-structured markup and nested
// key-value documents, decode into the same Tree shape: an ordered mapping
// from field name to raw text, a sub-record, or a sequence of sub-records.
// Values stay textual here; kind coercion happens later where schema
// context is applied per field. Trees are page-scoped and discarded as soon
// as they have been appended to a batch.
package record

// ValueKind discriminates the three value shapes a tree entry can hold.
type ValueKind int

const (
	// ScalarValue is raw, uncoerced text
	ScalarValue ValueKind = iota
	// RecordValue is a nested sub-record
	RecordValue
	// ListValue is an ordered sequence of sub-records
	ListValue
)

// Value is one decoded field value.
type Value struct {
	Kind   ValueKind
	Text   string
	Record *Tree
	List   []*Tree
}

// Entry pairs a field name with its value, preserving wire order.
type Entry struct {
	Name  string
	Value Value
}

// Tree is one decoded record: an ordered field-name-to-value mapping.
// A field missing from the wire record simply has no entry.
type Tree struct {
	entries []Entry
	index   map[string]int
}

// NewTree builds a tree from ordered entries. Later duplicates overwrite
// earlier ones; the wire formats do not legitimately repeat a field.
func NewTree(entries []Entry) *Tree {
	t := &Tree{entries: entries, index: make(map[string]int, len(entries))}
	for i, e := range entries {
		t.index[e.Name] = i
	}
	return t
}

// Get returns the value for the named field and whether it is present.
func (t *Tree) Get(name string) (Value, bool) {
	i, ok := t.index[name]
	if !ok {
		return Value{}, false
	}
	return t.entries[i].Value, true
}

// Entries returns the entries in wire order. Callers must not mutate.
func (t *Tree) Entries() []Entry {
	return t.entries
}

// Len returns the number of present fields.
func (t *Tree) Len() int {
	return len(t.entries)
}

func scalar(name, text string) Entry {
	return Entry{Name: name, Value: Value{Kind: ScalarValue, Text: text}}
}

func list(name string, items []*Tree) Entry {
	return Entry{Name: name, Value: Value{Kind: ListValue, List: items}}
}
