package record

import (
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// ParsePage sniffs the wire format from the first significant byte and
// dispatches to the matching page parser.
func ParsePage(data []byte, s *schema.Schema) ([]*Tree, error) {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '<':
			return ParseXMLPage(data, s)
		case '{', '[':
			return ParseJSONPage(data, s)
		default:
			return nil, taberrors.New(taberrors.ErrorTypeParse, "unrecognized page format").
				WithDetail("first_byte", string(b))
		}
	}
	return nil, taberrors.New(taberrors.ErrorTypeParse, "empty page body")
}
