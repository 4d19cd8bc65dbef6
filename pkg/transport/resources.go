package transport

import (
	"bytes"
	"context"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tabfetch/tabfetch/internal/xmlnode"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// ListResources fetches the API index and returns the resource names it
// exposes, sorted.
func (c *Client) ListResources(ctx context.Context) ([]string, error) {
	body, err := c.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	names, err := parseIndex(body)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// parseIndex reads the index document. The markup form nests resource
// elements under an api element, the JSON form keys an object by resource
// name.
func parseIndex(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, taberrors.New(taberrors.ErrorTypeParse, "empty index document")
	}

	if trimmed[0] == '<' {
		root, err := xmlnode.Parse(body)
		if err != nil {
			return nil, err
		}
		api := root.Child("api")
		if api == nil {
			return nil, taberrors.New(taberrors.ErrorTypeParse, "index document has no api element")
		}
		names := make([]string, 0, len(api.Children))
		for _, child := range api.Children {
			names = append(names, child.Name)
		}
		return names, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeParse, "malformed index document")
	}
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	return names, nil
}
