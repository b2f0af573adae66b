package render

import (
	"github.com/goccy/go-json"

	"github.com/zoobzio/forestz"
)

// JSON renders each tree as a JSON document followed by a newline.
type JSON struct {
	indent string
}

// NewJSON creates a compact formatter, one tree per line.
func NewJSON() *JSON {
	return &JSON{}
}

// NewIndentedJSON creates a formatter that indents nested values.
func NewIndentedJSON(indent string) *JSON {
	return &JSON{indent: indent}
}

// Format encodes the tree.
func (j *JSON) Format(tree *forestz.Node) ([]byte, error) {
	var (
		buf []byte
		err error
	)
	if j.indent != "" {
		buf, err = json.MarshalIndent(tree, "", j.indent)
	} else {
		buf, err = json.Marshal(tree)
	}
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// ParseJSON decodes a tree produced by JSON.Format.
func ParseJSON(data []byte) (*forestz.Node, error) {
	var tree forestz.Node
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}
