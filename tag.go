package forestz

import (
	"strings"
)

// Tag labels an event with a category, such as "request.error" or
// "security.critical", and the icon it is rendered with.
type Tag struct {
	Prefix string
	Label  string
	Icon   string
}

// NewTag returns a tag for level under prefix. An empty prefix yields the
// plain level tag.
func NewTag(prefix string, level Level) Tag {
	return Tag{Prefix: prefix, Label: level.String(), Icon: level.Icon()}
}

// String returns "prefix.label", or just the label without a prefix.
func (t Tag) String() string {
	if t.Prefix == "" {
		return t.Label
	}
	return t.Prefix + "." + t.Label
}

// MarshalText encodes the tag as its String form. The icon is not encoded.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes "prefix.label" or "label". Labels that name a Level
// get that level's icon back.
func (t *Tag) UnmarshalText(text []byte) error {
	s := string(text)
	*t = Tag{Label: s}
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		t.Prefix, t.Label = s[:i], s[i+1:]
	}
	if level, err := ParseLevel(t.Label); err == nil && level.String() == t.Label {
		t.Icon = level.Icon()
	}
	return nil
}

// Tagger picks a tag for an event from its level, message and fields.
// Returning false leaves the event with its level tag.
type Tagger func(event *Node) (Tag, bool)
