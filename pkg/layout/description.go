// Package layout holds the declarative description of a panel: the page
// forests of component descriptions and the codecs that read them.
package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

// DefaultStyle is the style tag applied when a description names none.
const DefaultStyle = "default"

// Description is one node of a layout forest. A description either nests
// further descriptions (Nested is true, Children may be empty) or is a leaf
// carrying literal Content.
type Description struct {
	ID       string        `json:"id" yaml:"id"`
	Kind     Kind          `json:"component" yaml:"component"`
	Children []Description `json:"children,omitempty" yaml:"children,omitempty"`
	Nested   bool          `json:"-" yaml:"-"`
	Content  string        `json:"-" yaml:"-"`
	Style    string        `json:"comp_class,omitempty" yaml:"comp_class,omitempty"`

	// Control names the nested control of a card or card_text explicitly.
	Control string `json:"control,omitempty" yaml:"control,omitempty"`
}

// StyleTag returns the description's style tag, falling back to DefaultStyle.
func (d Description) StyleTag() string {
	if d.Style == "" {
		return DefaultStyle
	}
	return d.Style
}

// Count returns the number of descriptions in the subtree rooted at d.
func (d Description) Count() int {
	n := 1
	for _, child := range d.Children {
		n += child.Count()
	}
	return n
}

type rawDescription struct {
	ID       string          `json:"id"`
	Kind     string          `json:"component"`
	Children json.RawMessage `json:"children"`
	Style    string          `json:"comp_class"`
	Control  string          `json:"control"`
}

// UnmarshalJSON accepts "children" as an array of descriptions, a string
// (literal content), a number, or null.
func (d *Description) UnmarshalJSON(data []byte) error {
	var raw rawDescription
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Description{
		ID:      raw.ID,
		Kind:    Kind(raw.Kind),
		Style:   raw.Style,
		Control: raw.Control,
	}

	body := bytes.TrimSpace(raw.Children)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	switch body[0] {
	case '[':
		var children []Description
		if err := json.Unmarshal(body, &children); err != nil {
			return fmt.Errorf("children of %q: %w", raw.ID, err)
		}
		d.Children = children
		d.Nested = true
	case '"':
		if err := json.Unmarshal(body, &d.Content); err != nil {
			return fmt.Errorf("content of %q: %w", raw.ID, err)
		}
	default:
		var num json.Number
		if err := json.Unmarshal(body, &num); err != nil {
			return fmt.Errorf("children of %q must be a list, string, or number", raw.ID)
		}
		d.Content = num.String()
	}
	return nil
}

// MarshalJSON writes Content back into "children" for leaves.
func (d Description) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":        d.ID,
		"component": d.Kind,
	}
	if d.Nested {
		children := d.Children
		if children == nil {
			children = []Description{}
		}
		out["children"] = children
	} else if d.Content != "" {
		out["children"] = d.Content
	}
	if d.Style != "" {
		out["comp_class"] = d.Style
	}
	if d.Control != "" {
		out["control"] = d.Control
	}
	return json.Marshal(out)
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML documents.
func (d *Description) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		ID       string    `yaml:"id"`
		Kind     string    `yaml:"component"`
		Children yaml.Node `yaml:"children"`
		Style    string    `yaml:"comp_class"`
		Control  string    `yaml:"control"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*d = Description{
		ID:      raw.ID,
		Kind:    Kind(raw.Kind),
		Style:   raw.Style,
		Control: raw.Control,
	}

	switch raw.Children.Kind {
	case 0:
		return nil
	case yaml.SequenceNode:
		var children []Description
		if err := raw.Children.Decode(&children); err != nil {
			return fmt.Errorf("children of %q: %w", raw.ID, err)
		}
		d.Children = children
		d.Nested = true
	case yaml.ScalarNode:
		if raw.Children.Tag != "!!null" {
			d.Content = raw.Children.Value
		}
	default:
		return fmt.Errorf("line %d: children of %q must be a list or a scalar", raw.Children.Line, raw.ID)
	}
	return nil
}

// Document maps page identifiers to ordered forests of root descriptions.
type Document struct {
	Pages map[string][]Description
}

// Page returns the root descriptions stored under key.
func (doc *Document) Page(key string) ([]Description, error) {
	if doc == nil {
		return nil, apperrors.New(apperrors.ErrCodeLayoutInvalid, "layout document is empty")
	}
	roots, ok := doc.Pages[key]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeLayoutInvalid, "page %q not found in layout", key).
			WithContext("pages", doc.PageKeys())
	}
	return roots, nil
}

// PageKeys lists the document's page identifiers in sorted order.
func (doc *Document) PageKeys() []string {
	keys := make([]string, 0, len(doc.Pages))
	for k := range doc.Pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks the structural contract of one page: every description has
// an identity. Kind and identity uniqueness are enforced when the page is built.
func Validate(roots []Description) error {
	var walk func(d Description, path string) error
	walk = func(d Description, path string) error {
		if d.ID == "" {
			return apperrors.Newf(apperrors.ErrCodeLayoutInvalid, "description at %s has no id", path)
		}
		for i, child := range d.Children {
			if err := walk(child, path+"/"+d.ID+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		return nil
	}
	for i, root := range roots {
		if err := walk(root, "["+strconv.Itoa(i)+"]"); err != nil {
			return err
		}
	}
	return nil
}
