package layout

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

// Format identifies the encoding of a layout document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks a format from a file extension. Unknown extensions are
// read as JSON, the format the panel's layout files have always used.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes a layout document.
func Parse(data []byte, format Format) (*Document, error) {
	pages := make(map[string][]Description)
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &pages)
	case FormatJSON, "":
		err = json.Unmarshal(data, &pages)
	default:
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidInput, "unsupported layout format %q", format)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeLayoutInvalid, "decode layout document").
			WithContext("format", string(format))
	}
	return &Document{Pages: pages}, nil
}

// Load reads and decodes the layout document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeLayoutLoad, "read layout").
			WithContext("path", path)
	}
	doc, err := Parse(data, FormatForPath(path))
	if err != nil {
		if perr, ok := err.(*apperrors.Error); ok {
			perr.WithContext("path", path)
		}
		return nil, err
	}
	return doc, nil
}

// LoadPage reads path and returns the validated roots of one page.
func LoadPage(path, page string) ([]Description, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	roots, err := doc.Page(page)
	if err != nil {
		return nil, err
	}
	if err := Validate(roots); err != nil {
		return nil, err
	}
	return roots, nil
}
