// Package document reads workflow documents from YAML, JSON or HCL into the
// typed model and checks their shape. Referential integrity is left to the
// plan compiler.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// ErrUnsupportedFormat indicates a file extension with no decoder.
var ErrUnsupportedFormat = errors.New("document: unsupported format")

// ReadFile reads the raw bytes of a document, for signature checks and
// Parse.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", path, err)
	}
	return data, nil
}

// FromFile reads and parses the document at path.
func FromFile(path string) (*model.Document, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse decodes data by the extension of filename and validates the result.
func Parse(data []byte, filename string) (*model.Document, error) {
	var (
		doc *model.Document
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml", ".json":
		doc, err = FromYAML(data)
	case ".hcl":
		doc, err = FromHCL(data, filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromYAML decodes a YAML or JSON document. Unknown fields are rejected.
func FromYAML(data []byte) (*model.Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc model.Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("document: empty document")
		}
		return nil, fmt.Errorf("document: parse yaml: %w", err)
	}
	return &doc, nil
}
