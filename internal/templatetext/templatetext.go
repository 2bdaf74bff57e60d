// Package templatetext converts between the editable text and YAML forms of a
// checklist template and the (items, mandatory) pair stored by the server.
//
// Text form holds one item per line. Lines starting with OptionalMarker are
// optional items; every other non-blank line is mandatory.
package templatetext

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const OptionalMarker = "?"

// Parse decodes the text form. Blank lines and surrounding whitespace are
// ignored; a marker with no text after it is dropped.
func Parse(text string) (items []string, mandatory []bool) {
	items = []string{}
	mandatory = []bool{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		required := true
		if strings.HasPrefix(line, OptionalMarker) {
			required = false
			line = strings.TrimSpace(strings.TrimPrefix(line, OptionalMarker))
		}
		if line == "" {
			continue
		}
		items = append(items, line)
		mandatory = append(mandatory, required)
	}
	return items, mandatory
}

// Format encodes items back into the text form accepted by Parse.
func Format(items []string, mandatory []bool) string {
	var b strings.Builder
	for i, item := range items {
		if i < len(mandatory) && !mandatory[i] {
			b.WriteString(OptionalMarker)
			b.WriteByte(' ')
		}
		b.WriteString(item)
		b.WriteByte('\n')
	}
	return b.String()
}

// File is the YAML template document.
type File struct {
	Name  string     `yaml:"name"`
	Items []FileItem `yaml:"items"`
}

type FileItem struct {
	Text     string `yaml:"text"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Split returns the parallel item and mandatory slices of the file.
func (f File) Split() ([]string, []bool) {
	items := make([]string, 0, len(f.Items))
	mandatory := make([]bool, 0, len(f.Items))
	for _, item := range f.Items {
		items = append(items, item.Text)
		mandatory = append(mandatory, !item.Optional)
	}
	return items, mandatory
}

// ParseYAML decodes a template file. Unknown fields are rejected.
func ParseYAML(raw []byte) (File, error) {
	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return File{}, fmt.Errorf("parse template yaml: %w", err)
	}
	file.Name = strings.TrimSpace(file.Name)
	if file.Name == "" {
		return File{}, fmt.Errorf("parse template yaml: name is required")
	}
	return file, nil
}

// MarshalYAML encodes a template as a File document.
func MarshalYAML(name string, items []string, mandatory []bool) ([]byte, error) {
	file := File{Name: name, Items: make([]FileItem, 0, len(items))}
	for i, item := range items {
		file.Items = append(file.Items, FileItem{
			Text:     item,
			Optional: i < len(mandatory) && !mandatory[i],
		})
	}
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(file); err != nil {
		return nil, fmt.Errorf("encode template yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encode template yaml: %w", err)
	}
	return buf.Bytes(), nil
}
