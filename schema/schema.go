// Package schema holds the enriched content schema the engine consumes.
// A schema groups documents into collections; each collection declares its
// fields, optional union templates, and optional composite indexes. The
// engine never builds a schema itself, it is handed a validated one.
package schema

import (
	"encoding/json"
	"errors"
	"path"
	"strings"

	"github.com/drpcorg/shelf/shelf_errors"
)

type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeDatetime  FieldType = "datetime"
	TypeReference FieldType = "reference"
	TypeObject    FieldType = "object"
	TypeRichText  FieldType = "rich-text"
)

type Field struct {
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Indexed *bool     `json:"indexed,omitempty"`
	IsBody  bool      `json:"isBody,omitempty"`
}

// Indexable reports whether the field participates in secondary indexes.
// Object and rich-text fields never do; everything else defaults to true.
func (f Field) Indexable() bool {
	if f.Type == TypeObject || f.Type == TypeRichText {
		return false
	}
	if f.Indexed != nil {
		return *f.Indexed
	}
	return true
}

type IndexField struct {
	Name string `json:"name"`
	// Pad overrides the numeric key padding for this index column.
	Pad *Pad `json:"pad,omitempty"`
}

type Pad struct {
	Width  int   `json:"width"`
	Offset int64 `json:"offset,omitempty"`
}

type Index struct {
	Name   string       `json:"name"`
	Fields []IndexField `json:"fields"`
}

// Template is one member of a union collection. Namespace is the full
// dotted path assigned by the schema builder; the last segment is the
// discriminator value stored in documents under _template.
type Template struct {
	Namespace []string `json:"namespace"`
	Fields    []Field  `json:"fields"`
}

func (t Template) Name() string {
	if len(t.Namespace) == 0 {
		return ""
	}
	return t.Namespace[len(t.Namespace)-1]
}

type Collection struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Format    string     `json:"format"`
	Fields    []Field    `json:"fields,omitempty"`
	Templates []Template `json:"templates,omitempty"`
	Indexes   []Index    `json:"indexes,omitempty"`
}

type Schema struct {
	Collections []Collection `json:"collections"`
}

// Parse decodes an enriched schema from its generated JSON form.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Join(shelf_errors.ErrSchema, err)
	}
	for _, c := range s.Collections {
		if c.Name == "" {
			return nil, errors.Join(shelf_errors.ErrSchema, errors.New("collection without a name"))
		}
	}
	return &s, nil
}

func (s *Schema) Collection(name string) (*Collection, bool) {
	for i := range s.Collections {
		if s.Collections[i].Name == name {
			return &s.Collections[i], true
		}
	}
	return nil, false
}

// CollectionForPath resolves the collection a document path belongs to by
// its root path prefix and file extension. System files match nothing.
func (s *Schema) CollectionForPath(p string) (*Collection, bool) {
	p = strings.TrimPrefix(p, "/")
	for i := range s.Collections {
		c := &s.Collections[i]
		root := strings.Trim(c.Path, "/")
		if root != "" && !strings.HasPrefix(p, root+"/") && p != root {
			continue
		}
		if c.MatchesExtension(path.Ext(p)) {
			return c, true
		}
	}
	return nil, false
}

// MatchesExtension reports whether a file extension (with leading dot)
// belongs to this collection's format.
func (c *Collection) MatchesExtension(ext string) bool {
	ext = strings.TrimPrefix(ext, ".")
	switch c.Format {
	case "md", "mdx", "markdown":
		return ext == "md" || ext == "mdx" || ext == "markdown"
	case "":
		return ext == "md"
	default:
		return ext == c.Format
	}
}

// MarkdownLike reports whether documents carry a body under frontmatter.
func (c *Collection) MarkdownLike() bool {
	switch c.Format {
	case "md", "mdx", "markdown", "":
		return true
	}
	return false
}

func (c *Collection) Field(name string) (*Field, bool) {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i], true
		}
	}
	for ti := range c.Templates {
		for i := range c.Templates[ti].Fields {
			if c.Templates[ti].Fields[i].Name == name {
				return &c.Templates[ti].Fields[i], true
			}
		}
	}
	return nil, false
}

// BodyField returns the field marked isBody, if any.
func (c *Collection) BodyField() (*Field, bool) {
	for i := range c.Fields {
		if c.Fields[i].IsBody {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// Template resolves a union member by its discriminator value.
func (c *Collection) Template(name string) (*Template, bool) {
	for i := range c.Templates {
		if c.Templates[i].Name() == name {
			return &c.Templates[i], true
		}
	}
	return nil, false
}

// IndexableFields lists every field that gets a single-column index,
// across the collection body and all templates, deduplicated by name.
func (c *Collection) IndexableFields() []Field {
	seen := make(map[string]bool)
	var out []Field
	add := func(fs []Field) {
		for _, f := range fs {
			if f.Indexable() && !seen[f.Name] {
				seen[f.Name] = true
				out = append(out, f)
			}
		}
	}
	add(c.Fields)
	for _, t := range c.Templates {
		add(t.Fields)
	}
	return out
}
