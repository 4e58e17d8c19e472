// Package format holds the file-format collaborators that turn document
// payloads into file contents and back. The body-bearing field of markdown
// documents travels under the reserved BodyKey inside payloads; moving it
// back under its schema name is the store's job, not ours.
package format

import "fmt"

// BodyKey is the reserved payload key the body field is serialized under.
const BodyKey = "$_body"

type Codec interface {
	// Stringify renders a payload (body already under BodyKey) to file form.
	Stringify(payload map[string]any) (string, error)
	// Parse reads file contents into a payload, body under BodyKey.
	Parse(contents string) (map[string]any, error)
	// Extension is the file extension this codec serves, without the dot.
	Extension() string
}

// ForFormat picks the codec for a collection's format tag.
func ForFormat(format string) (Codec, error) {
	switch format {
	case "md", "markdown", "":
		return &Markdown{ext: "md"}, nil
	case "mdx":
		return &Markdown{ext: "mdx"}, nil
	case "json":
		return &JSON{}, nil
	default:
		return nil, fmt.Errorf("format: unsupported format %q", format)
	}
}
