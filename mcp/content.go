package mcp

import (
	"encoding/json"
	"fmt"
)

// Content type discriminators used on the wire.
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeResource = "resource"
)

// Content is one element of a tool result. The set of implementations is
// closed: TextContent, ImageContent and EmbeddedResource. Consumers switch
// over all three.
type Content interface {
	isContent()
}

// TextContent is plain text.
type TextContent struct {
	Text string
}

// ImageContent references an image by URL. The bytes are never fetched.
type ImageContent struct {
	URL      string
	MimeType string
}

// EmbeddedResource carries structured data, typically a decoded JSON
// document, together with the URI it was read from.
type EmbeddedResource struct {
	URI      string
	MimeType string
	Data     any
}

func (TextContent) isContent()      {}
func (ImageContent) isContent()     {}
func (EmbeddedResource) isContent() {}

// Text is shorthand for a TextContent value.
func Text(s string) Content { return TextContent{Text: s} }

// Textf formats a TextContent value.
func Textf(format string, args ...any) Content {
	return TextContent{Text: fmt.Sprintf(format, args...)}
}

// ContentBlockOf converts a Content value into its wire form.
func ContentBlockOf(c Content) (ContentBlock, error) {
	switch v := c.(type) {
	case TextContent:
		return ContentBlock{Type: ContentTypeText, Text: v.Text}, nil
	case ImageContent:
		return ContentBlock{Type: ContentTypeImage, MimeType: v.MimeType, URI: v.URL}, nil
	case EmbeddedResource:
		b, err := json.Marshal(v.Data)
		if err != nil {
			return ContentBlock{}, fmt.Errorf("marshal embedded resource %q: %w", v.URI, err)
		}
		return ContentBlock{
			Type: ContentTypeResource,
			Resource: &ResourceContents{
				URI:      v.URI,
				MimeType: v.MimeType,
				Text:     string(b),
			},
		}, nil
	case nil:
		return ContentBlock{}, fmt.Errorf("nil content")
	default:
		return ContentBlock{}, fmt.Errorf("unsupported content %T", c)
	}
}

// NewCallToolResult converts a sequence of Content values into a tool result.
func NewCallToolResult(contents []Content) (*CallToolResult, error) {
	res := &CallToolResult{Content: make([]ContentBlock, 0, len(contents))}
	for _, c := range contents {
		block, err := ContentBlockOf(c)
		if err != nil {
			return nil, err
		}
		res.Content = append(res.Content, block)
	}
	return res, nil
}
