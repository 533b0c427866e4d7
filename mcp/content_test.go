package mcp

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestContentBlockOf(t *testing.T) {
	tests := []struct {
		name string
		in   Content
		want ContentBlock
	}{
		{
			name: "text",
			in:   Text("hello"),
			want: ContentBlock{Type: ContentTypeText, Text: "hello"},
		},
		{
			name: "image",
			in:   ImageContent{URL: "http://example.com/cat.png", MimeType: "image/png"},
			want: ContentBlock{Type: ContentTypeImage, MimeType: "image/png", URI: "http://example.com/cat.png"},
		},
		{
			name: "resource",
			in:   EmbeddedResource{URI: "http://example.com/a.json", MimeType: "application/json", Data: map[string]any{"a": 1.0}},
			want: ContentBlock{Type: ContentTypeResource, Resource: &ResourceContents{
				URI:      "http://example.com/a.json",
				MimeType: "application/json",
				Text:     `{"a":1}`,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ContentBlockOf(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("block mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContentBlockOfNil(t *testing.T) {
	if _, err := ContentBlockOf(nil); err == nil {
		t.Fatalf("expected error for nil content")
	}
}

func TestCallToolResultWireShape(t *testing.T) {
	res, err := NewCallToolResult([]Content{Text("Unsupported content type.")})
	if err != nil {
		t.Fatalf("new result: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"content":[{"type":"text","text":"Unsupported content type."}]}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestNegotiateProtocolVersion(t *testing.T) {
	if got := NegotiateProtocolVersion("2024-11-05"); got != "2024-11-05" {
		t.Fatalf("expected supported version echoed, got %q", got)
	}
	if got := NegotiateProtocolVersion("1999-01-01"); got != LatestProtocolVersion {
		t.Fatalf("expected fallback to latest, got %q", got)
	}
}

func TestEmptyTextKeepsTextField(t *testing.T) {
	res, err := NewCallToolResult([]Content{Text("")})
	if err != nil {
		t.Fatalf("new result: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"content":[{"type":"text","text":""}]}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestNonTextBlocksOmitText(t *testing.T) {
	block, err := ContentBlockOf(ImageContent{URL: "http://example.com/cat.png", MimeType: "image/png"})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	b, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"image","mimeType":"image/png","uri":"http://example.com/cat.png"}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

// wrappedText satisfies Content through embedding without being one of the
// known variants.
type wrappedText struct {
	TextContent
}

func TestContentBlockOfUnknownVariant(t *testing.T) {
	_, err := ContentBlockOf(wrappedText{TextContent{Text: "x"}})
	if err == nil {
		t.Fatalf("expected error for unknown content variant")
	}
}
