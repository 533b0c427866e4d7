package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-website-fetcher/mcp"
)

// FetchToolName is the name the fetch tool is registered under.
const FetchToolName = "fetch"

// Fetcher retrieves a URL as tool content. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) []mcp.Content
}

// FetchArgs is the argument object accepted by the fetch tool.
type FetchArgs struct {
	URL string `json:"url" jsonschema:"description=URL to fetch"`
}

// NewFetchTool binds f to the "fetch" tool.
func NewFetchTool(f Fetcher) StaticTool {
	return NewTool(FetchToolName, func(ctx context.Context, args FetchArgs) ([]mcp.Content, error) {
		return f.Fetch(ctx, args.URL), nil
	}, WithToolDescription("Fetches a website and returns its content"))
}
