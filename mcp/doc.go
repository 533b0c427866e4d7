// Package mcp contains the Model Context Protocol data types the fetcher
// server exchanges with clients: method names, the initialize handshake, tool
// descriptors and tool results.
//
// The package is free of transport logic. The stdio and sse packages frame
// messages; internal/engine decodes requests into these types and encodes
// results back to JSON-RPC.
//
// # Content
//
// Tool handlers return []Content. Content is a closed sum type with three
// variants:
//
//	mcp.TextContent{Text: "..."}
//	mcp.ImageContent{URL: "https://example.com/cat.png", MimeType: "image/png"}
//	mcp.EmbeddedResource{URI: "https://example.com/a.json", MimeType: "application/json", Data: v}
//
// ContentBlockOf maps each variant to its wire ContentBlock. Images are
// referenced by URI rather than inlined, and embedded resources carry their
// data as compact JSON text.
//
// # Versions
//
// NegotiateProtocolVersion echoes a supported client version and otherwise
// falls back to LatestProtocolVersion.
package mcp
