// Package fetch implements the content fetcher behind the "fetch" tool.
//
// A Fetcher issues one GET per call with a fixed User-Agent, follows
// redirects, and maps the response onto a single mcp.Content value:
//
//	text/html         -> mcp.TextContent holding the body
//	image/*           -> mcp.ImageContent referencing the requested URL
//	application/json  -> mcp.EmbeddedResource holding the decoded document
//	anything else     -> mcp.TextContent "Unsupported content type."
//
// Failures never escape as Go errors. Network failures become
// "Request Error: <detail>", statuses of 400 and above become
// "HTTP Error: <code>", and malformed JSON becomes "Parse Error: <detail>".
package fetch
