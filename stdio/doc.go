// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for running the fetcher as a subprocess of
// an MCP client.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : exactly one, ends at EOF on stdin
//	Transport        : newline-delimited JSON-RPC
//	Logging          : never written to stdout
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	reg, _ := mcpservice.NewRegistry(mcpservice.NewFetchTool(fetch.New()))
//	h := stdio.NewHandler(mcpservice.NewServer(reg))
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
//
// For serving many clients at once use the sse package.
package stdio
