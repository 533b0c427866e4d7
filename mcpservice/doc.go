// Package mcpservice holds the tool registry and server description that the
// session engine dispatches to.
//
// Tools are declared with a typed argument struct; the input schema is
// reflected from its json and jsonschema tags:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//
//	echo := mcpservice.NewTool("echo", func(ctx context.Context, a EchoArgs) ([]mcp.Content, error) {
//	    return []mcp.Content{mcp.Text(a.Message)}, nil
//	}, mcpservice.WithToolDescription("Echo a message back"))
//
//	reg, err := mcpservice.NewRegistry(echo, mcpservice.NewFetchTool(fetch.New()))
//	srv := mcpservice.NewServer(reg, mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}))
//
// Registry.CallTool rejects unknown tool names and absent required arguments
// before the handler runs. No other schema validation is performed.
package mcpservice
