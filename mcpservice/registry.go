package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-website-fetcher/mcp"
)

// Registry is an immutable set of tools. It is built once at startup and
// shared by every session without locking.
type Registry struct {
	tools    []mcp.Tool
	handlers map[string]StaticTool
}

// NewRegistry builds a Registry preserving the order of defs.
func NewRegistry(defs ...StaticTool) (*Registry, error) {
	r := &Registry{
		tools:    make([]mcp.Tool, 0, len(defs)),
		handlers: make(map[string]StaticTool, len(defs)),
	}
	for _, d := range defs {
		name := d.Descriptor.Name
		if name == "" {
			return nil, fmt.Errorf("tool descriptor missing name")
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("tool %s: nil handler", name)
		}
		if _, dup := r.handlers[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		r.tools = append(r.tools, d.Descriptor)
		r.handlers[name] = d
	}
	return r, nil
}

// ListTools returns the registered descriptors. The slice is a copy.
func (r *Registry) ListTools() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// CallTool validates name and required arguments, then runs the handler and
// returns its content unchanged. Validation failures are *ToolError values
// wrapping ErrUnknownTool or ErrMissingArgument; the handler is not invoked
// in that case.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]json.RawMessage) ([]mcp.Content, error) {
	def, ok := r.handlers[name]
	if !ok {
		return nil, &ToolError{Tool: name, Err: ErrUnknownTool}
	}
	for _, req := range def.Descriptor.InputSchema.Required {
		if _, present := args[req]; !present {
			return nil, &ToolError{Tool: name, Argument: req, Err: ErrMissingArgument}
		}
	}
	return def.Handler(ctx, args)
}
