package mcpservice

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned when a call names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrMissingArgument is returned when a required argument is absent.
	ErrMissingArgument = errors.New("missing required argument")
	// ErrInvalidArguments is returned when arguments cannot be decoded into
	// the tool's argument type.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrDuplicateTool is returned by NewRegistry for repeated tool names.
	ErrDuplicateTool = errors.New("duplicate tool")
)

// ToolError describes a rejected invocation. Its message is the text sent to
// clients; Err holds the sentinel for errors.Is.
type ToolError struct {
	Tool     string
	Argument string
	Err      error
}

func (e *ToolError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownTool):
		return fmt.Sprintf("Unknown tool: %s", e.Tool)
	case errors.Is(e.Err, ErrMissingArgument):
		return fmt.Sprintf("Missing required argument '%s'", e.Argument)
	default:
		return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
	}
}

func (e *ToolError) Unwrap() error { return e.Err }
