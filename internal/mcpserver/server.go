// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Attune rotation tools for LLM integration via stdio transport.
package mcpserver

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/attune/internal/rotationservice"
)

// Server wraps the MCP server with Attune tools.
type Server struct {
	mcp *server.MCPServer
	svc *rotationservice.Service
}

// New creates a new MCP server with all Attune tools registered.
func New(svc *rotationservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Attune",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("list_targets",
		mcp.WithDescription("List registered rotation targets in registration order."),
		mcp.WithBoolean("only_active", mcp.Description("Only return active targets")),
		mcp.WithBoolean("only_urgent", mcp.Description("Only return urgent targets")),
		mcp.WithNumber("min_priority", mcp.Description("Minimum priority (1-10)")),
	), s.listTargets)

	s.mcp.AddTool(mcp.NewTool("register_target",
		mcp.WithDescription("Register a new rotation target. The source type is inferred from the locator when omitted."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Human-readable name")),
		mcp.WithString("locator", mcp.Required(), mcp.Description("Directory path or URL of the target's items")),
		mcp.WithString("category", mcp.Description("Target category")),
		mcp.WithString("source_type", mcp.Description("Source type of the locator")),
		mcp.WithNumber("priority", mcp.Description("Priority from 1 to 10")),
		mcp.WithNumber("repetitions_per_item", mcp.Description("Repetitions before moving to the next item")),
		mcp.WithNumber("display_duration_ms", mcp.Description("Display time of one repetition in milliseconds")),
		mcp.WithBoolean("is_urgent", mcp.Description("Mark the target urgent")),
		mcp.WithString("notes", mcp.Description("Free-form notes")),
	), s.registerTarget)

	s.mcp.AddTool(mcp.NewTool("start_rotation",
		mcp.WithDescription("Start a rotation over the eligible targets. Omitted settings use the server defaults."),
		mcp.WithNumber("duration_per_target_ms", mcp.Description("Time spent on each target")),
		mcp.WithNumber("transition_pause_ms", mcp.Description("Pause between targets")),
		mcp.WithBoolean("link_reading", mcp.Description("Attach a reading session to each target")),
		mcp.WithBoolean("continuous_mode", mcp.Description("Wrap around the queue instead of stopping after one pass")),
		mcp.WithBoolean("only_active", mcp.Description("Only rotate active targets")),
		mcp.WithNumber("min_priority", mcp.Description("Minimum target priority")),
		mcp.WithNumber("max_cycles", mcp.Description("Stop after this many queue entries (0 for unlimited)")),
	), s.startRotation)

	s.mcp.AddTool(mcp.NewTool("rotation_status",
		mcp.WithDescription("Get the status of a rotation, or of every rotation when no id is given."),
		mcp.WithString("rotation_id", mcp.Description("Rotation id")),
	), s.rotationStatus)

	s.mcp.AddTool(mcp.NewTool("pause_rotation",
		mcp.WithDescription("Pause a running rotation."),
		mcp.WithString("rotation_id", mcp.Required(), mcp.Description("Rotation id")),
	), s.pauseRotation)

	s.mcp.AddTool(mcp.NewTool("resume_rotation",
		mcp.WithDescription("Resume a paused rotation."),
		mcp.WithString("rotation_id", mcp.Required(), mcp.Description("Rotation id")),
	), s.resumeRotation)

	s.mcp.AddTool(mcp.NewTool("stop_rotation",
		mcp.WithDescription("Stop a rotation and return its final stats."),
		mcp.WithString("rotation_id", mcp.Required(), mcp.Description("Rotation id")),
	), s.stopRotation)

	s.mcp.AddTool(mcp.NewTool("take_reading",
		mcp.WithDescription("Produce one reading. Without a session id a new session is opened with the default parameters."),
		mcp.WithString("session_id", mcp.Description("Existing reading session id")),
	), s.takeReading)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
