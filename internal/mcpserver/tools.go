package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/reading"
	"github.com/starford/attune/internal/rotationservice"
)

// Optional arguments arrive as decoded JSON, so numbers are float64.

func optFloat(args map[string]any, key string) *float64 {
	if v, ok := args[key].(float64); ok {
		return &v
	}
	return nil
}

func optInt(args map[string]any, key string) *int {
	if f := optFloat(args, key); f != nil {
		v := int(*f)
		return &v
	}
	return nil
}

func optInt64(args map[string]any, key string) *int64 {
	if f := optFloat(args, key); f != nil {
		v := int64(*f)
		return &v
	}
	return nil
}

func optBool(args map[string]any, key string) *bool {
	if v, ok := args[key].(bool); ok {
		return &v
	}
	return nil
}

func (s *Server) listTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var f models.TargetFilter
	if v := optBool(args, "only_active"); v != nil {
		f.OnlyActive = *v
	}
	if v := optBool(args, "only_urgent"); v != nil {
		f.OnlyUrgent = *v
	}
	if v := optInt(args, "min_priority"); v != nil {
		f.MinPriority = *v
	}
	targets, err := s.svc.ListTargets(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(targets)
}

func (s *Server) registerTarget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	locator, err := req.RequireString("locator")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	in := models.TargetInput{
		Name:       name,
		Locator:    locator,
		Category:   models.Category(req.GetString("category", "")),
		SourceType: models.SourceType(req.GetString("source_type", "")),
		Notes:      req.GetString("notes", ""),
	}
	if v := optInt(args, "priority"); v != nil {
		in.Priority = *v
	}
	if v := optInt(args, "repetitions_per_item"); v != nil {
		in.RepetitionsPerItem = *v
	}
	if v := optInt(args, "display_duration_ms"); v != nil {
		in.DisplayDurationMs = *v
	}
	if v := optBool(args, "is_urgent"); v != nil {
		in.IsUrgent = *v
	}
	t, err := s.svc.CreateTarget(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t)
}

func (s *Server) startRotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	st, err := s.svc.StartRotation(ctx, rotationservice.StartRequest{
		DurationPerTargetMs: optInt64(args, "duration_per_target_ms"),
		TransitionPauseMs:   optInt64(args, "transition_pause_ms"),
		LinkReading:         optBool(args, "link_reading"),
		ContinuousMode:      optBool(args, "continuous_mode"),
		OnlyActive:          optBool(args, "only_active"),
		MinPriority:         optInt(args, "min_priority"),
		MaxCycles:           optInt(args, "max_cycles"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) rotationStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("rotation_id", "")
	if id == "" {
		return jsonResult(s.svc.Rotations())
	}
	st, err := s.svc.RotationStatus(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) pauseRotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("rotation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.PauseRotation(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) resumeRotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("rotation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.ResumeRotation(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) stopRotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("rotation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := s.svc.StopRotation(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats)
}

type takeReadingResult struct {
	SessionID string          `json:"session_id"`
	Reading   reading.Reading `json:"reading"`
}

func (s *Server) takeReading(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		info, err := s.svc.OpenReadingSession(nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id = info.ID
	}
	rd, err := s.svc.TakeReading(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(takeReadingResult{SessionID: id, Reading: rd})
}
