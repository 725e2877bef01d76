package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// buildToolCatalog returns all available MCP tools
func buildToolCatalog() []ToolDefinition {
	attendee := object(map[string]any{
		"email":           prop("string", "Attendee email"),
		"name":            prop("string", "Display name"),
		"response_status": prop("string", "accepted, declined, tentative or needsAction"),
	}, "email")

	calendarEvent := object(map[string]any{
		"id":          prop("string", "External event ID"),
		"title":       prop("string", "Event title"),
		"description": prop("string", "Event description"),
		"location":    prop("string", "Event location"),
		"start":       prop("string", "Start time (RFC3339)"),
		"end":         prop("string", "End time (RFC3339)"),
		"updated":     prop("string", "Last modification time in the source calendar (RFC3339)"),
		"attendees": map[string]any{
			"type":  "array",
			"items": attendee,
		},
	}, "id", "title", "start", "end")

	contact := object(map[string]any{
		"id":    prop("string", "Contact ID"),
		"name":  prop("string", "Contact name"),
		"email": prop("string", "Contact email"),
	}, "email")

	return []ToolDefinition{
		{
			Name:        "process_events",
			Description: "Analyze calendar events: skip unchanged ones, filter irrelevant ones and extract structured insight from the rest",
			InputSchema: object(map[string]any{
				"events":           map[string]any{"type": "array", "description": "Calendar events to analyze", "items": calendarEvent},
				"contacts":         map[string]any{"type": "array", "description": "Known contacts used to recognise clients", "items": contact},
				"prefer_free_tier": prop("boolean", "Route every model call to the free-tier model"),
				"priority": map[string]any{
					"type":        "string",
					"description": "Admission priority",
					"enum":        []string{"high", "normal", "low"},
				},
				"concurrency":    prop("integer", "Temporary concurrency limit for this run"),
				"batch_size":     prop("integer", "Events per batch"),
				"batch_delay_ms": prop("integer", "Delay between batches in milliseconds"),
				"historical":     prop("boolean", "Backfill of past events; prefers the free tier"),
				"enforce_budget": prop("boolean", "Fail or downgrade events when the user is over budget"),
			}, "events"),
		},
		{
			Name:        "get_cost_stats",
			Description: "Summarize model spend over a rolling period",
			InputSchema: object(map[string]any{
				"period": map[string]any{
					"type":        "string",
					"description": "Rolling window (default day)",
					"enum":        []string{"day", "week", "month"},
				},
			}),
		},
		{
			Name:        "set_budget_limits",
			Description: "Set the daily and monthly spend ceilings in USD; zero disables a ceiling",
			InputSchema: object(map[string]any{
				"daily_limit":   prop("number", "Daily ceiling in USD"),
				"monthly_limit": prop("number", "Monthly ceiling in USD"),
			}, "daily_limit", "monthly_limit"),
		},
		{
			Name:        "get_budget_limits",
			Description: "Get the spend ceilings and current utilization",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        "get_model_recommendation",
			Description: "Recommend a model for an upcoming call given the remaining budget",
			InputSchema: object(map[string]any{
				"operation":        prop("string", "Operation tag, e.g. filter or extract"),
				"estimated_tokens": prop("integer", "Estimated prompt tokens"),
			}, "operation"),
		},
		{
			Name:        "get_concurrency_stats",
			Description: "Get admission controller counters",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        "adjust_concurrency",
			Description: "Change the number of model calls allowed to run at once",
			InputSchema: object(map[string]any{
				"limit": prop("integer", "New limit (at least 1)"),
			}, "limit"),
		},
		{
			Name:        "get_processed_event",
			Description: "Get the stored analysis for an event",
			InputSchema: object(map[string]any{
				"event_id": prop("string", "External event ID"),
			}, "event_id"),
		},
		{
			Name:        "check_rate_limit",
			Description: "Report remaining request capacity for a model without consuming it",
			InputSchema: object(map[string]any{
				"model": prop("string", "Model name"),
			}, "model"),
		},
		{
			Name:        "get_recent_activity",
			Description: "List recent pipeline activity, newest first",
			InputSchema: object(map[string]any{
				"activity_type": prop("string", "Filter by activity type"),
				"model":         prop("string", "Filter by model"),
				"since":         prop("string", "Only entries at or after this time (RFC3339)"),
				"limit":         prop("integer", "Maximum number of entries (default 50)"),
				"offset":        prop("integer", "Offset for pagination"),
			}),
		},
	}
}

func registerTools(server *sdkmcp.Server, h *Handler) {
	for _, def := range buildToolCatalog() {
		name := def.Name
		server.AddTool(&sdkmcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args json.RawMessage
			if req != nil && req.Params != nil {
				args = req.Params.Arguments
			}
			out, err := h.Handle(ctx, getUserID(ctx), name, args)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(out)
		})
	}
}

func jsonResult(v any) (*sdkmcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil
}

// errorResult reports tool failures in-band so clients can read the code.
func errorResult(err error) *sdkmcp.CallToolResult {
	apiErr := MapError(err)
	if apiErr == nil {
		apiErr = &APIError{Code: "INTERNAL", Message: err.Error()}
	}
	data, _ := json.Marshal(apiErr)
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}
}
