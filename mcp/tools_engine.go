package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AutoFlip/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerEngineTools registers tools that inspect and feed the engine
func (s *MCPServer) registerEngineTools() {
	// focus_state - Current foreground
	s.server.AddTool(
		mcp.NewTool("focus_state",
			mcp.WithDescription("Get the foreground app id and activity as tracked by the engine"),
		),
		s.handleFocusState,
	)

	// list_triggers - Registered triggers
	s.server.AddTool(
		mcp.NewTool("list_triggers",
			mcp.WithDescription("List registered triggers, the apps they watch and whether they are active"),
		),
		s.handleListTriggers,
	)

	// unregister_triggers - Remove triggers by app or tag
	s.server.AddTool(
		mcp.NewTool("unregister_triggers",
			mcp.WithDescription(`Unregister triggers. Active triggers are deactivated first.

Give exactly one of:
  app: Remove every trigger interested in this app id
  tag: Remove every trigger with this tag`),
			mcp.WithString("app",
				mcp.Description("App id (package name) the triggers watch"),
			),
			mcp.WithString("tag",
				mcp.Description("Trigger tag, e.g. auto-turn or keep-awake"),
			),
		),
		s.handleUnregisterTriggers,
	)

	// history - Focus and activation journal
	s.server.AddTool(
		mcp.NewTool("history",
			mcp.WithDescription(`Query the focus/activation journal, newest first.

Parameters:
  kind: focus, activity, activate or deactivate (default: all)
  limit: Maximum number of entries (default: 50)`),
			mcp.WithString("kind",
				mcp.Description("Entry kind filter (focus, activity, activate, deactivate)"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of entries to return (default: 50)"),
			),
		),
		s.handleHistory,
	)

	// inject_event - Feed a raw UI event
	s.server.AddTool(
		mcp.NewTool("inject_event",
			mcp.WithDescription(`Inject a raw UI change event into the engine, as if the device reported it.

Example:
  {"type": "window_state_changed", "packageName": "com.reader", "className": "com.reader.ReadActivity"}`),
			mcp.WithString("event",
				mcp.Required(),
				mcp.Description("Event as JSON; type is a number or window_state_changed / content_changed"),
			),
		),
		s.handleInjectEvent,
	)

	// reload_scripts - Reload script triggers
	s.server.AddTool(
		mcp.NewTool("reload_scripts",
			mcp.WithDescription("Reload every script trigger from the script directory"),
		),
		s.handleReloadScripts,
	)
}

func (s *MCPServer) handleFocusState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := s.app.FocusState()
	if info.AppID == "" {
		return textResult("No foreground app observed yet"), nil
	}

	result := fmt.Sprintf("Foreground app: %s\n", info.AppID)
	if info.Activity != "" {
		result += fmt.Sprintf("Activity: %s\n", info.Activity)
	}
	if d, ok := s.app.ConnectedDevice(); ok {
		result += fmt.Sprintf("Device: %s\n", d.ID)
	}
	return textResult(result), nil
}

func (s *MCPServer) handleListTriggers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	triggers := s.app.ListTriggers()
	if len(triggers) == 0 {
		return textResult("No triggers registered"), nil
	}

	result := fmt.Sprintf("Found %d trigger(s):\n\n", len(triggers))
	for i, t := range triggers {
		state := "inactive"
		if t.Active {
			state = "active"
		}
		result += fmt.Sprintf("%d. %s [%s]\n   Apps: %s\n   Source: %s\n",
			i+1, t.Tag, state, strings.Join(t.Apps, ", "), t.Source)
	}

	jsonData, _ := json.MarshalIndent(triggers, "", "  ")
	return textResult(result, fmt.Sprintf("\nJSON data:\n```json\n%s\n```", string(jsonData))), nil
}

func (s *MCPServer) handleUnregisterTriggers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	app, _ := args["app"].(string)
	tag, _ := args["tag"].(string)
	app, tag = strings.TrimSpace(app), strings.TrimSpace(tag)
	if (app == "") == (tag == "") {
		return nil, fmt.Errorf("exactly one of app or tag is required")
	}

	n := s.app.UnregisterTriggers(app, tag)
	target := "app " + app
	if tag != "" {
		target = "tag " + tag
	}
	if n == 0 {
		return textResult(fmt.Sprintf("No triggers registered for %s", target)), nil
	}
	return textResult(fmt.Sprintf("Unregistered %d trigger(s) for %s", n, target)), nil
}

func (s *MCPServer) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	kind, _ := args["kind"].(string)
	switch kind {
	case "", "focus", "activity", "activate", "deactivate":
	default:
		return nil, fmt.Errorf("invalid kind %q", kind)
	}
	limit := 50
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	entries, err := s.app.History(kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	if len(entries) == 0 {
		return textResult("No history recorded"), nil
	}

	result := fmt.Sprintf("Found %d entr(ies):\n\n", len(entries))
	for _, e := range entries {
		ts := time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04:05")
		switch {
		case e.From != "" || e.To != "":
			result += fmt.Sprintf("%s  %-10s %s: %s -> %s\n", ts, e.Kind, e.Subject, e.From, e.To)
		default:
			result += fmt.Sprintf("%s  %-10s %s\n", ts, e.Kind, e.Subject)
		}
	}
	return textResult(result), nil
}

func (s *MCPServer) handleInjectEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	eventJSON, ok := args["event"].(string)
	if !ok || eventJSON == "" {
		return nil, fmt.Errorf("event is required")
	}

	raw, err := types.ParseRawEvent([]byte(eventJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	if raw.Time == 0 {
		raw.Time = time.Now().UnixMilli()
	}

	if !s.app.InjectEvent(raw) {
		return nil, fmt.Errorf("event rejected, the engine queue is full or stopped")
	}
	return textResult(fmt.Sprintf("Event accepted (%s)", types.FromRaw(raw).Kind)), nil
}

func (s *MCPServer) handleReloadScripts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.app.ReloadScripts()
	if err != nil {
		return nil, fmt.Errorf("failed to reload scripts: %w", err)
	}
	return textResult(fmt.Sprintf("Loaded %d script trigger(s)", n)), nil
}
