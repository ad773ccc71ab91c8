package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerPageTurnTools registers page turning tools
func (s *MCPServer) registerPageTurnTools() {
	// turn_page - Turn a page in the foreground app
	s.server.AddTool(
		mcp.NewTool("turn_page",
			mcp.WithDescription(`Turn one page in the foreground app.

Tries structural strategies (scroll containers, page granularity) in the
app's configured priority order, then falls back to tapping near the screen
edge.

Parameters:
  direction: "next" (default) or "previous"`),
			mcp.WithString("direction",
				mcp.Description("Page direction: next or previous (default: next)"),
			),
		),
		s.handleTurnPage,
	)

	// turn_page_vertical - Swipe a page vertically
	s.server.AddTool(
		mcp.NewTool("turn_page_vertical",
			mcp.WithDescription("Turn a page with a vertical swipe. Only works for apps in the vertical whitelist."),
			mcp.WithString("direction",
				mcp.Description("Page direction: next or previous (default: next)"),
			),
		),
		s.handleTurnPageVertical,
	)
}

// parseDirection maps the direction argument to forward
func parseDirection(args map[string]interface{}) (bool, error) {
	dir, _ := args["direction"].(string)
	switch dir {
	case "", "next", "forward":
		return true, nil
	case "previous", "prev", "back", "backward":
		return false, nil
	default:
		return false, fmt.Errorf("invalid direction %q, must be next or previous", dir)
	}
}

func (s *MCPServer) handleTurnPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	forward, err := parseDirection(request.GetArguments())
	if err != nil {
		return nil, err
	}
	result, err := s.app.TurnPage(forward)
	if err != nil {
		return nil, fmt.Errorf("page turn not possible: %w", err)
	}
	return turnResult(result), nil
}

func (s *MCPServer) handleTurnPageVertical(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	forward, err := parseDirection(request.GetArguments())
	if err != nil {
		return nil, err
	}
	result, err := s.app.TurnPageVertically(forward)
	if err != nil {
		return nil, fmt.Errorf("vertical page turn not possible: %w", err)
	}
	return turnResult(result), nil
}

func turnResult(r TurnResult) *mcp.CallToolResult {
	var summary string
	switch {
	case !r.OK:
		summary = fmt.Sprintf("Page turn refused by the device (method: %s)", r.Method)
	case r.Strategy != "":
		summary = fmt.Sprintf("Page turned via %s (%s)", r.Method, r.Strategy)
	default:
		summary = fmt.Sprintf("Page turned via %s", r.Method)
	}
	jsonData, _ := json.MarshalIndent(r, "", "  ")
	return textResult(summary, fmt.Sprintf("\nJSON data:\n```json\n%s\n```", string(jsonData)))
}
