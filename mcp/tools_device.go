package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerDeviceTools registers device and navigation tools
func (s *MCPServer) registerDeviceTools() {
	// device_list - List devices adb can see
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List Android devices visible to adb and mark the one AutoFlip drives"),
		),
		s.handleDeviceList,
	)

	// press_back - Global back
	s.server.AddTool(
		mcp.NewTool("press_back",
			mcp.WithDescription("Press the system back button"),
		),
		s.handlePressBack,
	)

	// press_home - Global home
	s.server.AddTool(
		mcp.NewTool("press_home",
			mcp.WithDescription("Press the system home button"),
		),
		s.handlePressHome,
	)

	// volume - Step media volume
	s.server.AddTool(
		mcp.NewTool("volume",
			mcp.WithDescription("Step the media volume up or down by one step"),
			mcp.WithString("direction",
				mcp.Required(),
				mcp.Description("up or down"),
			),
		),
		s.handleVolume,
	)

	// wake_lock - Keep the screen on
	s.server.AddTool(
		mcp.NewTool("wake_lock",
			mcp.WithDescription("Acquire or release the screen wake lock"),
			mcp.WithBoolean("enabled",
				mcp.Required(),
				mcp.Description("true to keep the screen on, false to release"),
			),
			mcp.WithNumber("timeout_ms",
				mcp.Description("Release automatically after this many milliseconds (default: never)"),
			),
		),
		s.handleWakeLock,
	)
}

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.app.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	if len(devices) == 0 {
		return textResult("No devices connected"), nil
	}

	current, connected := s.app.ConnectedDevice()
	result := fmt.Sprintf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		marker := ""
		if connected && d.ID == current.ID {
			marker = " [active]"
		}
		result += fmt.Sprintf("%d. %s%s\n   Model: %s, State: %s, Type: %s\n",
			i+1, d.ID, marker, d.Model, d.State, d.Type)
	}

	jsonData, _ := json.MarshalIndent(devices, "", "  ")
	return textResult(result, fmt.Sprintf("\nJSON data:\n```json\n%s\n```", string(jsonData))), nil
}

func (s *MCPServer) handlePressBack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.app.PressBack() {
		return nil, fmt.Errorf("back press not possible, is a device connected?")
	}
	return textResult("Pressed back"), nil
}

func (s *MCPServer) handlePressHome(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.app.PressHome() {
		return nil, fmt.Errorf("home press not possible, is a device connected?")
	}
	return textResult("Pressed home"), nil
}

func (s *MCPServer) handleVolume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	dir, ok := args["direction"].(string)
	if !ok || dir == "" {
		return nil, fmt.Errorf("direction is required")
	}

	var up bool
	switch dir {
	case "up":
		up = true
	case "down":
		up = false
	default:
		return nil, fmt.Errorf("invalid direction %q, must be up or down", dir)
	}

	if !s.app.Volume(up) {
		return nil, fmt.Errorf("volume change failed")
	}
	return textResult(fmt.Sprintf("Volume %s", dir)), nil
}

func (s *MCPServer) handleWakeLock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	enabled, ok := args["enabled"].(bool)
	if !ok {
		return nil, fmt.Errorf("enabled is required")
	}
	timeoutMs := 0
	if t, ok := args["timeout_ms"].(float64); ok && t > 0 {
		timeoutMs = int(t)
	}

	if !s.app.SetWakeLock(enabled, timeoutMs) {
		return nil, fmt.Errorf("failed to acquire wake lock")
	}

	if !enabled {
		return textResult("Wake lock released"), nil
	}
	if timeoutMs > 0 {
		return textResult(fmt.Sprintf("Wake lock held for %d ms", timeoutMs)), nil
	}
	return textResult("Wake lock held until released"), nil
}
