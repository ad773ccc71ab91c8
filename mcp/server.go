// Package mcp provides the MCP (Model Context Protocol) server for AutoFlip.
// External clients use it to turn pages, inspect focus and manage triggers.
package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"AutoFlip/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Type aliases from shared types package
type (
	Device       = types.Device
	FocusInfo    = types.FocusInfo
	TriggerInfo  = types.TriggerInfo
	HistoryEntry = types.HistoryEntry
	RawEvent     = types.RawEvent
	Stroke       = types.Stroke
)

// TurnResult describes one page-turn attempt for MCP clients
type TurnResult struct {
	OK       bool    `json:"ok"`
	Method   string  `json:"method,omitempty"` // "structural", "tap", "swipe"
	Strategy string  `json:"strategy,omitempty"`
	Stroke   *Stroke `json:"stroke,omitempty"`
}

// AutoFlipApp defines what the MCP server needs from the main App
type AutoFlipApp interface {
	// Devices
	GetDevices() ([]Device, error)
	ConnectedDevice() (Device, bool)

	// Page turning
	TurnPage(forward bool) (TurnResult, error)
	TurnPageVertically(forward bool) (TurnResult, error)

	// Navigation & device actions
	PressBack() bool
	PressHome() bool
	Volume(up bool) bool
	SetWakeLock(on bool, timeoutMs int) bool
	WakeLockHeld() bool

	// Engine state
	FocusState() FocusInfo
	ListTriggers() []TriggerInfo
	UnregisterTriggers(appID, tag string) int
	History(kind string, limit int) ([]HistoryEntry, error)
	InjectEvent(raw RawEvent) bool
	ReloadScripts() (int, error)

	// Utility
	GetAppVersion() string
}

// MCPServer wraps the MCP server and provides AutoFlip-specific tools
type MCPServer struct {
	app       AutoFlipApp
	server    *server.MCPServer
	stdio     *server.StdioServer
	mu        sync.Mutex
	isRunning bool
}

// NewMCPServer creates a new MCP server for AutoFlip
func NewMCPServer(app AutoFlipApp) *MCPServer {
	mcpServer := server.NewMCPServer(
		"autoflip",
		app.GetAppVersion(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
	}

	s.registerTools()
	s.registerResources()

	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	// Page Turn Tools
	s.registerPageTurnTools()

	// Device Tools
	s.registerDeviceTools()

	// Engine Tools
	s.registerEngineTools()
}

// registerResources registers all MCP resources
func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			"autoflip://focus",
			"Foreground app and activity",
			mcp.WithMIMEType("application/json"),
		),
		s.handleFocusResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"autoflip://triggers",
			"Registered triggers and whether they are active",
			mcp.WithMIMEType("application/json"),
		),
		s.handleTriggersResource,
	)
}

// Serve runs the stdio transport until ctx is cancelled or stdin closes
func (s *MCPServer) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO is Serve over arbitrary streams
func (s *MCPServer) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.stdio = server.NewStdioServer(s.server)
	stdio := s.stdio
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	fmt.Fprintln(os.Stderr, "[MCP] AutoFlip MCP Server started")
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "[MCP] Server error: %v\n", err)
		return err
	}
	return nil
}

// IsRunning returns whether the MCP server is running
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// textResult wraps lines of text as a tool result
func textResult(texts ...string) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(texts))
	for _, t := range texts {
		content = append(content, mcp.NewTextContent(t))
	}
	return &mcp.CallToolResult{Content: content}
}
