package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"AutoFlip/mcp"
	"AutoFlip/pkg/config"
	"AutoFlip/pkg/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "autoflip",
	Short: "AutoFlip - app-aware page turning for Android readers",
	Long:  `AutoFlip watches the foreground app on an adb-connected Android device and turns pages for reader apps, driven by built-in and script triggers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			return os.Setenv(config.EnvPrefix+"_CONFIG", configPath)
		}
		return nil
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the page-turn engine against the connected device",
	RunE:  runDaemon,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the engine and serve MCP tools over stdio",
	RunE:  runMCP,
}

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Turn one page in the foreground app",
	RunE:  runTurn,
}

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Print the foreground app and activity",
	RunE:  runFocus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "autoflip", version)
	},
}

var (
	configPath   string
	turnBack     bool
	turnVertical bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $AUTOFLIP_CONFIG or autoflip.json)")

	turnCmd.Flags().BoolVar(&turnBack, "back", false, "turn to the previous page")
	turnCmd.Flags().BoolVar(&turnVertical, "vertical", false, "swipe vertically (app must be whitelisted)")

	rootCmd.AddCommand(runCmd, mcpCmd, turnCmd, focusCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	app, err := NewApp(version)
	if err != nil {
		return err
	}
	defer logging.CloseLogger()

	ctx, stop := signalContext()
	defer stop()

	if err := app.Startup(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	app.Shutdown()
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	app, err := NewApp(version)
	if err != nil {
		return err
	}
	defer logging.CloseLogger()

	ctx, stop := signalContext()
	defer stop()

	if err := app.Startup(ctx); err != nil {
		return err
	}
	defer app.Shutdown()

	return mcp.NewMCPServer(NewMCPBridge(app)).Serve(ctx)
}

func runTurn(cmd *cobra.Command, args []string) error {
	app, err := NewApp(version)
	if err != nil {
		return err
	}
	defer logging.CloseLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := app.TurnOnce(ctx, !turnBack, turnVertical)
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("page turn was refused (%s)", out.Method)
	}
	return printJSON(cmd, out)
}

func runFocus(cmd *cobra.Command, args []string) error {
	app, err := NewApp(version)
	if err != nil {
		return err
	}
	defer logging.CloseLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := app.FocusOnce(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, info)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
