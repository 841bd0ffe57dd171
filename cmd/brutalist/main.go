// Brutalist: adversarial critique MCP server
//
// Sends code, ideas and designs to the AI coding CLIs installed on this
// machine (Claude Code, Codex, Gemini CLI) and returns their combined,
// unsparing critique to the calling agent.
//
// Usage:
//
//	brutalist serve                 # Start MCP server (stdio transport)
//	brutalist serve --http :8080    # Streamable HTTP transport
//	brutalist agents                # Show detected CLI agents
//	brutalist version
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ejmockler/brutalist-mcp/internal/config"
	"github.com/ejmockler/brutalist-mcp/internal/logging"
	bserver "github.com/ejmockler/brutalist-mcp/internal/server"
	"github.com/ejmockler/brutalist-mcp/internal/tools"
)

var configPath string

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "brutalist",
		Short: "Adversarial critique MCP server backed by local AI coding CLIs",
		Long: `Brutalist exposes roast_* tools over MCP. Each call is dispatched to the
Claude Code, Codex and Gemini CLIs installed on this machine; their critiques
are combined, cached and paged back to the calling agent.

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "brutalist": {
        "command": "brutalist",
        "args": ["serve"]
      }
    }
  }`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"YAML config file (default $"+config.EnvConfigFile+")")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server. Stdio is the default transport; stdout carries the
protocol, so all logging goes to stderr and the optional log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			closeLog, err := logging.Setup(logging.DefaultOptions(cfg.LogFile))
			if err != nil {
				return fmt.Errorf("setting up logging: %w", err)
			}
			defer func() { _ = closeLog() }()

			s, cleanup, err := bserver.New(cfg)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			if httpAddr == "" {
				return server.ServeStdio(s)
			}
			return serveHTTP(s, httpAddr)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve streamable HTTP on this address instead of stdio (e.g. :8080)")
	return cmd
}

// serveHTTP runs the streamable HTTP transport until interrupted.
func serveHTTP(s *server.MCPServer, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("brutalist %s listening on %s/mcp", bserver.Version, addr)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Detect the installed CLI agents and print the roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			deps := bserver.NewDeps(cfg)
			snap := deps.CLI.Ensure(cmd.Context())
			fmt.Fprint(cmd.OutOrStdout(), tools.FormatRoster(deps.Registry, snap))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "brutalist v%s\n", bserver.Version)
		},
	}
}
