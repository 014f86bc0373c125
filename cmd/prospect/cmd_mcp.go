package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/prospectsim/prospect/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve survey tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
survey_run, coverage_orientation and survey_history tools.

Scenario files and archives must live under --root or ~/.prospect.
Tool calls are rate limited and recorded in <root>/.prospect/audit.jsonl.

Example client configuration:
  {"command": "prospect", "args": ["mcp-server", "--root", "/path/to/project"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}

			cfg := loadSettings(cmd)
			server, err := mcp.NewServer(&mcp.Config{
				Name:     "prospect",
				Version:  version,
				Root:     absRoot,
				Settings: cfg,
				Logger:   newLogger(cmd, cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			return server.Run(cmd.Context())
		},
	}
}
