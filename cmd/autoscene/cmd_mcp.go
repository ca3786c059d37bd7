package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/autoscene/autoscene/internal/config"
	"github.com/autoscene/autoscene/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server <file.kbs>",
		Short: "Serve a scenario to MCP clients over stdio",
		Long: `Start a Model Context Protocol server over stdio that exposes the
scenario in <file.kbs> through tools: scenario_info, scene_frame,
resolve_identity, trajectory, render_scenario and reload.

Tool calls are audited to ~/.autoscene/audit.jsonl unless --no-audit is set.
Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			opts, err := e.scenarioOptions("")
			if err != nil {
				return err
			}
			auditDir := ""
			if !noAudit {
				if path, err := config.Path(); err == nil {
					auditDir = filepath.Dir(path)
				}
			}

			ctx := cmd.Context()
			srv, err := mcp.NewServer(ctx, &mcp.Config{
				Name:     "autoscene",
				Version:  version,
				Path:     args[0],
				Scenario: opts,
				AuditDir: auditDir,
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			e.logger.Info("mcp server ready", "path", args[0])
			return srv.Run(ctx)
		},
	}

	cmd.Flags().Bool("no-audit", false, "Disable the tool call audit log")
	return cmd
}
