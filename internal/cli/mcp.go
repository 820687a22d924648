package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	wardenmcp "github.com/ppiankov/warden/internal/mcp"
)

var mcpUser string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpUser, "user", os.Getenv("USER"), "User id recorded in the audit log")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs warden as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes governed tools: warden_exec, warden_check, warden_resolve,\n" +
		"warden_pending, warden_verify. Approval prompts go to configured webhooks\n" +
		"and are answered with warden_resolve; use `warden serve --mcp` to answer\n" +
		"them over HTTP instead.",
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(appOptions{console: false})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.watchConfig(ctx)

	logger.Info("warden MCP server running on stdio", "audit_dir", a.cfg.Audit.Dir)
	return wardenmcp.New(wardenmcp.Config{
		AuditDir: a.cfg.Audit.Dir,
		UserID:   mcpUser,
		Version:  version,
	}, a.governor, a.approvals, logger).Run(ctx)
}
