package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	wardenmcp "github.com/ppiankov/warden/internal/mcp"
	"github.com/ppiankov/warden/internal/server"
)

const shutdownTimeout = 5 * time.Second

var (
	serveAddr string
	serveMCP  bool
	serveUser string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "Also serve MCP tools on stdio")
	serveCmd.Flags().StringVar(&serveUser, "user", os.Getenv("USER"), "User id recorded for MCP tool calls")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP approval relay",
	Long: "Serves pending approvals over HTTP so a human can approve or deny them\n" +
		"from anywhere, plus dry-run classification, Prometheus metrics and a\n" +
		"health check. With --mcp the same pipeline also serves agent tool calls\n" +
		"on stdio. Classifier rules are reloaded when the config file changes.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	// stdin belongs to the MCP client when --mcp is set.
	a, err := buildApp(appOptions{console: !serveMCP})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.watchConfig(ctx)

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(server.Config{
		Addr:    addr,
		Token:   a.cfg.Server.Token,
		Version: version,
	}, a.governor, a.approvals, a.metrics, logger)
	if a.cfg.Server.Token == "" {
		logger.Warn("approval relay has no token; anyone who can reach it can approve", "addr", addr)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe() }()
	if serveMCP {
		go func() {
			errCh <- wardenmcp.New(wardenmcp.Config{
				AuditDir: a.cfg.Audit.Dir,
				UserID:   serveUser,
				Version:  version,
			}, a.governor, a.approvals, logger).Run(ctx)
		}()
	}
	fmt.Fprintf(os.Stderr, "warden approval relay listening on %s\n", addr)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		if runErr == nil && serveMCP {
			logger.Info("mcp client disconnected")
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	return runErr
}
