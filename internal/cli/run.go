package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/warden/internal/executor"
	"github.com/ppiankov/warden/internal/governance"
	"github.com/ppiankov/warden/internal/model"
)

// exitRefused is returned when warden refuses to run a command (EX_NOPERM).
const exitRefused = 77

var (
	runUser    string
	runSession string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runUser, "user", os.Getenv("USER"), "User id recorded in the audit log")
	runCmd.Flags().StringVar(&runSession, "session", "", "Session id recorded in the audit log (generated when empty)")
}

var runCmd = &cobra.Command{
	Use:   "run -- <command...>",
	Short: "Run a shell command through classification, approval and audit",
	Long: "Classifies the command, asks for approval on the terminal (or through\n" +
		"configured webhooks) when required, runs it if allowed and appends the\n" +
		"outcome to the audit log. Forbidden commands never run.",
	Example: `  warden run -- git push --force origin main
  warden run "find . -name '*.tmp' -delete"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp(appOptions{console: true})
	if err != nil {
		return err
	}
	defer a.close()

	d, err := a.governor.Execute(cmd.Context(), governance.Request{
		Call:      model.ToolCall{Name: "shell", Args: map[string]any{"command": strings.Join(args, " ")}},
		UserID:    runUser,
		SessionID: runSession,
	})
	fmt.Fprint(cmd.OutOrStdout(), d.Output)
	if err == nil {
		return nil
	}

	var refused *governance.RefusedError
	if errors.As(err, &refused) {
		return &exitError{code: exitRefused, msg: failColor.Sprintf("warden: %v", err)}
	}
	var exitErr *executor.ExitError
	if errors.As(err, &exitErr) {
		if d.Entry == nil {
			fmt.Fprintln(os.Stderr, failColor.Sprint("warden: audit entry was not written"))
		}
		return &exitError{code: exitErr.Code}
	}
	return fmt.Errorf("warden: %w", err)
}
