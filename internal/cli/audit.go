package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/warden/internal/audit"
)

var (
	auditDir     string
	tailLines    int
	auditJSON    bool
	replayFrom   string
	replayTo     string
	replayTool   string
	replayFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.PersistentFlags().StringVar(&auditDir, "dir", "", "Audit directory (default from config)")
	auditCmd.AddCommand(auditVerifyCmd, auditTailCmd, auditDaysCmd, auditReplayCmd)

	auditVerifyCmd.Flags().BoolVar(&auditJSON, "json", false, "Output JSON")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")

	auditReplayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	auditReplayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	auditReplayCmd.Flags().StringVar(&replayTool, "tool", "", "Only entries for this tool")
	auditReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [YYYY-MM-DD...]",
	Short: "Verify hash chain integrity of audit day files",
	Long: "Replays each day file and checks every entry's hash and prev_hash link.\n" +
		"Without arguments every day in the audit directory is checked.\n" +
		"Exits 0 if all files are intact, 1 otherwise.",
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [YYYY-MM-DD]",
	Short: "Show recent audit entries",
	Long:  "Prints the last N entries of a day file (today, UTC, by default).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var auditDaysCmd = &cobra.Command{
	Use:   "days",
	Short: "List days that have an audit file",
	Args:  cobra.NoArgs,
	RunE:  runAuditDays,
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "Replay decisions as a timeline",
	Long: "Reads the audit log, filters by session, tool and time range,\n" +
		"and renders a decision timeline with summary.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditReplay,
}

func resolveAuditDir() (string, error) {
	if auditDir != "" {
		return auditDir, nil
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Audit.Dir, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	dir, err := resolveAuditDir()
	if err != nil {
		return err
	}
	days := args
	if len(days) == 0 {
		if days, err = audit.Days(dir); err != nil {
			return err
		}
		if len(days) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no audit files in %s\n", dir)
			return nil
		}
	}

	out := cmd.OutOrStdout()
	var results []audit.VerifyResult
	failed := 0
	for _, day := range days {
		res, err := audit.Verify(dir, day)
		if err != nil {
			return err
		}
		results = append(results, res)
		if !res.Valid {
			failed++
		}
		if auditJSON {
			continue
		}
		if res.Valid {
			fmt.Fprintf(out, "%s  %s  %d entries\n", okColor.Sprint("OK    "), day, res.Entries)
			continue
		}
		fmt.Fprintf(out, "%s  %s  line %d: %s\n", failColor.Sprint("FAILED"), day, *res.FirstBroken+1, res.Reason)
	}

	if auditJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}
	if failed > 0 {
		return &exitError{code: 1, msg: failColor.Sprintf("%d of %d audit files failed verification", failed, len(days))}
	}
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	dir, err := resolveAuditDir()
	if err != nil {
		return err
	}
	day := time.Now().UTC().Format(time.DateOnly)
	if len(args) == 1 {
		day = args[0]
	}
	entries, err := audit.Tail(dir, day, tailLines)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		data, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}
	return nil
}

func runAuditDays(cmd *cobra.Command, _ []string) error {
	dir, err := resolveAuditDir()
	if err != nil {
		return err
	}
	days, err := audit.Days(dir)
	if err != nil {
		return err
	}
	for _, d := range days {
		fmt.Fprintln(cmd.OutOrStdout(), d)
	}
	return nil
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	dir, err := resolveAuditDir()
	if err != nil {
		return err
	}
	filter := audit.ReplayFilter{ToolName: replayTool}
	if len(args) == 1 {
		filter.SessionID = args[0]
	}
	if replayFrom != "" {
		if filter.From, err = time.Parse(time.RFC3339, replayFrom); err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
	}
	if replayTo != "" {
		if filter.To, err = time.Parse(time.RFC3339, replayTo); err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
	}

	result, err := audit.Replay(dir, filter)
	if err != nil {
		return err
	}
	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	case "text":
		fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
	default:
		return fmt.Errorf("unknown --format %q (want text or json)", replayFormat)
	}
	return nil
}
