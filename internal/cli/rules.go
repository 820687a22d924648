package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/warden/internal/classify"
)

var rulesJSON bool

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().BoolVar(&rulesJSON, "json", false, "Output JSON")
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the classification rules in evaluation order",
	Long: "Lists user rules from the config file, which run first, followed by the\n" +
		"built-in tool groups. Calls no rule covers go to the model, or to the\n" +
		"configured failure level when no model is set.",
	Args: cobra.NoArgs,
	RunE: runRules,
}

func runRules(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cc, err := cfg.ClassifierConfig()
	if err != nil {
		return err
	}
	user := cc.Rules.Rules()
	builtin := classify.BuiltinToolGroups()

	out := cmd.OutOrStdout()
	if rulesJSON {
		data, err := json.MarshalIndent(map[string]any{
			"user":          user,
			"builtin":       builtin,
			"failure_level": cc.FailureLevel,
			"model":         cfg.Classifier.Model != nil,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "user rules (%d)\n", len(user))
	for i, r := range user {
		match := r.Tool
		if r.Command != "" {
			match += fmt.Sprintf(" /%s/", r.Command)
		}
		fmt.Fprintf(out, "  %2d  %-8s %s", i+1, levelColor(r.Level).Sprint(r.Level), match)
		if r.Reason != "" {
			fmt.Fprint(out, dimColor.Sprintf("  # %s", r.Reason))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "built-in groups (%d)\n", len(builtin))
	for _, g := range builtin {
		fmt.Fprintf(out, "  %-12s %s\n", g.Name, strings.Join(g.Tools, ", "))
	}

	fallback := "none"
	if cfg.Classifier.Model != nil {
		fallback = cfg.Classifier.Model.Name
	}
	fmt.Fprintf(out, "model fallback: %s, failure level %s\n", fallback, levelTag(cc.FailureLevel))
	return nil
}
