package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/warden/internal/metrics"
	"github.com/ppiankov/warden/internal/model"
)

var (
	classifyTool string
	classifyArgs string
	classifyKV   []string
	classifyJSON bool
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&classifyTool, "tool", "shell", "Tool name")
	classifyCmd.Flags().StringVar(&classifyArgs, "args", "", "Tool arguments as a JSON object")
	classifyCmd.Flags().StringArrayVar(&classifyKV, "arg", nil, "Tool argument as key=value (repeatable)")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Output JSON")
}

var classifyCmd = &cobra.Command{
	Use:   "classify [command...]",
	Short: "Classify a tool call without running it",
	Long: "Prints the risk level warden would assign. Positional arguments form the\n" +
		"command line of a shell tool; other tools take --arg or --args.",
	Example: `  warden classify rm -rf ./build
  warden classify --tool write_file --arg path=/etc/sudoers
  warden classify --tool http_request --args '{"url":"http://169.254.169.254/"}'`,
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	call, err := buildCall(classifyTool, classifyArgs, classifyKV, args)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cls, err := newClassifier(cfg, metrics.New())
	if err != nil {
		return err
	}

	c := cls.ClassifyRisk(cmd.Context(), call.Name, call.Args)
	gated := model.RequiresApproval(c.Level)
	for _, l := range cfg.Approval.RequireLevels {
		gated = gated || l == c.Level
	}

	out := cmd.OutOrStdout()
	if classifyJSON {
		data, err := json.MarshalIndent(map[string]any{
			"tool":              call.Name,
			"args":              call.Args,
			"level":             c.Level,
			"label":             c.Level.Label(),
			"reason":            c.Reason,
			"deterministic":     c.Deterministic,
			"requires_approval": gated,
			"forbidden":         model.Forbidden(c.Level),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	source := "rule"
	if !c.Deterministic {
		source = "model"
	}
	fmt.Fprintf(out, "%s  %s\n", levelTag(c.Level), c.Reason)
	switch {
	case model.Forbidden(c.Level):
		fmt.Fprintln(out, failColor.Sprint("never executed"))
	case gated:
		fmt.Fprintln(out, warnColor.Sprint("requires approval"))
	}
	fmt.Fprintln(out, dimColor.Sprintf("source: %s", source))
	return nil
}

// buildCall assembles a tool call from CLI input. For shell tools the
// positional words form the command line.
func buildCall(tool, rawJSON string, kv, words []string) (model.ToolCall, error) {
	call := model.ToolCall{Name: tool, Args: map[string]any{}}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &call.Args); err != nil {
			return call, fmt.Errorf("--args: %w", err)
		}
	}
	for _, pair := range kv {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return call, fmt.Errorf("--arg %q: want key=value", pair)
		}
		call.Args[k] = v
	}
	if len(words) > 0 {
		call.Args["command"] = strings.Join(words, " ")
	}
	if len(call.Args) == 0 {
		return call, errors.New("nothing to classify: give a command or --arg/--args")
	}
	return call, nil
}
