package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skillrun-dev/skillrun/pkg/engine"
	"github.com/skillrun-dev/skillrun/pkg/presenter"
)

type RunConfig struct {
	Skill    string
	Timeout  time.Duration
	ArgsJSON string
	JSON     bool
}

func NewRunConfig() *RunConfig {
	return &RunConfig{
		Skill:   ".",
		Timeout: 0,
	}
}

var runCmd = &cobra.Command{
	Use:   "run <tool> [key=value ...]",
	Short: "Execute a skill tool",
	Long: `Execute a named tool from a skill definition. Arguments are passed as
key=value pairs, or as a single JSON object via --args.

Examples:
  skillrun run get_forecast city=London --skill ./weather
  skillrun run get_forecast --args '{"city": "London", "days": 3}' --skill ./weather.wasm
  skillrun run list_files path=/tmp --skill ./files/SKILL.md --timeout 10s`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getRunConfigFromFlags(cmd)
		return runTool(cmd, args[0], args[1:], config)
	},
}

func init() {
	defaults := NewRunConfig()
	runCmd.Flags().StringP("skill", "s", defaults.Skill, "Skill source: a directory with SKILL.md, a .md file, or a .wasm module")
	runCmd.Flags().DurationP("timeout", "t", defaults.Timeout, "Execution timeout (0 uses the configured default)")
	runCmd.Flags().String("args", "", "Tool arguments as a JSON object (overrides key=value pairs)")
	runCmd.Flags().Bool("json", false, "Print the full result as JSON instead of raw output")
	rootCmd.AddCommand(runCmd)
}

func getRunConfigFromFlags(cmd *cobra.Command) *RunConfig {
	config := NewRunConfig()
	if skill, err := cmd.Flags().GetString("skill"); err == nil {
		config.Skill = skill
	}
	if timeout, err := cmd.Flags().GetDuration("timeout"); err == nil {
		config.Timeout = timeout
	}
	if argsJSON, err := cmd.Flags().GetString("args"); err == nil {
		config.ArgsJSON = argsJSON
	}
	if jsonOut, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = jsonOut
	}
	return config
}

func runTool(cmd *cobra.Command, toolName string, pairs []string, config *RunConfig) error {
	ctx := cmd.Context()

	args, err := parseToolArgs(pairs, config.ArgsJSON)
	if err != nil {
		return err
	}

	eng := engine.New(engine.WithConfig(engine.LoadConfig(ctx)))
	defer eng.Close(ctx)

	sources, err := engine.ResolveSources(config.Skill)
	if err != nil {
		return err
	}
	if len(sources) != 1 {
		return errors.Errorf("pattern %q matches %d skill sources, expected exactly one", config.Skill, len(sources))
	}

	def, err := eng.LoadPath(ctx, sources[0].Path)
	if err != nil {
		return err
	}

	start := time.Now()
	result := eng.Execute(ctx, def, toolName, args, config.Timeout)

	if config.JSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		if !result.Success {
			cmd.SilenceUsage = true
			return errors.New("tool execution failed")
		}
		return nil
	}

	if result.Output != "" {
		fmt.Fprint(cmd.OutOrStdout(), result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			fmt.Fprintln(cmd.OutOrStdout())
		}
	}

	presenter.Outcome(&presenter.OutcomeStats{
		Skill:     def.Name,
		Tool:      toolName,
		Duration:  time.Since(start),
		Truncated: result.Truncated,
	})

	if !result.Success {
		cmd.SilenceUsage = true
		if result.Error != nil {
			return errors.Errorf("%s: %s", result.Error.Kind, result.Error.Message)
		}
		return errors.New("tool execution failed")
	}
	return nil
}

// parseToolArgs turns key=value pairs, or a JSON object, into a raw argument
// map. Values stay strings; the binder coerces them against declared types.
func parseToolArgs(pairs []string, argsJSON string) (map[string]any, error) {
	if argsJSON != "" {
		var args map[string]any
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, errors.Wrap(err, "invalid --args JSON")
		}
		return args, nil
	}

	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, errors.Errorf("invalid argument %q: expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}
