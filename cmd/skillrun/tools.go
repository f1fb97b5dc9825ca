package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skillrun-dev/skillrun/pkg/engine"
	"github.com/skillrun-dev/skillrun/pkg/presenter"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

type ToolsConfig struct {
	Skill  string
	Schema bool
}

func NewToolsConfig() *ToolsConfig {
	return &ToolsConfig{
		Skill: ".",
	}
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools a skill exposes",
	Long: `List the tools a skill exposes, with their parameters. With --schema the
tools are printed as JSON Schema objects instead, one per tool, suitable for
registering with an agent framework.

Examples:
  skillrun tools --skill ./weather
  skillrun tools --skill ./weather.wasm --schema`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getToolsConfigFromFlags(cmd)
		return listTools(cmd, config)
	},
}

func init() {
	defaults := NewToolsConfig()
	toolsCmd.Flags().StringP("skill", "s", defaults.Skill, "Skill source: a directory with SKILL.md, a .md file, or a .wasm module")
	toolsCmd.Flags().Bool("schema", defaults.Schema, "Print tools as JSON Schema objects")
	rootCmd.AddCommand(toolsCmd)
}

func getToolsConfigFromFlags(cmd *cobra.Command) *ToolsConfig {
	config := NewToolsConfig()
	if skillPath, err := cmd.Flags().GetString("skill"); err == nil {
		config.Skill = skillPath
	}
	if schema, err := cmd.Flags().GetBool("schema"); err == nil {
		config.Schema = schema
	}
	return config
}

func listTools(cmd *cobra.Command, config *ToolsConfig) error {
	ctx := cmd.Context()

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

	if config.Schema {
		return printToolSchemas(cmd, def)
	}

	presenter.Section(fmt.Sprintf("%s %s (%s)", def.Name, def.Version, def.Kind))
	if def.Description != "" {
		presenter.Info(def.Description)
	}
	presenter.Separator()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tPARAMETER\tTYPE\tREQUIRED\tDESCRIPTION")
	for i := range def.Tools {
		tool := &def.Tools[i]
		if len(tool.Parameters) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", tool.Name, tool.Description)
			continue
		}
		for j := range tool.Parameters {
			p := &tool.Parameters[j]
			name := tool.Name
			desc := tool.Description
			if j > 0 {
				name, desc = "", ""
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", name, p.Name, p.Type, p.Required, desc)
		}
	}
	return w.Flush()
}

func printToolSchemas(cmd *cobra.Command, def *skill.Definition) error {
	schemas := make(map[string]any, len(def.Tools))
	names := make([]string, 0, len(def.Tools))
	for i := range def.Tools {
		tool := &def.Tools[i]
		schemas[tool.Name] = tool.JSONSchema()
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	for _, name := range names {
		if err := encoder.Encode(schemas[name]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode schema for %s: %v\n", name, err)
			return err
		}
	}
	return nil
}
