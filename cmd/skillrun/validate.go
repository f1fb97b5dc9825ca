package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillrun-dev/skillrun/pkg/engine"
	"github.com/skillrun-dev/skillrun/pkg/presenter"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

type ValidateConfig struct {
	ConfigJSON string
	ConfigFile string
}

func NewValidateConfig() *ValidateConfig {
	return &ValidateConfig{}
}

var validateCmd = &cobra.Command{
	Use:   "validate <source> [source ...]",
	Short: "Validate skill definitions without executing anything",
	Long: `Parse one or more skill sources and report whether they are well formed.
Directories resolve to their SKILL.md; glob patterns are supported. For
sandboxed module skills, --config passes a configuration object to the
module's own validation entry point.

Examples:
  skillrun validate ./weather
  skillrun validate './skills/**/SKILL.md'
  skillrun validate ./weather.wasm --config '{"units": "metric"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getValidateConfigFromFlags(cmd)
		return validateSources(cmd, args, config)
	},
}

func init() {
	validateCmd.Flags().String("config", "", "Configuration JSON passed to module validation")
	validateCmd.Flags().String("config-file", "", "Path to a configuration JSON file passed to module validation")
	rootCmd.AddCommand(validateCmd)
}

func getValidateConfigFromFlags(cmd *cobra.Command) *ValidateConfig {
	config := NewValidateConfig()
	if configJSON, err := cmd.Flags().GetString("config"); err == nil {
		config.ConfigJSON = configJSON
	}
	if configFile, err := cmd.Flags().GetString("config-file"); err == nil {
		config.ConfigFile = configFile
	}
	return config
}

func validateSources(cmd *cobra.Command, patterns []string, config *ValidateConfig) error {
	ctx := cmd.Context()

	configJSON := config.ConfigJSON
	if config.ConfigFile != "" {
		data, err := os.ReadFile(config.ConfigFile)
		if err != nil {
			return err
		}
		configJSON = string(data)
	}

	eng := engine.New(engine.WithConfig(engine.LoadConfig(ctx)))
	defer eng.Close(ctx)

	failures := 0
	for _, pattern := range patterns {
		sources, err := engine.ResolveSources(pattern)
		if err != nil {
			presenter.Error(err, pattern)
			failures++
			continue
		}

		for _, source := range sources {
			def, err := eng.LoadPath(ctx, source.Path)
			if err != nil {
				presenter.Error(err, source.Path)
				failures++
				continue
			}

			if configJSON != "" && def.Kind == skill.SandboxedModule {
				if err := eng.ValidateConfig(ctx, def, configJSON); err != nil {
					presenter.Error(err, source.Path)
					failures++
					continue
				}
			}

			presenter.Success(fmt.Sprintf("%s: %s %s, %d tool(s)", source.Path, def.Name, def.Version, len(def.Tools)))
		}
	}

	if failures > 0 {
		cmd.SilenceUsage = true
		return fmt.Errorf("%d skill source(s) failed validation", failures)
	}
	return nil
}
