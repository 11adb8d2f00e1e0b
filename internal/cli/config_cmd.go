package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kbsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfigPrint,
}

func init() {
	configCmd.AddCommand(configPrintCmd)
}

func runConfigPrint(_ *cobra.Command, _ []string) error {
	overrides := &config.Overrides{}
	if globalFlags.BaseURL != "" {
		overrides.BaseURL = &globalFlags.BaseURL
	}
	if globalFlags.APIKey != "" {
		overrides.APIKey = &globalFlags.APIKey
	}
	if globalFlags.StateDir != "" {
		overrides.StateDir = &globalFlags.StateDir
	}

	cfg, err := config.Load(config.Options{
		ConfigPath:   globalFlags.ConfigPath,
		SkipValidate: true,
		Overrides:    overrides,
	})
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}

	// never echo the key itself
	if cfg.API.APIKey != "" {
		cfg.API.APIKey = "(set)"
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, string(data))
	return nil
}
