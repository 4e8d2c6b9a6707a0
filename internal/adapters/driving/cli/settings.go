package cli

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docforge/internal/adapters/driven/config/file"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage pipeline settings",
	Long: `View and initialise pipeline settings. Settings are stored as TOML
in the configuration directory; missing values fall back to defaults.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the defaults",
	RunE:  runSettingsInit,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsInitCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	settings, err := file.LoadSettings(configDir)
	if err != nil {
		return err
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	cmd.Print(string(data))
	return nil
}

func runSettingsInit(cmd *cobra.Command, _ []string) error {
	path, err := file.SettingsPath(configDir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("settings file already exists at %s", path)
	}

	settings, err := file.LoadSettings(configDir)
	if err != nil {
		return err
	}
	if err := file.SaveSettings(configDir, settings); err != nil {
		return err
	}

	cmd.Printf("Settings written to %s\n", path)
	return nil
}
