package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/websql/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration and create the data directory",
		Long:  "Init creates the configuration directory with a default config.yaml\nwhen none exists, then attaches the bridge once to create the data directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := paths.ResolveConfigDir(a.flags.configDir)
			if err != nil {
				return fmt.Errorf("resolve config dir: %w", err)
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}

			configPath := paths.ConfigFile(configDir)
			wrote, err := writeConfigIfMissing(configPath, a.flags.dataDir)
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if wrote {
				// Pick up the file just written.
				if a.cfg, err = loadConfig(configDir); err != nil {
					return err
				}
			}

			b, err := a.attachBridge()
			if err != nil {
				return err
			}
			dataDir := b.Config().DataDir
			if err := b.Detach(); err != nil {
				return fmt.Errorf("detach bridge: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "config: %s\n", configPath)
			fmt.Fprintf(w, "data:   %s\n", dataDir)
			return nil
		},
	}
}
