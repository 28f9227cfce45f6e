package commands

import (
	"github.com/spf13/cobra"
)

var selectorsCmd = &cobra.Command{
	Use:   "selectors",
	Short: "Inspect the page locator table",
}

var selectorsDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective selector table as YAML",
	Long: `Print the selector table in use: the built-in table, merged with
the --selectors override when one is given. The output is a starting
point for an override file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, err := loadSelectors(cfg)
		if err != nil {
			return err
		}
		data, err := table.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var selectorsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the --selectors override",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.SelectorsFile == "" {
			logInfo("no override given, the built-in table is in use")
			return nil
		}
		table, err := loadSelectors(cfg)
		if err != nil {
			return err
		}
		logInfo("%s: ok (version %s)", cfg.SelectorsFile, table.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selectorsCmd)
	selectorsCmd.AddCommand(selectorsDumpCmd, selectorsCheckCmd)
}
