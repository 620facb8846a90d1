package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// purgeCmd 物理删除超过保留期的收获卡
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete harvest cards older than the retention period",
	Long: `Permanently delete harvest cards created more than --days days ago,
including deactivated ones. Defaults to retention.days from the config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, ctr, err := setup(cmd)
		if err != nil {
			return err
		}
		defer ctr.Close()

		days := cfg.Retention.Days
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}
		if days <= 0 {
			return fmt.Errorf("retention days must be positive, got %d", days)
		}

		n, err := ctr.TraceabilityService().Purge(cmd.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}

		logger.WithField("deleted", n).Info("Purge completed")
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d harvest cards older than %d days\n", n, days)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().Int("days", 0, "Retention period in days")
}
