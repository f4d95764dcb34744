package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().Int("limit", 0, "maximum events to deliver (default $OUTBOX_DISPATCH_BATCH)")
	dispatchCmd.Flags().Bool("status", false, "print outbox row counts per status after dispatching")
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Deliver pending outbox events once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		if !cfg.OutboxEnabled {
			return errors.New("outbox is disabled (OUTBOX_ENABLED=false)")
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			cfg.OutboxBatch = limit
		}
		logger := newLogger()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		a, err := buildApp(cfg, db, logger)
		if err != nil {
			return err
		}
		defer a.shutdown()

		result, err := a.dispatcher.Dispatch(cmd.Context(), cfg.OutboxBatch)
		fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d sent=%d failed=%d dlq=%d\n", result.Claimed, result.Sent, result.Failed, result.DLQ)
		if err != nil {
			return err
		}
		if status, _ := cmd.Flags().GetBool("status"); status {
			counts, err := a.events.Outbox().Counts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d failed=%d sent=%d dead=%d\n",
				counts["pending"], counts["failed"], counts["sent"], counts["dead"])
		}
		return nil
	},
}
