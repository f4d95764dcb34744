package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	eventingrepo "fuelstation-cloud/internal/eventing/infrastructure/postgres"
)

func init() {
	rootCmd.AddCommand(deadLettersCmd)
	deadLettersCmd.AddCommand(deadLettersListCmd, deadLettersRequeueCmd)
	deadLettersListCmd.Flags().Int("limit", 50, "maximum dead letters to print")
}

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "Inspect and requeue events the dispatcher gave up on",
}

var deadLettersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print dead letters, most recent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		letters, err := eventingrepo.NewStore(db).DeadLetters().List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, letter := range letters {
			if err := enc.Encode(letter); err != nil {
				return err
			}
		}
		return nil
	},
}

var deadLettersRequeueCmd = &cobra.Command{
	Use:   "requeue EVENT_ID...",
	Short: "Return dead events to the outbox for another delivery round",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		store := eventingrepo.NewStore(db)
		for _, eventID := range args {
			requeued, err := store.Outbox().Requeue(cmd.Context(), eventID)
			if err != nil {
				return fmt.Errorf("requeue %s: %w", eventID, err)
			}
			if !requeued {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no dead outbox row\n", eventID)
				continue
			}
			if err := store.DeadLetters().Remove(cmd.Context(), eventID); err != nil {
				return fmt.Errorf("clear dead letter %s: %w", eventID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: requeued\n", eventID)
		}
		return nil
	},
}
