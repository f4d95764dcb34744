package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	settlementapp "fuelstation-cloud/internal/settlement/application"
	settlement "fuelstation-cloud/internal/settlement/domain"
)

func init() {
	rootCmd.AddCommand(closePeriodCmd)
	closePeriodCmd.Flags().String("station", "", "station id")
	closePeriodCmd.Flags().String("date", "", "business date (YYYY-MM-DD, station local)")
	closePeriodCmd.Flags().String("prepared-by", "system:cli", "preparer recorded on the settlement")
	closePeriodCmd.Flags().String("approved-by", "", "approver recorded on the settlement")
	_ = closePeriodCmd.MarkFlagRequired("station")
	_ = closePeriodCmd.MarkFlagRequired("date")
}

var closePeriodCmd = &cobra.Command{
	Use:   "close-period",
	Short: "Close one station-day into a settlement",
	Long: `Close one station-day into an immutable settlement. The command fails and
lists the blockers while shifts are active or handovers are still pending.`,
	RunE: runClosePeriod,
}

func runClosePeriod(cmd *cobra.Command, _ []string) error {
	stationID, _ := cmd.Flags().GetString("station")
	date, _ := cmd.Flags().GetString("date")
	preparedBy, _ := cmd.Flags().GetString("prepared-by")
	approvedBy, _ := cmd.Flags().GetString("approved-by")

	logger := newLogger()
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := buildApp(loadConfig(), db, logger)
	if err != nil {
		return err
	}
	defer a.shutdown()

	result, err := a.finalizer.ClosePeriod(cmd.Context(), settlementapp.ClosePeriodCommand{
		StationID:  stationID,
		Date:       date,
		PreparedBy: preparedBy,
		ApprovedBy: approvedBy,
	})
	var notReady *settlement.NotReadyError
	if errors.As(err, &notReady) {
		for _, b := range notReady.Blockers {
			fmt.Fprintf(cmd.ErrOrStderr(), "blocked by %s %s: %s\n", b.Kind, b.ReferenceID, b.Detail)
		}
		return err
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
