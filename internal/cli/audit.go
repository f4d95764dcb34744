package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fuelstation-cloud/internal/audit"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditVerifyCmd.Flags().StringSlice("station", nil, "station ids to verify (required)")
	_ = auditVerifyCmd.MarkFlagRequired("station")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail maintenance",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the audit hash chain of stations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stations, _ := cmd.Flags().GetStringSlice("station")
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		repo := audit.NewRepository(db)
		enc := json.NewEncoder(cmd.OutOrStdout())
		broken := 0
		for _, stationID := range stations {
			result, err := repo.Verify(cmd.Context(), stationID)
			if err != nil {
				return fmt.Errorf("verify %s: %w", stationID, err)
			}
			if !result.Intact {
				broken++
			}
			if err := enc.Encode(result); err != nil {
				return err
			}
		}
		if broken > 0 {
			return fmt.Errorf("%d station audit chains are broken", broken)
		}
		return nil
	},
}
