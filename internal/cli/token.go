package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fuelstation-cloud/internal/auth"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("subject", "", "employee id (required)")
	tokenCmd.Flags().String("role", string(auth.RoleAttendant), "viewer|attendant|manager|owner|admin")
	tokenCmd.Flags().String("tenant", "", "tenant id (default $TENANT_ID)")
	tokenCmd.Flags().StringSlice("station", nil, "restrict the token to these stations")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime, 0 for no expiry")
	_ = tokenCmd.MarkFlagRequired("subject")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token for an employee",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		if cfg.JWTSecret == "" {
			return errors.New("AUTH_JWT_SECRET is not set")
		}
		subject, _ := cmd.Flags().GetString("subject")
		roleFlag, _ := cmd.Flags().GetString("role")
		tenant, _ := cmd.Flags().GetString("tenant")
		stations, _ := cmd.Flags().GetStringSlice("station")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if tenant == "" {
			tenant = cfg.TenantID
		}
		role, ok := auth.NormalizeRole(roleFlag)
		if !ok {
			return fmt.Errorf("unknown role %q", roleFlag)
		}

		token, err := auth.IssueJWT([]byte(cfg.JWTSecret), auth.Identity{
			TenantID: tenant,
			Role:     role,
			Subject:  subject,
			Stations: stations,
		}, ttl, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
