package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fuelstation-cloud/internal/cashflow/infrastructure/pricing"
	masterdataapp "fuelstation-cloud/internal/masterdata/application"
	masterdata "fuelstation-cloud/internal/masterdata/domain"
	masterdatarepo "fuelstation-cloud/internal/masterdata/infrastructure/postgres"
)

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringP("file", "f", "", "YAML file with stations, tanks, nozzles and prices")
	_ = seedCmd.MarkFlagRequired("file")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load station master data and fuel prices from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		seed, err := parseSeed(data)
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		service, err := masterdataapp.NewStationService(
			masterdatarepo.NewStationRepository(db),
			masterdatarepo.NewNozzleRepository(db),
			masterdatarepo.NewTankRepository(db),
		)
		if err != nil {
			return err
		}
		if err := applySeed(cmd.Context(), service, pricing.NewFuelPriceProvider(db), seed); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stations, %d tanks, %d nozzles, %d prices\n",
			len(seed.Stations), len(seed.Tanks), len(seed.Nozzles), len(seed.Prices))
		return nil
	},
}

type seedFile struct {
	Stations []seedStation `yaml:"stations"`
	Tanks    []seedTank    `yaml:"tanks"`
	Nozzles  []seedNozzle  `yaml:"nozzles"`
	Prices   []seedPrice   `yaml:"prices"`
}

type seedStation struct {
	ID       string `yaml:"id"`
	TenantID string `yaml:"tenant_id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	Region   string `yaml:"region"`
}

type seedTank struct {
	ID           string `yaml:"id"`
	StationID    string `yaml:"station_id"`
	FuelType     string `yaml:"fuel_type"`
	Capacity     string `yaml:"capacity"`
	CurrentLevel string `yaml:"current_level"`
	LowLevel     string `yaml:"low_level"`
}

type seedNozzle struct {
	ID            string `yaml:"id"`
	StationID     string `yaml:"station_id"`
	PumpID        string `yaml:"pump_id"`
	TankID        string `yaml:"tank_id"`
	FuelType      string `yaml:"fuel_type"`
	OpeningVolume string `yaml:"opening_volume"`
	Inactive      bool   `yaml:"inactive"`
}

type seedPrice struct {
	StationID     string `yaml:"station_id"`
	FuelType      string `yaml:"fuel_type"`
	Price         string `yaml:"price"`
	EffectiveFrom string `yaml:"effective_from"`
}

type priceWriter interface {
	SetPrice(ctx context.Context, stationID, fuelType string, price decimal.Decimal, effectiveFrom time.Time) error
}

func parseSeed(data []byte) (*seedFile, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if len(seed.Stations)+len(seed.Tanks)+len(seed.Nozzles)+len(seed.Prices) == 0 {
		return nil, errors.New("seed: file is empty")
	}
	return &seed, nil
}

func applySeed(ctx context.Context, service *masterdataapp.StationService, prices priceWriter, seed *seedFile) error {
	for _, s := range seed.Stations {
		if err := service.UpsertStation(ctx, &masterdata.Station{
			ID:       s.ID,
			TenantID: s.TenantID,
			Name:     s.Name,
			Timezone: s.Timezone,
			Region:   s.Region,
		}); err != nil {
			return fmt.Errorf("seed station %s: %w", s.ID, err)
		}
	}
	for _, t := range seed.Tanks {
		capacity, err := parseAmount(t.Capacity)
		if err != nil {
			return fmt.Errorf("seed tank %s capacity: %w", t.ID, err)
		}
		current, err := parseAmount(t.CurrentLevel)
		if err != nil {
			return fmt.Errorf("seed tank %s current_level: %w", t.ID, err)
		}
		low, err := parseAmount(t.LowLevel)
		if err != nil {
			return fmt.Errorf("seed tank %s low_level: %w", t.ID, err)
		}
		if err := service.UpsertTank(ctx, &masterdata.Tank{
			ID:           t.ID,
			StationID:    t.StationID,
			FuelType:     t.FuelType,
			Capacity:     capacity,
			CurrentLevel: current,
			LowLevel:     low,
		}); err != nil {
			return fmt.Errorf("seed tank %s: %w", t.ID, err)
		}
	}
	for _, n := range seed.Nozzles {
		opening, err := parseAmount(n.OpeningVolume)
		if err != nil {
			return fmt.Errorf("seed nozzle %s opening_volume: %w", n.ID, err)
		}
		if err := service.UpsertNozzle(ctx, &masterdata.Nozzle{
			ID:            n.ID,
			StationID:     n.StationID,
			PumpID:        n.PumpID,
			TankID:        n.TankID,
			FuelType:      n.FuelType,
			OpeningVolume: opening,
			Active:        !n.Inactive,
		}); err != nil {
			return fmt.Errorf("seed nozzle %s: %w", n.ID, err)
		}
	}
	for _, p := range seed.Prices {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return fmt.Errorf("seed price %s/%s: %w", p.StationID, p.FuelType, err)
		}
		effective := time.Unix(0, 0).UTC()
		if p.EffectiveFrom != "" {
			effective, err = time.Parse(time.RFC3339, p.EffectiveFrom)
			if err != nil {
				return fmt.Errorf("seed price %s/%s effective_from: %w", p.StationID, p.FuelType, err)
			}
		}
		if err := prices.SetPrice(ctx, p.StationID, p.FuelType, price, effective); err != nil {
			return fmt.Errorf("seed price %s/%s: %w", p.StationID, p.FuelType, err)
		}
	}
	return nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
