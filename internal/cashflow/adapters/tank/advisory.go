package tank

import (
	"context"
	"errors"
	"fmt"

	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

// LevelAdvisor reports low tank levels for the nozzle being read.
type LevelAdvisor struct {
	tanks masterdata.TankRepository
}

// NewLevelAdvisor constructs an advisor over the tank repository.
func NewLevelAdvisor(tanks masterdata.TankRepository) (*LevelAdvisor, error) {
	if tanks == nil {
		return nil, errors.New("tank advisor: nil tank repository")
	}
	return &LevelAdvisor{tanks: tanks}, nil
}

// LowFuelAdvisory returns a message when the nozzle's tank is at or below its
// low mark. Nozzles without a tank get no advisory.
func (a *LevelAdvisor) LowFuelAdvisory(ctx context.Context, nozzle masterdata.Nozzle) (string, error) {
	if nozzle.TankID == "" {
		return "", nil
	}
	tank, err := a.tanks.Get(ctx, nozzle.TankID)
	if err != nil {
		return "", err
	}
	if tank == nil || !tank.IsLow() {
		return "", nil
	}
	return fmt.Sprintf("low fuel: tank %s (%s) at %s of %s",
		tank.ID, tank.FuelType, tank.CurrentLevel.StringFixed(1), tank.Capacity.StringFixed(1)), nil
}
