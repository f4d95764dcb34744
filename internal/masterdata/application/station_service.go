package application

import (
	"context"
	"errors"
	"fmt"

	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

// StationService provides minimal station, nozzle and tank commands.
type StationService struct {
	stations masterdata.StationRepository
	nozzles  masterdata.NozzleRepository
	tanks    masterdata.TankRepository
}

// NewStationService constructs a station service.
func NewStationService(stations masterdata.StationRepository, nozzles masterdata.NozzleRepository, tanks masterdata.TankRepository) (*StationService, error) {
	if stations == nil {
		return nil, errors.New("station service: nil station repository")
	}
	if nozzles == nil {
		return nil, errors.New("station service: nil nozzle repository")
	}
	if tanks == nil {
		return nil, errors.New("station service: nil tank repository")
	}
	return &StationService{stations: stations, nozzles: nozzles, tanks: tanks}, nil
}

// UpsertStation validates and saves a station.
func (s *StationService) UpsertStation(ctx context.Context, station *masterdata.Station) error {
	if station == nil {
		return errors.New("station service: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}
	return s.stations.Save(ctx, station)
}

// UpsertTank saves a tank of an existing station.
func (s *StationService) UpsertTank(ctx context.Context, tank *masterdata.Tank) error {
	if tank == nil {
		return errors.New("station service: nil tank")
	}
	if err := tank.Validate(); err != nil {
		return err
	}
	if err := s.requireStation(ctx, tank.StationID); err != nil {
		return err
	}
	return s.tanks.Save(ctx, tank)
}

// UpsertNozzle saves a nozzle of an existing station. A referenced tank must
// belong to the same station and store the same fuel.
func (s *StationService) UpsertNozzle(ctx context.Context, nozzle *masterdata.Nozzle) error {
	if nozzle == nil {
		return errors.New("station service: nil nozzle")
	}
	if err := nozzle.Validate(); err != nil {
		return err
	}
	if err := s.requireStation(ctx, nozzle.StationID); err != nil {
		return err
	}
	if nozzle.TankID != "" {
		tank, err := s.tanks.Get(ctx, nozzle.TankID)
		if err != nil {
			return err
		}
		if tank == nil {
			return fmt.Errorf("station service: tank %s not found", nozzle.TankID)
		}
		if tank.StationID != nozzle.StationID {
			return fmt.Errorf("station service: tank %s belongs to station %s", tank.ID, tank.StationID)
		}
		if tank.FuelType != nozzle.FuelType {
			return fmt.Errorf("station service: tank %s stores %s, nozzle dispenses %s", tank.ID, tank.FuelType, nozzle.FuelType)
		}
	}
	return s.nozzles.Save(ctx, nozzle)
}

func (s *StationService) requireStation(ctx context.Context, stationID string) error {
	station, err := s.stations.Get(ctx, stationID)
	if err != nil {
		return err
	}
	if station == nil {
		return fmt.Errorf("station service: station %s not found", stationID)
	}
	return nil
}
