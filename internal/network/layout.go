package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Layout is the declarative network description the graph is hydrated
// from. The JSON schema is fixed; validation runs before any mutation so a
// document that fails validation never touches the network. Hydrate itself
// is not transactional: an insertion failure (duplicate id, unknown stop)
// leaves the entities added before it in place.
type Layout struct {
	Stations    []LayoutStation    `json:"stations" validate:"required,dive"`
	Lines       []LayoutLine       `json:"lines" validate:"dive"`
	TravelTimes []LayoutTravelTime `json:"travel_times" validate:"dive"`
}

type LayoutStation struct {
	StationID ID     `json:"station_id" validate:"required"`
	Name      string `json:"name"`
}

type LayoutLine struct {
	LineID ID            `json:"line_id" validate:"required"`
	Name   string        `json:"name"`
	Routes []LayoutRoute `json:"routes" validate:"min=1,dive"`
}

type LayoutRoute struct {
	RouteID        ID     `json:"route_id" validate:"required"`
	Direction      string `json:"direction"`
	StartStationID ID     `json:"start_station_id" validate:"required"`
	EndStationID   ID     `json:"end_station_id" validate:"required"`
	RouteStops     []ID   `json:"route_stops" validate:"min=2,dive,required"`
}

type LayoutTravelTime struct {
	StartStationID ID   `json:"start_station_id" validate:"required"`
	EndStationID   ID   `json:"end_station_id" validate:"required"`
	TravelTime     uint `json:"travel_time"`
}

var layoutValidator = validator.New()

// ParseLayout unmarshals and validates a layout document.
func ParseLayout(data []byte) (*Layout, error) {
	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parsing network layout: %w", err)
	}
	if err := layoutValidator.Struct(&layout); err != nil {
		return nil, fmt.Errorf("validating network layout: %w", err)
	}
	return &layout, nil
}

// LoadLayout reads and parses a layout document from disk.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network layout: %w", err)
	}
	return ParseLayout(data)
}

// Hydrate populates the network from a layout: every station, then every
// line with its routes, then the travel-time records. A station or line
// insertion failure aborts the hydration; a travel time for a non-adjacent
// pair is skipped.
func (n *Network) Hydrate(layout *Layout) error {
	for _, s := range layout.Stations {
		if err := n.AddStation(Station{ID: s.StationID, Name: s.Name}); err != nil {
			return fmt.Errorf("hydrating stations: %w", err)
		}
	}
	for _, l := range layout.Lines {
		line := Line{ID: l.LineID, Name: l.Name}
		for _, r := range l.Routes {
			line.Routes = append(line.Routes, Route{
				ID:             r.RouteID,
				Direction:      r.Direction,
				LineID:         l.LineID,
				StartStationID: r.StartStationID,
				EndStationID:   r.EndStationID,
				Stops:          r.RouteStops,
			})
		}
		if err := n.AddLine(line); err != nil {
			return fmt.Errorf("hydrating line %q: %w", l.LineID, err)
		}
	}
	for _, tt := range layout.TravelTimes {
		err := n.SetTravelTime(tt.StartStationID, tt.EndStationID, tt.TravelTime)
		if err != nil && !errors.Is(err, ErrNoSuchEdge) {
			return fmt.Errorf("hydrating travel times: %w", err)
		}
	}
	return nil
}
