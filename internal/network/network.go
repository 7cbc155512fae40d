package network

import (
	"errors"
	"fmt"
	"sync"
)

// ID identifies a station, line or route. IDs are opaque: only equality
// matters.
type ID string

// Graph errors.
var (
	ErrDuplicateID    = errors.New("network: duplicate id")
	ErrUnknownStation = errors.New("network: unknown station")
	ErrDuplicateRoute = errors.New("network: route already registered on edge")
	ErrNoSuchEdge     = errors.New("network: stations are not adjacent")
)

// Station is a network station. id must be unique across the network.
type Station struct {
	ID   ID
	Name string
}

// Route is one possible journey across a set of stops in a single
// direction. A well-formed route has at least two stops, starts at
// StartStationID, ends at EndStationID, and visits each stop once.
type Route struct {
	ID             ID
	Direction      string
	LineID         ID
	StartStationID ID
	EndStationID   ID
	Stops          []ID
}

// Line is a named collection of routes. Every route's LineID equals the
// line's ID.
type Line struct {
	ID     ID
	Name   string
	Routes []Route
}

// EventType is the kind of a passenger observation.
type EventType int

const (
	EventIn EventType = iota
	EventOut
)

// ParseEventType maps the wire strings "in" and "out" to event types.
func ParseEventType(s string) (EventType, bool) {
	switch s {
	case "in":
		return EventIn, true
	case "out":
		return EventOut, true
	}
	return 0, false
}

// PassengerEvent is an entry or exit observation at a station.
type PassengerEvent struct {
	StationID ID
	Type      EventType
}

const defaultChangePenalty = 5

// Network is the in-memory multigraph of the rail network: stations as
// nodes, directed adjacency edges carrying (line, route) registrations and
// travel times, and per-station passenger counters.
//
// A mutex serializes event application against queries, since the feed's
// delivery goroutine and callers of the query surface are distinct.
type Network struct {
	mu            sync.RWMutex
	nodes         map[ID]*stationNode
	changePenalty uint
}

func New() *Network {
	return &Network{
		nodes:         make(map[ID]*stationNode),
		changePenalty: defaultChangePenalty,
	}
}

// SetChangePenalty overrides the surcharge applied when a journey switches
// to a different route on a different line. Switching routes within the
// same line is not penalized.
func (n *Network) SetChangePenalty(penalty uint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changePenalty = penalty
}

// AddStation adds a station with no adjacency. The id must not be in use.
func (n *Network) AddStation(station Station) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.nodes[station.ID]; ok {
		return fmt.Errorf("%w: station %q", ErrDuplicateID, station.ID)
	}
	n.nodes[station.ID] = newStationNode(station.Name)
	return nil
}

// AddLine registers every route of the line on the graph: for each
// consecutive stop pair the directed edge is created or reused, and the
// (line, route) pair is recorded on it. All stops must already be stations;
// re-registering a (line, route) pair on an edge fails.
func (n *Network) AddLine(line Line) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, route := range line.Routes {
		for i := 1; i < len(route.Stops); i++ {
			prevID, curID := route.Stops[i-1], route.Stops[i]
			prev, ok := n.nodes[prevID]
			if !ok {
				return fmt.Errorf("%w: %q in route %q", ErrUnknownStation, prevID, route.ID)
			}
			cur, ok := n.nodes[curID]
			if !ok {
				return fmt.Errorf("%w: %q in route %q", ErrUnknownStation, curID, route.ID)
			}
			edge := prev.getOrMakeEdge(curID)
			if !edge.addRoute(route.LineID, route.ID) {
				return fmt.Errorf("%w: route %q on edge %q->%q", ErrDuplicateRoute, route.ID, prevID, curID)
			}
			cur.addIncomingEdge(prevID, edge)
		}
	}
	return nil
}

// RecordPassengerEvent adjusts the station's passenger counter. The counter
// is signed and may go negative.
func (n *Network) RecordPassengerEvent(event PassengerEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	node, ok := n.nodes[event.StationID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStation, event.StationID)
	}
	if event.Type == EventIn {
		node.passengers++
	} else {
		node.passengers--
	}
	return nil
}

// PassengerCount returns the current counter for the station.
func (n *Network) PassengerCount(stationID ID) (int64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[stationID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStation, stationID)
	}
	return node.passengers, nil
}

// RoutesServingStation returns the route ids on all edges touching the
// station. The result is empty when the station is unknown or has no edges.
func (n *Network) RoutesServingStation(stationID ID) []ID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[stationID]
	if !ok {
		return nil
	}
	return node.routesServing()
}

// SetTravelTime sets the travel time on the edges between the two stations,
// whichever of the two directions exist. It succeeds if at least one edge
// was updated; both directions receive the same value.
func (n *Network) SetTravelTime(stationA, stationB ID, travelTime uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	ok := n.setTravelTimeDirectional(stationA, stationB, travelTime)
	if n.setTravelTimeDirectional(stationB, stationA, travelTime) {
		ok = true
	}
	if !ok {
		return fmt.Errorf("%w: %q and %q", ErrNoSuchEdge, stationA, stationB)
	}
	return nil
}

func (n *Network) setTravelTimeDirectional(from, to ID, travelTime uint) bool {
	node, ok := n.nodes[from]
	if !ok {
		return false
	}
	edge := node.edge(to)
	if edge == nil {
		return false
	}
	edge.travelTime = travelTime
	return true
}

// TravelTime returns the travel time between two adjacent stations: the
// maximum over the two directed edges, so a single symmetric value set
// through either direction is observed. 0 when the stations coincide or are
// not adjacent.
func (n *Network) TravelTime(stationA, stationB ID) uint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return max(
		n.travelTimeDirectional(stationA, stationB),
		n.travelTimeDirectional(stationB, stationA),
	)
}

func (n *Network) travelTimeDirectional(from, to ID) uint {
	if from == to {
		return 0
	}
	node, ok := n.nodes[from]
	if !ok {
		return 0
	}
	edge := node.edge(to)
	if edge == nil {
		return 0
	}
	return edge.travelTime
}

// RouteTravelTime walks the given route from stationA, summing edge travel
// times until stationB. Returns 0 when the stations coincide or when the
// route does not lead from A to B.
func (n *Network) RouteTravelTime(lineID, routeID, stationA, stationB ID) uint {
	n.mu.RLock()
	defer n.mu.RUnlock()

	cur := stationA
	var total uint
	for cur != stationB {
		node, ok := n.nodes[cur]
		if !ok {
			return 0
		}
		next := ID("")
		for destID, edge := range node.outgoing {
			if edge.hasRoute(lineID, routeID) {
				next = destID
				total += edge.travelTime
				break
			}
		}
		if next == "" {
			return 0
		}
		cur = next
	}
	return total
}

// StationName returns the display name recorded for the station.
func (n *Network) StationName(stationID ID) (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[stationID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStation, stationID)
	}
	return node.name, nil
}
