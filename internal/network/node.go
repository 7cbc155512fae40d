package network

// routeEdge is a directed arc between two adjacent stations. The same edge
// instance is held by the outgoing map of its source node and the incoming
// map of its destination node, so a travel-time update is visible from both
// ends.
type routeEdge struct {
	travelTime uint
	// lineToRouteIDs registers every (line, route) pair traversing this
	// ordered station pair.
	lineToRouteIDs map[ID][]ID
}

func newRouteEdge() *routeEdge {
	return &routeEdge{lineToRouteIDs: make(map[ID][]ID)}
}

// addRoute registers a (line, route) pair on the edge. Registering the same
// pair twice fails.
func (e *routeEdge) addRoute(lineID, routeID ID) bool {
	if e.hasRoute(lineID, routeID) {
		return false
	}
	e.lineToRouteIDs[lineID] = append(e.lineToRouteIDs[lineID], routeID)
	return true
}

func (e *routeEdge) hasRoute(lineID, routeID ID) bool {
	for _, id := range e.lineToRouteIDs[lineID] {
		if id == routeID {
			return true
		}
	}
	return false
}

// routes returns every route id registered on the edge, across all lines.
func (e *routeEdge) routes() []ID {
	var ids []ID
	for _, routeIDs := range e.lineToRouteIDs {
		ids = append(ids, routeIDs...)
	}
	return ids
}

// routeMetadata flattens one (line, route) registration with the edge's
// travel time, the shape the planner relaxes over.
type routeMetadata struct {
	lineID     ID
	routeID    ID
	travelTime uint
}

func (e *routeEdge) metadata() []routeMetadata {
	var md []routeMetadata
	for lineID, routeIDs := range e.lineToRouteIDs {
		for _, routeID := range routeIDs {
			md = append(md, routeMetadata{lineID, routeID, e.travelTime})
		}
	}
	return md
}

// stationNode is the graph vertex for one station.
type stationNode struct {
	name string
	// passengers is signed: recording can start mid-day, so more exits
	// than entries is a meaningful state.
	passengers int64
	outgoing   map[ID]*routeEdge
	incoming   map[ID]*routeEdge
}

func newStationNode(name string) *stationNode {
	return &stationNode{
		name:     name,
		outgoing: make(map[ID]*routeEdge),
		incoming: make(map[ID]*routeEdge),
	}
}

func (n *stationNode) getOrMakeEdge(destStationID ID) *routeEdge {
	if edge, ok := n.outgoing[destStationID]; ok {
		return edge
	}
	edge := newRouteEdge()
	n.outgoing[destStationID] = edge
	return edge
}

func (n *stationNode) addIncomingEdge(srcStationID ID, edge *routeEdge) {
	n.incoming[srcStationID] = edge
}

func (n *stationNode) edge(destStationID ID) *routeEdge {
	return n.outgoing[destStationID]
}

// routesServing returns the deduplicated union of routes on all incoming
// and outgoing edges.
func (n *stationNode) routesServing() []ID {
	seen := make(map[ID]struct{})
	var ids []ID
	collect := func(edges map[ID]*routeEdge) {
		for _, edge := range edges {
			for _, routeID := range edge.routes() {
				if _, ok := seen[routeID]; !ok {
					seen[routeID] = struct{}{}
					ids = append(ids, routeID)
				}
			}
		}
	}
	collect(n.outgoing)
	collect(n.incoming)
	return ids
}
