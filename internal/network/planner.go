package network

import (
	"container/heap"
)

// Step is one hop of a planned journey. TravelTime is the distance delta of
// the hop, so a hop that triggered a change penalty reports the penalty as
// part of its time.
type Step struct {
	StartStationID ID
	EndStationID   ID
	LineID         ID
	RouteID        ID
	TravelTime     uint
}

// TravelRoute is a planned journey. An unreachable destination yields no
// steps and a zero total.
type TravelRoute struct {
	StartStationID  ID
	EndStationID    ID
	TotalTravelTime uint
	Steps           []Step
}

// graphStop is the expanded search state: a station together with the
// (line, route) the journey arrived on. Empty route and line mark the
// source state.
type graphStop struct {
	stationID ID
	routeID   ID
	lineID    ID
}

type stopDistance struct {
	stop   graphStop
	metric int64
}

// stopQueue is a min-heap over the search metric.
type stopQueue []stopDistance

func (q stopQueue) Len() int            { return len(q) }
func (q stopQueue) Less(i, j int) bool  { return q[i].metric < q[j].metric }
func (q stopQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *stopQueue) Push(x interface{}) { *q = append(*q, x.(stopDistance)) }
func (q *stopQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// FastestTravelRoute plans the journey with the minimum accumulated travel
// time, change penalties included.
func (n *Network) FastestTravelRoute(from, to ID) TravelRoute {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.plan(from, to, false)
}

// QuietTravelRoute plans the journey through the least crowded stations:
// the search metric accumulates the passenger count of each station entered
// instead of the hop's travel time. The reported total travel time still
// uses the time accumulation.
func (n *Network) QuietTravelRoute(from, to ID) TravelRoute {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.plan(from, to, true)
}

// PlanJourney computes both variants and returns the quieter journey when
// its travel time is less than 1.2 times the fastest's, else the fastest.
func (n *Network) PlanJourney(from, to ID) TravelRoute {
	n.mu.RLock()
	defer n.mu.RUnlock()
	fastest := n.plan(from, to, false)
	quietest := n.plan(from, to, true)
	// fastest.total * 1.2 > quietest.total, in integers.
	if uint64(fastest.TotalTravelTime)*6 > uint64(quietest.TotalTravelTime)*5 {
		return quietest
	}
	return fastest
}

// plan runs a Dijkstra relaxation over the expanded (station, route, line)
// state space. Distance (reported travel time) and metric (heap order) are
// tracked separately: for the fastest variant they coincide, for the quiet
// variant the metric accumulates passenger counts. The queue is drained
// fully; the target state with the minimum metric wins.
//
// Callers hold at least a read lock.
func (n *Network) plan(from, to ID, quiet bool) TravelRoute {
	if from == to {
		return TravelRoute{
			StartStationID:  from,
			EndStationID:    to,
			TotalTravelTime: 0,
			Steps:           []Step{{StartStationID: from, EndStationID: to, TravelTime: 0}},
		}
	}
	empty := TravelRoute{StartStationID: from, EndStationID: to}
	if _, ok := n.nodes[from]; !ok {
		return empty
	}
	if _, ok := n.nodes[to]; !ok {
		return empty
	}

	source := graphStop{stationID: from}
	metric := map[graphStop]int64{source: 0}
	travel := map[graphStop]uint{source: 0}
	parent := make(map[graphStop]graphStop)

	queue := &stopQueue{{stop: source, metric: 0}}
	heap.Init(queue)

	for queue.Len() > 0 {
		u := heap.Pop(queue).(stopDistance)
		if u.metric > metric[u.stop] {
			continue // stale queue entry
		}
		node := n.nodes[u.stop.stationID]
		for destID, edge := range node.outgoing {
			for _, md := range edge.metadata() {
				v := graphStop{stationID: destID, routeID: md.routeID, lineID: md.lineID}
				changed := u.stop.routeID != "" &&
					u.stop.routeID != v.routeID && u.stop.lineID != v.lineID

				dist := travel[u.stop] + md.travelTime
				if changed {
					dist += n.changePenalty
				}

				var delta int64
				if quiet {
					delta = n.nodes[destID].passengers
					if changed {
						delta += n.nodes[destID].passengers
					}
				} else {
					delta = int64(md.travelTime)
					if changed {
						delta += int64(n.changePenalty)
					}
				}

				m := u.metric + delta
				if known, ok := metric[v]; !ok || m < known {
					metric[v] = m
					travel[v] = dist
					parent[v] = u.stop
					heap.Push(queue, stopDistance{stop: v, metric: m})
				}
			}
		}
	}

	best, found := bestTarget(metric, to)
	if !found {
		return empty
	}
	return TravelRoute{
		StartStationID:  from,
		EndStationID:    to,
		TotalTravelTime: travel[best],
		Steps:           reconstruct(parent, travel, source, best),
	}
}

// bestTarget picks the settled expanded state at the destination station
// with the minimum metric. Ties break arbitrarily.
func bestTarget(metric map[graphStop]int64, to ID) (graphStop, bool) {
	var best graphStop
	var bestMetric int64
	found := false
	for stop, m := range metric {
		if stop.stationID != to {
			continue
		}
		if !found || m < bestMetric {
			best = stop
			bestMetric = m
			found = true
		}
	}
	return best, found
}

func reconstruct(parent map[graphStop]graphStop, travel map[graphStop]uint, source, target graphStop) []Step {
	var steps []Step
	for cur := target; cur != source; {
		prev := parent[cur]
		steps = append(steps, Step{
			StartStationID: prev.stationID,
			EndStationID:   cur.stationID,
			LineID:         cur.lineID,
			RouteID:        cur.routeID,
			TravelTime:     travel[cur] - travel[prev],
		})
		cur = prev
	}
	// Reverse into journey order.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}
