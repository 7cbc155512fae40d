package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastestTravelRoute(t *testing.T) {
	t.Run("same station", func(t *testing.T) {
		n := buildNetwork(t, "a")
		route := n.FastestTravelRoute("a", "a")
		assert.Equal(t, uint(0), route.TotalTravelTime)
		require.Len(t, route.Steps, 1)
		assert.Equal(t, Step{StartStationID: "a", EndStationID: "a", TravelTime: 0}, route.Steps[0])
	})

	t.Run("unreachable destination", func(t *testing.T) {
		n := buildNetwork(t, "a", "b")
		route := n.FastestTravelRoute("a", "b")
		assert.Empty(t, route.Steps)
		assert.Equal(t, uint(0), route.TotalTravelTime)
	})

	t.Run("unknown stations", func(t *testing.T) {
		n := buildNetwork(t, "a")
		assert.Empty(t, n.FastestTravelRoute("a", "ghost").Steps)
		assert.Empty(t, n.FastestTravelRoute("ghost", "a").Steps)
	})

	t.Run("single line", func(t *testing.T) {
		n := buildNetwork(t, "a", "b", "c")
		require.NoError(t, n.AddLine(Line{ID: "l1", Routes: []Route{
			testRoute("r1", "l1", "a", "b", "c"),
		}}))
		require.NoError(t, n.SetTravelTime("a", "b", 2))
		require.NoError(t, n.SetTravelTime("b", "c", 3))

		route := n.FastestTravelRoute("a", "c")
		assert.Equal(t, uint(5), route.TotalTravelTime)
		require.Len(t, route.Steps, 2)
		assert.Equal(t, Step{"a", "b", "l1", "r1", 2}, route.Steps[0])
		assert.Equal(t, Step{"b", "c", "l1", "r1", 3}, route.Steps[1])
	})

	t.Run("direct edge beats detour", func(t *testing.T) {
		n := buildNetwork(t, "a", "b", "c")
		require.NoError(t, n.AddLine(Line{ID: "l1", Routes: []Route{
			testRoute("r1", "l1", "a", "b"),
		}}))
		require.NoError(t, n.AddLine(Line{ID: "l2", Routes: []Route{
			testRoute("r2", "l2", "a", "c", "b"),
		}}))
		require.NoError(t, n.SetTravelTime("a", "b", 4))
		require.NoError(t, n.SetTravelTime("a", "c", 1))
		require.NoError(t, n.SetTravelTime("c", "b", 1))

		route := n.FastestTravelRoute("a", "b")
		// The two-hop detour costs 2 and needs no change: it wins.
		assert.Equal(t, uint(2), route.TotalTravelTime)
		assert.Len(t, route.Steps, 2)
	})

	t.Run("staying on one route avoids the change penalty", func(t *testing.T) {
		n := buildNetwork(t, "a", "b")
		require.NoError(t, n.AddLine(Line{ID: "l1", Routes: []Route{
			testRoute("r1", "l1", "a", "b"),
		}}))
		require.NoError(t, n.AddLine(Line{ID: "l2", Routes: []Route{
			testRoute("r2", "l2", "a", "b"),
		}}))
		require.NoError(t, n.SetTravelTime("a", "b", 10))

		route := n.FastestTravelRoute("a", "b")
		assert.Equal(t, uint(10), route.TotalTravelTime)
		require.Len(t, route.Steps, 1)
	})
}

func TestChangePenalty(t *testing.T) {
	// A journey a->m->b forced across two lines: the second hop pays the
	// change penalty on top of its travel time.
	setup := func(t *testing.T) *Network {
		n := buildNetwork(t, "a", "m", "b")
		require.NoError(t, n.AddLine(Line{ID: "l1", Routes: []Route{
			testRoute("r1", "l1", "a", "m"),
		}}))
		require.NoError(t, n.AddLine(Line{ID: "l2", Routes: []Route{
			testRoute("r2", "l2", "m", "b"),
		}}))
		require.NoError(t, n.SetTravelTime("a", "m", 10))
		require.NoError(t, n.SetTravelTime("m", "b", 10))
		return n
	}

	t.Run("default penalty", func(t *testing.T) {
		n := setup(t)
		route := n.FastestTravelRoute("a", "b")
		assert.Equal(t, uint(25), route.TotalTravelTime)
		require.Len(t, route.Steps, 2)
		// The penalty lands on the hop that switched.
		assert.Equal(t, uint(10), route.Steps[0].TravelTime)
		assert.Equal(t, uint(15), route.Steps[1].TravelTime)
	})

	t.Run("configurable penalty", func(t *testing.T) {
		n := setup(t)
		n.SetChangePenalty(100)
		assert.Equal(t, uint(120), n.FastestTravelRoute("a", "b").TotalTravelTime)
	})

	t.Run("no penalty when only the route differs", func(t *testing.T) {
		// Same line, different routes: a change within a line is free.
		n := buildNetwork(t, "a", "m", "b")
		require.NoError(t, n.AddLine(Line{ID: "l1", Routes: []Route{
			testRoute("r1", "l1", "a", "m"),
			testRoute("r2", "l1", "m", "b"),
		}}))
		require.NoError(t, n.SetTravelTime("a", "m", 10))
		require.NoError(t, n.SetTravelTime("m", "b", 10))
		assert.Equal(t, uint(20), n.FastestTravelRoute("a", "b").TotalTravelTime)
	})
}

func TestQuietTravelRoute(t *testing.T) {
	// Two ways from a to b: via c on l1, or via q on l2. The quiet metric
	// counts the passengers at the station entered on each hop, so the
	// branch through the calmer intermediate station wins.
	setup := func(t *testing.T) *Network {
		n := buildNetwork(t, "a", "q", "c", "b")
		require.NoError(t, n.AddLine(Line{ID: "l1", Routes: []Route{
			testRoute("r1", "l1", "a", "c", "b"),
		}}))
		require.NoError(t, n.AddLine(Line{ID: "l2", Routes: []Route{
			testRoute("r2", "l2", "a", "q", "b"),
		}}))
		require.NoError(t, n.SetTravelTime("a", "c", 5))
		require.NoError(t, n.SetTravelTime("c", "b", 5))
		require.NoError(t, n.SetTravelTime("a", "q", 6))
		require.NoError(t, n.SetTravelTime("q", "b", 5))
		return n
	}

	crowd := func(t *testing.T, n *Network, stationID ID, count int) {
		t.Helper()
		kind := EventIn
		if count < 0 {
			kind = EventOut
			count = -count
		}
		for i := 0; i < count; i++ {
			require.NoError(t, n.RecordPassengerEvent(PassengerEvent{StationID: stationID, Type: kind}))
		}
	}

	t.Run("avoids the crowded interchange", func(t *testing.T) {
		n := setup(t)
		crowd(t, n, "c", 50)
		crowd(t, n, "q", 2)

		route := n.QuietTravelRoute("a", "b")
		require.Len(t, route.Steps, 2)
		assert.Equal(t, ID("q"), route.Steps[0].EndStationID)
		assert.Equal(t, uint(11), route.TotalTravelTime)
	})

	t.Run("negative counts attract the quiet search", func(t *testing.T) {
		n := setup(t)
		crowd(t, n, "q", -3) // more exits than entries recorded
		route := n.QuietTravelRoute("a", "b")
		require.Len(t, route.Steps, 2)
		assert.Equal(t, ID("q"), route.Steps[0].EndStationID)
	})

	t.Run("reported time is travel time, not the metric", func(t *testing.T) {
		n := setup(t)
		crowd(t, n, "c", 50)
		route := n.QuietTravelRoute("a", "b")
		// 6 + 5 on the quiet branch, no change involved.
		assert.Equal(t, uint(11), route.TotalTravelTime)
	})
}

func TestPlanJourney(t *testing.T) {
	// Fast-but-crowded route a->c->b (total 10) against quiet a->q->b
	// (total 11): the quiet journey is within the 20% allowance and wins.
	setup := func(t *testing.T) *Network {
		n := buildNetwork(t, "a", "q", "c", "b")
		require.NoError(t, n.AddLine(Line{ID: "l1", Routes: []Route{
			testRoute("r1", "l1", "a", "c", "b"),
		}}))
		require.NoError(t, n.AddLine(Line{ID: "l2", Routes: []Route{
			testRoute("r2", "l2", "a", "q", "b"),
		}}))
		require.NoError(t, n.SetTravelTime("a", "c", 5))
		require.NoError(t, n.SetTravelTime("c", "b", 5))
		require.NoError(t, n.SetTravelTime("a", "q", 6))
		require.NoError(t, n.SetTravelTime("q", "b", 5))
		for i := 0; i < 40; i++ {
			require.NoError(t, n.RecordPassengerEvent(PassengerEvent{StationID: "c", Type: EventIn}))
		}
		return n
	}

	t.Run("quiet journey wins within the allowance", func(t *testing.T) {
		n := setup(t)
		route := n.PlanJourney("a", "b")
		require.Len(t, route.Steps, 2)
		assert.Equal(t, ID("q"), route.Steps[0].EndStationID)
		assert.Equal(t, uint(11), route.TotalTravelTime)
	})

	t.Run("fastest wins when the quiet journey costs too much", func(t *testing.T) {
		n := setup(t)
		// Push the quiet branch beyond 20% over the fastest.
		require.NoError(t, n.SetTravelTime("a", "q", 20))
		route := n.PlanJourney("a", "b")
		assert.Equal(t, uint(10), route.TotalTravelTime)
		assert.Equal(t, ID("c"), route.Steps[0].EndStationID)
	})

	t.Run("quietest never beats the fastest on time", func(t *testing.T) {
		n := setup(t)
		fastest := n.FastestTravelRoute("a", "b")
		quietest := n.QuietTravelRoute("a", "b")
		assert.LessOrEqual(t, fastest.TotalTravelTime, quietest.TotalTravelTime)
	})
}
