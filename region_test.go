package geostream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeofenceTransitions(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	request := NewGeofenceRequest(GeofenceRegion{ID: "office", Center: testOrigin, Radius: 200})
	require.NoError(t, pool.Add(request))

	assert.Equal(t, UUID("office"), request.ID())
	assert.True(t, request.EvictionPolicy().Contains(OnError()))

	recorded := newRecorder[GeofenceEvent]()
	request.Then(nil, recorded.record)

	now := time.Now()
	pool.DispatchLocations(newTestLocation(testFar, 10, now))
	pool.DispatchLocations(newTestLocation(testNearby, 10, now.Add(time.Second)))
	pool.DispatchLocations(newTestLocation(testOrigin, 10, now.Add(2*time.Second)))
	pool.DispatchLocations(newTestLocation(testFar, 10, now.Add(3*time.Second)))

	results := recorded.snapshot()
	require.Len(t, results, 2)
	assert.Equal(t, TransitionEnter, results[0].Value.Transition)
	assert.Equal(t, TransitionExit, results[1].Value.Transition)
	assert.Equal(t, "office", results[1].Value.Region.ID)
}

func TestGeofenceFirstObservationInside(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	request := NewGeofenceRequest(GeofenceRegion{Center: testOrigin, Radius: 200, NotifyOnExit: true})
	require.NoError(t, pool.Add(request))

	assert.NotEmpty(t, request.Region().ID)
	assert.Equal(t, CustomRejection, request.Observe(newTestLocation(testOrigin, 10, time.Now())), "Entry notifications are off.")
	assert.Equal(t, NotDiscarded, request.Observe(newTestLocation(testFar, 10, time.Now())))
	assert.Equal(t, InternalEvaluation, request.Observe(newTestLocation(testFar, 10, time.Now())))
}

func TestGeofenceRouting(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	office := NewGeofenceRequest(GeofenceRegion{ID: "office", Center: testOrigin, Radius: 200})
	home := NewGeofenceRequest(GeofenceRegion{ID: "home", Center: testFar, Radius: 200})
	require.NoError(t, pool.Add(office))
	require.NoError(t, pool.Add(home))
	assert.Error(t, pool.Add(NewGeofenceRequest(GeofenceRegion{ID: "home", Center: testFar, Radius: 10})), "One request per region.")

	event := GeofenceEvent{Region: home.Region(), Transition: TransitionEnter}
	assert.Equal(t, 1, pool.Dispatch(KindGeofence, NewEvent(event, ForRegion("home"))))
	assert.Equal(t, 0, pool.Dispatch(KindGeofence, NewEvent(event)), "Untagged values reach nobody.")

	monitoringFailure := errors.New("monitoring failed")
	assert.Equal(t, 2, pool.Dispatch(KindGeofence, NewErrorEvent(monitoringFailure)), "Untagged errors reach every region.")
	assert.Equal(t, 0, pool.Length(), "Region requests are evicted on error.")
}

func TestBeaconRouting(t *testing.T) {
	t.Parallel()

	major := uint16(1)
	pool := newTestPool()
	request := NewBeaconRequest(BeaconRegion{UUID: "e2c56db5-dffb-48d2-b060-d0f5a71096e0", Major: &major})
	require.NoError(t, pool.Add(request))

	recorded := newRecorder[Beacon]()
	request.Then(nil, recorded.record)

	testCases := []struct {
		id       string
		event    Event
		expected int
	}{
		{"Should accept a matching beacon.", NewEvent(Beacon{UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0", Major: 1, Minor: 7}), 1},
		{"Should reject another major.", NewEvent(Beacon{UUID: "e2c56db5-dffb-48d2-b060-d0f5a71096e0", Major: 2}), 0},
		{"Should reject another UUID.", NewEvent(Beacon{UUID: "f7826da6-4fa2-4e98-8024-bc5b71e0893e", Major: 1}), 0},
		{"Should reject errors of another UUID.", NewErrorEvent(errors.New("x"), ForRegion("f7826da6-4fa2-4e98-8024-bc5b71e0893e")), 0},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, pool.Dispatch(KindBeacon, testCase.event), testCase.id)
	}

	results := recorded.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, uint16(7), results[0].Value.Minor)
	assert.Equal(t, "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0 major=1", request.Region().String())
}
