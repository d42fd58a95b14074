package geostream

import (
	"fmt"
	"strings"
	"sync"
)

type (
	// GeofenceRegion is a circular region around a center.
	GeofenceRegion struct {
		ID            string
		Center        Coordinate
		Radius        float64
		NotifyOnEntry bool
		NotifyOnExit  bool
	}

	// Transition is a geofence boundary crossing.
	Transition uint8

	// GeofenceEvent reports a boundary crossing of a monitored region.
	GeofenceEvent struct {
		Region     GeofenceRegion
		Transition Transition
		Location   Location
	}

	// GeofenceRequest monitors one region.
	// Its id is the region id, so at most one request per region lives in a pool.
	GeofenceRequest struct {
		*Request[GeofenceEvent]
		region GeofenceRegion

		mux    sync.Mutex
		inside *bool
	}

	// BeaconRegion selects beacons by proximity UUID and optionally major and minor.
	BeaconRegion struct {
		UUID  string
		Major *uint16
		Minor *uint16
	}

	// Proximity is the estimated distance class of a beacon.
	Proximity uint8

	// Beacon is a beacon sighting.
	Beacon struct {
		UUID      string
		Major     uint16
		Minor     uint16
		Proximity Proximity
		RSSI      int
		Accuracy  float64
	}

	// BeaconRequest monitors one beacon region.
	BeaconRequest struct {
		*Request[Beacon]
		region BeaconRegion
	}
)

const (
	// TransitionEnter the device entered the region.
	TransitionEnter Transition = iota + 1
	// TransitionExit the device left the region.
	TransitionExit
)

const (
	// ProximityUnknown no estimate.
	ProximityUnknown Proximity = iota
	// ProximityImmediate a few centimeters.
	ProximityImmediate
	// ProximityNear a few meters.
	ProximityNear
	// ProximityFar more than a few meters.
	ProximityFar
)

func (t Transition) String() string {
	switch t {
	case TransitionEnter:
		return "enter"
	case TransitionExit:
		return "exit"
	}

	return "unknown"
}

func (p Proximity) String() string {
	switch p {
	case ProximityImmediate:
		return "immediate"
	case ProximityNear:
		return "near"
	case ProximityFar:
		return "far"
	}

	return "unknown"
}

// Contains reports whether the coordinate lies within the region.
func (g GeofenceRegion) Contains(coordinate Coordinate) bool {
	return g.Center.DistanceTo(coordinate) <= g.Radius
}

func (g GeofenceRegion) String() string {
	return fmt.Sprintf("%s(%s r=%.0fm)", g.ID, g.Center, g.Radius)
}

func (e GeofenceEvent) String() string {
	return fmt.Sprintf("%s %s", e.Transition, e.Region.ID)
}

// Matches reports whether the beacon belongs to the region.
func (b BeaconRegion) Matches(beacon Beacon) bool {
	if !strings.EqualFold(b.UUID, beacon.UUID) {
		return false
	}

	if b.Major != nil && *b.Major != beacon.Major {
		return false
	}

	return b.Minor == nil || *b.Minor == beacon.Minor
}

func (b BeaconRegion) String() string {
	s := strings.ToUpper(b.UUID)
	if b.Major != nil {
		s += fmt.Sprintf(" major=%d", *b.Major)
	}
	if b.Minor != nil {
		s += fmt.Sprintf(" minor=%d", *b.Minor)
	}

	return s
}

func (b Beacon) String() string {
	return fmt.Sprintf("%s %d/%d %s", strings.ToUpper(b.UUID), b.Major, b.Minor, b.Proximity)
}

// NewGeofenceRequest creates a request monitoring region. The default eviction policy is onError.
// Without entry and exit notification flags both transitions are reported.
func NewGeofenceRequest(region GeofenceRegion, options ...RequestOption[GeofenceEvent]) *GeofenceRequest {
	if region.ID == "" {
		region.ID = string(NewUUID())
	}
	if !region.NotifyOnEntry && !region.NotifyOnExit {
		region.NotifyOnEntry, region.NotifyOnExit = true, true
	}

	gr := &GeofenceRequest{region: region}

	defaults := []RequestOption[GeofenceEvent]{
		WithEvictionPolicy[GeofenceEvent](OnError()),
	}
	gr.Request = NewRequest[GeofenceEvent](KindGeofence, append(append(defaults, options...), WithID[GeofenceEvent](UUID(region.ID)))...)

	return gr
}

// Region returns the monitored region.
func (gr *GeofenceRequest) Region() GeofenceRegion {
	return gr.region
}

// Accepts events tagged with the region, and untagged producer errors.
func (gr *GeofenceRequest) Accepts(event Event) bool {
	if event.Region() == "" {
		return event.Err() != nil
	}

	return event.Region() == gr.region.ID
}

// Observe feeds a location and delivers an event when it crosses the region boundary.
// The first observation inside the region counts as an entry.
func (gr *GeofenceRequest) Observe(location Location) DiscardReason {
	inside := gr.region.Contains(location.Coordinate)

	gr.mux.Lock()
	previous := gr.inside
	gr.inside = &inside
	gr.mux.Unlock()

	var transition Transition
	switch {
	case previous == nil && inside, previous != nil && !*previous && inside:
		transition = TransitionEnter
	case previous != nil && *previous && !inside:
		transition = TransitionExit
	default:
		return InternalEvaluation
	}

	if (transition == TransitionEnter && !gr.region.NotifyOnEntry) || (transition == TransitionExit && !gr.region.NotifyOnExit) {
		return CustomRejection
	}

	return gr.ReceiveData(Success(GeofenceEvent{
		Region:     gr.region,
		Transition: transition,
		Location:   location,
	}))
}

// NewBeaconRequest creates a request monitoring a beacon region. The default eviction policy is onError.
func NewBeaconRequest(region BeaconRegion, options ...RequestOption[Beacon]) *BeaconRequest {
	defaults := []RequestOption[Beacon]{
		WithEvictionPolicy[Beacon](OnError()),
	}

	return &BeaconRequest{
		Request: NewRequest[Beacon](KindBeacon, append(defaults, options...)...),
		region:  region,
	}
}

// Region returns the monitored beacon region.
func (br *BeaconRequest) Region() BeaconRegion {
	return br.region
}

// Accepts sightings matching the region, errors tagged with its UUID, and untagged errors.
func (br *BeaconRequest) Accepts(event Event) bool {
	if event.Err() != nil {
		return event.Region() == "" || strings.EqualFold(event.Region(), br.region.UUID)
	}

	beacon, ok := event.Payload().(Beacon)

	return ok && br.region.Matches(beacon)
}
