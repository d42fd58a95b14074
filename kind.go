package geostream

type (
	// Kind identifies the producer family a request belongs to.
	// Request ids are unique within a kind only.
	Kind string
)

const (
	// KindGPS device location updates.
	KindGPS Kind = "gps"
	// KindIP location approximated from the public IP address.
	KindIP Kind = "ip"
	// KindGeocoder forward or reverse geocoding.
	KindGeocoder Kind = "geocoder"
	// KindAutocomplete address autocomplete.
	KindAutocomplete Kind = "autocomplete"
	// KindGeofence region enter and exit events.
	KindGeofence Kind = "geofence"
	// KindBeacon beacon sightings.
	KindBeacon Kind = "beacon"
)

func (k Kind) String() string {
	return string(k)
}
