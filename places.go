package geostream

import (
	"fmt"
	"math"
	"time"
)

type (
	// Coordinate is a WGS84 position in degrees.
	Coordinate struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}

	// Location is a device position sample.
	Location struct {
		Coordinate
		// HorizontalAccuracy is the radius of uncertainty in meters; negative means invalid.
		HorizontalAccuracy float64   `json:"horizontal_accuracy"`
		Altitude           float64   `json:"altitude"`
		Speed              float64   `json:"speed"`
		Timestamp          time.Time `json:"timestamp"`
	}

	// IPLocation is the approximate location of a public IP address.
	IPLocation struct {
		IP          string
		Coordinate  Coordinate
		City        string
		Region      string
		RegionCode  string
		Country     string
		CountryCode string
		PostalCode  string
		TimeZone    string
		ISP         string
	}

	// Place is a geocoding or autocomplete match.
	Place struct {
		ID          string
		Name        string
		Address     string
		Coordinate  Coordinate
		City        string
		State       string
		Country     string
		CountryCode string
		PostalCode  string
		Kind        string
	}
)

const earthRadius = 6371008.8

// DistanceTo returns the great circle distance in meters.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	lat1, lat2 := radians(c.Latitude), radians(other.Latitude)
	dLat := lat2 - lat1
	dLon := radians(other.Longitude - c.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// IsValid reports whether the coordinate is within the WGS84 bounds.
func (c Coordinate) IsValid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

func (l Location) String() string {
	return fmt.Sprintf("%s ±%.0fm @%s", l.Coordinate, l.HorizontalAccuracy, l.Timestamp.Format(time.RFC3339))
}

func (l IPLocation) String() string {
	return fmt.Sprintf("%s: %s, %s (%s)", l.IP, l.City, l.Country, l.Coordinate)
}

func (p Place) String() string {
	if p.Address != "" {
		return fmt.Sprintf("%s (%s)", p.Address, p.Coordinate)
	}

	return fmt.Sprintf("%s (%s)", p.Name, p.Coordinate)
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
