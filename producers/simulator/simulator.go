// Package simulator replays a recorded GPS track into a pool, standing in for a location sensor.
package simulator

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/ahmedkamals/geostream"
	"github.com/ahmedkamals/geostream/internal/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type (
	// Point is a track sample.
	Point struct {
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
		Accuracy  float64 `yaml:"accuracy"`
		Altitude  float64 `yaml:"altitude"`
		Speed     float64 `yaml:"speed"`
	}

	// Track is a sequence of samples emitted every Interval.
	Track struct {
		Name     string        `yaml:"name"`
		Interval time.Duration `yaml:"interval"`
		Loop     bool          `yaml:"loop"`
		Points   []Point       `yaml:"points"`
	}

	// Simulator feeds a track to a pool.
	Simulator struct {
		pool   *geostream.Pool
		track  Track
		logger *zap.Logger
		now    func() time.Time
	}
)

// LoadTrack reads a YAML track file.
func LoadTrack(path string) (Track, error) {
	const op errors.Operation = "simulator.LoadTrack"

	file, err := os.Open(path)
	if err != nil {
		return Track{}, errors.E(op, errors.NotFound, err)
	}
	defer file.Close()

	return DecodeTrack(file)
}

// DecodeTrack reads a YAML track and validates it.
func DecodeTrack(r io.Reader) (Track, error) {
	const op errors.Operation = "simulator.DecodeTrack"

	var track Track
	if err := yaml.NewDecoder(r).Decode(&track); err != nil {
		return Track{}, errors.E(op, errors.Parsing, err)
	}

	if len(track.Points) == 0 {
		return Track{}, errors.E(op, errors.MinLength, "track has no points")
	}

	if track.Interval <= 0 {
		track.Interval = time.Second
	}

	for index, point := range track.Points {
		coordinate := geostream.Coordinate{Latitude: point.Latitude, Longitude: point.Longitude}
		if !coordinate.IsValid() {
			return Track{}, errors.E(op, errors.Invalid, errors.Errorf("point %d: %s", index, coordinate))
		}
	}

	return track, nil
}

// New creates a Simulator.
func New(pool *geostream.Pool, track Track, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Simulator{
		pool:   pool,
		track:  track,
		logger: logger.With(zap.String("track", track.Name)),
		now:    time.Now,
	}
}

// Run emits one point per interval until the track ends or ctx is done.
// It returns the number of emitted points.
func (s *Simulator) Run(ctx context.Context) (int, error) {
	ticker := time.NewTicker(s.track.Interval)
	defer ticker.Stop()

	emitted := 0
	for {
		if !s.track.Loop && emitted == len(s.track.Points) {
			return emitted, nil
		}

		select {
		case <-ctx.Done():
			return emitted, ctx.Err()
		case <-ticker.C:
			location := s.location(s.track.Points[emitted%len(s.track.Points)])
			accepted := s.pool.DispatchLocations(location)
			s.logger.Debug("location emitted", zap.Stringer("location", location), zap.Int("accepted", accepted))
			emitted++
		}
	}
}

func (s *Simulator) location(point Point) geostream.Location {
	return geostream.Location{
		Coordinate: geostream.Coordinate{
			Latitude:  point.Latitude,
			Longitude: point.Longitude,
		},
		HorizontalAccuracy: point.Accuracy,
		Altitude:           point.Altitude,
		Speed:              point.Speed,
		Timestamp:          s.now(),
	}
}
