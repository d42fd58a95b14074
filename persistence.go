package geostream

import (
	"encoding/gob"
	"io"

	"github.com/ahmedkamals/geostream/internal/errors"
	"go.uber.org/zap"
)

type (
	// geofenceRecord is the persisted form of a geofence request.
	geofenceRecord struct {
		Name     string
		Enabled  bool
		Region   GeofenceRegion
		Policies []policyRecord
	}

	policyRecord struct {
		Kind  uint8
		Count int
	}

	// GeofenceFilter selects the restored regions to monitor again.
	GeofenceFilter func(GeofenceRegion) bool
)

// SaveGeofences writes the monitored geofences to w.
func (p *Pool) SaveGeofences(w io.Writer) error {
	const op errors.Operation = "Pool.SaveGeofences"

	records := make([]geofenceRecord, 0)
	for _, entry := range p.Requests(KindGeofence) {
		geofence, ok := entry.(*GeofenceRequest)
		if !ok {
			continue
		}
		records = append(records, newGeofenceRecord(geofence))
	}

	if err := gob.NewEncoder(w).Encode(records); err != nil {
		return errors.E(op, errors.Failure, err)
	}

	p.logger.Debug("geofences saved", zap.Int("count", len(records)))

	return nil
}

// RestoreGeofences reads geofences written by SaveGeofences and adds those accepted by filter.
// A nil filter accepts every region. Regions already monitored are skipped.
func (p *Pool) RestoreGeofences(r io.Reader, filter GeofenceFilter) ([]*GeofenceRequest, error) {
	const op errors.Operation = "Pool.RestoreGeofences"

	var records []geofenceRecord
	if err := gob.NewDecoder(r).Decode(&records); err != nil {
		return nil, errors.E(op, errors.Parsing, err)
	}

	restored := make([]*GeofenceRequest, 0, len(records))
	for _, record := range records {
		if filter != nil && !filter(record.Region) {
			continue
		}

		request := record.request()
		if err := p.Add(request); err != nil {
			if errors.Is(errors.Exist, err) {
				continue
			}

			return restored, errors.E(op, err)
		}
		restored = append(restored, request)
	}

	p.logger.Debug("geofences restored", zap.Int("count", len(restored)), zap.Int("saved", len(records)))

	return restored, nil
}

func newGeofenceRecord(request *GeofenceRequest) geofenceRecord {
	policies := request.EvictionPolicy().Policies()
	records := make([]policyRecord, len(policies))
	for index, policy := range policies {
		records[index] = policyRecord{Kind: uint8(policy.kind), Count: policy.count}
	}

	return geofenceRecord{
		Name:     request.Name(),
		Enabled:  request.IsEnabled(),
		Region:   request.Region(),
		Policies: records,
	}
}

func (gr geofenceRecord) request() *GeofenceRequest {
	policies := make([]EvictionPolicy, len(gr.Policies))
	for index, record := range gr.Policies {
		policies[index] = EvictionPolicy{kind: evictionKind(record.Kind), count: record.Count}
	}

	request := NewGeofenceRequest(gr.Region,
		WithName[GeofenceEvent](gr.Name),
		WithEvictionPolicy[GeofenceEvent](policies...),
	)
	request.SetEnabled(gr.Enabled)

	return request
}
