package feed

import (
	"fmt"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// Decoder turns raw GTFS-realtime bytes into normalized records, pinned to a
// single canonical zone so every downstream partition-key computation agrees.
type Decoder struct {
	loc *time.Location
}

func NewDecoder(loc *time.Location) *Decoder {
	if loc == nil {
		loc = time.UTC
	}
	return &Decoder{loc: loc}
}

// Decode parses one snapshot. Malformed or empty entities are counted and
// skipped; they never abort the rest of the batch. An empty snapshot decodes
// to zero records and is not an error.
func (d *Decoder) Decode(raw []byte) ([]VehiclePosition, int, error) {
	var msg gtfsrt.FeedMessage
	if err := proto.Unmarshal(raw, &msg); err != nil {
		return nil, 0, fmt.Errorf("decode feed message: %w", err)
	}

	headerTS := msg.GetHeader().GetTimestamp()

	var records []VehiclePosition
	skipped := 0
	for _, entity := range msg.GetEntity() {
		rec, ok := d.decodeEntity(entity, headerTS)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func (d *Decoder) decodeEntity(entity *gtfsrt.FeedEntity, headerTS uint64) (VehiclePosition, bool) {
	v := entity.GetVehicle()
	if v == nil {
		return VehiclePosition{}, false
	}
	vehicleID := v.GetVehicle().GetId()
	if vehicleID == "" {
		return VehiclePosition{}, false
	}

	// A vehicle reporting neither a position nor a trip carries no signal.
	if v.Position == nil && v.Trip == nil {
		return VehiclePosition{}, false
	}

	// Vehicle timestamps are epoch seconds; some entities leave them unset,
	// in which case the snapshot header timestamp stands in.
	ts := v.GetTimestamp()
	if ts == 0 {
		ts = headerTS
	}
	if ts == 0 {
		return VehiclePosition{}, false
	}

	rec := VehiclePosition{
		VehicleID: vehicleID,
		Timestamp: time.Unix(int64(ts), 0).In(d.loc),
	}

	if trip := v.Trip; trip != nil {
		if trip.TripId != nil {
			rec.TripID = strPtr(trip.GetTripId())
		}
		if trip.RouteId != nil {
			rec.RouteID = strPtr(trip.GetRouteId())
		}
		if trip.DirectionId != nil {
			rec.DirectionID = intPtr(int(trip.GetDirectionId()))
		}
	}
	rec.Active = rec.TripID != nil

	if pos := v.Position; pos != nil {
		rec.Lat = f64Ptr(float64(pos.GetLatitude()))
		rec.Lon = f64Ptr(float64(pos.GetLongitude()))
		if pos.Bearing != nil {
			rec.Bearing = f64Ptr(float64(pos.GetBearing()))
		}
		if pos.Speed != nil {
			rec.Speed = f64Ptr(float64(pos.GetSpeed()))
		}
	}

	if v.StopId != nil {
		rec.StopID = strPtr(v.GetStopId())
	}
	if v.CurrentStopSequence != nil {
		rec.StopSequence = intPtr(int(v.GetCurrentStopSequence()))
	}
	if v.CurrentStatus != nil {
		rec.CurrentStatus = intPtr(int(v.GetCurrentStatus()))
	}
	if v.OccupancyStatus != nil {
		rec.OccupancyStatus = intPtr(int(v.GetOccupancyStatus()))
	}

	return rec, true
}

func strPtr(s string) *string   { return &s }
func intPtr(i int) *int         { return &i }
func f64Ptr(f float64) *float64 { return &f }
