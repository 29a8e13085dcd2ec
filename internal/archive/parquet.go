package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"muni-pipeline/internal/store"
)

// record is the parquet schema for one archived observation. Optional
// columns are pointers so absence survives the round trip.
type record struct {
	ID              int64    `parquet:"id"`
	VehicleID       string   `parquet:"vehicle_id"`
	RouteID         *string  `parquet:"route_id,optional"`
	TripID          *string  `parquet:"trip_id,optional"`
	DirectionID     *int32   `parquet:"direction_id,optional"`
	Lat             *float64 `parquet:"lat,optional"`
	Lon             *float64 `parquet:"lon,optional"`
	Bearing         *float64 `parquet:"bearing,optional"`
	Speed           *float64 `parquet:"speed,optional"`
	StopID          *string  `parquet:"stop_id,optional"`
	StopSequence    *int32   `parquet:"current_stop_sequence,optional"`
	CurrentStatus   *int32   `parquet:"current_status,optional"`
	OccupancyStatus *int32   `parquet:"occupancy_status,optional"`
	Active          bool     `parquet:"active"`
	Timestamp       int64    `parquet:"timestamp,timestamp(millisecond)"`
}

// Encode serializes partition rows to a snappy-compressed parquet payload.
func Encode(rows []store.Row) ([]byte, error) {
	records := make([]record, len(rows))
	for i := range rows {
		records[i] = toRecord(&rows[i])
	}
	var buf bytes.Buffer
	if err := parquet.Write(&buf, records, parquet.Compression(&parquet.Snappy)); err != nil {
		return nil, fmt.Errorf("parquet encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads an archived payload back into rows. Timestamps come back in
// loc, matching what the hot store held at export time.
func Decode(data []byte, loc *time.Location) ([]store.Row, error) {
	records, err := parquet.Read[record](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parquet decode: %w", err)
	}
	rows := make([]store.Row, len(records))
	for i := range records {
		rows[i] = fromRecord(&records[i], loc)
	}
	return rows, nil
}

func toRecord(r *store.Row) record {
	return record{
		ID:              r.ID,
		VehicleID:       r.VehicleID,
		RouteID:         r.RouteID,
		TripID:          r.TripID,
		DirectionID:     toI32(r.DirectionID),
		Lat:             r.Lat,
		Lon:             r.Lon,
		Bearing:         r.Bearing,
		Speed:           r.Speed,
		StopID:          r.StopID,
		StopSequence:    toI32(r.StopSequence),
		CurrentStatus:   toI32(r.CurrentStatus),
		OccupancyStatus: toI32(r.OccupancyStatus),
		Active:          r.Active,
		Timestamp:       r.Timestamp.UnixMilli(),
	}
}

func fromRecord(rec *record, loc *time.Location) store.Row {
	row := store.Row{ID: rec.ID}
	row.VehicleID = rec.VehicleID
	row.RouteID = rec.RouteID
	row.TripID = rec.TripID
	row.DirectionID = fromI32(rec.DirectionID)
	row.Lat = rec.Lat
	row.Lon = rec.Lon
	row.Bearing = rec.Bearing
	row.Speed = rec.Speed
	row.StopID = rec.StopID
	row.StopSequence = fromI32(rec.StopSequence)
	row.CurrentStatus = fromI32(rec.CurrentStatus)
	row.OccupancyStatus = fromI32(rec.OccupancyStatus)
	row.Active = rec.Active
	row.Timestamp = time.UnixMilli(rec.Timestamp).In(loc)
	return row
}

func toI32(v *int) *int32 {
	if v == nil {
		return nil
	}
	i := int32(*v)
	return &i
}

func fromI32(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
