package feed

import "time"

// VehiclePosition is one normalized fleet-vehicle observation. Optional
// fields are pointers: the feed distinguishes "not reported" from zero, and
// so do we (a vehicle with no position must not look parked at 0,0).
type VehiclePosition struct {
	VehicleID   string
	RouteID     *string
	TripID      *string
	DirectionID *int

	Timestamp time.Time // normalized to the canonical zone

	Lat     *float64
	Lon     *float64
	Bearing *float64
	Speed   *float64 // m/s as reported by the feed

	StopID          *string
	StopSequence    *int
	CurrentStatus   *int
	OccupancyStatus *int

	Active bool // derived: a trip is associated
}

// HasPosition reports whether the observation carries coordinates.
func (v *VehiclePosition) HasPosition() bool {
	return v.Lat != nil && v.Lon != nil
}
