package mysmartbike

import "time"

// Bike is one e-bike from the account's object list. Battery readings
// come from the object tree and are absent on bikes that have never
// reported them.
type Bike struct {
	Serial            string     `json:"serial"`
	Brand             string     `json:"brand"`
	Model             string     `json:"model"`
	OdometryMeters    float64    `json:"odometry_meters"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	LastPosition      *time.Time `json:"last_position,omitempty"`
	StateOfCharge     *float64   `json:"state_of_charge,omitempty"`
	RemainingCapacity *float64   `json:"remaining_capacity,omitempty"`
}

// HasPosition reports whether the bike has ever sent a GPS fix.
func (b Bike) HasPosition() bool {
	return b.Latitude != nil && b.Longitude != nil
}
