package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// VehicleClass is a dispatch capacity tier
type VehicleClass string

const (
	TukTuk     VehicleClass = "Tuk Tuk"
	UMMJeep    VehicleClass = "UMM Jeep"
	PremiumVan VehicleClass = "Premium Van"
)

// Capacity returns the seat count of the class
func (c VehicleClass) Capacity() int {
	switch c {
	case TukTuk:
		return 2
	case UMMJeep:
		return 4
	case PremiumVan:
		return 6
	default:
		return 0
	}
}

// MaxGroupSize is the largest group a single pickup request may carry
const MaxGroupSize = 50

// ErrInvalidGroupSize indicates a group size below one
var ErrInvalidGroupSize = errors.New("group size must be at least 1")

// Assignment is one vehicle and the passengers it carries
type Assignment struct {
	Class      VehicleClass `json:"class"`
	Passengers int          `json:"passenger_count"`
}

// Line is Count vehicles of one class carrying Passengers each
type Line struct {
	Class      VehicleClass `json:"class"`
	Count      int          `json:"count"`
	Passengers int          `json:"passenger_count"`
}

// Allocation describes the vehicles needed for a group. Fleet holds at most a
// line of full vans and one remainder line.
type Allocation struct {
	GroupSize    int    `json:"group_size"`
	VehicleCount int    `json:"vehicle_count"`
	Fleet        []Line `json:"fleet"`
	Summary      string `json:"summary"`
}

// classFor returns the smallest class that seats n (n must be 1..6)
func classFor(n int) VehicleClass {
	switch {
	case n <= TukTuk.Capacity():
		return TukTuk
	case n <= UMMJeep.Capacity():
		return UMMJeep
	default:
		return PremiumVan
	}
}

// Allocate sizes a group into vehicles. Full vans take groups of six and
// any remainder rides in one extra vehicle of the smallest fitting class.
func Allocate(groupSize int) (Allocation, error) {
	if groupSize < 1 {
		return Allocation{}, ErrInvalidGroupSize
	}

	vans := groupSize / PremiumVan.Capacity()
	remainder := groupSize % PremiumVan.Capacity()

	a := Allocation{GroupSize: groupSize, VehicleCount: vans}
	if vans > 0 {
		a.Fleet = append(a.Fleet, Line{Class: PremiumVan, Count: vans, Passengers: PremiumVan.Capacity()})
	}
	if remainder > 0 {
		a.Fleet = append(a.Fleet, Line{Class: classFor(remainder), Count: 1, Passengers: remainder})
		a.VehicleCount++
	}
	a.Summary = summarize(a.Fleet)
	return a, nil
}

// Breakdown expands the fleet into one assignment per vehicle
func (a Allocation) Breakdown() []Assignment {
	out := make([]Assignment, 0, a.VehicleCount)
	for _, l := range a.Fleet {
		for i := 0; i < l.Count; i++ {
			out = append(out, Assignment{Class: l.Class, Passengers: l.Passengers})
		}
	}
	return out
}

// IsMultiVehicle reports whether the group needs coordinated vehicles
func (a Allocation) IsMultiVehicle() bool {
	return a.VehicleCount > 1
}

// Guidance is the customer-facing line shown while the group size is edited
func (a Allocation) Guidance() string {
	switch {
	case a.VehicleCount == 1:
		return fmt.Sprintf("We'll send a %s for your group of %d.", a.Fleet[0].Class, a.GroupSize)
	case a.VehicleCount == 2:
		return fmt.Sprintf("Your group of %d needs 2 vehicles that will arrive together: %s.", a.GroupSize, a.Summary)
	default:
		return fmt.Sprintf("Your group of %d needs %d coordinated vehicles: %s.", a.GroupSize, a.VehicleCount, a.Summary)
	}
}

// summarize renders the fleet as "2 x Premium Van (6) + 1 x Tuk Tuk (1)"
func summarize(fleet []Line) string {
	parts := make([]string, len(fleet))
	for i, l := range fleet {
		parts[i] = fmt.Sprintf("%d x %s (%d)", l.Count, l.Class, l.Passengers)
	}
	return strings.Join(parts, " + ")
}
