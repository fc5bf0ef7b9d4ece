// Package units provides shared constants and conversion for speed units.
//
// Estimates are produced in ground-sample-distance units per second; with
// the GSD expressed in kilometres per pixel that is km/s, the base unit here.
package units

import "strings"

// Unit constants
const (
	KMPS = "kmps"
	MPS  = "mps"
	KMPH = "kmph"
	KPH  = "kph"
	MPH  = "mph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KMPS, MPS, KMPH, KPH, MPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed from kilometres per second to the target units.
// Unknown units leave the value in km/s.
func ConvertSpeed(speedKMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedKMPS * 1000
	case KMPH, KPH:
		return speedKMPS * 3600
	case MPH:
		return speedKMPS * 2236.9362920544
	default:
		return speedKMPS
	}
}

// Label returns a short human-readable suffix for the unit.
func Label(unit string) string {
	switch unit {
	case MPS:
		return "m/s"
	case KMPH, KPH:
		return "km/h"
	case MPH:
		return "mph"
	default:
		return "km/s"
	}
}
