package models

import (
	"fmt"
	"math"
)

// ValidationError means the fix is malformed and must be rejected, not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sample: %s %s", e.Field, e.Reason)
}

// ValidateFix checks the canonical coordinate ranges. Optional readings are not
// validated: the source reports them as-is and consumers treat them as hints.
func ValidateFix(f Fix) error {
	if math.IsNaN(f.Latitude) || math.IsInf(f.Latitude, 0) {
		return &ValidationError{Field: "latitude", Reason: "is not finite"}
	}
	if math.IsNaN(f.Longitude) || math.IsInf(f.Longitude, 0) {
		return &ValidationError{Field: "longitude", Reason: "is not finite"}
	}
	if f.Latitude < -90 || f.Latitude > 90 {
		return &ValidationError{Field: "latitude", Reason: "out of range [-90, 90]"}
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return &ValidationError{Field: "longitude", Reason: "out of range [-180, 180]"}
	}
	return nil
}
