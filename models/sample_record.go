package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Vector3 is a three-axis sensor value
type Vector3 struct {
	X float64 `gorm:"not null" json:"x"`
	Y float64 `gorm:"not null" json:"y"`
	Z float64 `gorm:"not null" json:"z"`
}

// Finite reports whether no component is NaN or infinite
func (v Vector3) Finite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SampleRecord is one fused sensor observation.
// ID is assigned by the store on insert and is zero before that.
type SampleRecord struct {
	ID           uint64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Timestamp    float64 `gorm:"column:timestamp;not null" json:"timestamp"`
	Acceleration Vector3 `gorm:"embedded;embeddedPrefix:acc_" json:"acceleration"`
	Rotation     Vector3 `gorm:"embedded;embeddedPrefix:gyro_" json:"rotation"`
	Pitch        float64 `gorm:"column:pitch;not null" json:"pitch"`
	Roll         float64 `gorm:"column:roll;not null" json:"roll"`
	Gravity      Vector3 `gorm:"embedded;embeddedPrefix:gravity_" json:"gravity"`
	Label        Label   `gorm:"column:label;not null;size:32" json:"label"`

	// Missing names the columns that were NULL when the record was read back.
	// Such a record is never sent; its missing values are NaN, not zero.
	Missing []string `gorm:"-" json:"-"`
}

// TableName customizes the table name
func (SampleRecord) TableName() string {
	return "sensor_data"
}

// Time returns the capture time
func (r SampleRecord) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Validate checks that every field is present and finite
func (r SampleRecord) Validate() error {
	switch {
	case len(r.Missing) > 0:
		return fmt.Errorf("missing %s", strings.Join(r.Missing, ", "))
	case !finite(r.Timestamp) || r.Timestamp <= 0:
		return fmt.Errorf("invalid timestamp %v", r.Timestamp)
	case !r.Acceleration.Finite():
		return fmt.Errorf("non-finite acceleration %+v", r.Acceleration)
	case !r.Rotation.Finite():
		return fmt.Errorf("non-finite rotation %+v", r.Rotation)
	case !finite(r.Pitch) || !finite(r.Roll):
		return fmt.Errorf("non-finite attitude pitch=%v roll=%v", r.Pitch, r.Roll)
	case !r.Gravity.Finite():
		return fmt.Errorf("non-finite gravity %+v", r.Gravity)
	case !r.Label.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownLabel, string(r.Label))
	}
	return nil
}

// UnixSeconds converts a time to the floating point epoch seconds stored in Timestamp
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&SampleRecord{},
	}
}
