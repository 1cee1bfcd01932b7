package store

import (
	"math"

	"drive_collector/models"
)

// sampleRow reads sensor_data with every value column nullable, so a NULL
// left by an older schema or another writer is seen instead of becoming 0.
type sampleRow struct {
	ID        uint64   `gorm:"column:id"`
	Timestamp *float64 `gorm:"column:timestamp"`
	AccX      *float64 `gorm:"column:acc_x"`
	AccY      *float64 `gorm:"column:acc_y"`
	AccZ      *float64 `gorm:"column:acc_z"`
	GyroX     *float64 `gorm:"column:gyro_x"`
	GyroY     *float64 `gorm:"column:gyro_y"`
	GyroZ     *float64 `gorm:"column:gyro_z"`
	Pitch     *float64 `gorm:"column:pitch"`
	Roll      *float64 `gorm:"column:roll"`
	GravityX  *float64 `gorm:"column:gravity_x"`
	GravityY  *float64 `gorm:"column:gravity_y"`
	GravityZ  *float64 `gorm:"column:gravity_z"`
	Label     *string  `gorm:"column:label"`
}

func (sampleRow) TableName() string {
	return models.SampleRecord{}.TableName()
}

// record converts the row, listing NULL columns in Missing and setting them to NaN
func (r sampleRow) record() models.SampleRecord {
	var missing []string
	val := func(col string, p *float64) float64 {
		if p == nil {
			missing = append(missing, col)
			return math.NaN()
		}
		return *p
	}

	rec := models.SampleRecord{
		ID:        r.ID,
		Timestamp: val("timestamp", r.Timestamp),
		Acceleration: models.Vector3{
			X: val("acc_x", r.AccX), Y: val("acc_y", r.AccY), Z: val("acc_z", r.AccZ),
		},
		Rotation: models.Vector3{
			X: val("gyro_x", r.GyroX), Y: val("gyro_y", r.GyroY), Z: val("gyro_z", r.GyroZ),
		},
		Pitch: val("pitch", r.Pitch),
		Roll:  val("roll", r.Roll),
		Gravity: models.Vector3{
			X: val("gravity_x", r.GravityX), Y: val("gravity_y", r.GravityY), Z: val("gravity_z", r.GravityZ),
		},
	}
	if r.Label == nil {
		missing = append(missing, "label")
	} else {
		rec.Label = models.Label(*r.Label)
	}
	rec.Missing = missing
	return rec
}
