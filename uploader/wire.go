package uploader

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"drive_collector/logger"
	"drive_collector/models"

	"github.com/go-playground/validator/v10"
)

// Payload is the request body of one upload
type Payload struct {
	Platform string       `json:"platform"`
	Data     []WireRecord `json:"data"`
}

// WireRecord is one sample as the training service expects it
type WireRecord struct {
	Timestamp float64 `json:"timestamp" validate:"finite,gt=0"`
	AccX      float64 `json:"acc_x" validate:"finite"`
	AccY      float64 `json:"acc_y" validate:"finite"`
	AccZ      float64 `json:"acc_z" validate:"finite"`
	GyroX     float64 `json:"gyro_x" validate:"finite"`
	GyroY     float64 `json:"gyro_y" validate:"finite"`
	GyroZ     float64 `json:"gyro_z" validate:"finite"`
	Pitch     float64 `json:"pitch" validate:"finite"`
	Roll      float64 `json:"roll" validate:"finite"`
	GravityX  float64 `json:"gravity_x" validate:"finite"`
	GravityY  float64 `json:"gravity_y" validate:"finite"`
	GravityZ  float64 `json:"gravity_z" validate:"finite"`
	Label     string  `json:"label" validate:"required,label"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		})
		_ = validate.RegisterValidation("label", func(fl validator.FieldLevel) bool {
			return models.Label(fl.Field().String()).Valid()
		})
	})
	return validate
}

// NewWireRecord maps a stored record onto the wire schema
func NewWireRecord(rec models.SampleRecord) WireRecord {
	return WireRecord{
		Timestamp: rec.Timestamp,
		AccX:      rec.Acceleration.X,
		AccY:      rec.Acceleration.Y,
		AccZ:      rec.Acceleration.Z,
		GyroX:     rec.Rotation.X,
		GyroY:     rec.Rotation.Y,
		GyroZ:     rec.Rotation.Z,
		Pitch:     rec.Pitch,
		Roll:      rec.Roll,
		GravityX:  rec.Gravity.X,
		GravityY:  rec.Gravity.Y,
		GravityZ:  rec.Gravity.Z,
		Label:     string(rec.Label),
	}
}

// Validate reports every field that cannot be sent
func (w WireRecord) Validate() error {
	err := getValidator().Struct(w)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fmt.Sprintf("%s failed %s (value=%v)", fe.Field(), fe.Tag(), fe.Value())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Transform converts records to wire form. Records that cannot be represented
// are dropped and logged; the number dropped is returned alongside the batch.
func Transform(records []models.SampleRecord) ([]WireRecord, int) {
	out := make([]WireRecord, 0, len(records))
	dropped := 0
	for _, rec := range records {
		if len(rec.Missing) > 0 {
			dropped++
			logger.Warnf("upload: dropping record id=%d: missing %s", rec.ID, strings.Join(rec.Missing, ", "))
			continue
		}
		w := NewWireRecord(rec)
		if err := w.Validate(); err != nil {
			dropped++
			logger.Warnf("upload: dropping record id=%d: %v", rec.ID, err)
			continue
		}
		out = append(out, w)
	}
	return out, dropped
}
