package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/nvidiamon/internal/monitor"
)

// Recorder is the domain-facing interface. A disabled configuration
// yields a no-op implementation so callers never branch on the setting.
type Recorder interface {
	Record(ctx context.Context, at time.Time, report monitor.Report) error
	Close() error
}

// Repository persists flattened per-device readings.
type Repository interface {
	Record(readings []Reading) error
	Close() error
}

// Reading is one device's row for one cycle.
type Reading struct {
	Timestamp       time.Time
	DeviceIndex     int
	Temperature     float64
	PeakTemperature float64
	TempChangeRate  float64
	FanSpeed        float64
	PowerDraw       float64
	Utilization     float64
	MemoryUsed      float64
	BurnRunning     bool
	BurnErrors      int
}

// flatten turns a cycle report into one reading per device. Failed
// reports flatten to nothing.
func flatten(report monitor.Report, at time.Time) []Reading {
	if !report.Success {
		return nil
	}

	burnRunning := false
	burnErrors := 0
	if report.BurnMetrics != nil {
		burnRunning = report.BurnMetrics.Running
		burnErrors = report.BurnMetrics.Errors
	}

	readings := make([]Reading, 0, len(report.GPUs))
	for _, device := range report.GPUs {
		readings = append(readings, Reading{
			Timestamp:       at,
			DeviceIndex:     device.Index,
			Temperature:     device.Temperature,
			PeakTemperature: device.PeakTemperature,
			TempChangeRate:  device.TempChangeRate,
			FanSpeed:        device.FanSpeed,
			PowerDraw:       device.PowerDraw,
			Utilization:     device.Utilization,
			MemoryUsed:      device.MemoryUsed,
			BurnRunning:     burnRunning,
			BurnErrors:      burnErrors,
		})
	}

	return readings
}
