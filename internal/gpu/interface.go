package gpu

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/nvidiamon/internal/errors"
	"codeberg.org/mutker/nvidiamon/internal/logger"
)

// UnknownVersion is the sentinel for version strings that cannot be retrieved.
const UnknownVersion = "Unknown"

// DeviceReading holds one device's instantaneous metrics for a cycle.
// Temperatures are Celsius, power is watts, memory is MiB.
type DeviceReading struct {
	Index       int
	Name        string
	FanSpeed    float64
	PowerDraw   float64
	PowerLimit  float64
	MemoryTotal float64
	MemoryUsed  float64
	Utilization float64
	Temperature float64
	ComputeMode string
}

// Process is one compute process currently using a device.
type Process struct {
	GPUUUID    string  `json:"gpu_uuid"`
	PID        int     `json:"pid"`
	UsedMemory float64 `json:"used_memory"`
	Name       string  `json:"name"`
	GPUName    string  `json:"gpu_name"`
	GPUBusID   string  `json:"gpu_bus_id"`
}

// Info holds driver-level version strings, degraded to UnknownVersion
// when the information cannot be retrieved.
type Info struct {
	DriverVersion string `json:"driver_version"`
	CUDAVersion   string `json:"cuda_version"`
}

// Snapshot is the raw per-cycle sample of all devices and processes.
type Snapshot struct {
	Timestamp time.Time
	Devices   []DeviceReading
	Processes []Process
}

// Provider supplies raw samples. Implementations perform all hardware
// access; the aggregation core never does.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	Info(ctx context.Context) Info
	Close() error
}

// New selects a provider implementation: "nvml", "smi", or "auto"
// (NVML when it initializes, nvidia-smi otherwise).
func New(selection string) (Provider, error) {
	errFactory := errors.New()

	switch strings.ToLower(selection) {
	case "smi":
		return NewSMI(), nil
	case "nvml":
		return NewNVML()
	case "auto":
		provider, err := NewNVML()
		if err != nil {
			logger.Debug().Err(err).Msg("NVML unavailable, falling back to nvidia-smi")
			return NewSMI(), nil
		}
		return provider, nil
	default:
		return nil, errFactory.WithData(errors.ErrInvalidProvider, selection)
	}
}
