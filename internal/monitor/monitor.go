package monitor

import (
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/nvidiamon/internal/gpu"
)

// DeviceReport is one device's latest reading augmented with the
// derived peak and rate statistics.
type DeviceReport struct {
	Index           int     `json:"index"`
	Name            string  `json:"name"`
	FanSpeed        float64 `json:"fan_speed"`
	PowerDraw       float64 `json:"power_draw"`
	PowerLimit      float64 `json:"power_limit"`
	MemoryTotal     float64 `json:"memory_total"`
	MemoryUsed      float64 `json:"memory_used"`
	Utilization     float64 `json:"gpu_utilization"`
	Temperature     float64 `json:"temperature"`
	PeakTemperature float64 `json:"peak_temperature"`
	TempChangeRate  float64 `json:"temp_change_rate"`
	ComputeMode     string  `json:"compute_mode"`
}

// Report is the consolidated snapshot assembled once per cycle. It is
// never mutated after assembly. A failed cycle carries only the error:
// consumers must not see partially populated device data.
//
// The gpus and processes keys are always present on success, even when
// empty; consumers distinguish "no devices" from "collection failed"
// by an explicit empty list versus success=false.
type Report struct {
	GPUs        []DeviceReport `json:"gpus"`
	NvidiaInfo  *gpu.Info      `json:"nvidia_info,omitempty"`
	Processes   []gpu.Process  `json:"processes"`
	BurnMetrics *BurnStatus    `json:"gpu_burn_metrics,omitempty"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
}

// Config carries the aggregation tunables validated at the boundary.
type Config struct {
	HistorySize    int
	RateWindow     time.Duration
	BurnMarkers    []string
	ProcessFilters []string
}

// Monitor owns the whole aggregation state: per-device temperature
// history and the workload lifecycle detector. Every operation takes
// the single mutex, so a report is never observable mid-update even
// when the HTTP surface reads while the sampling loop writes.
type Monitor struct {
	mu       sync.Mutex
	tracker  *Tracker
	detector *Detector
	filters  []string
	last     Report
}

func New(cfg Config) *Monitor {
	filters := make([]string, 0, len(cfg.ProcessFilters))
	for _, filter := range cfg.ProcessFilters {
		filters = append(filters, strings.ToLower(filter))
	}

	return &Monitor{
		tracker:  NewTracker(cfg.HistorySize, cfg.RateWindow),
		detector: NewDetector(cfg.BurnMarkers),
		filters:  filters,
		last:     Report{Success: false, Error: "no sample collected yet"},
	}
}

// Observe folds one raw snapshot into the aggregation state and
// assembles the cycle report.
func (m *Monitor) Observe(snapshot *gpu.Snapshot, info gpu.Info) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]DeviceReport, 0, len(snapshot.Devices))
	for _, reading := range snapshot.Devices {
		stats := m.tracker.Ingest(reading.Index, snapshot.Timestamp, reading.Temperature)
		devices = append(devices, DeviceReport{
			Index:           reading.Index,
			Name:            reading.Name,
			FanSpeed:        reading.FanSpeed,
			PowerDraw:       reading.PowerDraw,
			PowerLimit:      reading.PowerLimit,
			MemoryTotal:     reading.MemoryTotal,
			MemoryUsed:      reading.MemoryUsed,
			Utilization:     reading.Utilization,
			Temperature:     stats.Current,
			PeakTemperature: stats.Peak,
			TempChangeRate:  stats.Rate,
			ComputeMode:     reading.ComputeMode,
		})
	}

	names := make([]string, 0, len(snapshot.Processes))
	for _, process := range snapshot.Processes {
		names = append(names, process.Name)
	}
	burn := m.detector.Update(names, snapshot.Timestamp)

	report := Report{
		GPUs:        devices,
		NvidiaInfo:  &info,
		Processes:   m.filterProcesses(snapshot.Processes),
		BurnMetrics: &burn,
		Success:     true,
	}
	m.last = report

	return report
}

// Fail records a failed cycle. The report carries the failure message
// and no device data at all.
func (m *Monitor) Fail(err error) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{Success: false, Error: err.Error()}
	m.last = report

	return report
}

// Latest returns the report assembled by the most recent cycle.
func (m *Monitor) Latest() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.last
}

// ResetPeaks clears all peak temperatures. History windows survive.
func (m *Monitor) ResetPeaks() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.ResetPeaks()
}

// ResetErrors zeroes the workload error counter.
func (m *Monitor) ResetErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.detector.ResetErrors()
}

// ReportErrors records externally detected workload errors.
func (m *Monitor) ReportErrors(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.detector.AddErrors(n)
}

// filterProcesses drops known non-compute system processes from the
// reported list. The burn detector sees the unfiltered names.
func (m *Monitor) filterProcesses(processes []gpu.Process) []gpu.Process {
	filtered := make([]gpu.Process, 0, len(processes))
	for _, process := range processes {
		if m.isSystemProcess(process.Name) {
			continue
		}
		filtered = append(filtered, process)
	}

	return filtered
}

func (m *Monitor) isSystemProcess(name string) bool {
	lowered := strings.ToLower(name)
	for _, filter := range m.filters {
		if strings.Contains(lowered, filter) {
			return true
		}
	}

	return false
}
