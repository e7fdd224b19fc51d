package monitor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/nvidiamon/internal/errors"
	"codeberg.org/mutker/nvidiamon/internal/gpu"
)

func testConfig() Config {
	return Config{
		HistorySize:    40,
		RateWindow:     10 * time.Second,
		BurnMarkers:    []string{"gpu-burn"},
		ProcessFilters: []string{"xorg", "shell"},
	}
}

func testSnapshot(ts time.Time) *gpu.Snapshot {
	return &gpu.Snapshot{
		Timestamp: ts,
		Devices: []gpu.DeviceReading{
			{
				Index:       0,
				Name:        "NVIDIA GeForce RTX 3080",
				FanSpeed:    45,
				PowerDraw:   220.5,
				PowerLimit:  320,
				MemoryTotal: 10240,
				MemoryUsed:  2048,
				Utilization: 97,
				Temperature: 71,
				ComputeMode: "Default",
			},
		},
		Processes: []gpu.Process{
			{PID: 1234, Name: "/usr/bin/gpu-burn", GPUName: "NVIDIA GeForce RTX 3080"},
			{PID: 456, Name: "/usr/lib/Xorg", GPUName: "NVIDIA GeForce RTX 3080"},
		},
	}
}

func TestObserveAssemblesReport(t *testing.T) {
	m := New(testConfig())
	info := gpu.Info{DriverVersion: "550.54.14", CUDAVersion: "12.4"}

	report := m.Observe(testSnapshot(at(0)), info)

	require.True(t, report.Success)
	assert.Empty(t, report.Error)
	require.Len(t, report.GPUs, 1)

	device := report.GPUs[0]
	assert.Equal(t, 0, device.Index)
	assert.Equal(t, 71.0, device.Temperature)
	assert.Equal(t, 71.0, device.PeakTemperature)
	assert.Equal(t, 0.0, device.TempChangeRate)

	require.NotNil(t, report.NvidiaInfo)
	assert.Equal(t, "550.54.14", report.NvidiaInfo.DriverVersion)

	require.NotNil(t, report.BurnMetrics)
	assert.True(t, report.BurnMetrics.Running)
}

func TestObserveFiltersSystemProcesses(t *testing.T) {
	m := New(testConfig())

	report := m.Observe(testSnapshot(at(0)), gpu.Info{})

	require.Len(t, report.Processes, 1, "Xorg is filtered out")
	assert.Equal(t, "/usr/bin/gpu-burn", report.Processes[0].Name)
}

func TestObserveBurnSeesUnfilteredProcesses(t *testing.T) {
	cfg := testConfig()
	cfg.ProcessFilters = []string{"gpu-burn", "xorg"}
	m := New(cfg)

	report := m.Observe(testSnapshot(at(0)), gpu.Info{})

	assert.Empty(t, report.Processes, "workload itself filtered from the listing")
	assert.True(t, report.BurnMetrics.Running, "detector still sees the workload")
}

func TestFailProducesErrorOnlyReport(t *testing.T) {
	m := New(testConfig())
	m.Observe(testSnapshot(at(0)), gpu.Info{})

	report := m.Fail(errors.New().New(gpu.ErrDeviceReadFailed))

	assert.False(t, report.Success)
	assert.NotEmpty(t, report.Error)
	assert.Nil(t, report.GPUs, "no partial device data on failure")
	assert.Nil(t, report.BurnMetrics)

	assert.False(t, m.Latest().Success, "failure replaces the cached report")
}

func TestLatestBeforeFirstCycle(t *testing.T) {
	m := New(testConfig())

	report := m.Latest()
	assert.False(t, report.Success)
	assert.NotEmpty(t, report.Error)
}

func TestResetPeaksKeepsHistory(t *testing.T) {
	m := New(testConfig())

	snap := testSnapshot(at(0))
	snap.Devices[0].Temperature = 90
	m.Observe(snap, gpu.Info{})

	m.ResetPeaks()

	snap = testSnapshot(at(time.Second))
	snap.Devices[0].Temperature = 70
	report := m.Observe(snap, gpu.Info{})

	assert.Equal(t, 70.0, report.GPUs[0].PeakTemperature)
}

func TestReportErrorsSurfaceInNextCycle(t *testing.T) {
	m := New(testConfig())

	m.ReportErrors(2)
	report := m.Observe(testSnapshot(at(0)), gpu.Info{})
	assert.Equal(t, 2, report.BurnMetrics.Errors)

	m.ResetErrors()
	report = m.Observe(testSnapshot(at(time.Second)), gpu.Info{})
	assert.Equal(t, 0, report.BurnMetrics.Errors)
}

func TestReportJSONShape(t *testing.T) {
	m := New(testConfig())
	report := m.Observe(testSnapshot(at(0)), gpu.Info{DriverVersion: "550.54.14", CUDAVersion: "12.4"})

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	for _, key := range []string{"gpus", "nvidia_info", "processes", "gpu_burn_metrics", "success"} {
		assert.Contains(t, decoded, key)
	}
	assert.NotContains(t, decoded, "error", "successful reports omit the error field")

	device := decoded["gpus"].([]any)[0].(map[string]any)
	for _, key := range []string{
		"index", "name", "fan_speed", "power_draw", "power_limit",
		"memory_total", "memory_used", "gpu_utilization",
		"temperature", "peak_temperature", "temp_change_rate", "compute_mode",
	} {
		assert.Contains(t, device, key)
	}
}

func TestReportJSONEmptyListsStayPresent(t *testing.T) {
	m := New(testConfig())

	// Idle machine: devices present, no compute processes.
	snap := testSnapshot(at(0))
	snap.Processes = nil
	raw, err := json.Marshal(m.Observe(snap, gpu.Info{}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded, "processes")
	assert.Equal(t, []any{}, decoded["processes"], "empty process list marshals as [], not null")

	// No devices at all still yields an explicit empty gpus list.
	raw, err = json.Marshal(m.Observe(&gpu.Snapshot{Timestamp: at(time.Second)}, gpu.Info{}))
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded, "gpus")
	assert.Equal(t, []any{}, decoded["gpus"])
}
