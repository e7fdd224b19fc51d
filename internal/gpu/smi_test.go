package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/nvidiamon/internal/errors"
)

const sampleDeviceOutput = `0, NVIDIA GeForce RTX 3080, 45, 220.50, 10240, 4096, 87, 72, Default, 320.00
1, NVIDIA GeForce RTX 3090, 30, 110.25, 24576, 1024, 12, 54, Exclusive Process, 350.00
`

const sampleProcessOutput = `GPU-8f6472a1, 4321, 2048, ./gpu-burn, NVIDIA GeForce RTX 3080, 00000000:01:00.0
GPU-8f6472a1, 987, 512, /usr/lib/xorg/Xorg, NVIDIA GeForce RTX 3080, 00000000:01:00.0
`

func TestParseDevices(t *testing.T) {
	devices, err := parseDevices(sampleDeviceOutput)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	first := devices[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "NVIDIA GeForce RTX 3080", first.Name)
	assert.InDelta(t, 45.0, first.FanSpeed, 0.001)
	assert.InDelta(t, 220.5, first.PowerDraw, 0.001)
	assert.InDelta(t, 320.0, first.PowerLimit, 0.001)
	assert.InDelta(t, 10240.0, first.MemoryTotal, 0.001)
	assert.InDelta(t, 4096.0, first.MemoryUsed, 0.001)
	assert.InDelta(t, 87.0, first.Utilization, 0.001)
	assert.InDelta(t, 72.0, first.Temperature, 0.001)
	assert.Equal(t, "Default", first.ComputeMode)

	second := devices[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, "Exclusive Process", second.ComputeMode)
	assert.InDelta(t, 54.0, second.Temperature, 0.001)
}

func TestParseDevicesEmptyOutput(t *testing.T) {
	devices, err := parseDevices("")
	require.NoError(t, err)
	assert.Empty(t, devices)

	devices, err = parseDevices("\n\n")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestParseDevicesMalformedLineFailsWholeSnapshot(t *testing.T) {
	cases := []struct {
		name string
		out  string
	}{
		{"too few fields", "0, NVIDIA GeForce RTX 3080, 45, 220.50\n"},
		{"bad index", "zero, NVIDIA GeForce RTX 3080, 45, 220.50, 10240, 4096, 87, 72, Default, 320.00\n"},
		{"unavailable fan speed", "0, NVIDIA GeForce RTX 3080, [N/A], 220.50, 10240, 4096, 87, 72, Default, 320.00\n"},
		{
			"one good one bad",
			"0, NVIDIA GeForce RTX 3080, 45, 220.50, 10240, 4096, 87, 72, Default, 320.00\ngarbage\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseDevices(tc.out)
			require.Error(t, err)

			var appErr errors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, ErrParseFailed, appErr.Code())
		})
	}
}

func TestParseProcesses(t *testing.T) {
	processes, err := parseProcesses(sampleProcessOutput)
	require.NoError(t, err)
	require.Len(t, processes, 2)

	burn := processes[0]
	assert.Equal(t, "GPU-8f6472a1", burn.GPUUUID)
	assert.Equal(t, 4321, burn.PID)
	assert.InDelta(t, 2048.0, burn.UsedMemory, 0.001)
	assert.Equal(t, "./gpu-burn", burn.Name)
	assert.Equal(t, "NVIDIA GeForce RTX 3080", burn.GPUName)
	assert.Equal(t, "00000000:01:00.0", burn.GPUBusID)
}

func TestParseProcessesEmptyOutput(t *testing.T) {
	processes, err := parseProcesses("")
	require.NoError(t, err)
	assert.Empty(t, processes)
}

func TestParseProcessesMalformedLine(t *testing.T) {
	_, err := parseProcesses("GPU-8f6472a1, not-a-pid, 2048, ./gpu-burn, NVIDIA GeForce RTX 3080, 00000000:01:00.0\n")
	require.Error(t, err)
}

func TestParseCUDAVersion(t *testing.T) {
	banner := `+-----------------------------------------------------------------------------+
| NVIDIA-SMI 535.183.01   Driver Version: 535.183.01   CUDA Version: 12.2     |
|-------------------------------+----------------------+----------------------+
`
	assert.Equal(t, "12.2", parseCUDAVersion(banner))
	assert.Equal(t, "", parseCUDAVersion("no version here"))
}
