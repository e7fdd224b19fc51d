package gpu

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"codeberg.org/mutker/nvidiamon/internal/errors"
	"codeberg.org/mutker/nvidiamon/internal/logger"
)

const bytesPerMiB = 1024 * 1024

// NVML samples devices through the NVIDIA management library instead of
// shelling out to nvidia-smi. Selected by the "nvml" provider setting,
// preferred by "auto".
type NVML struct {
	initialized bool
}

func NewNVML() (*NVML, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	return &NVML{initialized: true}, nil
}

func (p *NVML) Snapshot(_ context.Context) (*Snapshot, error) {
	errFactory := errors.New()

	if !p.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	snapshot := &Snapshot{
		Timestamp: time.Now(),
		Devices:   make([]DeviceReading, 0, count),
	}

	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if !IsNVMLSuccess(ret) {
			return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
		}

		reading, err := readDevice(i, device)
		if err != nil {
			return nil, err
		}
		snapshot.Devices = append(snapshot.Devices, reading)

		processes, err := readProcesses(device, reading.Name)
		if err != nil {
			return nil, err
		}
		snapshot.Processes = append(snapshot.Processes, processes...)
	}

	return snapshot, nil
}

func (p *NVML) Info(_ context.Context) Info {
	info := Info{
		DriverVersion: UnknownVersion,
		CUDAVersion:   UnknownVersion,
	}

	if !p.initialized {
		return info
	}

	if version, ret := nvml.SystemGetDriverVersion(); IsNVMLSuccess(ret) {
		info.DriverVersion = version
	}

	if version, ret := nvml.SystemGetCudaDriverVersion(); IsNVMLSuccess(ret) {
		info.CUDAVersion = fmt.Sprintf("%d.%d", version/1000, (version%1000)/10)
	}

	return info
}

func (p *NVML) Close() error {
	errFactory := errors.New()

	if !p.initialized {
		return nil
	}

	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}
	p.initialized = false

	return nil
}

func readDevice(index int, device nvml.Device) (DeviceReading, error) {
	errFactory := errors.New()

	reading := DeviceReading{Index: index}

	name, ret := device.GetName()
	if !IsNVMLSuccess(ret) {
		return reading, errFactory.Wrap(ErrDeviceReadFailed, newNVMLError(ret))
	}
	reading.Name = name

	temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return reading, errFactory.Wrap(ErrDeviceReadFailed, newNVMLError(ret))
	}
	reading.Temperature = float64(temp)

	memory, ret := device.GetMemoryInfo()
	if !IsNVMLSuccess(ret) {
		return reading, errFactory.Wrap(ErrDeviceReadFailed, newNVMLError(ret))
	}
	reading.MemoryTotal = float64(memory.Total) / bytesPerMiB
	reading.MemoryUsed = float64(memory.Used) / bytesPerMiB

	// Fan speed, power and utilization are not supported on every board;
	// degrade to zero rather than failing the snapshot.
	if fan, ret := device.GetFanSpeed(); IsNVMLSuccess(ret) {
		reading.FanSpeed = float64(fan)
	}
	if power, ret := device.GetPowerUsage(); IsNVMLSuccess(ret) {
		reading.PowerDraw = float64(power) / 1000
	}
	if limit, ret := device.GetPowerManagementLimit(); IsNVMLSuccess(ret) {
		reading.PowerLimit = float64(limit) / 1000
	}
	if utilization, ret := device.GetUtilizationRates(); IsNVMLSuccess(ret) {
		reading.Utilization = float64(utilization.Gpu)
	}

	reading.ComputeMode = UnknownVersion
	if mode, ret := device.GetComputeMode(); IsNVMLSuccess(ret) {
		reading.ComputeMode = computeModeString(mode)
	}

	return reading, nil
}

func readProcesses(device nvml.Device, deviceName string) ([]Process, error) {
	errFactory := errors.New()

	infos, ret := device.GetComputeRunningProcesses()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrProcessListFailed, newNVMLError(ret))
	}
	if len(infos) == 0 {
		return nil, nil
	}

	uuid, ret := device.GetUUID()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceReadFailed, newNVMLError(ret))
	}

	busID := ""
	if pci, ret := device.GetPciInfo(); IsNVMLSuccess(ret) {
		busID = pciBusID(pci)
	}

	processes := make([]Process, 0, len(infos))
	for _, info := range infos {
		processes = append(processes, Process{
			GPUUUID:    uuid,
			PID:        int(info.Pid),
			UsedMemory: float64(info.UsedGpuMemory) / bytesPerMiB,
			Name:       processName(int(info.Pid)),
			GPUName:    deviceName,
			GPUBusID:   busID,
		})
	}

	return processes, nil
}

func computeModeString(mode nvml.ComputeMode) string {
	switch mode {
	case nvml.COMPUTEMODE_DEFAULT:
		return "Default"
	case nvml.COMPUTEMODE_EXCLUSIVE_THREAD:
		return "Exclusive Thread"
	case nvml.COMPUTEMODE_PROHIBITED:
		return "Prohibited"
	case nvml.COMPUTEMODE_EXCLUSIVE_PROCESS:
		return "Exclusive Process"
	default:
		return UnknownVersion
	}
}

func pciBusID(pci nvml.PciInfo) string {
	raw := make([]byte, 0, len(pci.BusId))
	for _, c := range pci.BusId {
		if c == 0 {
			break
		}
		raw = append(raw, byte(c))
	}

	return string(raw)
}

func processName(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("Failed to resolve process name")
		return UnknownVersion
	}

	return strings.TrimSpace(string(data))
}
