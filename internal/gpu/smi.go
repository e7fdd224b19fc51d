package gpu

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/nvidiamon/internal/errors"
	"codeberg.org/mutker/nvidiamon/internal/logger"
)

const (
	smiBinary = "nvidia-smi"
	csvFormat = "csv,noheader,nounits"

	deviceQuery = "index,name,fan.speed,power.draw,memory.total,memory.used," +
		"utilization.gpu,temperature.gpu,compute_mode,power.limit"
	deviceFieldCount = 10

	processQuery      = "gpu_uuid,pid,used_memory,name,gpu_name,gpu_bus_id"
	processFieldCount = 6
)

var cudaVersionPattern = regexp.MustCompile(`CUDA Version: ([\d.]+)`)

// SMI samples devices by invoking the nvidia-smi command line tool and
// parsing its CSV output.
type SMI struct {
	binary string
}

func NewSMI() *SMI {
	return &SMI{binary: smiBinary}
}

func (s *SMI) Snapshot(ctx context.Context) (*Snapshot, error) {
	errFactory := errors.New()

	deviceOut, err := s.run(ctx, "--query-gpu="+deviceQuery, "--format="+csvFormat)
	if err != nil {
		return nil, errFactory.Wrap(ErrProviderUnavailable, err)
	}

	processOut, err := s.run(ctx, "--query-compute-apps="+processQuery, "--format="+csvFormat)
	if err != nil {
		return nil, errFactory.Wrap(ErrProviderUnavailable, err)
	}

	devices, err := parseDevices(deviceOut)
	if err != nil {
		return nil, err
	}

	processes, err := parseProcesses(processOut)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Timestamp: time.Now(),
		Devices:   devices,
		Processes: processes,
	}, nil
}

func (s *SMI) Info(ctx context.Context) Info {
	info := Info{
		DriverVersion: UnknownVersion,
		CUDAVersion:   UnknownVersion,
	}

	driverOut, err := s.run(ctx, "--query-gpu=driver_version", "--format="+csvFormat)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to query driver version")
	} else if lines := splitLines(driverOut); len(lines) > 0 {
		info.DriverVersion = lines[0]
	}

	bannerOut, err := s.run(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to query CUDA version")
		return info
	}
	if version := parseCUDAVersion(bannerOut); version != "" {
		info.CUDAVersion = version
	}

	return info
}

func (*SMI) Close() error {
	return nil
}

func (s *SMI) run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, s.binary, args...).Output()
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// parseDevices parses one device per CSV line. A malformed line fails
// the whole snapshot: consumers could not tell a silently dropped
// device from an absent one.
func parseDevices(out string) ([]DeviceReading, error) {
	errFactory := errors.New()

	lines := splitLines(out)
	devices := make([]DeviceReading, 0, len(lines))
	for _, line := range lines {
		values := splitFields(line)
		if len(values) < deviceFieldCount {
			return nil, errFactory.WithData(ErrParseFailed, line)
		}

		index, err := strconv.Atoi(values[0])
		if err != nil {
			return nil, errFactory.WithData(ErrParseFailed, line)
		}

		numeric := make([]float64, 0, 7)
		for _, position := range []int{2, 3, 4, 5, 6, 7, 9} {
			value, err := strconv.ParseFloat(values[position], 64)
			if err != nil {
				return nil, errFactory.WithData(ErrParseFailed, line)
			}
			numeric = append(numeric, value)
		}

		devices = append(devices, DeviceReading{
			Index:       index,
			Name:        values[1],
			FanSpeed:    numeric[0],
			PowerDraw:   numeric[1],
			MemoryTotal: numeric[2],
			MemoryUsed:  numeric[3],
			Utilization: numeric[4],
			Temperature: numeric[5],
			ComputeMode: values[8],
			PowerLimit:  numeric[6],
		})
	}

	return devices, nil
}

func parseProcesses(out string) ([]Process, error) {
	errFactory := errors.New()

	lines := splitLines(out)
	processes := make([]Process, 0, len(lines))
	for _, line := range lines {
		values := splitFields(line)
		if len(values) < processFieldCount {
			return nil, errFactory.WithData(ErrParseFailed, line)
		}

		pid, err := strconv.Atoi(values[1])
		if err != nil {
			return nil, errFactory.WithData(ErrParseFailed, line)
		}

		usedMemory, err := strconv.ParseFloat(values[2], 64)
		if err != nil {
			return nil, errFactory.WithData(ErrParseFailed, line)
		}

		processes = append(processes, Process{
			GPUUUID:    values[0],
			PID:        pid,
			UsedMemory: usedMemory,
			Name:       values[3],
			GPUName:    values[4],
			GPUBusID:   values[5],
		})
	}

	return processes, nil
}

func parseCUDAVersion(banner string) string {
	match := cudaVersionPattern.FindStringSubmatch(banner)
	if match == nil {
		return ""
	}

	return match[1]
}

func splitLines(out string) []string {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil
	}

	lines := make([]string, 0, strings.Count(trimmed, "\n")+1)
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

func splitFields(line string) []string {
	values := strings.Split(line, ",")
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}

	return values
}
