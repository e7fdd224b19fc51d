package gpu

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"codeberg.org/mutker/nvidiamon/internal/errors"
)

const (
	// Provider Errors
	ErrProviderUnavailable = errors.ErrorCode("gpu_provider_unavailable")
	ErrParseFailed         = errors.ErrorCode("gpu_parse_failed")

	// Initialization and Lifecycle Errors
	ErrNotInitialized = errors.ErrorCode("gpu_not_initialized")
	ErrInitFailed     = errors.ErrorCode("gpu_init_failed")
	ErrShutdownFailed = errors.ErrorCode("gpu_shutdown_failed")

	// Device Errors
	ErrDeviceCountFailed = errors.ErrorCode("gpu_device_count_failed")
	ErrDeviceNotFound    = errors.ErrorCode("gpu_device_not_found")
	ErrDeviceReadFailed  = errors.ErrorCode("gpu_device_read_failed")
	ErrProcessListFailed = errors.ErrorCode("gpu_process_list_failed")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
