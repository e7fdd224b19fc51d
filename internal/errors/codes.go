package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig      ErrorCode = "invalid_configuration"
	ErrReadConfig         ErrorCode = "read_config_failed"
	ErrInvalidInterval    ErrorCode = "invalid_interval"
	ErrInvalidHistorySize ErrorCode = "invalid_history_size"
	ErrInvalidRateWindow  ErrorCode = "invalid_rate_window"
	ErrInvalidProvider    ErrorCode = "invalid_provider"
	ErrMissingMarkers     ErrorCode = "missing_burn_markers"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Application errors
	ErrInitApp      ErrorCode = "init_app_failed"
	ErrSampleLoop   ErrorCode = "sample_loop_failed"
	ErrInitProvider ErrorCode = "init_provider_failed"
	ErrInitServer   ErrorCode = "init_server_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:           "Internal error occurred",
	ErrInvalidArgument:    "Invalid argument provided",
	ErrUnavailable:        "Service unavailable",
	ErrInvalidConfig:      "Invalid configuration",
	ErrReadConfig:         "Failed to read configuration",
	ErrInvalidInterval:    "Invalid sampling interval",
	ErrInvalidHistorySize: "Invalid history size",
	ErrInvalidRateWindow:  "Invalid rate window",
	ErrInvalidProvider:    "Invalid provider selection",
	ErrMissingMarkers:     "No burn workload markers configured",
	ErrInvalidLogLevel:    "Invalid log level",
	ErrInitFailed:         "Initialization failed",
	ErrShutdownFailed:     "Shutdown failed",
	ErrAlreadyRunning:     "Another instance is already running",
	ErrInitApp:            "Failed to initialize application",
	ErrSampleLoop:         "Error in sampling loop",
	ErrInitProvider:       "Failed to initialize GPU provider",
	ErrInitServer:         "Failed to initialize HTTP server",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
