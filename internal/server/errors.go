package server

import "codeberg.org/mutker/nvidiamon/internal/errors"

const (
	ErrInvalidListenAddr = errors.ErrorCode("server_invalid_listen_addr")
	ErrListenFailed      = errors.ErrorCode("server_listen_failed")
	ErrShutdownFailed    = errors.ErrShutdownFailed
)
