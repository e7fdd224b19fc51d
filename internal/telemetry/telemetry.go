package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/nvidiamon/internal/errors"
	"codeberg.org/mutker/nvidiamon/internal/logger"
	"codeberg.org/mutker/nvidiamon/internal/monitor"
)

type service struct {
	repo Repository
	cfg  Config
}

type noopRecorder struct{}

// NewService builds a Recorder from configuration. Disabled telemetry
// yields a no-op recorder.
func NewService(cfg Config) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Telemetry persistence disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Msg("Telemetry service initialized")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

// Record persists one cycle report at the given cycle time. Failed
// reports are skipped: there is nothing per-device to store.
func (s *service) Record(ctx context.Context, at time.Time, report monitor.Report) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrRecordFailed, ctx.Err())
	default:
	}

	readings := flatten(report, at)
	if len(readings) == 0 {
		return nil
	}

	if err := s.repo.Record(readings); err != nil {
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	return nil
}

func (*noopRecorder) Record(_ context.Context, _ time.Time, _ monitor.Report) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
