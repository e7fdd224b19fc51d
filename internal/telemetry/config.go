package telemetry

import "codeberg.org/mutker/nvidiamon/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/nvidiamon/telemetry.db"

	defaultBatchSize    = 32
	defaultBatchTimeout = 10 // seconds
)

type Config struct {
	DBPath       string
	BatchSize    int
	BatchTimeout int
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
