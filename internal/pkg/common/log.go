package common

import (
	"errors"
	"fmt"
	"os"

	"github.com/decred/slog"
	"github.com/samber/do/v2"
)

var ErrUnknownLogLevel = errors.New("unknown log level")

// LogService hands out one logger per subsystem, all writing to the same
// backend at the configured level.
type LogService struct {
	backend *slog.Backend
	level   slog.Level
}

func NewLogService(i do.Injector) (*LogService, error) {
	levelName := do.MustInvokeNamed[string](i, "log-level")

	level, ok := slog.LevelFromString(levelName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLogLevel, levelName)
	}

	return &LogService{
		backend: slog.NewBackend(os.Stdout),
		level:   level,
	}, nil
}

func (s *LogService) Logger(subsystem string) slog.Logger {
	log := s.backend.Logger(subsystem)
	log.SetLevel(s.level)

	return log
}
