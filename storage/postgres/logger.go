package postgres

import (
	"log/slog"
	"time"

	"gorm.io/gorm/logger"
)

// newGormLogger routes gorm's statement log through slog. Slow statements
// and errors are logged at warn; parameters are never printed.
func newGormLogger(l *slog.Logger) logger.Interface {
	return logger.New(
		slog.NewLogLogger(l.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}
