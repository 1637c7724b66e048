package badger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Errorf(msg string, items ...any)   { a.logger.Error(format(msg, items)) }
func (a *slogAdapter) Warningf(msg string, items ...any) { a.logger.Warn(format(msg, items)) }
func (a *slogAdapter) Infof(msg string, items ...any)    { a.logger.Debug(format(msg, items)) }
func (a *slogAdapter) Debugf(msg string, items ...any)   { a.logger.Debug(format(msg, items)) }

func format(msg string, items []any) string {
	return strings.TrimSpace(fmt.Sprintf(msg, items...))
}

// openDB opens the cache database at dir, creating it if needed. An empty
// dir keeps everything in memory.
func openDB(dir string, logger *slog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	// Values are raw float32 vectors; compression gains nothing on them.
	opts = opts.
		WithLogger(&slogAdapter{logger: logger}).
		WithCompression(options.None).
		WithNumVersionsToKeep(1)

	return badger.Open(opts)
}
