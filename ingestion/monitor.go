package ingestion

import "time"

// Stage names reported to a Monitor.
const (
	StageLoad   = "load"
	StageClean  = "clean"
	StageImages = "images"
	StageEmbed  = "embed"
	StageStore  = "store"
)

// Monitor provides hooks to observe an ingestion run.
// Implement this interface to render progress.
type Monitor interface {
	// StageStarted announces a stage and how many rows it will handle.
	StageStarted(stage string, total int)
	// Advanced reports n more rows finished in the current stage.
	Advanced(n int)
	// Dropped reports a row leaving the pipeline.
	Dropped(drop Drop)
	// Finished reports the final result.
	Finished(result *Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (noopMonitor) StageStarted(_ string, _ int) {}
func (noopMonitor) Advanced(_ int)               {}
func (noopMonitor) Dropped(_ Drop)               {}
func (noopMonitor) Finished(_ *Result)           {}

// Result summarizes an ingestion run.
type Result struct {
	Table          string
	RowsRead       int
	RowsCleaned    int
	RowsWithImages int
	RowsEmbedded   int
	RowsLoaded     int

	// Dropped counts dropped rows by reason.
	Dropped map[string]int

	Elapsed time.Duration
}

func (r *Result) drop(d Drop) {
	if r.Dropped == nil {
		r.Dropped = make(map[string]int)
	}
	r.Dropped[d.Reason]++
}
