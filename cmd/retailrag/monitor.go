package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/ingestion"
	"github.com/poiesic/retailrag/recommend"
	"github.com/schollz/progressbar/v3"
)

// progressMonitor renders one progress bar per ingestion stage.
type progressMonitor struct {
	w   io.Writer
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

var _ ingestion.Monitor = (*progressMonitor)(nil)

func newProgressMonitor(w io.Writer) *progressMonitor {
	return &progressMonitor{w: w}
}

func (m *progressMonitor) StageStarted(stage string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishBar()
	if total <= 0 {
		total = -1
	}
	m.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(m.w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%-7s[reset]", stage)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(m.w)
		}),
	)
}

func (m *progressMonitor) Advanced(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bar != nil {
		m.bar.Add(n)
	}
}

func (m *progressMonitor) Dropped(drop ingestion.Drop) {
	slog.Debug("row dropped", "uniq_id", drop.UniqID, "reason", drop.Reason, "err", drop.Err)
}

func (m *progressMonitor) Finished(_ *ingestion.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishBar()
}

func (m *progressMonitor) finishBar() {
	if m.bar != nil {
		m.bar.Finish()
		m.bar = nil
	}
}

func printSummary(w io.Writer, r *ingestion.Result) {
	count := func(n int) string { return humanize.Comma(int64(n)) }

	fmt.Fprintln(w, "Ingestion summary")
	fmt.Fprintf(w, "  table:        %s\n", r.Table)
	fmt.Fprintf(w, "  read:         %s\n", count(r.RowsRead))
	fmt.Fprintf(w, "  cleaned:      %s\n", count(r.RowsCleaned))
	fmt.Fprintf(w, "  with images:  %s\n", count(r.RowsWithImages))
	fmt.Fprintf(w, "  embedded:     %s\n", count(r.RowsEmbedded))
	fmt.Fprintf(w, "  loaded:       %s\n", count(r.RowsLoaded))
	if r.Elapsed > 0 {
		fmt.Fprintf(w, "  elapsed:      %s\n", r.Elapsed.Round(time.Millisecond))
	}

	reasons := make([]string, 0, len(r.Dropped))
	for reason := range r.Dropped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  dropped (%s): %s\n", reason, count(r.Dropped[reason]))
	}
}

// quietMonitor discards recommendation events.
type quietMonitor struct{}

func (quietMonitor) Start(core.Query)                     {}
func (quietMonitor) AfterEmbedding(core.Modality, int)    {}
func (quietMonitor) AfterSearch(string, []core.Retrieved) {}
func (quietMonitor) AfterPrompt(string)                   {}
func (quietMonitor) Finish(string)                        {}

// traceMonitor prints each recommendation step.
type traceMonitor struct {
	w io.Writer
}

var _ recommend.Monitor = (*traceMonitor)(nil)

func (m *traceMonitor) Start(q core.Query) {
	fmt.Fprintf(m.w, "Query: text=%q image=%q\n", q.Text, q.ImageURI)
}

func (m *traceMonitor) AfterEmbedding(modality core.Modality, dimension int) {
	fmt.Fprintf(m.w, "Embedded as %s (%d dimensions)\n", modality, dimension)
}

func (m *traceMonitor) AfterSearch(column string, hits []core.Retrieved) {
	fmt.Fprintf(m.w, "Retrieved %d products by %s:\n", len(hits), column)
	for i, h := range hits {
		fmt.Fprintf(m.w, "  %d. %s [%s] similarity=%.4f\n", i+1, h.Name, h.UniqID, h.CosineSimilarity)
	}
}

func (m *traceMonitor) AfterPrompt(prompt string) {
	fmt.Fprintf(m.w, "Prompt:\n%s\n\n", prompt)
}

func (m *traceMonitor) Finish(string) {}
