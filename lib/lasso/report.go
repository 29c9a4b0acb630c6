package lasso

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

const (
	LossFile      = "loss"
	StalenessFile = "staleness.dist"
)

// experimentDetail describes the run from the view of worker w
func (e *SolverEngine) experimentDetail(w *worker) string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("EXPERIMENT\n")
	addField("Run ID", e.runID.String())
	addField("Num Features", fmt.Sprint(e.columns.NumFeatures()))
	addField("Num Samples", fmt.Sprint(e.columns.NumSamples()))
	addField("Sampled Dim", fmt.Sprint(w.updater.SampleSize()))
	addField("Num Dim This Worker", fmt.Sprint(w.partition.Len()))
	addField("Sampling Ratio", formatValue(float64(w.updater.SampleSize())/float64(w.partition.Len())))

	sb.WriteString(e.cfg.String())

	sb.WriteString("\nTIMERS\n")
	sb.WriteString(summarizeTimers(e.registry))
	return sb.String()
}

// summarizeTimers formats count, mean and 99th percentile of every timer of r
func summarizeTimers(r gometrics.Registry) string {
	type entry struct {
		name  string
		timer gometrics.Timer
	}
	var timers []entry
	r.Each(func(name string, m interface{}) {
		if t, ok := m.(gometrics.Timer); ok {
			timers = append(timers, entry{name, t})
		}
	})
	sort.Slice(timers, func(i, j int) bool { return timers[i].name < timers[j].name })

	var sb strings.Builder
	for _, t := range timers {
		s := t.timer.Snapshot()
		sb.WriteString(fmt.Sprintf("  %-22s: n=%d mean=%v p99=%v\n", t.name, s.Count(),
			time.Duration(s.Mean()).Round(time.Microsecond),
			time.Duration(s.Percentile(0.99)).Round(time.Microsecond)))
	}
	return sb.String()
}

// WriteReport writes the experiment detail followed by the ledger to dir/loss
// and the staleness histogram to dir/staleness.dist
func WriteReport(dir string, res *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	loss := res.Detail + "\n" + res.Ledger
	if err := os.WriteFile(filepath.Join(dir, LossFile), []byte(loss), 0o644); err != nil {
		return fmt.Errorf("write loss: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, StalenessFile), []byte(res.Staleness), 0o644); err != nil {
		return fmt.Errorf("write staleness distribution: %w", err)
	}
	log.Infof("wrote %s and %s to %s", LossFile, StalenessFile, dir)
	return nil
}
