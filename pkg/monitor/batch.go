package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Batch defaults
const (
	DefaultBatchSize  = 10
	DefaultBatchPause = time.Second
)

// BatchResult aggregates a batch trigger. A check that recorded an
// unreachable page still counts as a success.
type BatchResult struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Alerts  int `json:"alerts"`
}

// BatchRunner checks every due monitor in small concurrent batches
type BatchRunner struct {
	Orchestrator *Orchestrator
	BatchSize    int
	// BatchPause is waited between batches to spread load on target sites
	BatchPause time.Duration
}

// NewBatchRunner returns a runner with the default batch size and pause
func NewBatchRunner(o *Orchestrator) *BatchRunner {
	return &BatchRunner{Orchestrator: o, BatchSize: DefaultBatchSize, BatchPause: DefaultBatchPause}
}

// Due returns the monitors due for a scheduled check at now
func Due(monitors []Monitor, now time.Time) []Monitor {
	due := make([]Monitor, 0, len(monitors))
	for i := range monitors {
		if monitors[i].Due(now) {
			due = append(due, monitors[i])
		}
	}
	return due
}

// RunDue runs a scheduled check for every due monitor. Checks within a batch
// run concurrently and a failing check never cancels its siblings. The error
// is non-nil only when the monitor list cannot be read or ctx ends.
func (r *BatchRunner) RunDue(ctx context.Context, now time.Time) (BatchResult, error) {
	var result BatchResult

	store := r.Orchestrator.Store()
	if store == nil {
		return result, fmt.Errorf("%w: no datastore configured", ErrUnavailable)
	}

	monitors, err := store.ListMonitors(ctx, "")
	if err != nil {
		return result, storageError("list monitors", err)
	}

	due := Due(monitors, now)
	result.Total = len(due)
	slog.Info("Running scheduled checks", "due", len(due), "monitors", len(monitors))

	size := r.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var mu sync.Mutex
	for start := 0; start < len(due); start += size {
		if start > 0 && r.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(r.BatchPause):
			}
		}

		end := min(start+size, len(due))
		var g errgroup.Group
		for _, m := range due[start:end] {
			g.Go(func() error {
				outcome, err := r.Orchestrator.RunCheck(ctx, m.ID, TriggerScheduled)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					slog.Error("Scheduled check failed", "monitor", m.ID, "url", m.URL, "error", err)
					result.Failed++
					return nil
				}
				result.Success++
				result.Alerts += len(outcome.Alerts)
				return nil
			})
		}
		_ = g.Wait()

		slog.Debug("Finished batch", "from", start, "to", end, "success", result.Success, "failed", result.Failed)
	}

	slog.Info("Scheduled checks completed", "total", result.Total, "success", result.Success, "failed", result.Failed, "alerts", result.Alerts)
	return result, nil
}
