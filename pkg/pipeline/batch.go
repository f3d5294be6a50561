package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// BatchItem is one independent unit in a batch job. Run executes the full
// per-item pipeline and returns the item's result payload.
type BatchItem struct {
	Name string
	Run  func(ctx context.Context, sink ProgressSink) (map[string]any, error)
}

// ItemOutcome records the result of one batch item. Error holds the
// client-safe message for failed items.
type ItemOutcome struct {
	File    string         `json:"file"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// BatchSummary is the terminal result of a batch job. Results preserve
// submission order regardless of per-item outcome.
type BatchSummary struct {
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	Results      []ItemOutcome `json:"results"`
}

// RunBatch executes items sequentially, giving each an equal window of the
// overall progress bar: item i of T spans floor((i-1)*100/T) to
// floor(i*100/T). A failing item is recorded and the batch moves on; only
// context cancellation aborts the whole batch early.
func RunBatch(ctx context.Context, items []BatchItem, notify Notifier) (BatchSummary, error) {
	if notify == nil {
		notify = func(int, string) {}
	}
	logger := log.With().Str("component", "pipeline").Logger()

	summary := BatchSummary{
		Total:   len(items),
		Results: make([]ItemOutcome, 0, len(items)),
	}
	if len(items) == 0 {
		notify(100, "Batch complete")
		return summary, nil
	}

	total := len(items)
	lastPct := 0
	emit := func(pct int, message string) {
		if pct > 100 {
			pct = 100
		}
		if pct < lastPct {
			if message == "" {
				return
			}
			pct = lastPct
		}
		lastPct = pct
		notify(pct, message)
	}

	for i, item := range items {
		if ctx.Err() != nil {
			return summary, NewStageError(KindInternal, "batch", "batch canceled", ctx.Err())
		}

		base := int(math.Floor(float64(i) * 100 / float64(total)))
		sink := &batchSink{emit: emit, base: base, total: total}

		emit(base, fmt.Sprintf("Processing %s (%d of %d)", item.Name, i+1, total))

		data, err := runItem(ctx, item, sink)
		if err != nil {
			logger.Warn().Err(err).Str("file", item.Name).Msg("Batch item failed")
			summary.FailedCount++
			summary.Results = append(summary.Results, ItemOutcome{
				File:  item.Name,
				Error: clientMessage(err),
			})
		} else {
			summary.SuccessCount++
			summary.Results = append(summary.Results, ItemOutcome{
				File:    item.Name,
				Success: true,
				Data:    data,
			})
		}

		emit(base+int(math.Floor(100/float64(total))), "")
	}

	emit(100, fmt.Sprintf("Batch complete: %d succeeded, %d failed", summary.SuccessCount, summary.FailedCount))
	return summary, nil
}

// runItem guards one batch item against panics so a bad file cannot abort
// the rest of the batch.
func runItem(ctx context.Context, item BatchItem, sink ProgressSink) (data map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewStageError(KindInternal, "batch", fmt.Sprintf("internal error processing %s", item.Name), fmt.Errorf("panic: %v", rec))
		}
	}()
	return item.Run(ctx, sink)
}

// clientMessage extracts the safe display message from a failure.
func clientMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// batchSink maps an item's 0..1 fraction into its batch window.
type batchSink struct {
	emit  func(pct int, message string)
	base  int
	total int
}

func (s *batchSink) Report(fraction float64, message string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	pct := s.base + int(math.Floor(fraction*100/float64(s.total)))
	s.emit(pct, message)
}
