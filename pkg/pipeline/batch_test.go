package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingItem(name string) BatchItem {
	return BatchItem{
		Name: name,
		Run: func(ctx context.Context, sink ProgressSink) (map[string]any, error) {
			sink.Report(0.5, "")
			return map[string]any{"output_file": name + "_verba.md"}, nil
		},
	}
}

func TestRunBatchWindows(t *testing.T) {
	var records []progressRecord
	items := []BatchItem{
		passingItem("a.mp3"), passingItem("b.mp3"), passingItem("c.mp3"),
		passingItem("d.mp3"), passingItem("e.mp3"),
	}

	summary, err := RunBatch(context.Background(), items, recordingNotifier(&records))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.SuccessCount)

	// Each item completion lands exactly on its window boundary.
	var boundaries []int
	for _, rec := range records {
		boundaries = append(boundaries, rec.pct)
	}
	for _, want := range []int{20, 40, 60, 80, 100} {
		assert.Contains(t, boundaries, want)
	}

	last := -1
	for _, rec := range records {
		assert.GreaterOrEqual(t, rec.pct, last)
		last = rec.pct
	}
	assert.Equal(t, 100, records[len(records)-1].pct)
}

func TestRunBatchContinuesOnItemFailure(t *testing.T) {
	items := []BatchItem{
		passingItem("a.mp3"),
		{
			Name: "b.mp3",
			Run: func(ctx context.Context, sink ProgressSink) (map[string]any, error) {
				return nil, NewStageError(KindInvalidInput, "validate", "unsupported format: .xyz", nil)
			},
		},
		passingItem("c.mp3"),
	}

	summary, err := RunBatch(context.Background(), items, nil)
	require.NoError(t, err, "item failures never fail the batch")

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, "a.mp3", summary.Results[0].File)
	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, "a.mp3_verba.md", summary.Results[0].Data["output_file"])

	assert.Equal(t, "b.mp3", summary.Results[1].File)
	assert.False(t, summary.Results[1].Success)
	assert.Equal(t, "unsupported format: .xyz", summary.Results[1].Error)

	assert.Equal(t, "c.mp3", summary.Results[2].File)
	assert.True(t, summary.Results[2].Success)
}

func TestRunBatchRecoversItemPanic(t *testing.T) {
	items := []BatchItem{
		{
			Name: "a.mp3",
			Run: func(ctx context.Context, sink ProgressSink) (map[string]any, error) {
				panic("corrupt header")
			},
		},
		passingItem("b.mp3"),
	}

	summary, err := RunBatch(context.Background(), items, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.False(t, summary.Results[0].Success)
}

func TestRunBatchEmpty(t *testing.T) {
	var records []progressRecord
	summary, err := RunBatch(context.Background(), nil, recordingNotifier(&records))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	require.NotEmpty(t, records)
	assert.Equal(t, 100, records[0].pct)
}

func TestRunBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunBatch(ctx, []BatchItem{passingItem("a.mp3")}, nil)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, se.Err, context.Canceled)
}
