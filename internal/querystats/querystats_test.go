package querystats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judyrop/storefront-analytics/internal/analytics"
)

func TestRecorderSnapshot(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		r.ObserveQuery(ctx, analytics.QueryEvent{
			Kind:     analytics.KindSalesTrendsAnalysis,
			Outcome:  analytics.OutcomeOK,
			Duration: time.Duration(i) * time.Millisecond,
		})
	}
	r.ObserveQuery(ctx, analytics.QueryEvent{Kind: analytics.KindAverageOrderValue, Outcome: analytics.OutcomeError, Duration: time.Millisecond})
	r.ObserveQuery(ctx, analytics.QueryEvent{Kind: analytics.KindUnknown, Outcome: analytics.OutcomeUnrecognized})

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	assert.Equal(t, "average_order_value", snap[0].Kind)
	assert.EqualValues(t, 1, snap[0].Count)
	assert.EqualValues(t, 1, snap[0].Errors)

	trends := snap[1]
	assert.Equal(t, "sales_trends_analysis", trends.Kind)
	assert.EqualValues(t, 100, trends.Count)
	assert.Zero(t, trends.Errors)
	assert.InDelta(t, 50, trends.P50Ms, 0.5)
	assert.InDelta(t, 95, trends.P95Ms, 0.5)
	assert.InDelta(t, 100, trends.MaxMs, 0.5)
	assert.InDelta(t, 50.5, trends.MeanMs, 0.5)
}

func TestRecorderClampsAndResets(t *testing.T) {
	r := NewRecorder()
	r.ObserveQuery(context.Background(), analytics.QueryEvent{Kind: analytics.KindPeakSalesPeriods, Outcome: analytics.OutcomeOK, Duration: time.Hour})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.InDelta(t, 60000, snap[0].MaxMs, 60)

	r.Reset()
	assert.Empty(t, r.Snapshot())
}
