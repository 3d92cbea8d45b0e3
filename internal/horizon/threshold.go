package horizon

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/cadence/internal/metrics"
	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/store"
)

// ThresholdWindowDays is the horizon threshold pace estimates look back over.
const ThresholdWindowDays = 28

// ThresholdPace estimates threshold pace from the runs of the 28 days up to
// ref. Too few hard runs is an InsufficientData error.
func (e *Engine) ThresholdPace(ctx context.Context, ref time.Time) (*metrics.ThresholdEstimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acts, err := e.acts.QueryActivities(store.ActivityFilter{
		From:  WindowStart(ref, ThresholdWindowDays, e.loc),
		To:    ref,
		Sport: models.SportRunning,
	})
	if err != nil {
		return nil, fmt.Errorf("horizon: query runs: %w", err)
	}
	return metrics.EstimateThresholdPace(acts, e.baseline)
}
