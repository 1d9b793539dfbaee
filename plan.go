package segmentpower

import (
	"fmt"
	"math"
)

// PlanRow is one candidate target in an improvement plan.
type PlanRow struct {
	ImprovementMinutes float64 `json:"improvement_minutes"`
	ImprovementResult
}

// Plan bounds. Improvements are rounded to hundredths, so a finer step only
// repeats rows.
const (
	MinPlanStep = 0.01
	MaxPlanRows = 100000
)

// BuildImprovementPlan sweeps improvement minutes across the policy window in
// step increments and returns the power each target would need. The last
// row always sits on the window maximum.
func BuildImprovementPlan(est PowerEstimate, weightKG, step float64, policy Policy) ([]PlanRow, error) {
	if !isFinite(step) || step < MinPlanStep {
		return nil, fmt.Errorf("%w: step must be at least %v minutes, got %v", ErrInvalidStep, MinPlanStep, step)
	}
	window, ok := policy.ImprovementWindow(est.SegmentMinutes)
	if !ok {
		return nil, nil
	}
	if est.PowerWatts <= 0 {
		return nil, fmt.Errorf("improvement plan: %w (got %v)", ErrNonPositivePower, est.PowerWatts)
	}

	span := math.Floor((window.Max-window.Min)/step + 1e-9)
	if span >= MaxPlanRows {
		return nil, fmt.Errorf("%w: step %v gives more than %d rows over %v minutes", ErrInvalidStep, step, MaxPlanRows, window.Max-window.Min)
	}
	n := int(span) + 1
	rows := make([]PlanRow, 0, n+1)
	add := func(improvement float64) error {
		target := round2(est.SegmentMinutes - improvement)
		if target <= 0 && policy.RequirePositiveTarget {
			return nil
		}
		res, err := CalculateImprovement(est.PowerWatts, est.SegmentMinutes, target, weightKG)
		if err != nil {
			return err
		}
		rows = append(rows, PlanRow{ImprovementMinutes: improvement, ImprovementResult: res})
		return nil
	}
	for i := 0; i < n; i++ {
		if err := add(round2(window.Min + float64(i)*step)); err != nil {
			return nil, err
		}
	}
	if last := round2(window.Max); len(rows) == 0 || rows[len(rows)-1].ImprovementMinutes < last {
		if err := add(last); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
