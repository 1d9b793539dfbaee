package segmentpower

import "fmt"

// ImprovementResult is the power needed to ride the same segment in a new time.
type ImprovementResult struct {
	TargetWatts   float64 `json:"target_watts" msgpack:"target_watts"`
	WattsPerKG    float64 `json:"watts_per_kg" msgpack:"watts_per_kg"`
	WattIncrease  float64 `json:"watt_increase" msgpack:"watt_increase"`
	TargetMinutes float64 `json:"target_minutes" msgpack:"target_minutes"`
}

// CalculateImprovement scales currentWatts by currentMinutes/desiredMinutes.
// This is a linear approximation: it does not re-solve the drag model for the
// faster speed. A desired time longer than the current one yields a negative
// increase.
func CalculateImprovement(currentWatts, currentMinutes, desiredMinutes, weightKG float64) (ImprovementResult, error) {
	for _, in := range []struct {
		name string
		v    float64
	}{
		{"current watts", currentWatts},
		{"current time", currentMinutes},
		{"desired time", desiredMinutes},
		{"weight", weightKG},
	} {
		if err := checkFinite(in.name, in.v); err != nil {
			return ImprovementResult{}, err
		}
	}
	if currentWatts <= 0 {
		return ImprovementResult{}, fmt.Errorf("calculate improvement: %w (got %v)", ErrNonPositivePower, currentWatts)
	}
	if currentMinutes <= 0 {
		return ImprovementResult{}, fmt.Errorf("calculate improvement: current %w (got %v)", ErrNonPositiveTime, currentMinutes)
	}
	if desiredMinutes <= 0 {
		return ImprovementResult{}, fmt.Errorf("calculate improvement: desired %w (got %v)", ErrNonPositiveTime, desiredMinutes)
	}
	if weightKG <= 0 {
		return ImprovementResult{}, fmt.Errorf("calculate improvement: %w (got %v)", ErrInvalidWeight, weightKG)
	}

	ratio := currentMinutes / desiredMinutes
	target := currentWatts * ratio
	res := ImprovementResult{
		TargetWatts:   round2(target),
		WattsPerKG:    round2(target / weightKG),
		WattIncrease:  round2(target - currentWatts),
		TargetMinutes: round2(desiredMinutes),
	}
	if !isFinite(res.TargetWatts) || !isFinite(res.WattsPerKG) || !isFinite(res.WattIncrease) {
		return ImprovementResult{}, fmt.Errorf("calculate improvement: target power %w (got %v)", ErrOutOfRange, target)
	}
	return res, nil
}

// CalculateImprovement is CalculateImprovement as a Model method. The scaling
// does not use the model constants.
func (m *Model) CalculateImprovement(currentWatts, currentMinutes, desiredMinutes, weightKG float64) (ImprovementResult, error) {
	return CalculateImprovement(currentWatts, currentMinutes, desiredMinutes, weightKG)
}
