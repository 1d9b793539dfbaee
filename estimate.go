package segmentpower

import (
	"fmt"
	"math"
)

// PowerEstimate is the rounded result of EstimateWatts.
type PowerEstimate struct {
	PowerWatts     float64 `json:"power_watts" msgpack:"power_watts"`
	SegmentMinutes float64 `json:"segment_minutes" msgpack:"segment_minutes"`
}

// PowerBreakdown exposes the unrounded additive terms behind an estimate.
type PowerBreakdown struct {
	TotalMassKG    float64 `json:"total_mass_kg" msgpack:"total_mass_kg"`
	SpeedMps       float64 `json:"speed_mps" msgpack:"speed_mps"`
	SlopeRadians   float64 `json:"slope_radians" msgpack:"slope_radians"`
	AirWatts       float64 `json:"air_watts" msgpack:"air_watts"`
	GravityWatts   float64 `json:"gravity_watts" msgpack:"gravity_watts"`
	RollingWatts   float64 `json:"rolling_watts" msgpack:"rolling_watts"`
	TotalWatts     float64 `json:"total_watts" msgpack:"total_watts"`
	SegmentMinutes float64 `json:"segment_minutes" msgpack:"segment_minutes"`
}

// Segment groups the rider and course inputs of one estimate.
type Segment struct {
	WeightKG    float64      `json:"weight_kg" msgpack:"weight_kg"`
	SpeedKmh    float64      `json:"speed_kmh" msgpack:"speed_kmh"`
	GradientPct float64      `json:"gradient_pct" msgpack:"gradient_pct"`
	Bike        BikeCategory `json:"bike" msgpack:"bike"`
	DistanceKM  float64      `json:"distance_km" msgpack:"distance_km"`
}

// EstimateWatts returns the average power needed to hold speedKmh on the
// given gradient, and the time to cover distanceKM at that speed.
func (m *Model) EstimateWatts(weightKG, speedKmh, gradientPct float64, bike BikeCategory, distanceKM float64) (PowerEstimate, error) {
	b, err := m.Breakdown(Segment{
		WeightKG:    weightKG,
		SpeedKmh:    speedKmh,
		GradientPct: gradientPct,
		Bike:        bike,
		DistanceKM:  distanceKM,
	})
	if err != nil {
		return PowerEstimate{}, err
	}
	return b.Estimate(), nil
}

// Estimate returns the rounded power and time of b.
func (b PowerBreakdown) Estimate() PowerEstimate {
	return PowerEstimate{
		PowerWatts:     round2(b.TotalWatts),
		SegmentMinutes: round2(b.SegmentMinutes),
	}
}

// Breakdown computes the unrounded air, gravity and rolling terms for s.
func (m *Model) Breakdown(s Segment) (PowerBreakdown, error) {
	if err := checkFinite("weight", s.WeightKG); err != nil {
		return PowerBreakdown{}, err
	}
	if err := checkFinite("speed", s.SpeedKmh); err != nil {
		return PowerBreakdown{}, err
	}
	if err := checkFinite("gradient", s.GradientPct); err != nil {
		return PowerBreakdown{}, err
	}
	if err := checkFinite("distance", s.DistanceKM); err != nil {
		return PowerBreakdown{}, err
	}
	if s.WeightKG <= 0 {
		return PowerBreakdown{}, fmt.Errorf("estimate watts: %w (got %v)", ErrInvalidWeight, s.WeightKG)
	}
	if s.SpeedKmh <= 0 {
		return PowerBreakdown{}, fmt.Errorf("estimate watts: %w (got %v)", ErrNonPositiveSpeed, s.SpeedKmh)
	}
	if s.DistanceKM <= 0 {
		return PowerBreakdown{}, fmt.Errorf("estimate watts: %w (got %v)", ErrNonPositiveDistance, s.DistanceKM)
	}
	bike, err := m.Profile(s.Bike)
	if err != nil {
		return PowerBreakdown{}, fmt.Errorf("estimate watts: %w", err)
	}

	speedMps := s.SpeedKmh / kmhPerMps
	angle := math.Atan(s.GradientPct / 100)
	totalMass := s.WeightKG + bike.FrameMassKG

	b := PowerBreakdown{
		TotalMassKG:  totalMass,
		SpeedMps:     speedMps,
		SlopeRadians: angle,
		AirWatts:     0.5 * bike.CdA * m.airDensity * speedMps * speedMps * speedMps,
		GravityWatts: totalMass * m.gravity * speedMps * math.Sin(angle),
		RollingWatts: totalMass * m.gravity * speedMps * bike.Crr,
	}
	b.TotalWatts = b.AirWatts + b.GravityWatts + b.RollingWatts
	b.SegmentMinutes = (s.DistanceKM / s.SpeedKmh) * minutesPerHour

	// Finite inputs can still overflow the cubic air term or round the
	// segment time down to nothing.
	est := b.Estimate()
	if !isFinite(est.PowerWatts) {
		return PowerBreakdown{}, fmt.Errorf("estimate watts: power %w (got %v)", ErrOutOfRange, b.TotalWatts)
	}
	if !isFinite(est.SegmentMinutes) || est.SegmentMinutes <= 0 {
		return PowerBreakdown{}, fmt.Errorf("estimate watts: segment time %w (got %v min)", ErrOutOfRange, b.SegmentMinutes)
	}
	return b, nil
}

// EstimateWatts runs the estimate against DefaultModel.
func EstimateWatts(weightKG, speedKmh, gradientPct float64, bike BikeCategory, distanceKM float64) (PowerEstimate, error) {
	return defaultModel.EstimateWatts(weightKG, speedKmh, gradientPct, bike, distanceKM)
}

func checkFinite(field string, v float64) error {
	if !isFinite(v) {
		return fmt.Errorf("%s: %w (got %v)", field, ErrNonFinite, v)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
