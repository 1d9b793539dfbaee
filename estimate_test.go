package segmentpower

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateWattsReferenceClimb(t *testing.T) {
	est, err := EstimateWatts(70, 25, 5, Road, 5)
	require.NoError(t, err)
	assert.InDelta(t, 341.99, est.PowerWatts, 1e-9)
	assert.InDelta(t, 12.0, est.SegmentMinutes, 1e-9)

	b, err := DefaultModel().Breakdown(Segment{WeightKG: 70, SpeedKmh: 25, GradientPct: 5, Bike: Road, DistanceKM: 5})
	require.NoError(t, err)
	assert.InDelta(t, 78.0, b.TotalMassKG, 1e-9)
	assert.InDelta(t, 6.944, b.SpeedMps, 1e-3)
	assert.InDelta(t, 0.04996, b.SlopeRadians, 1e-5)
	assert.InDelta(t, 55.38, b.AirWatts, 0.01)
	assert.InDelta(t, 265.36, b.GravityWatts, 0.01)
	assert.InDelta(t, 21.26, b.RollingWatts, 0.01)
}

func TestEstimateWattsPerCategory(t *testing.T) {
	tests := []struct {
		name     string
		weight   float64
		speed    float64
		gradient float64
		bike     BikeCategory
		distance float64
		power    float64
		minutes  float64
	}{
		{"flat road", 70, 25, 0, Road, 5, 76.64, 12},
		{"mtb climb", 70, 30, 5, Mountain, 10, 530.17, 20},
		{"tt flat", 70, 40, 0, TimeTrial, 20, 220.06, 30},
		{"road descent", 70, 40, -10, Road, 5, -585.12, 7.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := EstimateWatts(tt.weight, tt.speed, tt.gradient, tt.bike, tt.distance)
			require.NoError(t, err)
			assert.InDelta(t, tt.power, est.PowerWatts, 1e-9)
			assert.InDelta(t, tt.minutes, est.SegmentMinutes, 1e-9)
		})
	}
}

func TestEstimateWattsDeterministic(t *testing.T) {
	a, err := EstimateWatts(82.5, 31.2, 3.7, TimeTrial, 12.4)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		b, err := EstimateWatts(82.5, 31.2, 3.7, TimeTrial, 12.4)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestEstimateWattsMonotonic(t *testing.T) {
	m := DefaultModel()
	prev := math.Inf(-1)
	for g := -10.0; g <= 20; g += 0.5 {
		b, err := m.Breakdown(Segment{WeightKG: 70, SpeedKmh: 20, GradientPct: g, Bike: Road, DistanceKM: 3})
		require.NoError(t, err)
		assert.Greater(t, b.TotalWatts, prev, "gradient %v", g)
		prev = b.TotalWatts
	}

	prev = math.Inf(-1)
	for s := 5.0; s <= 80; s += 1 {
		b, err := m.Breakdown(Segment{WeightKG: 70, SpeedKmh: s, GradientPct: 2, Bike: Mountain, DistanceKM: 3})
		require.NoError(t, err)
		assert.Greater(t, b.TotalWatts, prev, "speed %v", s)
		prev = b.TotalWatts
	}
}

func TestEstimateWattsFlatHasNoGravityTerm(t *testing.T) {
	b, err := DefaultModel().Breakdown(Segment{WeightKG: 65, SpeedKmh: 33, GradientPct: 0, Bike: TimeTrial, DistanceKM: 1})
	require.NoError(t, err)
	assert.Zero(t, b.GravityWatts)
	assert.InDelta(t, b.AirWatts+b.RollingWatts, b.TotalWatts, 1e-12)
}

func TestEstimateWattsRejectsDegenerateInput(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		want error
	}{
		{"zero speed", Segment{WeightKG: 70, SpeedKmh: 0, Bike: Road, DistanceKM: 5}, ErrNonPositiveSpeed},
		{"negative speed", Segment{WeightKG: 70, SpeedKmh: -3, Bike: Road, DistanceKM: 5}, ErrNonPositiveSpeed},
		{"zero weight", Segment{WeightKG: 0, SpeedKmh: 25, Bike: Road, DistanceKM: 5}, ErrInvalidWeight},
		{"zero distance", Segment{WeightKG: 70, SpeedKmh: 25, Bike: Road, DistanceKM: 0}, ErrNonPositiveDistance},
		{"nan gradient", Segment{WeightKG: 70, SpeedKmh: 25, GradientPct: math.NaN(), Bike: Road, DistanceKM: 5}, ErrNonFinite},
		{"inf speed", Segment{WeightKG: 70, SpeedKmh: math.Inf(1), Bike: Road, DistanceKM: 5}, ErrNonFinite},
		{"unknown bike", Segment{WeightKG: 70, SpeedKmh: 25, Bike: "gravel", DistanceKM: 5}, ErrInvalidCategory},
		{"air term overflows", Segment{WeightKG: 70, SpeedKmh: 1e120, Bike: Road, DistanceKM: 5}, ErrOutOfRange},
		{"time rounds to zero", Segment{WeightKG: 70, SpeedKmh: 1e6, Bike: Road, DistanceKM: 0.01}, ErrOutOfRange},
		{"time overflows", Segment{WeightKG: 70, SpeedKmh: 1e-300, Bike: Road, DistanceKM: 1e300}, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultModel().Breakdown(tt.seg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			_, err = EstimateWatts(tt.seg.WeightKG, tt.seg.SpeedKmh, tt.seg.GradientPct, tt.seg.Bike, tt.seg.DistanceKM)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 1.25, round2(1.245000001))
	assert.Equal(t, -1.25, round2(-1.245000001))
	assert.Equal(t, 12.0, round2(12.0))
}
