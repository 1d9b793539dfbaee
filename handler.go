package segmentpower

import (
	"fmt"
	"math"
)

// Bounds is an inclusive [Min, Max] range for one form field.
type Bounds struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

func (b Bounds) contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Limits are the ranges the input form accepts.
type Limits struct {
	WeightKG    Bounds `json:"weight_kg" mapstructure:"weight_kg"`
	SpeedKmh    Bounds `json:"speed_kmh" mapstructure:"speed_kmh"`
	GradientPct Bounds `json:"gradient_pct" mapstructure:"gradient_pct"`
	DistanceKM  Bounds `json:"distance_km" mapstructure:"distance_km"`
}

// DefaultLimits returns the accepted input ranges of the calculator form.
func DefaultLimits() Limits {
	return Limits{
		WeightKG:    Bounds{Min: 30, Max: 150},
		SpeedKmh:    Bounds{Min: 5, Max: 80},
		GradientPct: Bounds{Min: -10, Max: 20},
		DistanceKM:  Bounds{Min: 0.1, Max: 50},
	}
}

// Policy decides how improvement requests that are out of range or
// degenerate are treated.
type Policy struct {
	// MinImprovableMinutes: segments at or below this estimated time are not
	// offered an improvement.
	MinImprovableMinutes float64 `json:"min_improvable_minutes" mapstructure:"min_improvable_minutes"`

	MinImprovementMinutes float64 `json:"min_improvement_minutes" mapstructure:"min_improvement_minutes"`

	// TargetMarginMinutes is the smallest target time left after improving.
	TargetMarginMinutes float64 `json:"target_margin_minutes" mapstructure:"target_margin_minutes"`

	// ClampImprovement pulls out-of-range requests into the window instead of
	// returning a RangeError.
	ClampImprovement bool `json:"clamp_improvement" mapstructure:"clamp_improvement"`

	RequirePositiveTarget bool `json:"require_positive_target" mapstructure:"require_positive_target"`
}

// DefaultPolicy rejects out-of-range requests and non-positive targets.
func DefaultPolicy() Policy {
	return Policy{
		MinImprovableMinutes:  1.1,
		MinImprovementMinutes: 0.1,
		TargetMarginMinutes:   0.1,
		RequirePositiveTarget: true,
	}
}

// ImprovementWindow returns the accepted improvement range for a segment
// time, and false when the segment is too short to improve.
func (p Policy) ImprovementWindow(segmentMinutes float64) (Bounds, bool) {
	if segmentMinutes <= p.MinImprovableMinutes {
		return Bounds{}, false
	}
	hi := segmentMinutes - p.TargetMarginMinutes
	lo := p.MinImprovementMinutes
	if hi < lo {
		hi = lo
	}
	return Bounds{Min: lo, Max: hi}, true
}

// Request is one submission of the calculator form.
type Request struct {
	Segment
	// ImprovementMinutes is how much faster the rider wants to be; zero means
	// no improvement was asked for.
	ImprovementMinutes float64 `json:"improvement_minutes,omitempty" msgpack:"improvement_minutes,omitempty"`
}

// Response is everything the presentation layer shows for a Request.
type Response struct {
	Request            Request            `json:"request" msgpack:"request"`
	Estimate           PowerEstimate      `json:"estimate" msgpack:"estimate"`
	Breakdown          PowerBreakdown     `json:"breakdown" msgpack:"breakdown"`
	ImprovementMinutes float64            `json:"improvement_minutes,omitempty" msgpack:"improvement_minutes,omitempty"`
	Improvement        *ImprovementResult `json:"improvement,omitempty" msgpack:"improvement,omitempty"`
	Warnings           []string           `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

const (
	WarnTooShort        = "estimated time is too short to improve further"
	WarnNonPositive     = "the desired time must be greater than zero"
	WarnNoPowerToScale  = "estimated power is not positive (descending); improvement cannot be scaled"
	WarnImprovementClip = "improvement minutes were clamped to the allowed range"
)

// Handler turns form submissions into responses. It holds no per-request
// state and may be shared.
type Handler struct {
	Model  *Model
	Limits Limits
	Policy Policy
}

// NewHandler returns a Handler using the default model, limits and policy.
func NewHandler() *Handler {
	return &Handler{
		Model:  DefaultModel(),
		Limits: DefaultLimits(),
		Policy: DefaultPolicy(),
	}
}

// Validate checks req against the form limits.
func (h *Handler) Validate(req Request) error {
	fields := []struct {
		name string
		v    float64
		b    Bounds
	}{
		{"weight_kg", req.WeightKG, h.Limits.WeightKG},
		{"speed_kmh", req.SpeedKmh, h.Limits.SpeedKmh},
		{"gradient_pct", req.GradientPct, h.Limits.GradientPct},
		{"distance_km", req.DistanceKM, h.Limits.DistanceKM},
	}
	for _, f := range fields {
		if !isFinite(f.v) || !f.b.contains(f.v) {
			return &InputError{Field: f.name, Value: f.v, Min: f.b.Min, Max: f.b.Max}
		}
	}
	if math.IsNaN(req.ImprovementMinutes) || req.ImprovementMinutes < 0 {
		return &InputError{Field: "improvement_minutes", Value: req.ImprovementMinutes, Min: 0, Max: math.Inf(1)}
	}
	return nil
}

// Handle validates req, estimates power and, when asked, the improvement.
func (h *Handler) Handle(req Request) (*Response, error) {
	if err := h.Validate(req); err != nil {
		return nil, err
	}
	model := h.Model
	if model == nil {
		model = DefaultModel()
	}

	breakdown, err := model.Breakdown(req.Segment)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Request:   req,
		Estimate:  breakdown.Estimate(),
		Breakdown: breakdown,
	}
	if req.ImprovementMinutes == 0 {
		return resp, nil
	}

	window, ok := h.Policy.ImprovementWindow(resp.Estimate.SegmentMinutes)
	if !ok {
		resp.Warnings = append(resp.Warnings, WarnTooShort)
		return resp, nil
	}
	improvement := req.ImprovementMinutes
	if !window.contains(improvement) {
		if !h.Policy.ClampImprovement {
			return nil, &RangeError{ImprovementMinutes: improvement, Min: window.Min, Max: window.Max}
		}
		improvement = math.Min(math.Max(improvement, window.Min), window.Max)
		resp.Warnings = append(resp.Warnings, WarnImprovementClip)
	}
	resp.ImprovementMinutes = improvement

	desired := round2(resp.Estimate.SegmentMinutes - improvement)
	if desired <= 0 && h.Policy.RequirePositiveTarget {
		resp.Warnings = append(resp.Warnings, WarnNonPositive)
		return resp, nil
	}
	if resp.Estimate.PowerWatts <= 0 {
		resp.Warnings = append(resp.Warnings, WarnNoPowerToScale)
		return resp, nil
	}

	result, err := model.CalculateImprovement(resp.Estimate.PowerWatts, resp.Estimate.SegmentMinutes, desired, req.WeightKG)
	if err != nil {
		return nil, fmt.Errorf("improvement: %w", err)
	}
	resp.Improvement = &result
	return resp, nil
}
