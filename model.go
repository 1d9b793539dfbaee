package segmentpower

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultAirDensity is sea-level air density in kg/m^3.
	DefaultAirDensity = 1.225
	// DefaultGravity is gravitational acceleration in m/s^2.
	DefaultGravity = 9.81

	kmhPerMps      = 3.6
	minutesPerHour = 60.0
)

// BikeCategory identifies a row of the bike profile table.
type BikeCategory string

const (
	Road      BikeCategory = "road"
	Mountain  BikeCategory = "MTB"
	TimeTrial BikeCategory = "TT"
)

// ParseBikeCategory accepts the wire values plus a few spelled-out aliases.
func ParseBikeCategory(s string) (BikeCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "road":
		return Road, nil
	case "mtb", "mountain":
		return Mountain, nil
	case "tt", "timetrial", "time_trial", "time-trial":
		return TimeTrial, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// BikeProfile holds the per-category physical parameters.
type BikeProfile struct {
	FrameMassKG float64 `json:"frame_mass_kg" msgpack:"frame_mass_kg" mapstructure:"frame_mass_kg"`
	CdA         float64 `json:"cda_m2" msgpack:"cda_m2" mapstructure:"cda"`
	Crr         float64 `json:"crr" msgpack:"crr" mapstructure:"crr"`
}

// DefaultBikeProfiles returns a fresh copy of the built-in table. MTB and TT
// share the 12 kg frame mass: anything that is not a road bike weighs 12 kg.
func DefaultBikeProfiles() map[BikeCategory]BikeProfile {
	return map[BikeCategory]BikeProfile{
		Road:      {FrameMassKG: 8, CdA: 0.27, Crr: 0.004},
		Mountain:  {FrameMassKG: 12, CdA: 0.40, Crr: 0.008},
		TimeTrial: {FrameMassKG: 12, CdA: 0.23, Crr: 0.003},
	}
}

// Model bundles the physical constants and bike table used by every
// calculation. A Model is immutable once built and safe to share.
type Model struct {
	airDensity float64
	gravity    float64
	bikes      map[BikeCategory]BikeProfile
}

// ModelConfig is the injectable form of a Model. Zero constants fall back to
// the defaults; a nil Bikes map uses DefaultBikeProfiles.
type ModelConfig struct {
	AirDensity float64
	Gravity    float64
	Bikes      map[BikeCategory]BikeProfile
}

// NewModel validates cfg and freezes it into a Model.
func NewModel(cfg ModelConfig) (*Model, error) {
	m := &Model{
		airDensity: cfg.AirDensity,
		gravity:    cfg.Gravity,
	}
	if m.airDensity == 0 {
		m.airDensity = DefaultAirDensity
	}
	if m.gravity == 0 {
		m.gravity = DefaultGravity
	}
	if !isFinite(m.airDensity) || m.airDensity < 0 {
		return nil, fmt.Errorf("air density must be a non-negative number, got %v", m.airDensity)
	}
	if !isFinite(m.gravity) || m.gravity < 0 {
		return nil, fmt.Errorf("gravity must be a non-negative number, got %v", m.gravity)
	}

	src := cfg.Bikes
	if src == nil {
		src = DefaultBikeProfiles()
	}
	if len(src) == 0 {
		return nil, fmt.Errorf("bike profile table is empty")
	}
	m.bikes = make(map[BikeCategory]BikeProfile, len(src))
	for cat, p := range src {
		if !isFinite(p.FrameMassKG) || p.FrameMassKG < 0 {
			return nil, fmt.Errorf("bike %q: frame mass must be >= 0, got %v", cat, p.FrameMassKG)
		}
		if !isFinite(p.CdA) || p.CdA < 0 {
			return nil, fmt.Errorf("bike %q: CdA must be >= 0, got %v", cat, p.CdA)
		}
		if !isFinite(p.Crr) || p.Crr < 0 {
			return nil, fmt.Errorf("bike %q: Crr must be >= 0, got %v", cat, p.Crr)
		}
		m.bikes[cat] = p
	}
	return m, nil
}

var defaultModel = mustModel(NewModel(ModelConfig{}))

func mustModel(m *Model, err error) *Model {
	if err != nil {
		panic("segmentpower: default model: " + err.Error())
	}
	return m
}

// DefaultModel returns the model built from the built-in constants and table.
func DefaultModel() *Model {
	return defaultModel
}

// AirDensity returns rho in kg/m^3.
func (m *Model) AirDensity() float64 { return m.airDensity }

// Gravity returns g in m/s^2.
func (m *Model) Gravity() float64 { return m.gravity }

// Profile looks up the bike profile for cat.
func (m *Model) Profile(cat BikeCategory) (BikeProfile, error) {
	p, ok := m.bikes[cat]
	if !ok {
		return BikeProfile{}, fmt.Errorf("%w: %q", ErrInvalidCategory, cat)
	}
	return p, nil
}

// Categories lists the categories known to the model in a stable order.
func (m *Model) Categories() []BikeCategory {
	out := make([]BikeCategory, 0, len(m.bikes))
	for cat := range m.bikes {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Profiles returns a copy of the bike table.
func (m *Model) Profiles() map[BikeCategory]BikeProfile {
	out := make(map[BikeCategory]BikeProfile, len(m.bikes))
	for k, v := range m.bikes {
		out[k] = v
	}
	return out
}
