// Package config loads calculator settings from a config file, the
// environment and command-line flags.
package config

import (
	"fmt"
	"strings"

	segmentpower "github.com/lucasjlepore/segment-power"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SEGMENTPOWER_PHYSICS_AIR_DENSITY.
const EnvPrefix = "SEGMENTPOWER"

// Config is the full set of tunables.
type Config struct {
	Physics PhysicsConfig                       `mapstructure:"physics"`
	Bikes   map[string]segmentpower.BikeProfile `mapstructure:"bikes"`
	Limits  segmentpower.Limits                 `mapstructure:"limits"`
	Policy  segmentpower.Policy                 `mapstructure:"policy"`
	Notes   NotesConfig                         `mapstructure:"notes"`
	Plan    PlanConfig                          `mapstructure:"plan"`
	Server  ServerConfig                        `mapstructure:"server"`
	Log     LogConfig                           `mapstructure:"log"`
}

type PhysicsConfig struct {
	AirDensity float64 `mapstructure:"air_density"`
	Gravity    float64 `mapstructure:"gravity"`
}

type NotesConfig struct {
	Emoji     bool `mapstructure:"emoji"`
	Breakdown bool `mapstructure:"breakdown"`
}

type PlanConfig struct {
	StepMinutes float64 `mapstructure:"step_minutes"`
	Format      string  `mapstructure:"format"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LogConfig struct {
	Debug      bool   `mapstructure:"debug"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// flagKeys maps flag names to config keys. Only flags present in the flag
// set passed to Load are bound.
var flagKeys = map[string]string{
	"air-density": "physics.air_density",
	"emoji":       "notes.emoji",
	"breakdown":   "notes.breakdown",
	"clamp":       "policy.clamp_improvement",
	"step":        "plan.step_minutes",
	"format":      "plan.format",
	"listen":      "server.listen_addr",
	"debug":       "log.debug",
	"log-file":    "log.file",
}

// AddFlags registers the flags Load knows how to bind.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to a YAML/TOML/JSON config file")
	fs.Bool("debug", false, "Enable debug logging")
	fs.String("log-file", "", "Also write JSON logs to this file (rotated)")
}

// Load reads defaults, then path (if non-empty), then SEGMENTPOWER_* env
// vars, then any flags in fs that were set explicitly.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.Model(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("physics.air_density", segmentpower.DefaultAirDensity)
	v.SetDefault("physics.gravity", segmentpower.DefaultGravity)

	bikes := make(map[string]any)
	for cat, p := range segmentpower.DefaultBikeProfiles() {
		bikes[string(cat)] = map[string]any{
			"frame_mass_kg": p.FrameMassKG,
			"cda":           p.CdA,
			"crr":           p.Crr,
		}
	}
	v.SetDefault("bikes", bikes)

	limits := segmentpower.DefaultLimits()
	for key, b := range map[string]segmentpower.Bounds{
		"weight_kg":    limits.WeightKG,
		"speed_kmh":    limits.SpeedKmh,
		"gradient_pct": limits.GradientPct,
		"distance_km":  limits.DistanceKM,
	} {
		v.SetDefault("limits."+key+".min", b.Min)
		v.SetDefault("limits."+key+".max", b.Max)
	}

	policy := segmentpower.DefaultPolicy()
	v.SetDefault("policy.min_improvable_minutes", policy.MinImprovableMinutes)
	v.SetDefault("policy.min_improvement_minutes", policy.MinImprovementMinutes)
	v.SetDefault("policy.target_margin_minutes", policy.TargetMarginMinutes)
	v.SetDefault("policy.clamp_improvement", policy.ClampImprovement)
	v.SetDefault("policy.require_positive_target", policy.RequirePositiveTarget)

	v.SetDefault("notes.emoji", false)
	v.SetDefault("notes.breakdown", false)
	v.SetDefault("plan.step_minutes", 0.5)
	v.SetDefault("plan.format", "parquet")
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Model builds the physics model described by the config. Bike keys are
// matched case-insensitively against the known categories.
func (c *Config) Model() (*segmentpower.Model, error) {
	var bikes map[segmentpower.BikeCategory]segmentpower.BikeProfile
	if len(c.Bikes) > 0 {
		bikes = make(map[segmentpower.BikeCategory]segmentpower.BikeProfile, len(c.Bikes))
		for key, p := range c.Bikes {
			cat, err := segmentpower.ParseBikeCategory(key)
			if err != nil {
				return nil, fmt.Errorf("config bikes.%s: %w", key, err)
			}
			bikes[cat] = p
		}
	}
	m, err := segmentpower.NewModel(segmentpower.ModelConfig{
		AirDensity: c.Physics.AirDensity,
		Gravity:    c.Physics.Gravity,
		Bikes:      bikes,
	})
	if err != nil {
		return nil, fmt.Errorf("config physics: %w", err)
	}
	return m, nil
}

// Handler builds a request handler from the config.
func (c *Config) Handler() (*segmentpower.Handler, error) {
	m, err := c.Model()
	if err != nil {
		return nil, err
	}
	return &segmentpower.Handler{
		Model:  m,
		Limits: c.Limits,
		Policy: c.Policy,
	}, nil
}

// NoteStyle returns the configured rendering style.
func (c *Config) NoteStyle() segmentpower.NoteStyle {
	return segmentpower.NoteStyle{Emoji: c.Notes.Emoji, Breakdown: c.Notes.Breakdown}
}
