package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	segmentpower "github.com/lucasjlepore/segment-power"
	"github.com/lucasjlepore/segment-power/config"
	"github.com/lucasjlepore/segment-power/internal/log"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.CommandLine
	config.AddFlags(fs)
	var (
		weight   = fs.Float64P("weight", "w", 0, "Rider weight in kg")
		speed    = fs.Float64P("speed", "s", 0, "Average speed in km/h")
		gradient = fs.Float64P("gradient", "g", 0, "Average gradient in percent")
		bike     = fs.StringP("bike", "b", "road", "Bike type: road|MTB|TT")
		distance = fs.Float64P("distance", "d", 0, "Segment distance in km")
		improve  = fs.Float64P("improve", "i", 0, "Minutes to take off the estimated time")
		fitPath  = fs.String("fit", "", "Read speed, gradient and distance from a .fit ride instead")
		startKM  = fs.Float64("start-km", 0, "Start of the ride window in km (with --fit)")
		endKM    = fs.Float64("end-km", 0, "End of the ride window in km, 0 for the end of the ride (with --fit)")
		jsonOut  = fs.Bool("json", false, "Emit the full response as JSON")
	)
	// Bound into the config by config.Load.
	fs.Bool("emoji", false, "Decorate the notes with emoji")
	fs.Bool("breakdown", false, "Show the air/gravity/rolling split")
	fs.Bool("clamp", false, "Clamp out-of-range improvement requests instead of failing")
	fs.Float64("air-density", segmentpower.DefaultAirDensity, "Air density in kg/m^3")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s --weight 70 --speed 25 --gradient 5 --distance 5 [--bike road|MTB|TT] [--improve 1]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "       %s --fit ride.fit --weight 70 [--start-km 2 --end-km 7] [--improve 1]\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	pflag.Parse()

	if *weight <= 0 || (strings.TrimSpace(*fitPath) == "" && (*speed <= 0 || *distance <= 0)) {
		pflag.Usage()
		os.Exit(2)
	}

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(log.Options{
		Debug:      cfg.Log.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	category, err := segmentpower.ParseBikeCategory(*bike)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower: %v\n", err)
		os.Exit(2)
	}
	req := segmentpower.Request{
		Segment: segmentpower.Segment{
			WeightKG:    *weight,
			SpeedKmh:    *speed,
			GradientPct: *gradient,
			Bike:        category,
			DistanceKM:  *distance,
		},
		ImprovementMinutes: *improve,
	}

	if strings.TrimSpace(*fitPath) != "" {
		ride, err := segmentpower.SegmentFromFITFile(*fitPath, segmentpower.SegmentOptions{StartKM: *startKM, EndKM: *endKM})
		if err != nil {
			log.Errorw("read ride", "fit", *fitPath, "error", err)
			os.Exit(1)
		}
		log.Debugw("ride segment", "distance_km", ride.DistanceKM, "speed_kmh", ride.SpeedKmh, "gradient_pct", ride.GradientPct, "samples", ride.Samples)
		req.Segment = ride.Segment(*weight, category)
	}

	h, err := cfg.Handler()
	if err != nil {
		log.Errorw("build handler", "error", err)
		os.Exit(1)
	}
	resp, err := h.Handle(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower: %v\n", err)
		os.Exit(1)
	}
	log.Debugw("estimate", "power_watts", resp.Estimate.PowerWatts, "segment_minutes", resp.Estimate.SegmentMinutes, "warnings", resp.Warnings)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(segmentpower.BuildNotes(resp, cfg.NoteStyle()))
}
