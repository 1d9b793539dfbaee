package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	segmentpower "github.com/lucasjlepore/segment-power"
	"github.com/lucasjlepore/segment-power/config"
	"github.com/lucasjlepore/segment-power/internal/log"
	"github.com/lucasjlepore/segment-power/pipeline"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.CommandLine
	config.AddFlags(fs)
	var (
		fitPath   = fs.String("fit", "", "Path to an input .fit ride (optional)")
		outDir    = fs.String("out", "", "Output directory")
		weight    = fs.Float64("weight", 0, "Rider weight in kg")
		speed     = fs.Float64("speed", 0, "Average speed in km/h (without --fit)")
		gradient  = fs.Float64("gradient", 0, "Average gradient in percent (without --fit)")
		distance  = fs.Float64("distance", 0, "Segment distance in km (without --fit)")
		bike      = fs.String("bike", "road", "Bike type: road|MTB|TT")
		improve   = fs.Float64("improve", 0, "Minutes to take off the estimated time")
		startKM   = fs.Float64("start-km", 0, "Start of the ride window in km")
		endKM     = fs.Float64("end-km", 0, "End of the ride window in km, 0 for the end of the ride")
		overwrite = fs.Bool("overwrite", true, "Allow writing into non-empty output directories")
	)
	fs.String("format", "parquet", "Improvement plan format: parquet|csv")
	fs.Float64("step", pipeline.DefaultPlanStep, "Improvement plan step in minutes")
	fs.Bool("emoji", false, "Decorate summary notes with emoji")
	fs.Bool("breakdown", false, "Include the air/gravity/rolling split in the summary")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s --out outdir --weight 70 (--fit ride.fit | --speed 25 --gradient 5 --distance 5) [--bike road] [--format parquet|csv]\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	pflag.Parse()

	if strings.TrimSpace(*outDir) == "" || *weight <= 0 {
		pflag.Usage()
		os.Exit(2)
	}

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-plan: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(log.Options{
		Debug:      cfg.Log.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-plan: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	category, err := segmentpower.ParseBikeCategory(*bike)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-plan: %v\n", err)
		os.Exit(2)
	}
	h, err := cfg.Handler()
	if err != nil {
		log.Fatalf("build handler: %v", err)
	}

	result, err := pipeline.Run(pipeline.Options{
		FitPath: *fitPath,
		Window:  segmentpower.SegmentOptions{StartKM: *startKM, EndKM: *endKM},
		Request: segmentpower.Request{
			Segment: segmentpower.Segment{
				WeightKG:    *weight,
				SpeedKmh:    *speed,
				GradientPct: *gradient,
				Bike:        category,
				DistanceKM:  *distance,
			},
			ImprovementMinutes: *improve,
		},
		OutDir:      *outDir,
		Format:      cfg.Plan.Format,
		StepMinutes: cfg.Plan.StepMinutes,
		Overwrite:   *overwrite,
		Notes:       cfg.NoteStyle(),
		Handler:     h,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-plan failed: %v\n", err)
		os.Exit(1)
	}
	log.Infow("plan written", "out", result.OutputDir, "rows", result.PlanRows)

	fmt.Printf("segmentpower-plan complete\n")
	fmt.Printf("Output dir:        %s\n", result.OutputDir)
	fmt.Printf("estimate:          %s\n", result.EstimatePath)
	if result.SegmentPath != "" {
		fmt.Printf("ride segment:      %s\n", result.SegmentPath)
	}
	fmt.Printf("improvement plan:  %s (%d rows)\n", result.PlanPath, result.PlanRows)
	fmt.Printf("summary:           %s\n", result.SummaryPath)
	for _, w := range result.Warnings {
		fmt.Printf("warning:           %s\n", w)
	}
}
