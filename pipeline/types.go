package pipeline

import (
	segmentpower "github.com/lucasjlepore/segment-power"
)

// Artifact file names.
const (
	EstimateFile    = "estimate.json"
	SegmentFile     = "segment.json"
	PlanFileBase    = "improvement_plan"
	SummaryFile     = "summary.md"
	DefaultPlanStep = 0.5
)

// Options configures a pipeline run that writes to OutDir.
type Options struct {
	// FitPath is optional. When set, speed, gradient and distance come
	// from the recorded ride and only weight and bike are taken from
	// Request.
	FitPath string
	Window  segmentpower.SegmentOptions

	Request     segmentpower.Request
	OutDir      string
	Format      string // parquet|csv
	StepMinutes float64
	Overwrite   bool
	Notes       segmentpower.NoteStyle

	// Handler defaults to segmentpower.NewHandler().
	Handler *segmentpower.Handler
}

// Result returns generated output paths.
type Result struct {
	OutputDir    string   `json:"output_dir"`
	EstimatePath string   `json:"estimate_path"`
	SegmentPath  string   `json:"segment_path,omitempty"`
	PlanPath     string   `json:"plan_path"`
	SummaryPath  string   `json:"summary_path"`
	PlanRows     int      `json:"plan_rows"`
	Warnings     []string `json:"warnings,omitempty"`
}

// BytesOptions configures an in-memory run.
type BytesOptions struct {
	SourceFileName string
	FitData        []byte
	Window         segmentpower.SegmentOptions

	Request     segmentpower.Request
	Format      string
	StepMinutes float64
	Notes       segmentpower.NoteStyle
	Handler     *segmentpower.Handler
}

// BytesResult holds the artifacts keyed by file name.
type BytesResult struct {
	Files    map[string][]byte
	Response *segmentpower.Response
	Warnings []string
}

// EstimateFileContent is the estimate.json document.
type EstimateFileContent struct {
	Source   string                 `json:"source,omitempty"`
	Response *segmentpower.Response `json:"response"`
	Notes    []string               `json:"notes"`
}
