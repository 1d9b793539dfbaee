// Package pipeline writes an estimate, the derived ride segment and an
// improvement plan as files.
package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	segmentpower "github.com/lucasjlepore/segment-power"
)

// Run executes the pipeline and writes all artifacts to opts.OutDir.
func Run(opts Options) (*Result, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	var ride *segmentpower.RideSegment
	if strings.TrimSpace(opts.FitPath) != "" {
		ride, err = segmentpower.SegmentFromFITFile(opts.FitPath, opts.Window)
		if err != nil {
			return nil, err
		}
	}

	out, err := analyze(opts.Handler, opts.Request, ride, opts.StepMinutes)
	if err != nil {
		return nil, err
	}

	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}

	estimatePath := filepath.Join(opts.OutDir, EstimateFile)
	if err := writeJSON(estimatePath, out.estimateFile(opts.FitPath, opts.Notes)); err != nil {
		return nil, fmt.Errorf("write %s: %w", EstimateFile, err)
	}

	segmentPath := ""
	if ride != nil {
		segmentPath = filepath.Join(opts.OutDir, SegmentFile)
		if err := writeJSON(segmentPath, ride); err != nil {
			return nil, fmt.Errorf("write %s: %w", SegmentFile, err)
		}
	}

	planPath := filepath.Join(opts.OutDir, PlanFileBase+"."+format)
	switch format {
	case "csv":
		if err := writePlanCSV(planPath, out.plan); err != nil {
			return nil, fmt.Errorf("write plan csv: %w", err)
		}
	case "parquet":
		if err := writePlanParquet(planPath, out.plan); err != nil {
			return nil, fmt.Errorf("write plan parquet: %w", err)
		}
	}

	summaryPath := filepath.Join(opts.OutDir, SummaryFile)
	if err := os.WriteFile(summaryPath, renderSummary(out, ride, opts.Notes), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", SummaryFile, err)
	}

	return &Result{
		OutputDir:    opts.OutDir,
		EstimatePath: estimatePath,
		SegmentPath:  segmentPath,
		PlanPath:     planPath,
		SummaryPath:  summaryPath,
		PlanRows:     len(out.plan),
		Warnings:     out.warnings,
	}, nil
}

// RunBytes runs the pipeline without touching the filesystem.
func RunBytes(opts BytesOptions) (*BytesResult, error) {
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	var ride *segmentpower.RideSegment
	if len(opts.FitData) > 0 {
		ride, err = segmentpower.SegmentFromFIT(bytes.NewReader(opts.FitData), opts.Window)
		if err != nil {
			return nil, err
		}
	}

	out, err := analyze(opts.Handler, opts.Request, ride, opts.StepMinutes)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte, 4)
	estimate, err := marshalJSON(out.estimateFile(opts.SourceFileName, opts.Notes))
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", EstimateFile, err)
	}
	files[EstimateFile] = estimate

	if ride != nil {
		seg, err := marshalJSON(ride)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", SegmentFile, err)
		}
		files[SegmentFile] = seg
	}

	var plan []byte
	switch format {
	case "csv":
		var buf bytes.Buffer
		err = encodePlanCSV(&buf, out.plan)
		plan = buf.Bytes()
	case "parquet":
		plan, err = marshalPlanParquet(out.plan)
	}
	if err != nil {
		return nil, fmt.Errorf("encode plan %s: %w", format, err)
	}
	files[PlanFileBase+"."+format] = plan
	files[SummaryFile] = renderSummary(out, ride, opts.Notes)

	return &BytesResult{
		Files:    files,
		Response: out.resp,
		Warnings: out.warnings,
	}, nil
}

type analysis struct {
	resp     *segmentpower.Response
	plan     []segmentpower.PlanRow
	warnings []string
}

func analyze(h *segmentpower.Handler, req segmentpower.Request, ride *segmentpower.RideSegment, step float64) (*analysis, error) {
	if h == nil {
		h = segmentpower.NewHandler()
	}
	if step == 0 {
		step = DefaultPlanStep
	}
	if ride != nil {
		req.Segment = ride.Segment(req.WeightKG, req.Bike)
	}

	resp, err := h.Handle(req)
	if err != nil {
		return nil, err
	}
	out := &analysis{resp: resp, warnings: append([]string(nil), resp.Warnings...)}

	plan, err := segmentpower.BuildImprovementPlan(resp.Estimate, req.WeightKG, step, h.Policy)
	switch {
	case errors.Is(err, segmentpower.ErrNonPositivePower):
		if !contains(out.warnings, segmentpower.WarnNoPowerToScale) {
			out.warnings = append(out.warnings, segmentpower.WarnNoPowerToScale)
		}
	case err != nil:
		return nil, fmt.Errorf("build improvement plan: %w", err)
	}
	out.plan = plan
	return out, nil
}

func (a *analysis) estimateFile(source string, style segmentpower.NoteStyle) EstimateFileContent {
	out := EstimateFileContent{
		Response: a.resp,
		Notes:    strings.Split(segmentpower.BuildNotes(a.resp, style), "\n"),
	}
	if source != "" {
		out.Source = filepath.Base(source)
	}
	return out
}

func renderSummary(a *analysis, ride *segmentpower.RideSegment, style segmentpower.NoteStyle) []byte {
	var b bytes.Buffer
	b.WriteString("# Segment power estimate\n\n")
	b.WriteString(segmentpower.BuildNotes(a.resp, style))
	b.WriteString("\n")

	if ride != nil {
		fmt.Fprintf(&b, "\n## Ride segment\n\n")
		fmt.Fprintf(&b, "- Distance: %.2f km\n", ride.DistanceKM)
		fmt.Fprintf(&b, "- Average speed: %.2f km/h\n", ride.SpeedKmh)
		fmt.Fprintf(&b, "- Average gradient: %.2f %%\n", ride.GradientPct)
		fmt.Fprintf(&b, "- Elevation gain: %.0f m\n", ride.ElevationGainM)
		fmt.Fprintf(&b, "- Samples: %d\n", ride.Samples)
	}

	if len(a.plan) > 0 {
		b.WriteString("\n## Improvement plan\n\n")
		b.WriteString("| Improvement (min) | Target (min) | Power (W) | Increase (W) | W/kg |\n")
		b.WriteString("|---:|---:|---:|---:|---:|\n")
		for _, r := range a.plan {
			fmt.Fprintf(&b, "| %.2f | %.2f | %.2f | %.2f | %.2f |\n",
				r.ImprovementMinutes, r.TargetMinutes, r.TargetWatts, r.WattIncrease, r.WattsPerKG)
		}
	}
	return b.Bytes()
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	return format, nil
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
