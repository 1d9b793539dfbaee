package pipeline

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	segmentpower "github.com/lucasjlepore/segment-power"
	"github.com/tormoder/fit"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
)

func referenceRequest() segmentpower.Request {
	return segmentpower.Request{
		Segment: segmentpower.Segment{
			WeightKG:    70,
			SpeedKmh:    25,
			GradientPct: 5,
			Bike:        segmentpower.Road,
			DistanceKM:  5,
		},
		ImprovementMinutes: 1,
	}
}

// climbFIT encodes 2 km at 18 km/h climbing 4%.
func climbFIT(t *testing.T) []byte {
	t.Helper()
	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	start := time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i <= 20; i++ {
		rec := fit.NewRecordMsg()
		rec.Timestamp = start.Add(time.Duration(i*20) * time.Second)
		rec.Distance = uint32(i * 100 * 100)
		rec.Altitude = uint16((100 + 4*i + 500) * 5)
		activity.Records = append(activity.Records, rec)
	}
	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func readPlanParquet(t *testing.T, fr source.ParquetFile) []planParquetRow {
	t.Helper()
	pr, err := reader.NewParquetReader(fr, new(planParquetRow), 1)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	defer pr.ReadStop()
	rows := make([]planParquetRow, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	return rows
}

func TestRunWritesCSVArtifacts(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	res, err := Run(Options{
		Request: referenceRequest(),
		OutDir:  outDir,
		Format:  "csv",
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.SegmentPath != "" {
		t.Fatalf("segment.json should only be written for ride input, got %q", res.SegmentPath)
	}

	var estimate EstimateFileContent
	data, err := os.ReadFile(res.EstimatePath)
	if err != nil {
		t.Fatalf("read estimate: %v", err)
	}
	if err := json.Unmarshal(data, &estimate); err != nil {
		t.Fatalf("unmarshal estimate: %v", err)
	}
	if estimate.Response.Estimate.PowerWatts != 341.99 {
		t.Fatalf("power_watts = %v, want 341.99", estimate.Response.Estimate.PowerWatts)
	}
	if estimate.Response.Improvement == nil || estimate.Response.Improvement.TargetWatts != 373.08 {
		t.Fatalf("unexpected improvement: %+v", estimate.Response.Improvement)
	}
	if len(estimate.Notes) != 4 {
		t.Fatalf("expected 4 note lines, got %d: %q", len(estimate.Notes), estimate.Notes)
	}

	f, err := os.Open(res.PlanPath)
	if err != nil {
		t.Fatalf("open plan: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read plan csv: %v", err)
	}
	for i, col := range planHeader {
		if rows[0][i] != col {
			t.Fatalf("header column %d: got %q want %q", i, rows[0][i], col)
		}
	}
	if len(rows)-1 != res.PlanRows || res.PlanRows != 25 {
		t.Fatalf("plan rows: csv=%d result=%d, want 25", len(rows)-1, res.PlanRows)
	}
	if rows[1][0] != "0.1" || rows[len(rows)-1][0] != "11.9" {
		t.Fatalf("plan should span 0.1..11.9, got %s..%s", rows[1][0], rows[len(rows)-1][0])
	}

	summary, err := os.ReadFile(res.SummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(summary), "Estimated average power: 341.99 watts.") {
		t.Fatalf("summary missing estimate line:\n%s", summary)
	}
	if !strings.Contains(string(summary), "## Improvement plan") {
		t.Fatalf("summary missing plan table:\n%s", summary)
	}
}

func TestRunFromFITWritesParquet(t *testing.T) {
	dir := t.TempDir()
	fitPath := filepath.Join(dir, "climb.fit")
	if err := os.WriteFile(fitPath, climbFIT(t), 0o644); err != nil {
		t.Fatalf("write fit: %v", err)
	}

	req := segmentpower.Request{Segment: segmentpower.Segment{WeightKG: 70, Bike: segmentpower.Mountain}}
	res, err := Run(Options{
		FitPath:     fitPath,
		Request:     req,
		OutDir:      filepath.Join(dir, "out"),
		StepMinutes: 1,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if filepath.Ext(res.PlanPath) != ".parquet" {
		t.Fatalf("default format should be parquet, got %s", res.PlanPath)
	}

	var ride segmentpower.RideSegment
	data, err := os.ReadFile(res.SegmentPath)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if err := json.Unmarshal(data, &ride); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
	if ride.SpeedKmh < 17.99 || ride.SpeedKmh > 18.01 {
		t.Fatalf("speed = %v, want 18", ride.SpeedKmh)
	}

	fr, err := local.NewLocalFileReader(res.PlanPath)
	if err != nil {
		t.Fatalf("open parquet file: %v", err)
	}
	defer fr.Close()
	rows := readPlanParquet(t, fr)
	if len(rows) != res.PlanRows || len(rows) == 0 {
		t.Fatalf("parquet rows = %d, result rows = %d", len(rows), res.PlanRows)
	}
	// 2 km at 18 km/h is 6.67 minutes, so the window tops out at 6.57.
	last := rows[len(rows)-1]
	if last.ImprovementMinutes != 6.57 {
		t.Fatalf("last improvement = %v, want 6.57", last.ImprovementMinutes)
	}
	if last.TargetWatts <= rows[0].TargetWatts {
		t.Fatalf("target power should grow with the improvement: %v <= %v", last.TargetWatts, rows[0].TargetWatts)
	}
}

func TestRunRefusesNonEmptyDir(t *testing.T) {
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(Options{Request: referenceRequest(), OutDir: outDir}); err == nil {
		t.Fatalf("expected error for non-empty output directory")
	}
	if _, err := Run(Options{Request: referenceRequest(), OutDir: outDir, Overwrite: true}); err != nil {
		t.Fatalf("Run() with overwrite: %v", err)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	if _, err := Run(Options{Request: referenceRequest()}); err == nil {
		t.Fatalf("expected error without output directory")
	}
	if _, err := Run(Options{Request: referenceRequest(), OutDir: t.TempDir(), Format: "xlsx"}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	req := referenceRequest()
	req.Bike = "gravel"
	if _, err := Run(Options{Request: req, OutDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for unknown bike")
	}
}

func TestRunBytesProducesArtifacts(t *testing.T) {
	req := segmentpower.Request{Segment: segmentpower.Segment{WeightKG: 70, Bike: segmentpower.Road}, ImprovementMinutes: 1}
	res, err := RunBytes(BytesOptions{
		SourceFileName: "climb.fit",
		FitData:        climbFIT(t),
		Request:        req,
		Notes:          segmentpower.NoteStyle{Emoji: true},
	})
	if err != nil {
		t.Fatalf("RunBytes() error: %v", err)
	}

	for _, name := range []string{EstimateFile, SegmentFile, PlanFileBase + ".parquet", SummaryFile} {
		if len(res.Files[name]) == 0 {
			t.Fatalf("missing artifact %s", name)
		}
	}
	if res.Response == nil || res.Response.Improvement == nil {
		t.Fatalf("expected an improvement in the response")
	}

	var estimate EstimateFileContent
	if err := json.Unmarshal(res.Files[EstimateFile], &estimate); err != nil {
		t.Fatalf("unmarshal estimate: %v", err)
	}
	if estimate.Source != "climb.fit" {
		t.Fatalf("source = %q", estimate.Source)
	}
	if !strings.Contains(estimate.Notes[0], "⚡") {
		t.Fatalf("emoji style not applied: %q", estimate.Notes[0])
	}

	fr := parquetbuffer.NewBufferFileFromBytes(res.Files[PlanFileBase+".parquet"])
	rows := readPlanParquet(t, fr)
	if len(rows) == 0 {
		t.Fatalf("expected plan rows in parquet buffer")
	}
}

func TestRunBytesDescentWarns(t *testing.T) {
	req := segmentpower.Request{
		Segment: segmentpower.Segment{WeightKG: 70, SpeedKmh: 40, GradientPct: -10, Bike: segmentpower.Road, DistanceKM: 5},
	}
	res, err := RunBytes(BytesOptions{Request: req, Format: "csv"})
	if err != nil {
		t.Fatalf("RunBytes() error: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != segmentpower.WarnNoPowerToScale {
		t.Fatalf("warnings = %q", res.Warnings)
	}
	if _, ok := res.Files[SegmentFile]; ok {
		t.Fatalf("segment.json should be absent without ride data")
	}
	lines := strings.Split(strings.TrimSpace(string(res.Files[PlanFileBase+".csv"])), "\n")
	if len(lines) != 1 {
		t.Fatalf("descent plan should be header only, got %d lines", len(lines))
	}
}

func TestRunBytesRejectsSubHundredthStep(t *testing.T) {
	for _, step := range []float64{1e-12, 0.004, -1} {
		_, err := RunBytes(BytesOptions{Request: referenceRequest(), Format: "csv", StepMinutes: step})
		if !errors.Is(err, segmentpower.ErrInvalidStep) {
			t.Fatalf("step %v: expected ErrInvalidStep, got %v", step, err)
		}
	}
}
