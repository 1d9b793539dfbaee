//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"syscall/js"
	"time"

	segmentpower "github.com/lucasjlepore/segment-power"
	"github.com/lucasjlepore/segment-power/pipeline"
)

func main() {
	js.Global().Set("estimateSegment", js.FuncOf(estimateSegment))
	select {}
}

// estimateSegment(fitBytes Uint8Array|null, options object). Without ride
// bytes, speed_kmh, gradient_pct and distance_km must be given in options.
func estimateSegment(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return map[string]any{
			"ok":    false,
			"error": "expected arguments: fileBytes(Uint8Array|null), options(object)",
		}
	}
	fileArg := args[0]
	optsArg := args[1]

	var fitData []byte
	if !fileArg.IsUndefined() && !fileArg.IsNull() && fileArg.Get("length").Int() > 0 {
		fitData = make([]byte, fileArg.Get("length").Int())
		if n := js.CopyBytesToGo(fitData, fileArg); n == 0 {
			return map[string]any{
				"ok":    false,
				"error": "failed to read FIT bytes from JS input",
			}
		}
	}

	bike, err := segmentpower.ParseBikeCategory(getString(optsArg, "bike", "road"))
	if err != nil {
		return map[string]any{
			"ok":    false,
			"error": err.Error(),
		}
	}

	opts := pipeline.BytesOptions{
		SourceFileName: getString(optsArg, "source_file_name", "input.fit"),
		FitData:        fitData,
		Window: segmentpower.SegmentOptions{
			StartKM: getFloat(optsArg, "start_km"),
			EndKM:   getFloat(optsArg, "end_km"),
		},
		Request: segmentpower.Request{
			Segment: segmentpower.Segment{
				WeightKG:    getFloat(optsArg, "weight_kg"),
				SpeedKmh:    getFloat(optsArg, "speed_kmh"),
				GradientPct: getFloat(optsArg, "gradient_pct"),
				Bike:        bike,
				DistanceKM:  getFloat(optsArg, "distance_km"),
			},
			ImprovementMinutes: getFloat(optsArg, "improvement_minutes"),
		},
		Format:      getString(optsArg, "format", "parquet"),
		StepMinutes: getFloat(optsArg, "step_minutes"),
		Notes: segmentpower.NoteStyle{
			Emoji:     getBool(optsArg, "emoji"),
			Breakdown: getBool(optsArg, "breakdown"),
		},
	}
	result, err := pipeline.RunBytes(opts)
	if err != nil {
		return map[string]any{
			"ok":    false,
			"error": err.Error(),
		}
	}

	zipBytes, err := zipArtifacts(result.Files)
	if err != nil {
		return map[string]any{
			"ok":    false,
			"error": fmt.Sprintf("create zip: %v", err),
		}
	}
	payload := js.Global().Get("Uint8Array").New(len(zipBytes))
	js.CopyBytesToJS(payload, zipBytes)

	fileNames := make([]string, 0, len(result.Files))
	for name := range result.Files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	return map[string]any{
		"ok":              true,
		"zip":             payload,
		"power_watts":     result.Response.Estimate.PowerWatts,
		"segment_minutes": result.Response.Estimate.SegmentMinutes,
		"notes":           segmentpower.BuildNotes(result.Response, opts.Notes),
		"warnings":        stringsToAny(result.Warnings),
		"files":           stringsToAny(fileNames),
	}
}

func zipArtifacts(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fixedTime := time.Unix(0, 0).UTC()

	for _, name := range names {
		h := &zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		}
		h.SetModTime(fixedTime)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func getString(v js.Value, key, fallback string) string {
	if v.IsUndefined() || v.IsNull() {
		return fallback
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() {
		return fallback
	}
	s := out.String()
	if s == "" || s == "undefined" || s == "null" {
		return fallback
	}
	return s
}

func getFloat(v js.Value, key string) float64 {
	if v.IsUndefined() || v.IsNull() {
		return 0
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() || out.Type() != js.TypeNumber {
		return 0
	}
	return out.Float()
}

func getBool(v js.Value, key string) bool {
	if v.IsUndefined() || v.IsNull() {
		return false
	}
	out := v.Get(key)
	return out.Type() == js.TypeBoolean && out.Bool()
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
