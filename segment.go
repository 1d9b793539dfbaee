package segmentpower

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/tormoder/fit"
	"gonum.org/v1/gonum/stat"
)

// RideSegment holds the course conditions read back from a recorded ride.
type RideSegment struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	DistanceKM     float64   `json:"distance_km"`
	SpeedKmh       float64   `json:"speed_kmh"`
	GradientPct    float64   `json:"gradient_pct"`
	ElevationGainM float64   `json:"elevation_gain_m"`
	Samples        int       `json:"samples"`
}

// SegmentOptions narrows the ride to a distance window. Zero EndKM means to
// the end of the ride.
type SegmentOptions struct {
	StartKM float64
	EndKM   float64
}

type ridePoint struct {
	ts        time.Time
	distanceM float64
	altitudeM float64
	hasAlt    bool
}

// SegmentFromFITFile opens path and calls SegmentFromFIT.
func SegmentFromFITFile(path string, opts SegmentOptions) (*RideSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read FIT file: %w", err)
	}
	return SegmentFromFIT(bytes.NewReader(data), opts)
}

// SegmentFromFIT decodes a FIT activity and derives distance, average speed
// and average gradient for the selected window. Gradient is the least-squares
// slope of altitude over distance.
func SegmentFromFIT(r io.Reader, opts SegmentOptions) (*RideSegment, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}
	if opts.StartKM < 0 || (opts.EndKM != 0 && opts.EndKM <= opts.StartKM) {
		return nil, fmt.Errorf("invalid segment window %.3f..%.3f km", opts.StartKM, opts.EndKM)
	}

	points := collectRidePoints(activity.Records)
	points = windowPoints(points, opts.StartKM*1000, opts.EndKM*1000)
	if len(points) < 2 {
		return nil, fmt.Errorf("segment needs at least two records with timestamp and distance, got %d", len(points))
	}

	first, last := points[0], points[len(points)-1]
	seg := &RideSegment{
		StartTime:      first.ts,
		EndTime:        last.ts,
		ElapsedSeconds: last.ts.Sub(first.ts).Seconds(),
		DistanceKM:     (last.distanceM - first.distanceM) / 1000,
		Samples:        len(points),
	}
	if seg.ElapsedSeconds <= 0 {
		return nil, fmt.Errorf("segment has no elapsed time")
	}
	if seg.DistanceKM <= 0 {
		return nil, fmt.Errorf("segment has no distance")
	}
	seg.SpeedKmh = seg.DistanceKM / (seg.ElapsedSeconds / 3600)

	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	prevAlt, havePrev := 0.0, false
	for _, p := range points {
		if !p.hasAlt {
			continue
		}
		xs = append(xs, p.distanceM)
		ys = append(ys, p.altitudeM)
		if havePrev && p.altitudeM > prevAlt {
			seg.ElevationGainM += p.altitudeM - prevAlt
		}
		prevAlt, havePrev = p.altitudeM, true
	}
	if len(xs) >= 2 {
		_, slope := stat.LinearRegression(xs, ys, nil, false)
		if isFinite(slope) {
			seg.GradientPct = slope * 100
		}
	}
	return seg, nil
}

// Segment combines the ride conditions with rider weight and bike.
func (s *RideSegment) Segment(weightKG float64, bike BikeCategory) Segment {
	return Segment{
		WeightKG:    weightKG,
		SpeedKmh:    round2(s.SpeedKmh),
		GradientPct: round2(s.GradientPct),
		Bike:        bike,
		DistanceKM:  round2(s.DistanceKM),
	}
}

func collectRidePoints(records []*fit.RecordMsg) []ridePoint {
	points := make([]ridePoint, 0, len(records))
	for _, rec := range records {
		if rec == nil || rec.Timestamp.IsZero() || fit.IsBaseTime(rec.Timestamp) {
			continue
		}
		dist := rec.GetDistanceScaled()
		if !isFinite(dist) || dist < 0 {
			continue
		}
		p := ridePoint{ts: rec.Timestamp, distanceM: dist}
		if alt := rec.GetEnhancedAltitudeScaled(); isFinite(alt) {
			p.altitudeM, p.hasAlt = alt, true
		} else if alt := rec.GetAltitudeScaled(); isFinite(alt) {
			p.altitudeM, p.hasAlt = alt, true
		}
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].ts.Before(points[j].ts)
	})
	return points
}

func windowPoints(points []ridePoint, startM, endM float64) []ridePoint {
	if startM <= 0 && endM <= 0 {
		return points
	}
	out := points[:0:0]
	for _, p := range points {
		if p.distanceM < startM {
			continue
		}
		if endM > 0 && p.distanceM > endM {
			break
		}
		out = append(out, p)
	}
	return out
}
