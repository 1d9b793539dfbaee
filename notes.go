package segmentpower

import (
	"fmt"
	"strings"
)

// NoteStyle selects the copy used by BuildNotes.
type NoteStyle struct {
	// Emoji decorates the messages the way the livelier form did.
	Emoji bool
	// Breakdown adds the air/gravity/rolling split.
	Breakdown bool
}

// BuildNotes renders a Response as the lines shown to the rider.
func BuildNotes(resp *Response, style NoteStyle) string {
	if resp == nil {
		return ""
	}

	deco := func(plain, fancy string) string {
		if style.Emoji {
			return fancy
		}
		return plain
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Estimated average power%s: %s watts.\n", deco("", " ⚡"), formatValue(resp.Estimate.PowerWatts))
	fmt.Fprintf(&b, "Estimated segment time%s: %s minutes.\n", deco("", " ⏰"), formatValue(resp.Estimate.SegmentMinutes))

	if style.Breakdown {
		bd := resp.Breakdown
		fmt.Fprintf(
			&b,
			"Breakdown: air %.1f W | gravity %.1f W | rolling %.1f W | system mass %.1f kg\n",
			bd.AirWatts,
			bd.GravityWatts,
			bd.RollingWatts,
			bd.TotalMassKG,
		)
	}

	if imp := resp.Improvement; imp != nil {
		fmt.Fprintf(
			&b,
			"To improve your time by %s minutes (target time%s: %s min), you need to increase your power by %s watts.\n",
			formatValue(resp.ImprovementMinutes),
			deco("", " 🕰️"),
			formatValue(imp.TargetMinutes),
			formatValue(imp.WattIncrease),
		)
		fmt.Fprintf(
			&b,
			"This means generating a total of %s watts, which corresponds to %s watts/kg.\n",
			formatValue(imp.TargetWatts),
			formatValue(imp.WattsPerKG),
		)
	}

	for _, w := range resp.Warnings {
		b.WriteString(deco("Warning: ", "⚠️ "))
		b.WriteString(warningCopy(w))
		b.WriteByte('\n')
	}

	return strings.TrimSpace(b.String())
}

func warningCopy(w string) string {
	switch w {
	case WarnTooShort:
		return "Your estimated time is too short to improve further. Try adjusting your speed or distance."
	case WarnNonPositive:
		return "The desired time must be greater than zero. Adjust your improvement time."
	}
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:] + "."
}

// formatValue prints at most two decimals and at least one: 12 -> "12.0".
func formatValue(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}
