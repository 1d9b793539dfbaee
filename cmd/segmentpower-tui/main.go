package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	segmentpower "github.com/lucasjlepore/segment-power"
	"github.com/lucasjlepore/segment-power/config"
	"github.com/lucasjlepore/segment-power/internal/log"
	"github.com/rivo/tview"
	"github.com/spf13/pflag"
)

// Form labels, also used to look the fields up again.
const (
	labelWeight   = "Weight (kg)"
	labelSpeed    = "Speed (km/h)"
	labelGradient = "Gradient (%)"
	labelBike     = "Bike"
	labelDistance = "Distance (km)"
	labelImprove  = "Improve by (min)"
)

var bikeOptions = []string{"road", "MTB", "TT"}

// calculatorForm wires the input form to a Handler and renders the result
// into a text view.
type calculatorForm struct {
	handler *segmentpower.Handler
	style   segmentpower.NoteStyle

	form   *tview.Form
	result *tview.TextView
}

func newCalculatorForm(h *segmentpower.Handler, style segmentpower.NoteStyle) *calculatorForm {
	c := &calculatorForm{handler: h, style: style}

	c.result = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	c.result.SetBorder(true).SetTitle(" Estimate ")

	c.form = tview.NewForm().
		AddInputField(labelWeight, "", 10, tview.InputFieldFloat, nil).
		AddInputField(labelSpeed, "", 10, tview.InputFieldFloat, nil).
		AddInputField(labelGradient, "", 10, tview.InputFieldFloat, nil).
		AddDropDown(labelBike, bikeOptions, 0, nil).
		AddInputField(labelDistance, "", 10, tview.InputFieldFloat, nil).
		AddInputField(labelImprove, "0", 10, tview.InputFieldFloat, nil).
		AddButton("Calculate", c.calculate)
	c.form.SetBorder(true).SetTitle(" Segment power ")
	return c
}

func (c *calculatorForm) calculate() {
	req, err := c.request()
	if err != nil {
		c.result.SetText("[red]" + tview.Escape(err.Error()) + "[white]")
		return
	}
	resp, err := c.handler.Handle(req)
	if err != nil {
		log.Debugw("calculate rejected", "error", err)
		c.result.SetText("[red]" + tview.Escape(err.Error()) + "[white]")
		return
	}
	log.Debugw("calculate", "power_watts", resp.Estimate.PowerWatts, "segment_minutes", resp.Estimate.SegmentMinutes)
	c.result.SetText(tview.Escape(segmentpower.BuildNotes(resp, c.style)))
}

func (c *calculatorForm) request() (segmentpower.Request, error) {
	var req segmentpower.Request
	var err error
	if req.WeightKG, err = c.number(labelWeight); err != nil {
		return req, err
	}
	if req.SpeedKmh, err = c.number(labelSpeed); err != nil {
		return req, err
	}
	if req.GradientPct, err = c.number(labelGradient); err != nil {
		return req, err
	}
	if req.DistanceKM, err = c.number(labelDistance); err != nil {
		return req, err
	}
	if req.ImprovementMinutes, err = c.number(labelImprove); err != nil {
		return req, err
	}
	dd, ok := c.form.GetFormItemByLabel(labelBike).(*tview.DropDown)
	if !ok {
		return req, fmt.Errorf("bike selector missing")
	}
	_, option := dd.GetCurrentOption()
	if req.Bike, err = segmentpower.ParseBikeCategory(option); err != nil {
		return req, err
	}
	return req, nil
}

func (c *calculatorForm) number(label string) (float64, error) {
	field, ok := c.form.GetFormItemByLabel(label).(*tview.InputField)
	if !ok {
		return 0, fmt.Errorf("field %q missing", label)
	}
	text := strings.TrimSpace(field.GetText())
	if text == "" {
		return 0, fmt.Errorf("%s is required", label)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", label, text)
	}
	return v, nil
}

func main() {
	fs := pflag.CommandLine
	config.AddFlags(fs)
	fs.Bool("emoji", false, "Decorate the notes with emoji")
	fs.Bool("breakdown", false, "Show the air/gravity/rolling split")
	pflag.Parse()

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-tui: %v\n", err)
		os.Exit(1)
	}
	// Logs would draw over the screen, so they only go to the file, if any.
	if err := log.Init(log.Options{
		Debug:      cfg.Log.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Quiet:      true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-tui: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	h, err := cfg.Handler()
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-tui: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	calc := newCalculatorForm(h, cfg.NoteStyle())

	help := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]Tab[white] Next field  |  [yellow]Enter[white] Calculate  |  [yellow]Esc[white] Quit")

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(help, 1, 0, false).
		AddItem(tview.NewFlex().
			AddItem(calc.form, 0, 1, true).
			AddItem(calc.result, 0, 1, false), 0, 1, true)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			app.Stop()
			return nil
		}
		return event
	})

	if err := app.SetRoot(layout, true).EnableMouse(true).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-tui: %v\n", err)
		os.Exit(1)
	}
}
