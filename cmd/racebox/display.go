package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/Stefanor62/racebox-v/pkg/config"
	"github.com/Stefanor62/racebox-v/pkg/protocol"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	fix3DColor  = color.New(color.FgGreen, color.Bold)
	fix2DColor  = color.New(color.FgYellow, color.Bold)
	noFixColor  = color.New(color.FgRed, color.Bold)
	dimColor    = color.New(color.Faint)
)

// Display renders the live telemetry view. It is driven from a single
// goroutine; no internal locking.
type Display struct {
	cfg config.DisplayConfig
	out io.Writer
	// rawMode converts newlines to CRLF for a terminal in raw mode.
	rawMode bool

	status  string
	device  string
	mtu     int
	attempt int
	paused  bool

	reading    *protocol.Reading
	readings   uint64
	decodeErrs uint64
	started    time.Time
}

func NewDisplay(cfg config.DisplayConfig, out io.Writer) *Display {
	return &Display{
		cfg:     cfg,
		out:     out,
		status:  "starting",
		started: time.Now(),
	}
}

func (d *Display) SetRawMode(raw bool)        { d.rawMode = raw }
func (d *Display) SetStatus(status string)    { d.status = status }
func (d *Display) SetDevice(name string)      { d.device = name }
func (d *Display) SetMTU(mtu int)             { d.mtu = mtu }
func (d *Display) SetAttempt(n int)           { d.attempt = n }
func (d *Display) SetDecodeErrors(n uint64)   { d.decodeErrs = n }
func (d *Display) TogglePause()               { d.paused = !d.paused }
func (d *Display) Paused() bool               { return d.paused }

// SetReading records the latest sample. Ignored while paused so the
// frozen view stays stable.
func (d *Display) SetReading(r protocol.Reading) {
	d.readings++
	if d.paused {
		return
	}
	d.reading = &r
}

// Render draws a full frame of the telemetry view.
func (d *Display) Render() {
	var buf bytes.Buffer

	if d.cfg.ClearScreen {
		buf.WriteString("\033[2J\033[H")
	}

	title := "RaceBox Telemetry"
	if d.device != "" {
		title += " - " + d.device
	}
	headerColor.Fprintln(&buf, title)
	d.renderStatus(&buf)
	buf.WriteByte('\n')

	if d.reading == nil {
		dimColor.Fprintln(&buf, "Waiting for data...")
	} else {
		d.renderReading(&buf, *d.reading)
	}

	buf.WriteByte('\n')
	dimColor.Fprintf(&buf, "readings: %d   decode errors: %d   uptime: %s\n",
		d.readings, d.decodeErrs, time.Since(d.started).Truncate(time.Second))

	if d.cfg.ShowControls {
		dimColor.Fprintln(&buf, "[q] quit   [p] pause/resume")
	}

	out := buf.String()
	if d.rawMode {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	fmt.Fprint(d.out, out)
}

func (d *Display) renderStatus(w io.Writer) {
	switch d.status {
	case "connected":
		line := "CONNECTED"
		if d.mtu > 0 {
			line += fmt.Sprintf(" (MTU %d)", d.mtu)
		}
		if d.paused {
			line += "  [PAUSED]"
		}
		fix3DColor.Fprintln(w, line)
	case "reconnecting":
		fix2DColor.Fprintf(w, "RECONNECTING (attempt %d)\n", d.attempt)
	case "disconnected":
		noFixColor.Fprintln(w, "DISCONNECTED")
	default:
		dimColor.Fprintln(w, strings.ToUpper(d.status))
	}
}

func (d *Display) renderReading(w io.Writer, r protocol.Reading) {
	switch r.FixStatus {
	case protocol.Fix3D:
		fix3DColor.Fprintf(w, "%s  (%d satellites)\n", r.FixStatus, r.Satellites)
	case protocol.Fix2D:
		fix2DColor.Fprintf(w, "%s  (%d satellites)\n", r.FixStatus, r.Satellites)
	default:
		noFixColor.Fprintf(w, "%s  (%d satellites)\n", r.FixStatus, r.Satellites)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	ts := "--"
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC().Format("2006-01-02 15:04:05.000")
	}
	fmt.Fprintf(tw, "Time (UTC)\t%s\n", ts)
	fmt.Fprintf(tw, "Position\t%.7f, %.7f\t±%.1f m\n", r.Latitude, r.Longitude, r.HorizAcc)
	fmt.Fprintf(tw, "Altitude (MSL)\t%.1f m\t±%.1f m\n", r.AltitudeMSL, r.VertAcc)
	fmt.Fprintf(tw, "Speed\t%.1f km/h\t\n", r.Speed)
	fmt.Fprintf(tw, "Heading\t%.1f°\t\n", r.Heading)
	fmt.Fprintf(tw, "PDOP\t%.2f\t\n", r.PDOP)
	fmt.Fprintf(tw, "G-force\tX %+.2f  Y %+.2f  Z %+.2f g\t\n", r.GForceX, r.GForceY, r.GForceZ)
	fmt.Fprintf(tw, "Rotation\tX %+.1f  Y %+.1f  Z %+.1f °/s\t\n", r.RotationX, r.RotationY, r.RotationZ)

	battery := fmt.Sprintf("%d%%", r.BatteryLevel)
	if r.Charging {
		battery += " (charging)"
	}
	fmt.Fprintf(tw, "Battery\t%s\t\n", battery)

	tw.Flush()
}
