package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/internal/witproto"
	"github.com/srg/witctl/pkg/config"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// Printer renders sensor outputs as text lines or JSON lines. Data lines
// may be throttled; status lines never are. It implements sensor.Outlet and
// is only called on the consumer context.
type Printer struct {
	out     io.Writer
	format  string
	limiter *rate.Limiter
	now     func() time.Time

	status *color.Color
	notice *color.Color

	suppressed uint64
}

// jsonLine is the JSON output schema
type jsonLine struct {
	Time    string `json:"time"`
	Channel string `json:"channel"`
	Name    string `json:"name"`
	Args    []any  `json:"args"`
}

// NewPrinter creates a printer. printRate > 0 caps data lines per second.
func NewPrinter(out io.Writer, format string, printRate float64, colors bool) *Printer {
	p := &Printer{
		out:    out,
		format: format,
		now:    time.Now,
		status: color.New(color.FgCyan),
		notice: color.New(color.FgYellow),
	}
	if printRate > 0 {
		burst := int(printRate)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(printRate), burst)
	}
	if colors {
		p.status.EnableColor()
		p.notice.EnableColor()
	} else {
		p.status.DisableColor()
		p.notice.DisableColor()
	}
	return p
}

// newStdoutPrinter configures a printer for the terminal from cfg.
func newStdoutPrinter(cfg *config.Config) *Printer {
	colors := cfg.OutputFormat == config.FormatText &&
		term.IsTerminal(int(os.Stdout.Fd())) &&
		os.Getenv("NO_COLOR") == ""
	return NewPrinter(os.Stdout, cfg.OutputFormat, cfg.PrintRate, colors)
}

// Emit implements sensor.Outlet
func (p *Printer) Emit(o sensor.Output) {
	if o.Channel == witproto.DataChannel && p.limiter != nil && !p.limiter.AllowN(p.now(), 1) {
		p.suppressed++
		return
	}

	if p.format == config.FormatJSON {
		args := o.Args
		if args == nil {
			args = []any{}
		}
		line, err := json.Marshal(jsonLine{
			Time:    p.now().UTC().Format(time.RFC3339Nano),
			Channel: o.Channel.String(),
			Name:    o.Name,
			Args:    args,
		})
		if err != nil {
			return
		}
		fmt.Fprintln(p.out, string(line))
		return
	}

	switch {
	case o.Name == sensor.OutNotice:
		fmt.Fprintln(p.out, p.notice.Sprint(o.String()))
	case o.Channel == witproto.StatusChannel:
		fmt.Fprintln(p.out, p.status.Sprint(o.String()))
	default:
		fmt.Fprintln(p.out, o.String())
	}
}

// Suppressed returns the number of data lines dropped by the print rate.
func (p *Printer) Suppressed() uint64 {
	return p.suppressed
}
