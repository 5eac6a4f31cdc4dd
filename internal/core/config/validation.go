package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
)

// ValidationError lists every problem found in one configuration or set of
// run parameters.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) duration(field, value string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		p.addf("invalid %s %q: %v", field, value, err)
		return
	}
	if d <= 0 {
		p.addf("%s must be > 0", field)
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: append([]string(nil), p...)}
}

// RunWindow is the validated date range of one run. Both bounds are
// inclusive calendar days; zero values mean the variant has no window.
type RunWindow struct {
	Start time.Time
	End   time.Time
}

// ParseRunWindow validates start and end against style before any I/O.
// When required is set both bounds must be present. Every missing or
// malformed value is reported together.
func ParseRunWindow(start, end string, style aggregation.DateStyle, required bool) (RunWindow, error) {
	var (
		p   problems
		win RunWindow
	)
	if !aggregation.ValidStyle(style) {
		p.addf("unsupported date style %q", style)
		return win, p.err()
	}

	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if required {
		if start == "" {
			p.addf("start is required")
		}
		if end == "" {
			p.addf("end is required")
		}
	} else if (start == "") != (end == "") {
		p.addf("start and end must be given together")
	}

	if start != "" {
		t, err := aggregation.ParseInputDate(start, style)
		if err != nil {
			p.addf("start: %v", err)
		}
		win.Start = t
	}
	if end != "" {
		t, err := aggregation.ParseInputDate(end, style)
		if err != nil {
			p.addf("end: %v", err)
		}
		win.End = t
	}
	if len(p) == 0 && !win.Start.IsZero() && win.End.Before(win.Start) {
		p.addf("end %s is before start %s", aggregation.FormatDay(win.End), aggregation.FormatDay(win.Start))
	}

	if err := p.err(); err != nil {
		return RunWindow{}, err
	}
	return win, nil
}

// IsZero reports whether the window is unbounded.
func (w RunWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}
