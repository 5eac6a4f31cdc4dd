package analytics

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	"github.com/aevon-lab/attribution-rollup/internal/core/config"
)

// QueryWindow is the data a query template sees. Dates are YYYY-MM-DD;
// EndExclusive is the day after End, for half-open timestamp filters.
type QueryWindow struct {
	Start        string
	End          string
	EndExclusive string
}

// NewQueryWindow renders win for a template. A zero window yields empty
// strings.
func NewQueryWindow(win config.RunWindow) QueryWindow {
	if win.IsZero() {
		return QueryWindow{}
	}
	return QueryWindow{
		Start:        aggregation.FormatDay(win.Start),
		End:          aggregation.FormatDay(win.End),
		EndExclusive: aggregation.FormatDay(win.End.AddDate(0, 0, 1)),
	}
}

// QueryTemplate is a parsed query text.
type QueryTemplate struct {
	tmpl *template.Template
}

// ParseQueryTemplate parses text. Missing keys are errors.
func ParseQueryTemplate(name, text string) (*QueryTemplate, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse query template %s: %w", name, err)
	}
	return &QueryTemplate{tmpl: t}, nil
}

// Render executes the template for win.
func (q *QueryTemplate) Render(win config.RunWindow) (string, error) {
	var sb strings.Builder
	if err := q.tmpl.Execute(&sb, NewQueryWindow(win)); err != nil {
		return "", fmt.Errorf("render query %s: %w", q.tmpl.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}
