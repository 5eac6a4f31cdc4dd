package pipeline

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/aevon-lab/attribution-rollup/internal/analytics"
	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	"github.com/aevon-lab/attribution-rollup/internal/core/config"
)

// ErrVariantNotFound is returned when no variant has the requested name.
var ErrVariantNotFound = errors.New("pipeline variant not found")

// Source says where a variant's input comes from.
type Source string

const (
	SourceAnalytics Source = "analytics" // query the analytics backend
	SourceStore     Source = "store"     // read fact records from the table store
)

// Mode says how input becomes rows.
type Mode string

const (
	ModeDirect     Mode = "direct"     // one query row per aggregate row
	ModeCumulative Mode = "cumulative" // daily running totals over facts
	ModeTotals     Mode = "totals"     // one total per group over facts
)

// Window says which time scope a row covers.
type Window string

const (
	WindowAllTime Window = "all_time"
	WindowRange   Window = "range"
	WindowDaily   Window = "daily"
)

// Facts locates the fact records a store-sourced variant reads.
type Facts struct {
	Table            string   `yaml:"table"`
	DateField        string   `yaml:"date_field"`
	GroupsField      string   `yaml:"groups_field"`
	StatusField      string   `yaml:"status_field"`
	AdvancedStatuses []string `yaml:"advanced_statuses"`
	RejectedStatuses []string `yaml:"rejected_statuses"`
}

// DefaultWindow is used when a run is triggered without explicit dates.
// LookbackDays, when set, ends the window yesterday.
type DefaultWindow struct {
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
	LookbackDays int    `yaml:"lookback_days"`
}

// Variant is one configured aggregate shape: where its rows come from, how
// they are keyed and which table they reconcile against.
type Variant struct {
	Name            string                `yaml:"name"`
	Description     string                `yaml:"description"`
	Table           string                `yaml:"table"`
	Source          Source                `yaml:"source"`
	Mode            Mode                  `yaml:"mode"`
	Window          Window                `yaml:"window"`
	KeyFormat       aggregation.KeyFormat `yaml:"key_format"`
	DateInput       aggregation.DateStyle `yaml:"date_input"`
	Query           string                `yaml:"query"`
	Columns         []aggregation.Column  `yaml:"columns"`
	Fields          aggregation.Layout    `yaml:"fields"`
	Sentinel        string                `yaml:"sentinel"`
	LowercaseGroup  bool                  `yaml:"lowercase_group"`
	DetectStaleness bool                  `yaml:"detect_staleness"`
	TotalMetric     string                `yaml:"total_metric"`
	CountMetric     string                `yaml:"count_metric"`
	Facts           Facts                 `yaml:"facts"`
	DefaultWindow   DefaultWindow         `yaml:"default_window"`

	// Fingerprint is the SHA-256 of the raw YAML file; computed at load time.
	Fingerprint string `yaml:"-"`

	query *analytics.QueryTemplate
}

// factMetrics are the metrics every store-sourced row carries.
var factMetrics = []string{
	aggregation.MetricCount,
	aggregation.MetricAdvanced,
	aggregation.MetricRejected,
	aggregation.MetricPending,
}

// RowMetrics lists the metrics the variant writes, total metric last.
func (v *Variant) RowMetrics() []string {
	var names []string
	if v.Source == SourceStore {
		names = append(names, factMetrics...)
	} else {
		names = v.normalizer().MetricNames()
	}
	if v.TotalMetric != "" && !lo.Contains(names, v.TotalMetric) {
		names = append(names, v.TotalMetric)
	}
	return names
}

// ResetMetrics lists the metrics zeroed on stale records.
func (v *Variant) ResetMetrics() []string {
	return lo.Without(v.RowMetrics(), v.TotalMetric)
}

// Layout returns the store field layout with the variant's metrics.
func (v *Variant) Layout() aggregation.Layout {
	l := v.Fields.WithDefaults()
	l.Metrics = v.RowMetrics()
	return l
}

// RequiresWindow reports whether a run must be given start and end dates.
func (v *Variant) RequiresWindow() bool {
	return v.Window == WindowRange
}

func (v *Variant) normalizer() aggregation.Normalizer {
	return aggregation.Normalizer{
		Columns:        v.Columns,
		Sentinel:       v.Sentinel,
		LowercaseGroup: v.LowercaseGroup,
	}
}

func (v *Variant) classifier() aggregation.OutcomeClassifier {
	return aggregation.OutcomeClassifier{
		Advanced: v.Facts.AdvancedStatuses,
		Rejected: v.Facts.RejectedStatuses,
	}
}

// applyDefaults fills optional fields.
func (v *Variant) applyDefaults() {
	if v.Sentinel == "" {
		if v.Source == SourceStore {
			v.Sentinel = aggregation.SentinelNoResponse
		} else {
			v.Sentinel = aggregation.SentinelDirect
		}
	}
	if v.DateInput == "" {
		v.DateInput = aggregation.DateStyleUS
	}
	if v.CountMetric == "" && v.Source == SourceStore {
		v.CountMetric = aggregation.MetricCount
	}
	if v.KeyFormat == "" {
		switch v.Window {
		case WindowRange:
			v.KeyFormat = aggregation.KeyHandleRange
		case WindowDaily:
			v.KeyFormat = aggregation.KeyHandleDate
		default:
			v.KeyFormat = aggregation.KeyHandle
		}
	}
}

// validate checks the variant and compiles its query. Every problem is
// reported at once.
func (v *Variant) validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(v.Table) == "" {
		add("table must not be empty")
	}
	if !aggregation.ValidKeyFormat(v.KeyFormat) {
		add("unsupported key_format %q", v.KeyFormat)
	}
	if !aggregation.ValidStyle(v.DateInput) {
		add("unsupported date_input %q", v.DateInput)
	}
	switch v.Window {
	case WindowAllTime:
		if v.KeyFormat != aggregation.KeyHandle {
			add("window all_time needs key_format handle")
		}
	case WindowRange:
		if v.KeyFormat != aggregation.KeyHandleRange {
			add("window range needs key_format handle_range")
		}
	case WindowDaily:
		if v.KeyFormat != aggregation.KeyHandleDate {
			add("window daily needs key_format handle_date")
		}
	default:
		add("unsupported window %q", v.Window)
	}

	switch v.Source {
	case SourceAnalytics:
		if v.Mode != ModeDirect {
			add("source analytics supports mode direct only, got %q", v.Mode)
		}
		if strings.TrimSpace(v.Query) == "" {
			add("query must not be empty")
		}
		groups := 0
		for _, c := range v.Columns {
			if !aggregation.ValidColumnKind(c.Kind) {
				add("column %q has unsupported kind %q", c.Name, c.Kind)
			}
			if c.Kind == aggregation.ColumnGroup {
				groups++
			}
			if c.Kind == aggregation.ColumnDate && v.Window != WindowDaily {
				add("date column %q needs window daily", c.Name)
			}
		}
		if groups != 1 {
			add("columns need exactly one group column, got %d", groups)
		}
		if len(v.normalizer().MetricNames()) == 0 {
			add("columns need at least one metric column")
		}
		if v.Window == WindowDaily && !lo.ContainsBy(v.Columns, func(c aggregation.Column) bool {
			return c.Kind == aggregation.ColumnDate
		}) {
			add("window daily needs a date column")
		}
		if v.TotalMetric != "" && v.CountMetric == "" {
			add("total_metric needs count_metric")
		}
	case SourceStore:
		if v.Mode != ModeCumulative && v.Mode != ModeTotals {
			add("source store supports modes cumulative and totals, got %q", v.Mode)
		}
		if v.Mode == ModeCumulative && v.Window != WindowDaily {
			add("mode cumulative needs window daily")
		}
		if v.Mode == ModeTotals && v.Window == WindowDaily {
			add("mode totals does not support window daily")
		}
		if v.Facts.Table == "" || v.Facts.DateField == "" || v.Facts.GroupsField == "" {
			add("facts.table, facts.date_field and facts.groups_field are required")
		}
	default:
		add("unsupported source %q", v.Source)
	}

	if d := v.DefaultWindow; d.LookbackDays < 0 {
		add("default_window.lookback_days must be >= 0")
	} else if (d.Start == "") != (d.End == "") {
		add("default_window.start and default_window.end must be given together")
	} else if d.hasDates() && aggregation.ValidStyle(v.DateInput) {
		if _, err := config.ParseRunWindow(d.Start, d.End, v.DateInput, false); err != nil {
			add("default_window: %v", err)
		}
	}

	if v.Source == SourceAnalytics && strings.TrimSpace(v.Query) != "" {
		tmpl, err := analytics.ParseQueryTemplate(v.Name, v.Query)
		if err != nil {
			add("%v", err)
		}
		v.query = tmpl
	}

	if len(problems) > 0 {
		return fmt.Errorf("variant %q: %s", v.Name, strings.Join(problems, "; "))
	}
	return nil
}

// VariantRepository provides configured variants.
type VariantRepository interface {
	// Get returns the variant with the given name, or ErrVariantNotFound.
	Get(ctx context.Context, name string) (*Variant, error)

	// Variants returns every variant ordered by name.
	Variants() []*Variant
}

// FileSystemVariantRepository loads variants from *.yaml files in a directory.
// Each file holds exactly one variant. Variants are loaded once at startup.
type FileSystemVariantRepository struct {
	dir      string
	variants map[string]*Variant
}

// NewFileSystemVariantRepository eagerly loads every variant in dir. Any
// malformed or invalid file fails the load.
func NewFileSystemVariantRepository(dir string) (*FileSystemVariantRepository, error) {
	repo := &FileSystemVariantRepository{
		dir:      dir,
		variants: make(map[string]*Variant),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemVariantRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no variants directory: zero variants configured
	}
	if err != nil {
		return fmt.Errorf("pipeline variant dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("pipeline variant path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading pipeline variant dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading variant file %s: %w", path, err)
		}

		v, err := ParseVariant(data)
		if err != nil {
			return fmt.Errorf("variant file %s: %w", path, err)
		}
		if v == nil {
			continue // empty / comment-only file
		}

		if _, exists := r.variants[v.Name]; exists {
			return fmt.Errorf("variant %q: duplicate variant name (check multiple YAML files)", v.Name)
		}
		r.variants[v.Name] = v
	}
	return nil
}

// ParseVariant decodes and validates one variant document. An empty
// document yields nil with no error.
func ParseVariant(data []byte) (*Variant, error) {
	var v Variant
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing variant: %w", err)
	}
	if v.Name == "" {
		return nil, nil
	}
	v.applyDefaults()
	if err := v.validate(); err != nil {
		return nil, err
	}
	v.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))
	return &v, nil
}

// Get returns the variant with the given name.
func (r *FileSystemVariantRepository) Get(_ context.Context, name string) (*Variant, error) {
	v, ok := r.variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVariantNotFound, name)
	}
	return v, nil
}

// Variants returns every variant ordered by name.
func (r *FileSystemVariantRepository) Variants() []*Variant {
	out := lo.Values(r.variants)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// hasDates reports whether d yields a window on its own.
func (d DefaultWindow) hasDates() bool {
	return d.LookbackDays > 0 || (d.Start != "" && d.End != "")
}

// ResolveWindow validates params against the variant's date input style, or
// falls back to the default window when both dates are empty. It does no
// I/O, so callers check parameters before touching any backend. A lookback
// window ends the day before now.
func (v *Variant) ResolveWindow(params RunParams, now time.Time) (config.RunWindow, error) {
	start, end := params.Start, params.End
	if start == "" && end == "" {
		d := v.DefaultWindow
		switch {
		case d.LookbackDays > 0:
			to := aggregation.TruncateDay(now).AddDate(0, 0, -1)
			from := to.AddDate(0, 0, -(d.LookbackDays - 1))
			return config.RunWindow{Start: from, End: to}, nil
		case d.hasDates():
			start, end = d.Start, d.End
		}
	}
	return config.ParseRunWindow(start, end, v.DateInput, v.RequiresWindow())
}
