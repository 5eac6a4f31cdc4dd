// Package report derives read-only views from the aggregate tables written by
// pipeline runs: top groups, per-day increments and advancement rates.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	"github.com/aevon-lab/attribution-rollup/internal/core/storage"
	"github.com/aevon-lab/attribution-rollup/internal/pipeline"
)

var (
	// ErrInvalidQuery marks request validation errors that should return HTTP 400.
	ErrInvalidQuery = errors.New("invalid report query")

	// ErrNotApplicable marks a report the variant's shape cannot answer.
	ErrNotApplicable = errors.New("report not applicable to variant")
)

// TopQuery selects a top-N listing. Start and End pick the window of a
// range variant and are ignored otherwise.
type TopQuery struct {
	Metric   string
	N        int
	MinCount int64
	Start    time.Time
	End      time.Time
}

// Service reads variant tables back from the store.
type Service struct {
	store    storage.TableStore
	variants pipeline.VariantRepository
}

func NewService(store storage.TableStore, variants pipeline.VariantRepository) *Service {
	return &Service{store: store, variants: variants}
}

// Top ranks the groups of a variant's latest data by a metric.
func (s *Service) Top(ctx context.Context, name string, q TopQuery) ([]RankedGroup, error) {
	v, rows, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}

	metrics := v.RowMetrics()
	if q.Metric == "" {
		q.Metric = metrics[0]
	}
	if !lo.Contains(metrics, q.Metric) {
		return nil, fmt.Errorf("%w: variant %s has no metric %q", ErrInvalidQuery, name, q.Metric)
	}

	rows, err = current(v, rows, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	countMetric := v.CountMetric
	if countMetric == "" {
		countMetric = q.Metric
	}
	return TopGroups(rows, q.Metric, q.N, countMetric, q.MinCount), nil
}

// DailyNew returns per-day increments of a cumulative variant.
func (s *Service) DailyNew(ctx context.Context, name string) ([]DailyValue, error) {
	v, rows, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if v.Mode != pipeline.ModeCumulative {
		return nil, fmt.Errorf("%w: %s is not cumulative", ErrNotApplicable, name)
	}
	return DailyDeltas(rows, v.ResetMetrics()), nil
}

// DailyTotals returns per-day sums over all groups of a daily variant.
func (s *Service) DailyTotals(ctx context.Context, name string) ([]DailyValue, error) {
	v, rows, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if v.Window != pipeline.WindowDaily {
		return nil, fmt.Errorf("%w: %s is not daily", ErrNotApplicable, name)
	}
	return DailyTotals(rows, v.ResetMetrics()), nil
}

// Quality ranks groups by advancement rate. Only fact-based variants carry
// outcomes.
func (s *Service) Quality(ctx context.Context, name string, n int, minCount int64) ([]QualityRow, error) {
	v, rows, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if v.Source != pipeline.SourceStore {
		return nil, fmt.Errorf("%w: %s has no outcome metrics", ErrNotApplicable, name)
	}
	rows, err = current(v, rows, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	return RankByAdvancement(rows, n, minCount), nil
}

// Summary reports exact totals and the multi-attribution overlap.
func (s *Service) Summary(ctx context.Context, name string) (Summary, error) {
	v, rows, err := s.load(ctx, name)
	if err != nil {
		return Summary{}, err
	}
	if v.Source != pipeline.SourceStore {
		return Summary{}, fmt.Errorf("%w: %s has no outcome metrics", ErrNotApplicable, name)
	}
	rows, err = current(v, rows, time.Time{}, time.Time{})
	if err != nil {
		return Summary{}, err
	}
	sum, err := Summarize(rows)
	if errors.Is(err, ErrNoAllRow) {
		return Summary{}, fmt.Errorf("%w: %s: %v", ErrNotApplicable, name, err)
	}
	return sum, err
}

func (s *Service) load(ctx context.Context, name string) (*pipeline.Variant, []aggregation.AggregateRow, error) {
	v, err := s.variants.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	layout := v.Layout()
	records, err := s.store.FetchRecords(ctx, v.Table, layout.FieldNames())
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", v.Table, err)
	}
	rows := make([]aggregation.AggregateRow, 0, len(records))
	for _, rec := range records {
		p := layout.Persisted(rec.ID, rec.Fields)
		if p.Identity.GroupKey == "" {
			continue
		}
		rows = append(rows, p.Row())
	}
	return v, rows, nil
}

// current narrows rows to one consistent snapshot: the latest day of a daily
// variant, or the requested window of a range variant.
func current(v *pipeline.Variant, rows []aggregation.AggregateRow, start, end time.Time) ([]aggregation.AggregateRow, error) {
	switch v.Window {
	case pipeline.WindowDaily:
		return latestDay(rows), nil
	case pipeline.WindowRange:
		if start.IsZero() || end.IsZero() {
			return nil, fmt.Errorf("%w: variant %s needs start and end", ErrInvalidQuery, v.Name)
		}
		return inPeriod(rows, start, end), nil
	default:
		return rows, nil
	}
}
