package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	"github.com/aevon-lab/attribution-rollup/internal/core/config"
)

// writeVariant is a test helper that writes a single variant YAML file into dir.
func writeVariant(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const handlesVariant = `
name: "handles"
table: "Handle Stats"
source: analytics
mode: direct
window: all_time
detect_staleness: true
query: |
  SELECT properties.handle, count() FROM events GROUP BY 1
columns:
  - {name: handle, kind: group}
  - {name: events, kind: metric}
`

const sourcesVariant = `
name: "sources"
table: "Referral Sources"
source: store
mode: totals
window: all_time
total_metric: total_applications
facts:
  table: Applications
  date_field: created
  groups_field: referral
  status_field: status
  advanced_statuses: [Interview]
  rejected_statuses: [Rejected]
`

func TestFileSystemVariantRepository_LoadAndList(t *testing.T) {
	dir := t.TempDir()
	writeVariant(t, dir, "handles.yaml", handlesVariant)
	writeVariant(t, dir, "sources.yml", sourcesVariant)
	writeVariant(t, dir, "README.md", "not a variant")

	repo, err := NewFileSystemVariantRepository(dir)
	if err != nil {
		t.Fatalf("NewFileSystemVariantRepository: %v", err)
	}

	all := repo.Variants()
	if len(all) != 2 {
		t.Fatalf("Variants: got %d, want 2", len(all))
	}
	if all[0].Name != "handles" || all[1].Name != "sources" {
		t.Errorf("Variants not ordered by name: %s, %s", all[0].Name, all[1].Name)
	}

	h, err := repo.Get(context.Background(), "handles")
	if err != nil {
		t.Fatal(err)
	}
	if h.KeyFormat != aggregation.KeyHandle {
		t.Errorf("default key format: got %q", h.KeyFormat)
	}
	if h.Sentinel != aggregation.SentinelDirect {
		t.Errorf("default analytics sentinel: got %q", h.Sentinel)
	}
	if len(h.Fingerprint) != 64 {
		t.Errorf("fingerprint should be a hex sha256, got %q", h.Fingerprint)
	}

	s, err := repo.Get(context.Background(), "sources")
	if err != nil {
		t.Fatal(err)
	}
	if s.Sentinel != aggregation.SentinelNoResponse {
		t.Errorf("default store sentinel: got %q", s.Sentinel)
	}
	want := []string{"count", "advanced", "rejected", "pending", "total_applications"}
	if got := s.RowMetrics(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("RowMetrics: got %v, want %v", got, want)
	}
	if got := s.ResetMetrics(); len(got) != 4 {
		t.Errorf("ResetMetrics should leave out the total metric, got %v", got)
	}

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrVariantNotFound) {
		t.Errorf("Get unknown: got %v, want ErrVariantNotFound", err)
	}
}

func TestFileSystemVariantRepository_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeVariant(t, dir, "a.yaml", handlesVariant)
	writeVariant(t, dir, "b.yaml", handlesVariant)

	_, err := NewFileSystemVariantRepository(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate variant name") {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}

func TestFileSystemVariantRepository_MissingDirIsEmpty(t *testing.T) {
	repo, err := NewFileSystemVariantRepository(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(repo.Variants()); n != 0 {
		t.Errorf("got %d variants, want 0", n)
	}
}

func TestFileSystemVariantRepository_EmptyFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeVariant(t, dir, "empty.yaml", "# nothing here\n")
	repo, err := NewFileSystemVariantRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(repo.Variants()); n != 0 {
		t.Errorf("got %d variants, want 0", n)
	}
}

func TestParseVariant_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name: "analytics needs direct mode and a query",
			yaml: `
name: bad
table: T
source: analytics
mode: cumulative
window: all_time
columns: [{name: handle, kind: group}, {name: events, kind: metric}]
`,
			wantErr: []string{"mode direct only", "query must not be empty"},
		},
		{
			name: "key format must match window",
			yaml: `
name: bad
table: T
source: analytics
mode: direct
window: range
key_format: handle
query: SELECT 1
columns: [{name: handle, kind: group}, {name: events, kind: metric}]
`,
			wantErr: []string{"window range needs key_format handle_range"},
		},
		{
			name: "columns need one group and a metric",
			yaml: `
name: bad
table: T
source: analytics
mode: direct
window: all_time
query: SELECT 1
columns: [{name: x, kind: wat}]
`,
			wantErr: []string{`unsupported kind "wat"`, "exactly one group column", "at least one metric column"},
		},
		{
			name: "store cumulative needs daily and facts",
			yaml: `
name: bad
source: store
mode: cumulative
window: all_time
`,
			wantErr: []string{"table must not be empty", "mode cumulative needs window daily", "facts.table"},
		},
		{
			name: "broken template",
			yaml: `
name: bad
table: T
source: analytics
mode: direct
window: all_time
query: "SELECT {{ .Start "
columns: [{name: handle, kind: group}, {name: events, kind: metric}]
`,
			wantErr: []string{"parse query template"},
		},
		{
			name: "half default window",
			yaml: `
name: bad
table: T
source: analytics
mode: direct
window: range
key_format: handle_range
default_window: {start: 1/1/25}
query: SELECT 1
columns: [{name: handle, kind: group}, {name: events, kind: metric}]
`,
			wantErr: []string{"default_window.start and default_window.end must be given together"},
		},
		{
			name: "malformed default window",
			yaml: `
name: bad
table: T
source: analytics
mode: direct
window: range
key_format: handle_range
default_window: {start: "2025-01-01", end: 3/15/25}
query: SELECT 1
columns: [{name: handle, kind: group}, {name: events, kind: metric}]
`,
			wantErr: []string{"default_window: ", "does not match M/D/YY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVariant([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestShippedVariantsLoad(t *testing.T) {
	repo, err := NewFileSystemVariantRepository(filepath.Join("..", "..", "config", "pipelines"))
	if err != nil {
		t.Fatalf("shipped variants must load: %v", err)
	}
	names := make([]string, 0)
	for _, v := range repo.Variants() {
		names = append(names, v.Name)
	}
	want := []string{"posthog_daily", "posthog_handles", "posthog_handles_range", "referral_daily", "referral_sources"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("shipped variants: got %v, want %v", names, want)
	}
}

func TestVariant_ResolveWindow(t *testing.T) {
	v, err := ParseVariant([]byte(`
name: range
table: T
source: analytics
mode: direct
window: range
key_format: handle_range
default_window: {start: 1/1/25, end: 3/15/25}
query: SELECT 1
columns: [{name: handle, kind: group}, {name: events, kind: metric}]
`))
	if err != nil {
		t.Fatalf("ParseVariant: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	win, err := v.ResolveWindow(RunParams{}, now)
	if err != nil {
		t.Fatalf("default window: %v", err)
	}
	if got := aggregation.FormatDay(win.Start) + ".." + aggregation.FormatDay(win.End); got != "2025-01-01..2025-03-15" {
		t.Errorf("default window: got %s", got)
	}

	win, err = v.ResolveWindow(RunParams{Start: "2/1/25", End: "2/28/25"}, now)
	if err != nil {
		t.Fatalf("explicit window: %v", err)
	}
	if got := aggregation.FormatDay(win.End); got != "2025-02-28" {
		t.Errorf("explicit end: got %s", got)
	}

	_, err = v.ResolveWindow(RunParams{Start: "bogus", End: "alsobogus"}, now)
	var verr *config.ValidationError
	if !errors.As(err, &verr) || len(verr.Problems) != 2 {
		t.Errorf("malformed params: got %v, want a ValidationError with 2 problems", err)
	}

	v.DefaultWindow = DefaultWindow{LookbackDays: 7}
	win, err = v.ResolveWindow(RunParams{}, now)
	if err != nil {
		t.Fatalf("lookback: %v", err)
	}
	if got := aggregation.FormatDay(win.Start) + ".." + aggregation.FormatDay(win.End); got != "2025-05-25..2025-05-31" {
		t.Errorf("lookback window: got %s", got)
	}
}
