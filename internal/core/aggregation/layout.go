package aggregation

// Layout names the store fields a row is written to and read back from.
// Metric names are used verbatim as field names.
type Layout struct {
	GroupField       string   `yaml:"group"`
	DateField        string   `yaml:"date"`
	StartField       string   `yaml:"start"`
	EndField         string   `yaml:"end"`
	FirstActiveField string   `yaml:"first_active"`
	LastActiveField  string   `yaml:"last_active"`
	TagsField        string   `yaml:"tags"`
	Metrics          []string `yaml:"-"`
}

// DefaultLayout returns the field names used when a variant does not
// override them.
func DefaultLayout() Layout {
	return Layout{
		GroupField:       "handle",
		DateField:        "date",
		StartField:       "start_date",
		EndField:         "end_date",
		FirstActiveField: "first_seen",
		LastActiveField:  "last_seen",
		TagsField:        "campaigns",
	}
}

// WithDefaults fills empty field names from DefaultLayout.
func (l Layout) WithDefaults() Layout {
	d := DefaultLayout()
	if l.GroupField == "" {
		l.GroupField = d.GroupField
	}
	if l.DateField == "" {
		l.DateField = d.DateField
	}
	if l.StartField == "" {
		l.StartField = d.StartField
	}
	if l.EndField == "" {
		l.EndField = d.EndField
	}
	if l.FirstActiveField == "" {
		l.FirstActiveField = d.FirstActiveField
	}
	if l.LastActiveField == "" {
		l.LastActiveField = d.LastActiveField
	}
	if l.TagsField == "" {
		l.TagsField = d.TagsField
	}
	return l
}

// Fields renders row as a store payload. Absent optional values are left
// out entirely so a write never blanks a value the store already holds.
// Metrics are always present.
func (l Layout) Fields(row AggregateRow) map[string]any {
	fields := make(map[string]any, len(row.Metrics)+4)
	fields[l.GroupField] = row.GroupKey
	if !row.Date.IsZero() {
		fields[l.DateField] = FormatDay(row.Date)
	}
	if !row.PeriodStart.IsZero() {
		fields[l.StartField] = FormatDay(row.PeriodStart)
	}
	if !row.PeriodEnd.IsZero() {
		fields[l.EndField] = FormatDay(row.PeriodEnd)
	}
	if !row.FirstActive.IsZero() {
		fields[l.FirstActiveField] = FormatDay(row.FirstActive)
	}
	if !row.LastActive.IsZero() {
		fields[l.LastActiveField] = FormatDay(row.LastActive)
	}
	if row.Tags != nil {
		fields[l.TagsField] = *row.Tags
	}
	for name, v := range row.Metrics {
		fields[name] = v
	}
	return fields
}

// FieldNames lists every field the layout reads back from the store.
func (l Layout) FieldNames() []string {
	names := []string{
		l.GroupField, l.DateField, l.StartField, l.EndField,
		l.FirstActiveField, l.LastActiveField, l.TagsField,
	}
	return append(names, l.Metrics...)
}

// Persisted builds the reconciliation view of a stored record. Dates that
// cannot be parsed are left zero, which makes the record unindexable rather
// than wrongly matched.
func (l Layout) Persisted(id string, fields map[string]any) PersistedRecord {
	rec := PersistedRecord{
		ID:      id,
		Metrics: make(Metrics, len(l.Metrics)),
	}
	if s, ok := fields[l.GroupField].(string); ok {
		rec.Identity.GroupKey = s
	}
	rec.Identity.Date, _ = ParseDay(fields[l.DateField])
	rec.Identity.PeriodStart, _ = ParseDay(fields[l.StartField])
	rec.Identity.PeriodEnd, _ = ParseDay(fields[l.EndField])
	for _, name := range l.Metrics {
		if v, ok := fields[name]; ok {
			rec.Metrics[name] = CoalesceInt(v)
		}
	}
	return rec
}

// Row converts a stored record back into a row, identity and metrics only.
func (p PersistedRecord) Row() AggregateRow {
	return AggregateRow{
		GroupKey:    p.Identity.GroupKey,
		Date:        p.Identity.Date,
		PeriodStart: p.Identity.PeriodStart,
		PeriodEnd:   p.Identity.PeriodEnd,
		Metrics:     p.Metrics.Clone(),
	}
}
