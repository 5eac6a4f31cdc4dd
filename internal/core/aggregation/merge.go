package aggregation

import "strings"

// MergeByKey folds rows that derive the same key under f into one row:
// metrics are summed, the active range widened and tags unioned. Distinct
// raw handles can collapse onto one key (blank handles become a sentinel,
// lowercasing joins case variants), and the store must see a single record
// per key. Output keeps first-seen order. Rows without a key pass through.
func MergeByKey(rows []AggregateRow, f KeyFormat) []AggregateRow {
	out := make([]AggregateRow, 0, len(rows))
	slot := make(map[string]int, len(rows))
	for _, row := range rows {
		key := DeriveKey(f, row.Identity())
		if key == "" {
			out = append(out, row)
			continue
		}
		i, ok := slot[key]
		if !ok {
			row.Metrics = row.Metrics.Clone()
			slot[key] = len(out)
			out = append(out, row)
			continue
		}
		out[i] = mergeRows(out[i], row)
	}
	return out
}

func mergeRows(dst, src AggregateRow) AggregateRow {
	for name, v := range src.Metrics {
		dst.Metrics[name] += v
	}
	if !src.FirstActive.IsZero() && (dst.FirstActive.IsZero() || src.FirstActive.Before(dst.FirstActive)) {
		dst.FirstActive = src.FirstActive
	}
	if src.LastActive.After(dst.LastActive) {
		dst.LastActive = src.LastActive
	}
	dst.Tags = JoinTags(append(splitTags(dst.Tags), splitTags(src.Tags)...))
	return dst
}

func splitTags(tags *string) []string {
	if tags == nil {
		return nil
	}
	return strings.Split(*tags, ", ")
}
