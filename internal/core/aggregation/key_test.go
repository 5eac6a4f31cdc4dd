package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name   string
		format KeyFormat
		id     Identity
		want   string
	}{
		{
			name:   "handle only",
			format: KeyHandle,
			id:     Identity{GroupKey: "newsletter"},
			want:   "newsletter",
		},
		{
			name:   "handle only ignores dates",
			format: KeyHandle,
			id:     Identity{GroupKey: "newsletter", Date: day(2025, 1, 1)},
			want:   "newsletter",
		},
		{
			name:   "handle and date",
			format: KeyHandleDate,
			id:     Identity{GroupKey: "(all)", Date: day(2025, 1, 2)},
			want:   "(all)-1/2/25",
		},
		{
			name:   "handle and range",
			format: KeyHandleRange,
			id:     Identity{GroupKey: "X", PeriodStart: day(2025, 1, 1), PeriodEnd: day(2025, 3, 15)},
			want:   "X-1/1/25-3/15/25",
		},
		{
			name:   "empty group fails closed",
			format: KeyHandle,
			id:     Identity{},
			want:   "",
		},
		{
			name:   "missing date fails closed",
			format: KeyHandleDate,
			id:     Identity{GroupKey: "A"},
			want:   "",
		},
		{
			name:   "missing range end fails closed",
			format: KeyHandleRange,
			id:     Identity{GroupKey: "A", PeriodStart: day(2025, 1, 1)},
			want:   "",
		},
		{
			name:   "unknown format fails closed",
			format: KeyFormat("weekly"),
			id:     Identity{GroupKey: "A"},
			want:   "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveKey(tc.format, tc.id))
		})
	}
}

func TestKeyFromStrings_CanonicalizesDateRepresentations(t *testing.T) {
	representations := [][2]string{
		{"1/1/2025", "3/15/2025"},
		{"01/01/25", "03/15/25"},
		{"2025-01-01", "2025-03-15"},
		{"2025-01-01T08:30:00Z", "2025-03-15T23:59:59Z"},
	}

	var keys []string
	for _, r := range representations {
		key, err := keyFromStrings(KeyHandleRange, "X", r[0], r[1])
		require.NoError(t, err)
		keys = append(keys, key)
	}
	for _, k := range keys {
		require.Equal(t, "X-1/1/25-3/15/25", k)
	}
}

func TestKeyFromStrings_Errors(t *testing.T) {
	_, err := keyFromStrings(KeyHandleDate, "A")
	require.Error(t, err)

	_, err = keyFromStrings(KeyHandleRange, "A", "2025-01-01")
	require.Error(t, err)

	_, err = keyFromStrings(KeyHandleDate, "A", "yesterday")
	require.Error(t, err)
}

func TestDeriveKey_DistinctTuplesDoNotCollide(t *testing.T) {
	seen := make(map[string]Identity)
	groups := []string{"A", "B", "A-1", "(all)"}
	for _, g := range groups {
		for d := 1; d <= 31; d++ {
			for span := 0; span < 3; span++ {
				id := Identity{
					GroupKey:    g,
					PeriodStart: day(2025, 1, d),
					PeriodEnd:   day(2025, 1, d).AddDate(0, span, 0),
				}
				key := DeriveKey(KeyHandleRange, id)
				require.NotEmpty(t, key)
				if prev, ok := seen[key]; ok {
					t.Fatalf("key %q produced by %+v and %+v", key, prev, id)
				}
				seen[key] = id
			}
		}
	}
}
