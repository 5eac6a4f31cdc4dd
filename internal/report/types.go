package report

import (
	"github.com/shopspring/decimal"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
)

// RankedGroup is one entry of a top-N listing.
type RankedGroup struct {
	Group   string              `json:"group"`
	Value   int64               `json:"value"`
	Metrics aggregation.Metrics `json:"metrics"`
}

// QualityRow is a group ranked by the share of its facts that advanced.
type QualityRow struct {
	Group    string          `json:"group"`
	Count    int64           `json:"count"`
	Advanced int64           `json:"advanced"`
	Rate     decimal.Decimal `json:"advancement_rate"` // percent
}

// DailyValue is one group's metrics on one day. Date is YYYY-MM-DD.
type DailyValue struct {
	Group   string              `json:"group,omitempty"`
	Date    string              `json:"date"`
	Metrics aggregation.Metrics `json:"metrics"`
}

// Summary compares the per-group counts with the exact "(all)" count.
// Facts attributed to several groups are counted once per group, so the
// group sum overstates the true total by Factor.
type Summary struct {
	AllCount     int64           `json:"all_count"`
	GroupSum     int64           `json:"group_sum"`
	Factor       decimal.Decimal `json:"duplication_factor"`
	Advanced     int64           `json:"advanced"`
	Rejected     int64           `json:"rejected"`
	Pending      int64           `json:"pending"`
	AdvancedRate decimal.Decimal `json:"advancement_rate"`
}
