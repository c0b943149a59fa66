package domain

// FinanceSnapshot summarizes mirrored revenue for the client layer.
type FinanceSnapshot struct {
	OrderRevenue     float64 `json:"order_revenue"`
	SettledRevenue   float64 `json:"settled_revenue"`
	FeeTotal         float64 `json:"fee_total"`
	UnsettledRevenue float64 `json:"unsettled_revenue"`
}

// EstimateUnsettledRevenue applies the configured settle-rate policy to
// the gap between order revenue and settled revenue. The rate is a
// business estimate, not a derived invariant; it is configuration, and
// the gap is clamped so a settlement-heavy window never goes negative.
func EstimateUnsettledRevenue(orderRevenue, settledRevenue, settleRate float64) float64 {
	gap := orderRevenue - settledRevenue
	if gap < 0 {
		return 0
	}
	return gap * settleRate
}
