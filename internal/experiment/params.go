package experiment

// Params is a partial strategy configuration. Pointer fields distinguish
// "set to zero" from "not provided": nil means keep the prior value.
type Params struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	Leverage        *float64 `json:"leverage,omitempty"`
	OrderSizeUSD    *float64 `json:"orderSizeUsd,omitempty"`
	TakeProfitPct   *float64 `json:"takeProfitPct,omitempty"`
	StopLossPct     *float64 `json:"stopLossPct,omitempty"`
	TrailingStopPct *float64 `json:"trailingStopPct,omitempty"`
	MaxPositions    *int     `json:"maxPositions,omitempty"`
	CooldownSec     *int     `json:"cooldownSec,omitempty"`
}

// Merge returns p overlaid with partial. Fields set in partial override,
// absent fields retain p's values.
func (p Params) Merge(partial Params) Params {
	if partial.Enabled != nil {
		p.Enabled = partial.Enabled
	}
	if partial.Leverage != nil {
		p.Leverage = partial.Leverage
	}
	if partial.OrderSizeUSD != nil {
		p.OrderSizeUSD = partial.OrderSizeUSD
	}
	if partial.TakeProfitPct != nil {
		p.TakeProfitPct = partial.TakeProfitPct
	}
	if partial.StopLossPct != nil {
		p.StopLossPct = partial.StopLossPct
	}
	if partial.TrailingStopPct != nil {
		p.TrailingStopPct = partial.TrailingStopPct
	}
	if partial.MaxPositions != nil {
		p.MaxPositions = partial.MaxPositions
	}
	if partial.CooldownSec != nil {
		p.CooldownSec = partial.CooldownSec
	}
	return p
}

func ptrOf[T any](v T) *T { return &v }
