package experiment

// Preset is a named immutable bundle of strategy parameters applied for one
// phase of a run.
type Preset struct {
	Name   string `json:"name"`
	Params Params `json:"params"`
}

// BuiltinPresets returns the default rotation used when the caller supplies
// none. Order matters: phase i applies preset i modulo the list length.
func BuiltinPresets() []Preset {
	return []Preset{
		{Name: "baseline", Params: Params{
			Leverage:      ptrOf(2.0),
			OrderSizeUSD:  ptrOf(100.0),
			TakeProfitPct: ptrOf(0.8),
			StopLossPct:   ptrOf(0.4),
			MaxPositions:  ptrOf(3),
		}},
		{Name: "tight-scalp", Params: Params{
			Leverage:      ptrOf(3.0),
			OrderSizeUSD:  ptrOf(50.0),
			TakeProfitPct: ptrOf(0.25),
			StopLossPct:   ptrOf(0.15),
			CooldownSec:   ptrOf(10),
			MaxPositions:  ptrOf(5),
		}},
		{Name: "wide-swing", Params: Params{
			Leverage:      ptrOf(1.0),
			OrderSizeUSD:  ptrOf(200.0),
			TakeProfitPct: ptrOf(2.5),
			StopLossPct:   ptrOf(1.2),
			MaxPositions:  ptrOf(2),
		}},
		{Name: "trailing", Params: Params{
			Leverage:        ptrOf(2.0),
			OrderSizeUSD:    ptrOf(100.0),
			TakeProfitPct:   ptrOf(1.5),
			StopLossPct:     ptrOf(0.6),
			TrailingStopPct: ptrOf(0.3),
		}},
		{Name: "aggressive", Params: Params{
			Leverage:      ptrOf(5.0),
			OrderSizeUSD:  ptrOf(150.0),
			TakeProfitPct: ptrOf(1.0),
			StopLossPct:   ptrOf(0.8),
			MaxPositions:  ptrOf(6),
			CooldownSec:   ptrOf(5),
		}},
		{Name: "conservative", Params: Params{
			Leverage:      ptrOf(1.0),
			OrderSizeUSD:  ptrOf(75.0),
			TakeProfitPct: ptrOf(0.6),
			StopLossPct:   ptrOf(0.2),
			MaxPositions:  ptrOf(1),
			CooldownSec:   ptrOf(60),
		}},
		{Name: "momentum", Params: Params{
			Leverage:      ptrOf(3.0),
			OrderSizeUSD:  ptrOf(120.0),
			TakeProfitPct: ptrOf(1.8),
			StopLossPct:   ptrOf(0.9),
			CooldownSec:   ptrOf(20),
		}},
		{Name: "mean-revert", Params: Params{
			Leverage:      ptrOf(2.0),
			OrderSizeUSD:  ptrOf(80.0),
			TakeProfitPct: ptrOf(0.5),
			StopLossPct:   ptrOf(0.5),
			MaxPositions:  ptrOf(4),
			CooldownSec:   ptrOf(15),
		}},
	}
}
