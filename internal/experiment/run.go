package experiment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delta is the per-phase change in broker accounting, computed as after
// minus before for every tracked stat.
type Delta struct {
	Pnl    decimal.Decimal `json:"pnl"`
	Trades int64           `json:"trades"`
	Wins   int64           `json:"wins"`
	Losses int64           `json:"losses"`
	Fees   decimal.Decimal `json:"fees"`
}

func deltaOf(before, after BrokerSummary) Delta {
	return Delta{
		Pnl:    after.Equity.Sub(before.Equity),
		Trades: after.Stats.Trades - before.Stats.Trades,
		Wins:   after.Stats.Wins - before.Stats.Wins,
		Losses: after.Stats.Losses - before.Stats.Losses,
		Fees:   after.Stats.Fees.Sub(before.Stats.Fees),
	}
}

// PhaseResult is the outcome of one fully-completed phase.
type PhaseResult struct {
	PhaseIndex int           `json:"phaseIndex"`
	Preset     string        `json:"preset"`
	Before     BrokerSummary `json:"before"`
	After      BrokerSummary `json:"after"`
	Delta      Delta         `json:"delta"`
	EndedAt    time.Time     `json:"endedAt"`
}

// Final is the run summary computed at termination.
type Final struct {
	RunID    string          `json:"runId"`
	TotalPnl decimal.Decimal `json:"totalPnl"`
	Trades   int64           `json:"trades"`
	Wins     int64           `json:"wins"`
	Losses   int64           `json:"losses"`
	Fees     decimal.Decimal `json:"fees"`
}

// Run is the orchestrator's run state, mutated only by the phase loop and
// published whole on the run status topic.
type Run struct {
	RunID      string        `json:"runId"`
	Running    bool          `json:"running"`
	StartedAt  time.Time     `json:"startedAt"`
	EndsAt     time.Time     `json:"endsAt"`
	PhaseIndex int           `json:"phaseIndex"`
	Presets    []Preset      `json:"presets"`
	Symbols    []string      `json:"symbols"`
	Results    []PhaseResult `json:"results"`
	Final      *Final        `json:"final,omitempty"`
	Note       string        `json:"note,omitempty"`
}
