package model

import "time"

// Position 持仓记录（由外部 CRUD 层创建/平仓，这里只读和回写现价）
type Position struct {
	ID           string     `json:"id"`
	Scope        string     `json:"scope"` // 持仓分组，对应原始表: trades, trades1, vip_trades
	Market       string     `json:"market"`
	Symbol       string     `json:"symbol"`
	CurrentPrice *float64   `json:"current_price,omitempty"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	ExitDate     *time.Time `json:"exit_date,omitempty"`
	CreatedAt    int64      `json:"created_at"`
	UpdatedAt    int64      `json:"updated_at"`
}

// Open reports whether the position is still a sync candidate.
// A position is open iff it has neither an exit price nor an exit date.
func (p *Position) Open() bool {
	return p.ExitPrice == nil && p.ExitDate == nil
}

// TickSummary 单次同步的结果统计
type TickSummary struct {
	Scope     string `json:"scope"`
	Attempted int    `json:"attempted"`
	Updated   int    `json:"updated"`
	Failed    int    `json:"failed"`
}
