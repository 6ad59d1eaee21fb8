package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MarketQuote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Volume        int64           `json:"volume"`
	High24h       decimal.Decimal `json:"high24h"`
	Low24h        decimal.Decimal `json:"low24h"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
}
