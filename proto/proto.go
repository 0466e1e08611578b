package proto

import "context"

type BacktestRequest struct {
	Symbol          string  `json:"symbol"`
	Periods         int     `json:"periods"`
	Strategy        string  `json:"strategy"`
	InitialCash     float64 `json:"initial_cash"`
	Slippage        float64 `json:"slippage"`
	MinutesToExpire int     `json:"minutes_to_expire"`
	PriceTick       float64 `json:"price_tick"`
	FlatThreshold   float64 `json:"flat_threshold"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	Seed            int64   `json:"seed"`
}

type OrderRecord struct {
	Id             int64   `json:"id"`
	Timestamp      int64   `json:"timestamp"`
	Side           string  `json:"side"`
	Type           string  `json:"type"`
	Size           float64 `json:"size"`
	Price          float64 `json:"price"`
	Status         string  `json:"status"`
	CompletionTime int64   `json:"completion_time"`
	CashDiff       float64 `json:"cash_diff"`
	PositionDiff   float64 `json:"position_diff"`
}

type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Cash      float64 `json:"cash"`
	Position  float64 `json:"position"`
	Valuation float64 `json:"valuation"`
}

type BacktestResponse struct {
	JobId          string         `json:"job_id"`
	Symbol         string         `json:"symbol"`
	Ticks          int            `json:"ticks"`
	FinalValuation float64        `json:"final_valuation"`
	Orders         []*OrderRecord `json:"orders"`
	EquityCurve    []*EquityPoint `json:"equity_curve"`
}

// gRPC server interface stub

type UnimplementedBacktestServiceServer struct{}

func RegisterBacktestServiceServer(_ any, _ BacktestServiceServer) {}

type BacktestServiceServer interface {
	ExecuteBacktest(context.Context, *BacktestRequest) (*BacktestResponse, error)
}
