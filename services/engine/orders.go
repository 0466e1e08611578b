package engine

import (
	"errors"
	"time"
)

type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the side that offsets s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType int

const (
	OrderMarket OrderType = iota
	OrderLimit
)

func (t OrderType) String() string {
	if t == OrderMarket {
		return "market"
	}
	return "limit"
}

type OrderStatus int

const (
	StatusUnexecuted OrderStatus = iota
	StatusExecuted
	StatusExpired
	StatusInvalid
)

func (st OrderStatus) String() string {
	switch st {
	case StatusExecuted:
		return "executed"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	default:
		return "unexecuted"
	}
}

// Terminal reports whether the status can no longer change.
func (st OrderStatus) Terminal() bool {
	return st != StatusUnexecuted
}

// OrderResult records the outcome of an order. It is written exactly once,
// when the order reaches a terminal status. CashDiff and PositionDiff are
// only meaningful for executed orders.
type OrderResult struct {
	CompletionTime time.Time
	Status         OrderStatus
	CashDiff       float64
	PositionDiff   float64
}

// Order is a single full-fill-or-reject order. Market and limit orders share
// one representation distinguished by Type; Price is only set for limits.
// Everything except Result is immutable after creation.
type Order struct {
	ID        int64
	Timestamp time.Time
	Side      Side
	Type      OrderType
	Size      float64
	Price     float64
	Result    OrderResult
}

var (
	ErrSizeNotPositive = errors.New("engine: order size must be positive")
	ErrNegativePrice   = errors.New("engine: limit price must be non-negative")
)

func (o *Order) IsExecuted() bool {
	return o.Result.Status == StatusExecuted
}

// IsOpen reports whether the order has not reached a terminal status yet.
func (o *Order) IsOpen() bool {
	return o.Result.Status == StatusUnexecuted
}

// shouldFillLimit reports whether the tick's range reached the limit price:
// a buy fills when the bar traded down to it, a sell when it traded up to it.
func shouldFillLimit(side Side, limit float64, t Tick) bool {
	if side == SideBuy {
		return limit >= t.Low
	}
	return limit <= t.High
}

// roundStep snaps v to the nearest multiple of step. step <= 0 keeps v as is.
func roundStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	n := v / step
	return float64(int64(n+0.5)) * step
}
