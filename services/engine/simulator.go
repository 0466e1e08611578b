// Package engine implements a deterministic single-instrument backtesting
// simulator: OHLCV bars are replayed tick by tick against a set of open
// orders and a cash/position account, producing an equity curve.
package engine

import (
	"time"
)

// Config holds the broker-model knobs recognized by the simulator.
type Config struct {
	// Slippage is the fractional price degradation applied to market fills.
	Slippage float64
	// MinutesToExpire is the window after which an unfilled order is
	// discarded as expired.
	MinutesToExpire int
	// PriceTick is the instrument's price precision; market fill prices are
	// rounded to it. Zero keeps raw prices.
	PriceTick float64
}

// Simulator advances through a tick sequence, resolving every active order
// against each new bar and recording one account snapshot per tick.
//
// One Advance call is one atomic step; the simulator is single-threaded and
// each run must own its own instance (the order-id counter is per instance).
type Simulator struct {
	source *TickSource
	cfg    Config

	tick Tick
	now  time.Time

	cash     float64
	position float64

	active    []*Order
	archived  []*Order
	snapshots SnapshotLog

	nextID int64
}

func NewSimulator(source *TickSource, initialCash float64, cfg Config) *Simulator {
	return &Simulator{
		source: source,
		cfg:    cfg,
		cash:   initialCash,
	}
}

// NewMarketOrder creates a market order stamped with the current replay time
// and the next order id. The order is not submitted.
func (s *Simulator) NewMarketOrder(side Side, size float64) (*Order, error) {
	if size <= 0 {
		return nil, ErrSizeNotPositive
	}
	return s.newOrder(OrderMarket, side, size, 0), nil
}

// NewLimitOrder creates a limit order at the given price. The order is not
// submitted.
func (s *Simulator) NewLimitOrder(side Side, size, price float64) (*Order, error) {
	if size <= 0 {
		return nil, ErrSizeNotPositive
	}
	if price < 0 {
		return nil, ErrNegativePrice
	}
	return s.newOrder(OrderLimit, side, size, price), nil
}

func (s *Simulator) newOrder(typ OrderType, side Side, size, price float64) *Order {
	o := &Order{
		ID:        s.nextID,
		Timestamp: s.now,
		Side:      side,
		Type:      typ,
		Size:      size,
		Price:     price,
	}
	s.nextID++
	return o
}

// AddOrder queues an order into the active set. No validation happens at
// submission time; the order is evaluated on the next processed tick.
func (s *Simulator) AddOrder(o *Order) {
	s.active = append(s.active, o)
}

// MarketBuy creates and submits a market buy in one step.
func (s *Simulator) MarketBuy(size float64) (*Order, error) {
	o, err := s.NewMarketOrder(SideBuy, size)
	if err != nil {
		return nil, err
	}
	s.AddOrder(o)
	return o, nil
}

// MarketSell creates and submits a market sell in one step.
func (s *Simulator) MarketSell(size float64) (*Order, error) {
	o, err := s.NewMarketOrder(SideSell, size)
	if err != nil {
		return nil, err
	}
	s.AddOrder(o)
	return o, nil
}

// LimitBuy creates and submits a limit buy in one step.
func (s *Simulator) LimitBuy(size, price float64) (*Order, error) {
	o, err := s.NewLimitOrder(SideBuy, size, price)
	if err != nil {
		return nil, err
	}
	s.AddOrder(o)
	return o, nil
}

// LimitSell creates and submits a limit sell in one step.
func (s *Simulator) LimitSell(size, price float64) (*Order, error) {
	o, err := s.NewLimitOrder(SideSell, size, price)
	if err != nil {
		return nil, err
	}
	s.AddOrder(o)
	return o, nil
}

// Advance pulls the next tick, resolves all active orders against it and
// appends a snapshot. It returns ErrExhausted once the source is drained.
func (s *Simulator) Advance() (time.Time, error) {
	t, err := s.source.Next()
	if err != nil {
		return time.Time{}, err
	}
	s.tick = t
	s.now = t.Timestamp
	s.handleOrders()
	s.takeSnapshot()
	return s.now, nil
}

// handleOrders walks the active set in submission order. Each order takes
// exactly one transition per tick: expired, invalid, executed, or it stays
// active. Expiry is checked before anything else so an order can never
// expire and execute on the same tick.
func (s *Simulator) handleOrders() {
	remained := make([]*Order, 0, len(s.active))
	for _, o := range s.active {
		if s.now.Sub(o.Timestamp) >= time.Duration(s.cfg.MinutesToExpire)*time.Minute {
			o.Result = OrderResult{CompletionTime: s.now, Status: StatusExpired}
			s.archived = append(s.archived, o)
			continue
		}

		if !s.validateOrder(o) {
			o.Result = OrderResult{CompletionTime: s.now, Status: StatusInvalid}
			s.archived = append(s.archived, o)
			continue
		}

		if o.Type == OrderMarket || shouldFillLimit(o.Side, o.Price, s.tick) {
			s.executeOrder(o)
			s.archived = append(s.archived, o)
			continue
		}

		remained = append(remained, o)
	}
	s.active = remained
}

// effectivePrice is shared by validation and execution so an order can never
// validate at one price and fill at another. Market orders pay slippage on
// the close, rounded to the price tick; limit orders fill at their price.
func (s *Simulator) effectivePrice(o *Order) float64 {
	if o.Type == OrderLimit {
		return o.Price
	}
	if o.Side == SideBuy {
		return roundStep(s.tick.Close*(1+s.cfg.Slippage), s.cfg.PriceTick)
	}
	return roundStep(s.tick.Close*(1-s.cfg.Slippage), s.cfg.PriceTick)
}

func (s *Simulator) validateOrder(o *Order) bool {
	// Min-lot, max-lot and collateral checks are not modeled yet.
	price := s.effectivePrice(o)
	if o.Side == SideBuy {
		return s.cash-price*o.Size >= 0
	}
	return s.position-o.Size >= 0
}

// executeOrder applies the fill to the account. Cash and position move
// together; the order's result records the exact deltas.
func (s *Simulator) executeOrder(o *Order) {
	price := s.effectivePrice(o)

	var cashDiff, positionDiff float64
	if o.Side == SideBuy {
		cashDiff = -price * o.Size
		positionDiff = o.Size
	} else {
		cashDiff = price * o.Size
		positionDiff = -o.Size
	}

	s.cash += cashDiff
	s.position += positionDiff

	o.Result = OrderResult{
		CompletionTime: s.now,
		Status:         StatusExecuted,
		CashDiff:       cashDiff,
		PositionDiff:   positionDiff,
	}
}

func (s *Simulator) takeSnapshot() {
	s.snapshots.Append(s.State())
}

// State returns the current mark-to-market snapshot without recording it.
func (s *Simulator) State() Snapshot {
	return Snapshot{
		Timestamp: s.now,
		Cash:      s.cash,
		Position:  s.position,
		Valuation: s.position*s.tick.Close + s.cash,
	}
}

func (s *Simulator) Tick() Tick { return s.tick }

func (s *Simulator) Now() time.Time { return s.now }

func (s *Simulator) Cash() float64 { return s.cash }

func (s *Simulator) Position() float64 { return s.position }

// ActiveOrders exposes the open order set. Callers must treat it as
// read-only.
func (s *Simulator) ActiveOrders() []*Order { return s.active }

// ArchivedOrders exposes every order that reached a terminal status, in
// archive order.
func (s *Simulator) ArchivedOrders() []*Order { return s.archived }

func (s *Simulator) Snapshots() *SnapshotLog { return &s.snapshots }
