// Package position derives net holdings and cost basis from the trade
// ledger. Compute is a pure function of a trade slice: it carries no state
// and is recomputed on every query rather than cached, so the ledger stays
// the single source of truth.
package position

import (
	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/model"
)

// Compute aggregates the trades of one account/instrument pair.
//
// Net quantity is total bought minus total sold. Average cost is the
// lifetime average over all buys. It is not reduced on partial sale, so
// selling never changes the cost basis of what remains. With no buys the
// average cost is zero, never a division by zero.
func Compute(trades []model.Trade) model.Position {
	var p model.Position
	if len(trades) > 0 {
		p.AccountID = trades[0].AccountID
		p.InstrumentID = trades[0].InstrumentID
	}

	var buyQty, sellQty int64
	totalCost := decimal.Zero

	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			buyQty += t.Quantity
			totalCost = totalCost.Add(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
		case model.SideSell:
			sellQty += t.Quantity
		}
	}

	p.NetQuantity = buyQty - sellQty
	if buyQty > 0 {
		p.AverageCost = totalCost.Div(decimal.NewFromInt(buyQty))
	} else {
		p.AverageCost = decimal.Zero
	}
	return p
}
