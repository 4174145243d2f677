// Package ledger holds the pure arithmetic of the exchange office:
// FIFO lot allocation with negative-stock borrowing, cost and profit
// computation per service operation, restock deficit recovery, and the
// reverse-order release used by shrinking edits. It performs no I/O; the
// store backends feed it lot state and persist whatever it returns.
package ledger

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"sarafa/backend/internal/domain"
)

var (
	ErrNoInventory          = errors.New("no currency lots exist to allocate from")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidAmount        = errors.New("invalid amount")
)

// Lot is the slice of lot state the allocator needs. Allocate mutates
// Remaining in place; callers persist the mutated values.
type Lot struct {
	ID          string
	Remaining   decimal.Decimal
	CostPerUnit decimal.Decimal
	CreatedAt   int64
}

// Draw records how much was taken from one lot. Cost is filled in by
// Compute according to the operation.
type Draw struct {
	LotID       string
	Quantity    decimal.Decimal
	CostPerUnit decimal.Decimal
	Cost        decimal.Decimal
}

type Report struct {
	Draws     []Draw
	TotalCost decimal.Decimal
	AvgCost   decimal.Decimal
	TotalSale decimal.Decimal
	Profit    decimal.Decimal
}

// SortLots orders lots oldest first with the lot id as a deterministic
// tie-break. Allocation must be bit-for-bit reproducible for a given lot
// set, otherwise edits could not exactly reverse prior draws.
func SortLots(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if lots[i].CreatedAt != lots[j].CreatedAt {
			return lots[i].CreatedAt < lots[j].CreatedAt
		}
		return lots[i].ID < lots[j].ID
	})
}

// Allocate drains positive stock oldest first. If stock runs out the whole
// residual is borrowed from the newest lot, driving its remaining quantity
// negative. Only a currency with no lots at all is a hard failure.
func Allocate(lots []Lot, needed decimal.Decimal) ([]Draw, error) {
	if needed.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if needed.IsZero() {
		return []Draw{}, nil
	}

	remaining := needed
	draws := make([]Draw, 0, 4)
	for i := range lots {
		if !lots[i].Remaining.IsPositive() {
			continue
		}
		take := decimal.Min(lots[i].Remaining, remaining)
		draws = append(draws, Draw{LotID: lots[i].ID, Quantity: take, CostPerUnit: lots[i].CostPerUnit})
		lots[i].Remaining = lots[i].Remaining.Sub(take)
		remaining = remaining.Sub(take)
		if !remaining.IsPositive() {
			break
		}
	}

	if remaining.IsPositive() {
		if len(lots) == 0 {
			return nil, ErrNoInventory
		}
		newest := len(lots) - 1
		draws = append(draws, Draw{LotID: lots[newest].ID, Quantity: remaining, CostPerUnit: lots[newest].CostPerUnit})
		lots[newest].Remaining = lots[newest].Remaining.Sub(remaining)
	}

	return draws, nil
}

// Compute fills in per-draw costs and derives the money figures for the
// given operation. Sale values are rounded to 2 decimal places, average
// cost keeps 4 for downstream precision.
func Compute(draws []Draw, operation string, saleRate, needed decimal.Decimal) (Report, error) {
	totalCost := decimal.Zero
	for i := range draws {
		var cost decimal.Decimal
		switch operation {
		case domain.OperationMultiply:
			cost = draws[i].CostPerUnit.Mul(draws[i].Quantity)
		case domain.OperationDivide:
			cost = draws[i].Quantity.Div(draws[i].CostPerUnit)
		case domain.OperationPluse:
			cost = draws[i].Quantity
		default:
			return Report{}, ErrUnsupportedOperation
		}
		draws[i].Cost = cost.Round(2)
		totalCost = totalCost.Add(cost)
	}

	var totalSale decimal.Decimal
	switch operation {
	case domain.OperationMultiply:
		totalSale = needed.Mul(saleRate).Round(2)
	case domain.OperationDivide:
		totalSale = needed.Div(saleRate).Round(2)
	case domain.OperationPluse:
		totalSale = needed
	default:
		return Report{}, ErrUnsupportedOperation
	}

	avgCost := decimal.Zero
	if !needed.IsZero() {
		avgCost = totalCost.Div(needed).Round(4)
	}

	return Report{
		Draws:     draws,
		TotalCost: totalCost.Round(2),
		AvgCost:   avgCost,
		TotalSale: totalSale,
		Profit:    totalSale.Sub(totalCost).Round(2),
	}, nil
}

// AllocateAndCompute is the full pipeline for one sale. A zero amount
// short-circuits to an all-zero report without touching any lot.
func AllocateAndCompute(lots []Lot, operation string, saleRate, needed decimal.Decimal) (Report, error) {
	if !domain.ValidOperation(operation) {
		return Report{}, ErrUnsupportedOperation
	}
	if needed.IsZero() {
		return Report{Draws: []Draw{}}, nil
	}
	draws, err := Allocate(lots, needed)
	if err != nil {
		return Report{}, err
	}
	return Compute(draws, operation, saleRate, needed)
}

// Repayment raises one negative lot's remaining quantity toward zero.
type Repayment struct {
	LotID  string
	Amount decimal.Decimal
}

// PlanRestock implements deficit recovery for a newly received batch. The
// sum of all negative remaining quantities is deducted from the new lot's
// effective remaining (floored at zero), then negative lots are repaid
// oldest first from that same deficit. Lots must already be in age order.
func PlanRestock(lots []Lot, quantity decimal.Decimal) (decimal.Decimal, []Repayment) {
	deficit := decimal.Zero
	for _, lot := range lots {
		if lot.Remaining.IsNegative() {
			deficit = deficit.Add(lot.Remaining.Neg())
		}
	}

	remaining := quantity.Sub(deficit)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	repayments := make([]Repayment, 0, 2)
	toCover := deficit
	for _, lot := range lots {
		if !toCover.IsPositive() {
			break
		}
		if !lot.Remaining.IsNegative() {
			continue
		}
		fix := decimal.Min(lot.Remaining.Neg(), toCover)
		repayments = append(repayments, Repayment{LotID: lot.ID, Amount: fix})
		toCover = toCover.Sub(fix)
	}

	return remaining, repayments
}

// Consumption is the slice of a stored consumption record the release
// planner needs, in insertion order.
type Consumption struct {
	RecordID    string
	LotID       string
	Quantity    decimal.Decimal
	CostPerUnit decimal.Decimal
}

// ReleaseStep undoes part of one consumption record: the lot gets Quantity
// back, and the record either shrinks by Quantity or is deleted outright.
type ReleaseStep struct {
	RecordID string
	LotID    string
	Quantity decimal.Decimal
	Cost     decimal.Decimal
	Delete   bool
}

// PlanRelease returns amount back to inventory by unwinding consumption
// records in reverse insertion order, the inverse of the most recent
// forward allocation. Cost per step follows the same operation arithmetic
// as Compute so the released cost matches what was originally charged.
func PlanRelease(records []Consumption, operation string, amount decimal.Decimal) ([]ReleaseStep, decimal.Decimal, error) {
	if amount.IsNegative() {
		return nil, decimal.Zero, ErrInvalidAmount
	}

	steps := make([]ReleaseStep, 0, 2)
	releasedCost := decimal.Zero
	remaining := amount
	for i := len(records) - 1; i >= 0 && remaining.IsPositive(); i-- {
		rec := records[i]
		give := decimal.Min(rec.Quantity, remaining)

		var cost decimal.Decimal
		switch operation {
		case domain.OperationMultiply:
			cost = rec.CostPerUnit.Mul(give)
		case domain.OperationDivide:
			cost = give.Div(rec.CostPerUnit)
		case domain.OperationPluse:
			cost = give
		default:
			return nil, decimal.Zero, ErrUnsupportedOperation
		}

		steps = append(steps, ReleaseStep{
			RecordID: rec.RecordID,
			LotID:    rec.LotID,
			Quantity: give,
			Cost:     cost,
			Delete:   give.Equal(rec.Quantity),
		})
		releasedCost = releasedCost.Add(cost)
		remaining = remaining.Sub(give)
	}

	if remaining.IsPositive() {
		return nil, decimal.Zero, ErrInvalidAmount
	}

	return steps, releasedCost, nil
}

// SaleValue converts a foreign amount to local currency at the given rate
// under the operation's arithmetic. Used for the incremental figures on
// edits, which are priced at the current rate rather than the creation
// rate.
func SaleValue(operation string, saleRate, amount decimal.Decimal) (decimal.Decimal, error) {
	switch operation {
	case domain.OperationMultiply:
		return amount.Mul(saleRate).Round(2), nil
	case domain.OperationDivide:
		return amount.Div(saleRate).Round(2), nil
	case domain.OperationPluse:
		return amount, nil
	default:
		return decimal.Zero, ErrUnsupportedOperation
	}
}
