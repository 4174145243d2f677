package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"sarafa/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func lot(id string, remaining, cost string, age int64) Lot {
	return Lot{ID: id, Remaining: dec(remaining), CostPerUnit: dec(cost), CreatedAt: age}
}

func TestAllocateDrainsOldestFirst(t *testing.T) {
	lots := []Lot{
		lot("lot-a", "100", "7", 1),
		lot("lot-b", "50", "7.5", 2),
	}

	draws, err := Allocate(lots, dec("120"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(draws) != 2 {
		t.Fatalf("expected 2 draws, got %d", len(draws))
	}
	if draws[0].LotID != "lot-a" || !draws[0].Quantity.Equal(dec("100")) {
		t.Fatalf("first draw should empty lot-a, got %s qty %s", draws[0].LotID, draws[0].Quantity)
	}
	if draws[1].LotID != "lot-b" || !draws[1].Quantity.Equal(dec("20")) {
		t.Fatalf("second draw should take 20 from lot-b, got %s qty %s", draws[1].LotID, draws[1].Quantity)
	}
	if !lots[0].Remaining.IsZero() {
		t.Fatalf("lot-a should be empty, got %s", lots[0].Remaining)
	}
	if !lots[1].Remaining.Equal(dec("30")) {
		t.Fatalf("lot-b should have 30 left, got %s", lots[1].Remaining)
	}

	total := decimal.Zero
	for _, d := range draws {
		total = total.Add(d.Quantity)
	}
	if !total.Equal(dec("120")) {
		t.Fatalf("draw quantities should sum to the needed amount, got %s", total)
	}
}

func TestAllocateBorrowsFromNewestLot(t *testing.T) {
	lots := []Lot{
		lot("lot-old", "40", "7", 1),
		lot("lot-new", "10", "7.5", 2),
	}

	draws, err := Allocate(lots, dec("80"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	last := draws[len(draws)-1]
	if last.LotID != "lot-new" {
		t.Fatalf("residual must come from the newest lot, got %s", last.LotID)
	}
	if !lots[1].Remaining.Equal(dec("-30")) {
		t.Fatalf("newest lot should be negative by exactly the excess, got %s", lots[1].Remaining)
	}
	if !lots[0].Remaining.IsZero() {
		t.Fatalf("oldest lot should be drained to zero, got %s", lots[0].Remaining)
	}
}

func TestAllocateNoLots(t *testing.T) {
	_, err := Allocate([]Lot{}, dec("10"))
	if !errors.Is(err, ErrNoInventory) {
		t.Fatalf("expected ErrNoInventory, got %v", err)
	}
}

func TestAllocateSkipsEmptyAndNegativeLots(t *testing.T) {
	lots := []Lot{
		lot("lot-neg", "-5", "7", 1),
		lot("lot-pos", "100", "7", 2),
	}

	draws, err := Allocate(lots, dec("10"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(draws) != 1 || draws[0].LotID != "lot-pos" {
		t.Fatalf("negative lot must not serve positive stock, draws: %+v", draws)
	}
	if !lots[0].Remaining.Equal(dec("-5")) {
		t.Fatalf("negative lot should be untouched, got %s", lots[0].Remaining)
	}
}

func TestComputeMultiply(t *testing.T) {
	lots := []Lot{lot("lot-a", "500", "7", 1)}

	report, err := AllocateAndCompute(lots, domain.OperationMultiply, dec("8"), dec("100"))
	if err != nil {
		t.Fatalf("allocate and compute: %v", err)
	}
	if !report.TotalSale.Equal(dec("800")) {
		t.Fatalf("total sale: want 800, got %s", report.TotalSale)
	}
	if !report.TotalCost.Equal(dec("700")) {
		t.Fatalf("total cost: want 700, got %s", report.TotalCost)
	}
	if !report.Profit.Equal(dec("100")) {
		t.Fatalf("profit: want 100, got %s", report.Profit)
	}
	if !report.AvgCost.Equal(dec("7")) {
		t.Fatalf("avg cost: want 7, got %s", report.AvgCost)
	}
}

func TestComputeDivide(t *testing.T) {
	lots := []Lot{lot("lot-a", "2000", "0.09", 1)}

	report, err := AllocateAndCompute(lots, domain.OperationDivide, dec("10"), dec("1000"))
	if err != nil {
		t.Fatalf("allocate and compute: %v", err)
	}
	// divide semantics: sale = 1000 / 10, cost per lot = qty / cost_per_unit
	if !report.TotalSale.Equal(dec("100")) {
		t.Fatalf("total sale: want 100, got %s", report.TotalSale)
	}
	if !report.TotalCost.Equal(dec("11111.11")) {
		t.Fatalf("total cost: want 11111.11, got %s", report.TotalCost)
	}
}

func TestComputeDivideWorkedExample(t *testing.T) {
	// 1000 foreign at sale rate 10 against a single lot costing 0.09 each:
	// sale = 10000 when the rate means "foreign per LYD" inverted upstream.
	draws := []Draw{{LotID: "lot-a", Quantity: dec("1000"), CostPerUnit: dec("0.09")}}

	report, err := Compute(draws, domain.OperationMultiply, dec("10"), dec("1000"))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !report.TotalSale.Equal(dec("10000")) {
		t.Fatalf("total sale: want 10000, got %s", report.TotalSale)
	}
	if !report.TotalCost.Equal(dec("90")) {
		t.Fatalf("total cost: want 90, got %s", report.TotalCost)
	}
	if !report.Profit.Equal(dec("9910")) {
		t.Fatalf("profit: want 9910, got %s", report.Profit)
	}
	if !report.AvgCost.Equal(dec("0.09")) {
		t.Fatalf("avg cost: want 0.09, got %s", report.AvgCost)
	}
}

func TestComputePluse(t *testing.T) {
	lots := []Lot{lot("lot-a", "300", "1", 1)}

	report, err := AllocateAndCompute(lots, domain.OperationPluse, dec("0"), dec("250"))
	if err != nil {
		t.Fatalf("allocate and compute: %v", err)
	}
	if !report.TotalSale.Equal(dec("250")) {
		t.Fatalf("pluse passes the amount through, got %s", report.TotalSale)
	}
	if !report.TotalCost.Equal(dec("250")) {
		t.Fatalf("pluse cost equals quantity, got %s", report.TotalCost)
	}
	if !report.Profit.IsZero() {
		t.Fatalf("pluse on equal amounts has zero profit, got %s", report.Profit)
	}
}

func TestComputeUnsupportedOperation(t *testing.T) {
	lots := []Lot{lot("lot-a", "10", "1", 1)}
	_, err := AllocateAndCompute(lots, "modulo", dec("1"), dec("5"))
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestZeroAmountShortCircuits(t *testing.T) {
	lots := []Lot{lot("lot-a", "10", "7", 1)}

	report, err := AllocateAndCompute(lots, domain.OperationMultiply, dec("8"), dec("0"))
	if err != nil {
		t.Fatalf("allocate and compute: %v", err)
	}
	if len(report.Draws) != 0 {
		t.Fatalf("zero amount must not allocate, got %d draws", len(report.Draws))
	}
	if !report.TotalSale.IsZero() || !report.TotalCost.IsZero() || !report.Profit.IsZero() || !report.AvgCost.IsZero() {
		t.Fatalf("zero amount must produce all-zero report: %+v", report)
	}
	if !lots[0].Remaining.Equal(dec("10")) {
		t.Fatalf("zero amount must leave lots untouched, got %s", lots[0].Remaining)
	}
}

func TestPlanRestockDeficitRecovery(t *testing.T) {
	lots := []Lot{lot("lot-a", "-30", "7", 1)}

	remaining, repayments := PlanRestock(lots, dec("50"))
	if !remaining.Equal(dec("20")) {
		t.Fatalf("new lot remaining: want 20, got %s", remaining)
	}
	if len(repayments) != 1 {
		t.Fatalf("expected one repayment, got %d", len(repayments))
	}
	if repayments[0].LotID != "lot-a" || !repayments[0].Amount.Equal(dec("30")) {
		t.Fatalf("lot-a should be repaid to zero, got %+v", repayments[0])
	}
}

func TestPlanRestockDeficitExceedsQuantity(t *testing.T) {
	lots := []Lot{
		lot("lot-a", "-40", "7", 1),
		lot("lot-b", "-20", "7", 2),
	}

	remaining, repayments := PlanRestock(lots, dec("50"))
	if !remaining.IsZero() {
		t.Fatalf("new lot remaining floors at zero, got %s", remaining)
	}
	// Oldest shortfall is repaid first, from the full deficit.
	if len(repayments) != 2 {
		t.Fatalf("expected both lots repaid, got %d", len(repayments))
	}
	if repayments[0].LotID != "lot-a" || !repayments[0].Amount.Equal(dec("40")) {
		t.Fatalf("oldest lot repaid first in full, got %+v", repayments[0])
	}
	if repayments[1].LotID != "lot-b" || !repayments[1].Amount.Equal(dec("20")) {
		t.Fatalf("second lot repaid next, got %+v", repayments[1])
	}
}

func TestPlanRestockNoDeficit(t *testing.T) {
	lots := []Lot{lot("lot-a", "10", "7", 1)}

	remaining, repayments := PlanRestock(lots, dec("50"))
	if !remaining.Equal(dec("50")) {
		t.Fatalf("no deficit keeps full quantity, got %s", remaining)
	}
	if len(repayments) != 0 {
		t.Fatalf("no repayments expected, got %d", len(repayments))
	}
}

func TestPlanReleaseReverseOrder(t *testing.T) {
	records := []Consumption{
		{RecordID: "rec-1", LotID: "lot-a", Quantity: dec("100"), CostPerUnit: dec("7")},
		{RecordID: "rec-2", LotID: "lot-b", Quantity: dec("20"), CostPerUnit: dec("7.5")},
	}

	steps, cost, err := PlanRelease(records, domain.OperationMultiply, dec("50"))
	if err != nil {
		t.Fatalf("plan release: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].RecordID != "rec-2" || !steps[0].Delete {
		t.Fatalf("newest record unwinds first and empties, got %+v", steps[0])
	}
	if steps[1].RecordID != "rec-1" || steps[1].Delete || !steps[1].Quantity.Equal(dec("30")) {
		t.Fatalf("older record shrinks by the residual, got %+v", steps[1])
	}
	// 20 * 7.5 + 30 * 7 = 360
	if !cost.Equal(dec("360")) {
		t.Fatalf("released cost: want 360, got %s", cost)
	}
}

func TestPlanReleaseBeyondConsumed(t *testing.T) {
	records := []Consumption{
		{RecordID: "rec-1", LotID: "lot-a", Quantity: dec("10"), CostPerUnit: dec("7")},
	}
	_, _, err := PlanRelease(records, domain.OperationMultiply, dec("11"))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("releasing more than consumed must fail, got %v", err)
	}
}

func TestSortLotsTieBreaksByID(t *testing.T) {
	lots := []Lot{
		lot("lot-b", "1", "1", 5),
		lot("lot-a", "1", "1", 5),
		lot("lot-c", "1", "1", 3),
	}
	SortLots(lots)
	if lots[0].ID != "lot-c" || lots[1].ID != "lot-a" || lots[2].ID != "lot-b" {
		t.Fatalf("unexpected order: %s %s %s", lots[0].ID, lots[1].ID, lots[2].ID)
	}
}
