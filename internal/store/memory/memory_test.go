package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"sarafa/backend/internal/domain"
	"sarafa/backend/internal/store"
)

func dec2(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestUpdateTransactionBadStatusLeavesStateUntouched(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	tx, err := repo.CreateSale(ctx, store.SaleInput{
		Reference:     "FBO123",
		ServiceID:     "svc-usd-cash",
		Employee:      "fathi",
		AmountForeign: dec2(t, "100"),
		PaymentType:   domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	amount := dec2(t, "200")
	status := "misplaced"
	_, err = repo.UpdateTransaction(ctx, tx.ID, domain.TransactionUpdateRequest{
		AmountForeign: &amount,
		Status:        &status,
	}, "fathi")
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("bad status should be ErrInvalidInput, got %v", err)
	}

	// The rejected payload must not have applied its amount edit.
	after, err := repo.FindTransactionByID(ctx, tx.ID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if !after.AmountForeign.Equal(dec2(t, "100")) || !after.AmountLYD.Equal(dec2(t, "800")) {
		t.Fatalf("amounts changed despite rejection: foreign=%s lyd=%s", after.AmountForeign, after.AmountLYD)
	}

	lots, err := repo.ListCurrencyLots(ctx, "cur-usd")
	if err != nil {
		t.Fatalf("list lots: %v", err)
	}
	for _, lot := range lots {
		if lot.ID == "lot-usd-1" && !lot.Remaining.Equal(dec2(t, "900")) {
			t.Fatalf("lot-usd-1 remaining changed despite rejection: %s", lot.Remaining)
		}
	}

	treasury, err := repo.GetTreasury(ctx, "fathi")
	if err != nil {
		t.Fatalf("get treasury: %v", err)
	}
	if !treasury.Balance.Equal(dec2(t, "800")) {
		t.Fatalf("treasury changed despite rejection: %s", treasury.Balance)
	}
}
