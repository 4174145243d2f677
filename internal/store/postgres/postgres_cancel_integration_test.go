package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sarafa/backend/internal/domain"
	"sarafa/backend/internal/store"
)

func TestCancelTransactionReversesTreasury(t *testing.T) {
	databaseURL := os.Getenv("SARAFA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SARAFA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	employee := fmt.Sprintf("it-user-%d", stamp)
	currencyID := fmt.Sprintf("cur-it-%d", stamp)
	countryID := fmt.Sprintf("cty-it-%d", stamp)
	serviceID := fmt.Sprintf("svc-it-%d", stamp)
	reference := fmt.Sprintf("IT%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_status_logs WHERE transaction_id IN (SELECT id FROM transactions WHERE reference = $1)`, reference)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_currency_lots WHERE transaction_id IN (SELECT id FROM transactions WHERE reference = $1)`, reference)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE reference = $1`, reference)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, serviceID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM currency_lot_logs WHERE currency_id = $1`, currencyID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM currency_lots WHERE currency_id = $1`, currencyID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM currencies WHERE id = $1`, currencyID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM countries WHERE id = $1`, countryID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM treasuries WHERE employee = $1`, employee)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, employee)
	})

	if err := s.CreateUser(ctx, domain.UserAccount{
		Username: employee,
		FullName: "Integration Tester",
		Password: "x",
		Role:     domain.RoleEmployee,
		Active:   true,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := s.CreateCountry(ctx, domain.Country{ID: countryID, Name: "ITLAND " + reference, Code: "IT"}); err != nil {
		t.Fatalf("create country: %v", err)
	}
	if _, err := s.CreateCurrency(ctx, domain.Currency{ID: currencyID, Name: "ITUSD " + reference, Symbol: "$"}); err != nil {
		t.Fatalf("create currency: %v", err)
	}
	if _, err := s.RestockCurrency(ctx, currencyID, decimal.NewFromInt(1000), decimal.RequireFromString("7"), employee); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if _, err := s.CreateService(ctx, domain.Service{
		ID:         serviceID,
		Name:       "IT cash sale " + reference,
		Price:      decimal.RequireFromString("8"),
		Operation:  domain.OperationMultiply,
		CurrencyID: currencyID,
		CountryID:  countryID,
	}); err != nil {
		t.Fatalf("create service: %v", err)
	}

	tx, err := s.CreateSale(ctx, store.SaleInput{
		Reference:     reference,
		ServiceID:     serviceID,
		Employee:      employee,
		CustomerName:  "IT Customer",
		AmountForeign: decimal.NewFromInt(100),
		PaymentType:   domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !tx.AmountLYD.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("amount lyd: want 800, got %s", tx.AmountLYD)
	}

	treasury, err := s.GetTreasury(ctx, employee)
	if err != nil {
		t.Fatalf("get treasury: %v", err)
	}
	if !treasury.Balance.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("treasury after sale: want 800, got %s", treasury.Balance)
	}

	cancelled, err := s.UpdateTransactionStatus(ctx, tx.ID, domain.TxStatusCancelled, "integration test cancel", employee)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.TxStatusCancelled {
		t.Fatalf("status: want cancelled, got %s", cancelled.Status)
	}
	if !cancelled.AmountLYD.IsZero() || !cancelled.AmountForeign.IsZero() {
		t.Fatalf("cancel must zero monetary fields, got foreign=%s lyd=%s", cancelled.AmountForeign, cancelled.AmountLYD)
	}

	treasury, err = s.GetTreasury(ctx, employee)
	if err != nil {
		t.Fatalf("get treasury: %v", err)
	}
	if !treasury.Balance.IsZero() {
		t.Fatalf("treasury after cancel: want 0, got %s", treasury.Balance)
	}

	// Cancelling again must not move the balance a second time.
	if _, err := s.UpdateTransactionStatus(ctx, tx.ID, domain.TxStatusCancelled, "again", employee); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	treasury, err = s.GetTreasury(ctx, employee)
	if err != nil {
		t.Fatalf("get treasury: %v", err)
	}
	if !treasury.Balance.IsZero() {
		t.Fatalf("second cancel must be a balance no-op, got %s", treasury.Balance)
	}

	logs, err := s.ListTransactionStatusLogs(ctx, tx.ID)
	if err != nil {
		t.Fatalf("status logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 status log entries, got %d", len(logs))
	}
}
