package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"sarafa/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInactive            = errors.New("resource inactive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateReference  = errors.New("duplicate reference")
)

// SaleInput is a fully resolved sale ready for the atomic ledger pipeline.
// The store re-checks service and currency state inside its own transaction
// scope; nothing here is trusted to still be true at commit time.
type SaleInput struct {
	ID            string
	Reference     string
	ServiceID     string
	Employee      string
	CustomerID    string
	CustomerName  string
	Beneficiary   string
	Number        string
	AmountForeign decimal.Decimal
	PaymentType   string
	CreatedAt     time.Time
}

type Repository interface {
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
	GetCurrencyByID(ctx context.Context, id string) (*domain.Currency, error)
	CreateCurrency(ctx context.Context, currency domain.Currency) (*domain.Currency, error)
	UpdateCurrency(ctx context.Context, id string, req domain.CurrencyUpdateRequest) (*domain.Currency, error)
	ListCurrencyLots(ctx context.Context, currencyID string) ([]domain.CurrencyLot, error)
	RestockCurrency(ctx context.Context, currencyID string, quantity, costPerUnit decimal.Decimal, addedBy string) (*domain.CurrencyLot, error)
	ListCurrencyLotLogs(ctx context.Context, currencyID string) ([]domain.CurrencyLotLog, error)

	ListCountries(ctx context.Context) ([]domain.Country, error)
	CreateCountry(ctx context.Context, country domain.Country) (*domain.Country, error)

	ListServices(ctx context.Context, activeOnly bool) ([]domain.Service, error)
	GetServiceByID(ctx context.Context, id string) (*domain.Service, error)
	CreateService(ctx context.Context, service domain.Service) (*domain.Service, error)
	UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (*domain.Service, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error)
	ListCustomerReceipts(ctx context.Context, customerID string) ([]domain.ReceiptOrder, error)

	CreateSale(ctx context.Context, sale SaleInput) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, req domain.TransactionUpdateRequest, changedBy string) (*domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, newStatus string, reason string, changedBy string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	ListTransactionStatusLogs(ctx context.Context, transactionID string) ([]domain.TransactionStatusLog, error)

	GetTreasury(ctx context.Context, employee string) (*domain.Treasury, error)
	TransferTreasury(ctx context.Context, fromEmployee, toEmployee string, amount decimal.Decimal) (*domain.TreasuryTransfer, error)
	CreateReceipt(ctx context.Context, customerID string, employee string, amount decimal.Decimal) (*domain.ReceiptOrder, error)
	ListReceipts(ctx context.Context) ([]domain.ReceiptOrder, error)

	GetDailySummary(ctx context.Context, employee string, day time.Time) (domain.DailySummary, error)
	GetFinancialReport(ctx context.Context, filter domain.ReportFilter) (domain.FinancialReport, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
