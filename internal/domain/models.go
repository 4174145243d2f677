package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Currency struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	Active    bool            `json:"active"`
	Stock     decimal.Decimal `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
}

type CurrencyCreateRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type CurrencyUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Symbol *string `json:"symbol,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// CurrencyLot is a batch of purchased foreign currency with its own cost
// basis. Quantity and CostPerUnit are fixed at creation; Remaining is the
// only mutable field and may go negative under the borrowing policy.
type CurrencyLot struct {
	ID          string          `json:"id"`
	CurrencyID  string          `json:"currency_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Remaining   decimal.Decimal `json:"remaining_quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CurrencyLotCreateRequest struct {
	Quantity    decimal.Decimal `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

type CurrencyLotLog struct {
	ID            string          `json:"id"`
	LotID         string          `json:"lot_id"`
	CurrencyID    string          `json:"currency_id"`
	QuantityAdded decimal.Decimal `json:"quantity_added"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	AddedBy       string          `json:"added_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Country struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type CountryCreateRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type Service struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ImageURL   string          `json:"image_url,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Operation  string          `json:"operation"`
	CurrencyID string          `json:"currency_id"`
	CountryID  string          `json:"country_id"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ServiceCreateRequest struct {
	Name       string          `json:"name"`
	ImageURL   string          `json:"image_url"`
	Price      decimal.Decimal `json:"price"`
	Operation  string          `json:"operation"`
	CurrencyID string          `json:"currency_id"`
	CountryID  string          `json:"country_id"`
}

type ServiceUpdateRequest struct {
	Name      *string          `json:"name,omitempty"`
	ImageURL  *string          `json:"image_url,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Operation *string          `json:"operation,omitempty"`
	Active    *bool            `json:"active,omitempty"`
}

type ServiceGroup struct {
	Country  Country   `json:"country"`
	Services []Service `json:"services"`
}

type Customer struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone"`
	City       string          `json:"city,omitempty"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	City  string `json:"city"`
}

// ConsumptionRecord links a transaction to a lot it drew from. CostPerUnit
// is a snapshot of the lot's cost at consumption time, never read back from
// the lot. Position preserves insertion order so shrinking edits can unwind
// draws last-added-first.
type ConsumptionRecord struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	LotID         string          `json:"lot_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	Position      int             `json:"position"`
}

type Transaction struct {
	ID            string              `json:"id"`
	Reference     string              `json:"reference"`
	CustomerName  string              `json:"customer_name,omitempty"`
	Beneficiary   string              `json:"to,omitempty"`
	Number        string              `json:"number,omitempty"`
	AmountForeign decimal.Decimal     `json:"amount_foreign"`
	AmountLYD     decimal.Decimal     `json:"amount_lyd"`
	PaymentType   string              `json:"payment_type"`
	Status        string              `json:"status"`
	StatusReason  string              `json:"status_reason,omitempty"`
	Profit        decimal.Decimal     `json:"profit"`
	Employee      string              `json:"employee"`
	CustomerID    string              `json:"customer_id,omitempty"`
	ServiceID     string              `json:"service_id"`
	CurrencyID    string              `json:"currency_id"`
	CreatedAt     time.Time           `json:"created_at"`
	LotDraws      []ConsumptionRecord `json:"lot_draws,omitempty"`
}

type TransactionCreateRequest struct {
	ServiceID     string          `json:"service_id"`
	AmountForeign decimal.Decimal `json:"amount_foreign"`
	PaymentType   string          `json:"payment_type"`
	CustomerID    string          `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	Beneficiary   string          `json:"to"`
	Number        string          `json:"number"`
}

type TransactionUpdateRequest struct {
	AmountForeign *decimal.Decimal `json:"amount_foreign,omitempty"`
	CustomerName  *string          `json:"customer_name,omitempty"`
	Beneficiary   *string          `json:"to,omitempty"`
	Number        *string          `json:"number,omitempty"`
	Status        *string          `json:"status,omitempty"`
	StatusReason  *string          `json:"status_reason,omitempty"`
}

type TransactionStatusUpdateRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type TransactionFilter struct {
	Employee    string
	Status      string
	PaymentType string
	From        *time.Time
	To          *time.Time
	Limit       int
}

type TransactionStatusLog struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transaction_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	ChangedBy      string    `json:"changed_by"`
	ChangedAt      time.Time `json:"changed_at"`
}

type Treasury struct {
	Employee string          `json:"employee"`
	Balance  decimal.Decimal `json:"balance"`
}

type TreasuryTransfer struct {
	ID           string          `json:"id"`
	FromEmployee string          `json:"from_employee"`
	ToEmployee   string          `json:"to_employee"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

type TreasuryTransferRequest struct {
	FromEmployee string          `json:"from_employee"`
	ToEmployee   string          `json:"to_employee"`
	Amount       decimal.Decimal `json:"amount"`
}

type ReceiptOrder struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Employee   string          `json:"employee"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ReceiptCreateRequest struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type DailySummary struct {
	Employee         string             `json:"employee"`
	Date             string             `json:"date"`
	CashTransactions []Transaction      `json:"cash_transactions"`
	Receipts         []ReceiptOrder     `json:"receipts"`
	TransfersOut     []TreasuryTransfer `json:"transfers_out"`
}

type FinancialReportDay struct {
	Date        string          `json:"date"`
	TotalLYD    decimal.Decimal `json:"total_lyd"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

type FinancialReport struct {
	TotalTransactions int64                `json:"total_transactions"`
	TotalForeign      decimal.Decimal      `json:"total_sent_value"`
	TotalLYD          decimal.Decimal      `json:"total_lyd_collected"`
	TotalCost         decimal.Decimal      `json:"total_cost"`
	TotalProfit       decimal.Decimal      `json:"total_profit"`
	DailyBreakdown    []FinancialReportDay `json:"daily_breakdown"`
}

type ReportFilter struct {
	From     time.Time
	To       time.Time
	Employee string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	FullName string
	Role     string
}

type EmployeeCreateRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type EmployeeUser struct {
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	FullName  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// Event is the payload pushed to connected clients after a ledger
// operation commits.
type Event struct {
	Type    string `json:"type"`
	Entity  string `json:"entity_id,omitempty"`
	Content string `json:"content"`
}

const (
	OperationMultiply = "multiply"
	OperationDivide   = "divide"
	OperationPluse    = "pluse"
)

const (
	PaymentCash   = "cash"
	PaymentCredit = "credit"
)

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusCancelled = "cancelled"
	TxStatusReturned  = "returned"
)

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

const (
	EventTransactionCreated       = "transaction_created"
	EventTransactionUpdated       = "transaction_updated"
	EventTransactionStatusChanged = "transaction_status_changed"
	EventCurrencyCreated          = "currency_created"
	EventCurrencyUpdated          = "currency_updated"
	EventCurrencyLotAdded         = "currency_lot_added"
	EventServiceUpdated           = "service_updated"
	EventReceiptCreated           = "receipt_created"
	EventTreasuryTransfer         = "treasury_transfer"
)

func ValidOperation(op string) bool {
	switch op {
	case OperationMultiply, OperationDivide, OperationPluse:
		return true
	}
	return false
}

func ValidTransactionStatus(status string) bool {
	switch status {
	case TxStatusPending, TxStatusCompleted, TxStatusCancelled, TxStatusReturned:
		return true
	}
	return false
}
