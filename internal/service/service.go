package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"sarafa/backend/internal/cache"
	"sarafa/backend/internal/domain"
	"sarafa/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Notifier pushes an event to connected clients after a mutation commits.
type Notifier interface {
	Broadcast(ctx context.Context, event domain.Event)
}

const (
	referenceAttempts = 5
	reportCachePrefix = "report:financial:"
	reportCacheTTL    = 5 * time.Minute
)

type Service struct {
	repo     store.Repository
	reports  cache.ReportCache
	notifier Notifier
}

func New(repo store.Repository, reports cache.ReportCache, notifier Notifier) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}

	return &Service{
		repo:     repo,
		reports:  reports,
		notifier: notifier,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("authenticated actor required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

func (s *Service) emit(ctx context.Context, eventType, entity, content string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Broadcast(ctx, domain.Event{Type: eventType, Entity: entity, Content: content})
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	log.Printf("[audit] actor=%s role=%s action=%s entity=%s/%s %s", actor.Username, actor.Role, action, entityType, entityID, detail)
}

func (s *Service) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	return s.repo.ListCurrencies(ctx)
}

func (s *Service) GetCurrency(ctx context.Context, id string) (domain.Currency, error) {
	currency, err := s.repo.GetCurrencyByID(ctx, id)
	if err != nil {
		return domain.Currency{}, err
	}
	return *currency, nil
}

func (s *Service) CreateCurrency(ctx context.Context, req domain.CurrencyCreateRequest) (domain.Currency, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Currency{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Name == "" || req.Symbol == "" {
		return domain.Currency{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCurrency(ctx, domain.Currency{Name: req.Name, Symbol: req.Symbol})
	if err != nil {
		return domain.Currency{}, err
	}

	s.logAudit(ctx, "currency_create", "currency", created.ID, fmt.Sprintf("name=%s", created.Name))
	s.emit(ctx, domain.EventCurrencyCreated, created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateCurrency(ctx context.Context, id string, req domain.CurrencyUpdateRequest) (domain.Currency, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Currency{}, err
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return domain.Currency{}, store.ErrInvalidInput
	}
	if req.Symbol != nil && strings.TrimSpace(*req.Symbol) == "" {
		return domain.Currency{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateCurrency(ctx, id, req)
	if err != nil {
		return domain.Currency{}, err
	}

	s.logAudit(ctx, "currency_update", "currency", updated.ID, fmt.Sprintf("active=%t", updated.Active))
	s.emit(ctx, domain.EventCurrencyUpdated, updated.ID, updated.Name)
	return *updated, nil
}

func (s *Service) ListCurrencyLots(ctx context.Context, currencyID string) ([]domain.CurrencyLot, error) {
	return s.repo.ListCurrencyLots(ctx, currencyID)
}

func (s *Service) ListCurrencyLotLogs(ctx context.Context, currencyID string) ([]domain.CurrencyLotLog, error) {
	return s.repo.ListCurrencyLotLogs(ctx, currencyID)
}

// RestockCurrency receives a purchased batch into inventory. The store
// runs deficit recovery against any borrowed stock inside the same
// transaction.
func (s *Service) RestockCurrency(ctx context.Context, currencyID string, req domain.CurrencyLotCreateRequest) (domain.CurrencyLot, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.CurrencyLot{}, err
	}
	if !req.Quantity.IsPositive() || !req.CostPerUnit.IsPositive() {
		return domain.CurrencyLot{}, store.ErrInvalidInput
	}

	lot, err := s.repo.RestockCurrency(ctx, currencyID, req.Quantity, req.CostPerUnit, actor.Username)
	if err != nil {
		return domain.CurrencyLot{}, err
	}

	s.logAudit(ctx, "currency_restock", "currency_lot", lot.ID, fmt.Sprintf("currency=%s,qty=%s,cost=%s", currencyID, req.Quantity, req.CostPerUnit))
	s.emit(ctx, domain.EventCurrencyLotAdded, lot.ID, currencyID)
	return *lot, nil
}

func (s *Service) ListCountries(ctx context.Context) ([]domain.Country, error) {
	return s.repo.ListCountries(ctx)
}

func (s *Service) CreateCountry(ctx context.Context, req domain.CountryCreateRequest) (domain.Country, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Country{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Name == "" || req.Code == "" {
		return domain.Country{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCountry(ctx, domain.Country{Name: req.Name, Code: req.Code})
	if err != nil {
		return domain.Country{}, err
	}

	s.logAudit(ctx, "country_create", "country", created.ID, created.Name)
	return *created, nil
}

// ListServices returns all services for admins and only active ones for
// everyone else.
func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	actor, _ := ActorFromContext(ctx)
	return s.repo.ListServices(ctx, actor.Role != domain.RoleAdmin)
}

// ListServicesGrouped buckets active services under their country, the
// shape the selling screen renders.
func (s *Service) ListServicesGrouped(ctx context.Context) ([]domain.ServiceGroup, error) {
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return nil, err
	}
	services, err := s.repo.ListServices(ctx, true)
	if err != nil {
		return nil, err
	}

	byCountry := make(map[string][]domain.Service, len(countries))
	for _, svc := range services {
		byCountry[svc.CountryID] = append(byCountry[svc.CountryID], svc)
	}

	groups := make([]domain.ServiceGroup, 0, len(countries))
	for _, country := range countries {
		if len(byCountry[country.ID]) == 0 {
			continue
		}
		groups = append(groups, domain.ServiceGroup{Country: country, Services: byCountry[country.ID]})
	}
	return groups, nil
}

func (s *Service) GetService(ctx context.Context, id string) (domain.Service, error) {
	svc, err := s.repo.GetServiceByID(ctx, id)
	if err != nil {
		return domain.Service{}, err
	}
	return *svc, nil
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Service{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !req.Price.IsPositive() || !domain.ValidOperation(req.Operation) {
		return domain.Service{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetCurrencyByID(ctx, req.CurrencyID); err != nil {
		return domain.Service{}, err
	}

	created, err := s.repo.CreateService(ctx, domain.Service{
		Name:       req.Name,
		ImageURL:   strings.TrimSpace(req.ImageURL),
		Price:      req.Price,
		Operation:  req.Operation,
		CurrencyID: req.CurrencyID,
		CountryID:  req.CountryID,
	})
	if err != nil {
		return domain.Service{}, err
	}

	s.logAudit(ctx, "service_create", "service", created.ID, fmt.Sprintf("name=%s,op=%s,price=%s", created.Name, created.Operation, created.Price))
	return *created, nil
}

func (s *Service) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (domain.Service, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Service{}, err
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return domain.Service{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateService(ctx, id, req)
	if err != nil {
		return domain.Service{}, err
	}

	s.logAudit(ctx, "service_update", "service", updated.ID, fmt.Sprintf("active=%t,price=%s", updated.Active, updated.Price))
	s.emit(ctx, domain.EventServiceUpdated, updated.ID, updated.Name)
	return *updated, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:       req.Name,
		Phone:      req.Phone,
		City:       strings.TrimSpace(req.City),
		BalanceDue: decimal.Zero,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	return s.repo.ListCustomerTransactions(ctx, customerID)
}

func (s *Service) ListCustomerReceipts(ctx context.Context, customerID string) ([]domain.ReceiptOrder, error) {
	return s.repo.ListCustomerReceipts(ctx, customerID)
}

// generateReference builds a human-readable transaction reference from
// the seller's initials plus a random 3-digit suffix. Uniqueness is
// enforced by the store; CreateTransaction retries on collision.
func generateReference(fullName, username string) (string, error) {
	var initials strings.Builder
	for _, word := range strings.Fields(fullName) {
		r, _ := utf8.DecodeRuneInString(word)
		initials.WriteRune(unicode.ToUpper(r))
	}
	if initials.Len() == 0 && username != "" {
		taken := 0
		for _, r := range username {
			initials.WriteRune(unicode.ToUpper(r))
			taken++
			if taken == 2 {
				break
			}
		}
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", initials.String(), n.Int64()), nil
}

// CreateTransaction performs a sale on behalf of the authenticated
// employee: allocates lot inventory, prices the sale, and settles the
// employee treasury or the customer debt depending on payment type.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}

	if req.ServiceID == "" || req.AmountForeign.IsNegative() {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	if req.PaymentType != domain.PaymentCash && req.PaymentType != domain.PaymentCredit {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	var tx *domain.Transaction
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		reference, err := generateReference(actor.FullName, actor.Username)
		if err != nil {
			return domain.Transaction{}, err
		}

		tx, err = s.repo.CreateSale(ctx, store.SaleInput{
			Reference:     reference,
			ServiceID:     req.ServiceID,
			Employee:      actor.Username,
			CustomerID:    req.CustomerID,
			CustomerName:  strings.TrimSpace(req.CustomerName),
			Beneficiary:   strings.TrimSpace(req.Beneficiary),
			Number:        strings.TrimSpace(req.Number),
			AmountForeign: req.AmountForeign,
			PaymentType:   req.PaymentType,
		})
		if errors.Is(err, store.ErrDuplicateReference) {
			continue
		}
		if err != nil {
			return domain.Transaction{}, err
		}
		break
	}
	if tx == nil {
		return domain.Transaction{}, store.ErrDuplicateReference
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "transaction_create", "transaction", tx.ID, fmt.Sprintf("ref=%s,foreign=%s,lyd=%s,payment=%s", tx.Reference, tx.AmountForeign, tx.AmountLYD, tx.PaymentType))
	s.emit(ctx, domain.EventTransactionCreated, tx.ID, tx.Reference)
	return *tx, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// ListTransactions scopes non-admin callers to their own sales.
func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		filter.Employee = actor.Username
	}
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, req domain.TransactionUpdateRequest) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}

	if req.Status != nil && !domain.ValidTransactionStatus(*req.Status) {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	if req.AmountForeign != nil && req.AmountForeign.IsNegative() {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	existing, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if actor.Role != domain.RoleAdmin && existing.Employee != actor.Username {
		return domain.Transaction{}, fmt.Errorf("admin role required")
	}

	updated, err := s.repo.UpdateTransaction(ctx, id, req, actor.Username)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "transaction_update", "transaction", updated.ID, fmt.Sprintf("ref=%s,foreign=%s,lyd=%s", updated.Reference, updated.AmountForeign, updated.AmountLYD))
	s.emit(ctx, domain.EventTransactionUpdated, updated.ID, updated.Reference)
	return *updated, nil
}

func (s *Service) UpdateTransactionStatus(ctx context.Context, id string, req domain.TransactionStatusUpdateRequest) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !domain.ValidTransactionStatus(req.Status) {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	existing, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if actor.Role != domain.RoleAdmin && existing.Employee != actor.Username {
		return domain.Transaction{}, fmt.Errorf("admin role required")
	}

	updated, err := s.repo.UpdateTransactionStatus(ctx, id, req.Status, req.Reason, actor.Username)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "transaction_status", "transaction", updated.ID, fmt.Sprintf("status=%s,reason=%s", req.Status, req.Reason))
	s.emit(ctx, domain.EventTransactionStatusChanged, updated.ID, req.Status)
	return *updated, nil
}

func (s *Service) ListTransactionStatusLogs(ctx context.Context, transactionID string) ([]domain.TransactionStatusLog, error) {
	return s.repo.ListTransactionStatusLogs(ctx, transactionID)
}

// MyTreasury returns the caller's cash drawer.
func (s *Service) MyTreasury(ctx context.Context) (domain.Treasury, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Treasury{}, err
	}
	treasury, err := s.repo.GetTreasury(ctx, actor.Username)
	if err != nil {
		return domain.Treasury{}, err
	}
	return *treasury, nil
}

func (s *Service) GetTreasury(ctx context.Context, employee string) (domain.Treasury, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Treasury{}, err
	}
	if actor.Role != domain.RoleAdmin && employee != actor.Username {
		return domain.Treasury{}, fmt.Errorf("admin role required")
	}

	treasury, err := s.repo.GetTreasury(ctx, employee)
	if err != nil {
		return domain.Treasury{}, err
	}
	return *treasury, nil
}

// TransferTreasury moves cash between drawers. Non-admin callers can only
// send from their own drawer.
func (s *Service) TransferTreasury(ctx context.Context, req domain.TreasuryTransferRequest) (domain.TreasuryTransfer, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.TreasuryTransfer{}, err
	}
	if req.FromEmployee == "" {
		req.FromEmployee = actor.Username
	}
	if actor.Role != domain.RoleAdmin && req.FromEmployee != actor.Username {
		return domain.TreasuryTransfer{}, fmt.Errorf("admin role required")
	}
	if req.ToEmployee == "" || !req.Amount.IsPositive() {
		return domain.TreasuryTransfer{}, store.ErrInvalidInput
	}

	transfer, err := s.repo.TransferTreasury(ctx, req.FromEmployee, req.ToEmployee, req.Amount)
	if err != nil {
		return domain.TreasuryTransfer{}, err
	}

	s.logAudit(ctx, "treasury_transfer", "treasury", transfer.ID, fmt.Sprintf("from=%s,to=%s,amount=%s", transfer.FromEmployee, transfer.ToEmployee, transfer.Amount))
	s.emit(ctx, domain.EventTreasuryTransfer, transfer.ID, transfer.Amount.String())
	return *transfer, nil
}

// CreateReceipt collects a debt payment from a customer into the
// caller's treasury.
func (s *Service) CreateReceipt(ctx context.Context, req domain.ReceiptCreateRequest) (domain.ReceiptOrder, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ReceiptOrder{}, err
	}
	if req.CustomerID == "" || !req.Amount.IsPositive() {
		return domain.ReceiptOrder{}, store.ErrInvalidInput
	}

	receipt, err := s.repo.CreateReceipt(ctx, req.CustomerID, actor.Username, req.Amount)
	if err != nil {
		return domain.ReceiptOrder{}, err
	}

	s.logAudit(ctx, "receipt_create", "receipt", receipt.ID, fmt.Sprintf("customer=%s,amount=%s", receipt.CustomerID, receipt.Amount))
	s.emit(ctx, domain.EventReceiptCreated, receipt.ID, receipt.CustomerID)
	return *receipt, nil
}

func (s *Service) ListReceipts(ctx context.Context) ([]domain.ReceiptOrder, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListReceipts(ctx)
}

// DailySummary is the caller's end-of-day reconciliation sheet. Admins
// may request another employee's sheet.
func (s *Service) DailySummary(ctx context.Context, employee string, day time.Time) (domain.DailySummary, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if employee == "" {
		employee = actor.Username
	}
	if actor.Role != domain.RoleAdmin && employee != actor.Username {
		return domain.DailySummary{}, fmt.Errorf("admin role required")
	}

	return s.repo.GetDailySummary(ctx, employee, day)
}

func reportCacheKey(filter domain.ReportFilter) string {
	return fmt.Sprintf("%s%s:%s:%s", reportCachePrefix,
		filter.From.UTC().Format("2006-01-02"),
		filter.To.UTC().Format("2006-01-02"),
		filter.Employee)
}

// FinancialReport aggregates completed transactions over a period. Reads
// go through the report cache; every transaction mutation invalidates it.
func (s *Service) FinancialReport(ctx context.Context, filter domain.ReportFilter) (domain.FinancialReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.FinancialReport{}, err
	}
	if filter.To.Before(filter.From) {
		return domain.FinancialReport{}, store.ErrInvalidInput
	}

	key := reportCacheKey(filter)
	if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache read failed: %v", err)
	}

	report, err := s.repo.GetFinancialReport(ctx, filter)
	if err != nil {
		return domain.FinancialReport{}, err
	}

	if err := s.reports.Set(ctx, key, &report, reportCacheTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed: %v", err)
	}
	return report, nil
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx, reportCachePrefix); err != nil {
		log.Printf("[service] WARN: report cache invalidation failed: %v", err)
	}
}

// CreateEmployee provisions an account together with its treasury.
func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.EmployeeUser, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.EmployeeUser{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Username == "" || req.FullName == "" || len(req.Password) < 8 {
		return domain.EmployeeUser{}, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.EmployeeUser{}, err
	}

	account := domain.UserAccount{
		Username:  req.Username,
		FullName:  req.FullName,
		Password:  string(hash),
		Role:      domain.RoleEmployee,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.EmployeeUser{}, err
	}

	s.logAudit(ctx, "employee_create", "user", account.Username, account.FullName)
	return domain.EmployeeUser{
		Username:  account.Username,
		FullName:  account.FullName,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.EmployeeUser, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	employees := make([]domain.EmployeeUser, 0, len(accounts))
	for _, account := range accounts {
		employees = append(employees, domain.EmployeeUser{
			Username:  account.Username,
			FullName:  account.FullName,
			Role:      account.Role,
			Active:    account.Active,
			CreatedAt: account.CreatedAt,
		})
	}
	return employees, nil
}

// ChangePassword lets a user rotate their own password; admins can reset
// anyone's.
func (s *Service) ChangePassword(ctx context.Context, username string, newPassword string) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if username == "" {
		username = actor.Username
	}
	if actor.Role != domain.RoleAdmin && username != actor.Username {
		return fmt.Errorf("admin role required")
	}
	if len(newPassword) < 8 {
		return store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateUserPassword(ctx, username, string(hash)); err != nil {
		return err
	}

	s.logAudit(ctx, "password_change", "user", username, "")
	return nil
}
