package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"sarafa/backend/internal/domain"
	"sarafa/backend/internal/ledger"
	"sarafa/backend/internal/store"
	"sarafa/backend/internal/xid"
)

// Store is an in-memory Repository used for dev mode and tests. A single
// mutex serializes every ledger operation, so allocation against one
// currency can never interleave with another sale.
type Store struct {
	mu              sync.RWMutex
	currencies      map[string]*domain.Currency
	lotsByCurrency  map[string][]*domain.CurrencyLot
	lotLogs         []domain.CurrencyLotLog
	countries       map[string]*domain.Country
	services        map[string]*domain.Service
	customers       map[string]*domain.Customer
	transactions    map[string]*domain.Transaction
	txOrder         []string
	drawsByTx       map[string][]*domain.ConsumptionRecord
	statusLogs      []domain.TransactionStatusLog
	treasuries      map[string]*domain.Treasury
	transfers       []domain.TreasuryTransfer
	receipts        []domain.ReceiptOrder
	usersByUsername map[string]domain.UserAccount
	referencesSeen  map[string]bool
}

func New() *Store {
	return &Store{
		currencies:      make(map[string]*domain.Currency),
		lotsByCurrency:  make(map[string][]*domain.CurrencyLot),
		lotLogs:         make([]domain.CurrencyLotLog, 0, 32),
		countries:       make(map[string]*domain.Country),
		services:        make(map[string]*domain.Service),
		customers:       make(map[string]*domain.Customer),
		transactions:    make(map[string]*domain.Transaction),
		txOrder:         make([]string, 0, 64),
		drawsByTx:       make(map[string][]*domain.ConsumptionRecord),
		statusLogs:      make([]domain.TransactionStatusLog, 0, 64),
		treasuries:      make(map[string]*domain.Treasury),
		transfers:       make([]domain.TreasuryTransfer, 0, 16),
		receipts:        make([]domain.ReceiptOrder, 0, 16),
		usersByUsername: make(map[string]domain.UserAccount),
		referencesSeen:  make(map[string]bool),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		fullName string
		password string
		role     string
	}{
		{"admin", "Office Admin", adminPwd, domain.RoleAdmin},
		{"fathi", "Fathi Ben Omran", employeePwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			FullName:  u.fullName,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.usersByUsername = seedUsers()
	for username := range s.usersByUsername {
		s.treasuries[username] = &domain.Treasury{Employee: username, Balance: decimal.Zero}
	}

	countries := []domain.Country{
		{ID: "cty-ly", Name: "Libya", Code: "LY"},
		{ID: "cty-eg", Name: "Egypt", Code: "EG"},
		{ID: "cty-tn", Name: "Tunisia", Code: "TN"},
	}
	for i := range countries {
		c := countries[i]
		s.countries[c.ID] = &c
	}

	currencies := []domain.Currency{
		{ID: "cur-usd", Name: "USD", Symbol: "$", Active: true, CreatedAt: now},
		{ID: "cur-eur", Name: "EUR", Symbol: "€", Active: true, CreatedAt: now},
	}
	for i := range currencies {
		c := currencies[i]
		s.currencies[c.ID] = &c
	}

	lots := []domain.CurrencyLot{
		{ID: "lot-usd-1", CurrencyID: "cur-usd", Quantity: dec("1000"), Remaining: dec("1000"), CostPerUnit: dec("7"), CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "lot-usd-2", CurrencyID: "cur-usd", Quantity: dec("500"), Remaining: dec("500"), CostPerUnit: dec("7.2"), CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "lot-eur-1", CurrencyID: "cur-eur", Quantity: dec("800"), Remaining: dec("800"), CostPerUnit: dec("8.1"), CreatedAt: now.Add(-24 * time.Hour)},
	}
	for i := range lots {
		l := lots[i]
		s.lotsByCurrency[l.CurrencyID] = append(s.lotsByCurrency[l.CurrencyID], &l)
	}

	services := []domain.Service{
		{ID: "svc-usd-cash", Name: "USD Cash Sale", Price: dec("8"), Operation: domain.OperationMultiply, CurrencyID: "cur-usd", CountryID: "cty-ly", Active: true, CreatedAt: now},
		{ID: "svc-eur-cash", Name: "EUR Cash Sale", Price: dec("8.9"), Operation: domain.OperationMultiply, CurrencyID: "cur-eur", CountryID: "cty-ly", Active: true, CreatedAt: now},
		{ID: "svc-usd-remit", Name: "USD Remittance", Price: dec("10"), Operation: domain.OperationDivide, CurrencyID: "cur-usd", CountryID: "cty-eg", Active: true, CreatedAt: now},
	}
	for i := range services {
		svc := services[i]
		s.services[svc.ID] = &svc
	}

	customers := []domain.Customer{
		{ID: "cst-1", Name: "Salem Trading", Phone: "0912000001", City: "Tripoli", BalanceDue: decimal.Zero, CreatedAt: now},
		{ID: "cst-2", Name: "Huda Elmahdi", Phone: "0912000002", City: "Benghazi", BalanceDue: decimal.Zero, CreatedAt: now},
	}
	for i := range customers {
		c := customers[i]
		s.customers[c.ID] = &c
	}

	return s
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ledgerLots builds the allocator's view of a currency's lots, ordered by
// ledger.SortLots, plus a parallel slice of the store's own records so
// mutated remaining quantities can be written back by index.
func (s *Store) ledgerLots(currencyID string) ([]ledger.Lot, []*domain.CurrencyLot) {
	stored := s.lotsByCurrency[currencyID]
	byID := make(map[string]*domain.CurrencyLot, len(stored))
	lots := make([]ledger.Lot, 0, len(stored))
	for _, l := range stored {
		byID[l.ID] = l
		lots = append(lots, ledger.Lot{ID: l.ID, Remaining: l.Remaining, CostPerUnit: l.CostPerUnit, CreatedAt: l.CreatedAt.UnixNano()})
	}
	ledger.SortLots(lots)

	sorted := make([]*domain.CurrencyLot, len(lots))
	for i, l := range lots {
		sorted[i] = byID[l.ID]
	}
	return lots, sorted
}

// sortedLots returns the currency's lots in allocation order.
func (s *Store) sortedLots(currencyID string) []*domain.CurrencyLot {
	_, sorted := s.ledgerLots(currencyID)
	return sorted
}

func (s *Store) stockOf(currencyID string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lotsByCurrency[currencyID] {
		total = total.Add(l.Remaining)
	}
	return total
}

func (s *Store) ListCurrencies(_ context.Context) ([]domain.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	currencies := make([]domain.Currency, 0, len(s.currencies))
	for _, c := range s.currencies {
		cur := *c
		cur.Stock = s.stockOf(c.ID)
		currencies = append(currencies, cur)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i].Name < currencies[j].Name })
	return currencies, nil
}

func (s *Store) GetCurrencyByID(_ context.Context, id string) (*domain.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.currencies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cur := *c
	cur.Stock = s.stockOf(id)
	return &cur, nil
}

func (s *Store) CreateCurrency(_ context.Context, currency domain.Currency) (*domain.Currency, error) {
	if strings.TrimSpace(currency.Name) == "" || strings.TrimSpace(currency.Symbol) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.currencies {
		if strings.EqualFold(existing.Name, currency.Name) {
			return nil, store.ErrInvalidInput
		}
	}

	if currency.ID == "" {
		currency.ID = xid.New("cur")
	}
	if currency.CreatedAt.IsZero() {
		currency.CreatedAt = time.Now().UTC()
	}
	currency.Active = true
	currency.Stock = decimal.Zero
	stored := currency
	s.currencies[stored.ID] = &stored

	created := stored
	return &created, nil
}

func (s *Store) UpdateCurrency(_ context.Context, id string, req domain.CurrencyUpdateRequest) (*domain.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.currencies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, store.ErrInvalidInput
		}
		c.Name = *req.Name
	}
	if req.Symbol != nil {
		c.Symbol = *req.Symbol
	}
	if req.Active != nil {
		c.Active = *req.Active
	}

	updated := *c
	updated.Stock = s.stockOf(id)
	return &updated, nil
}

func (s *Store) ListCurrencyLots(_ context.Context, currencyID string) ([]domain.CurrencyLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.currencies[currencyID]; !ok {
		return nil, store.ErrNotFound
	}

	sorted := s.sortedLots(currencyID)
	lots := make([]domain.CurrencyLot, 0, len(sorted))
	for _, l := range sorted {
		lots = append(lots, *l)
	}
	return lots, nil
}

func (s *Store) RestockCurrency(_ context.Context, currencyID string, quantity, costPerUnit decimal.Decimal, addedBy string) (*domain.CurrencyLot, error) {
	if !quantity.IsPositive() || !costPerUnit.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.currencies[currencyID]; !ok {
		return nil, store.ErrNotFound
	}

	lots, sorted := s.ledgerLots(currencyID)
	remaining, repayments := ledger.PlanRestock(lots, quantity)

	byID := make(map[string]*domain.CurrencyLot, len(sorted))
	for _, l := range sorted {
		byID[l.ID] = l
	}
	for _, rep := range repayments {
		byID[rep.LotID].Remaining = byID[rep.LotID].Remaining.Add(rep.Amount)
	}

	now := time.Now().UTC()
	lot := &domain.CurrencyLot{
		ID:          xid.New("lot"),
		CurrencyID:  currencyID,
		Quantity:    quantity,
		Remaining:   remaining,
		CostPerUnit: costPerUnit,
		CreatedAt:   now,
	}
	s.lotsByCurrency[currencyID] = append(s.lotsByCurrency[currencyID], lot)

	s.lotLogs = append(s.lotLogs, domain.CurrencyLotLog{
		ID:            xid.New("lotlog"),
		LotID:         lot.ID,
		CurrencyID:    currencyID,
		QuantityAdded: quantity,
		CostPerUnit:   costPerUnit,
		AddedBy:       addedBy,
		CreatedAt:     now,
	})

	created := *lot
	return &created, nil
}

func (s *Store) ListCurrencyLotLogs(_ context.Context, currencyID string) ([]domain.CurrencyLotLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.CurrencyLotLog, 0, 8)
	for _, entry := range s.lotLogs {
		if entry.CurrencyID == currencyID {
			logs = append(logs, entry)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return logs, nil
}

func (s *Store) ListCountries(_ context.Context) ([]domain.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	countries := make([]domain.Country, 0, len(s.countries))
	for _, c := range s.countries {
		countries = append(countries, *c)
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Name < countries[j].Name })
	return countries, nil
}

func (s *Store) CreateCountry(_ context.Context, country domain.Country) (*domain.Country, error) {
	if strings.TrimSpace(country.Name) == "" || strings.TrimSpace(country.Code) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.countries {
		if strings.EqualFold(existing.Code, country.Code) {
			return nil, store.ErrInvalidInput
		}
	}
	if country.ID == "" {
		country.ID = xid.New("cty")
	}
	stored := country
	s.countries[stored.ID] = &stored

	created := stored
	return &created, nil
}

func (s *Store) ListServices(_ context.Context, activeOnly bool) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.Service, 0, len(s.services))
	for _, svc := range s.services {
		if activeOnly && !svc.Active {
			continue
		}
		services = append(services, *svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func (s *Store) GetServiceByID(_ context.Context, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *svc
	return &found, nil
}

func (s *Store) CreateService(_ context.Context, service domain.Service) (*domain.Service, error) {
	if strings.TrimSpace(service.Name) == "" || !service.Price.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if !domain.ValidOperation(service.Operation) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.currencies[service.CurrencyID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.countries[service.CountryID]; !ok {
		return nil, store.ErrNotFound
	}

	if service.ID == "" {
		service.ID = xid.New("svc")
	}
	if service.CreatedAt.IsZero() {
		service.CreatedAt = time.Now().UTC()
	}
	service.Active = true
	stored := service
	s.services[stored.ID] = &stored

	created := stored
	return &created, nil
}

func (s *Store) UpdateService(_ context.Context, id string, req domain.ServiceUpdateRequest) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, store.ErrInvalidInput
		}
		svc.Name = *req.Name
	}
	if req.ImageURL != nil {
		svc.ImageURL = *req.ImageURL
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		svc.Price = *req.Price
	}
	if req.Operation != nil {
		if !domain.ValidOperation(*req.Operation) {
			return nil, store.ErrInvalidInput
		}
		svc.Operation = *req.Operation
	}
	if req.Active != nil {
		svc.Active = *req.Active
	}

	updated := *svc
	return &updated, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, *c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *c
	return &found, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" || strings.TrimSpace(customer.Phone) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cst")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	stored := customer
	s.customers[stored.ID] = &stored

	created := stored
	return &created, nil
}

func (s *Store) ListCustomerTransactions(_ context.Context, customerID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[customerID]; !ok {
		return nil, store.ErrNotFound
	}

	txs := make([]domain.Transaction, 0, 8)
	for i := len(s.txOrder) - 1; i >= 0; i-- {
		tx := s.transactions[s.txOrder[i]]
		if tx.CustomerID == customerID && tx.PaymentType == domain.PaymentCredit {
			txs = append(txs, s.transactionCopy(tx))
		}
	}
	return txs, nil
}

func (s *Store) ListCustomerReceipts(_ context.Context, customerID string) ([]domain.ReceiptOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[customerID]; !ok {
		return nil, store.ErrNotFound
	}

	receipts := make([]domain.ReceiptOrder, 0, 8)
	for i := len(s.receipts) - 1; i >= 0; i-- {
		if s.receipts[i].CustomerID == customerID {
			receipts = append(receipts, s.receipts[i])
		}
	}
	return receipts, nil
}

func (s *Store) transactionCopy(tx *domain.Transaction) domain.Transaction {
	out := *tx
	draws := s.drawsByTx[tx.ID]
	out.LotDraws = make([]domain.ConsumptionRecord, 0, len(draws))
	for _, d := range draws {
		out.LotDraws = append(out.LotDraws, *d)
	}
	return out
}

func (s *Store) CreateSale(_ context.Context, sale store.SaleInput) (*domain.Transaction, error) {
	if sale.Reference == "" || sale.Employee == "" {
		return nil, store.ErrInvalidInput
	}
	if sale.AmountForeign.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if sale.PaymentType != domain.PaymentCash && sale.PaymentType != domain.PaymentCredit {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.referencesSeen[sale.Reference] {
		return nil, store.ErrDuplicateReference
	}

	svc, ok := s.services[sale.ServiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !svc.Active {
		return nil, store.ErrInactive
	}
	currency, ok := s.currencies[svc.CurrencyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !currency.Active {
		return nil, store.ErrInactive
	}

	var customer *domain.Customer
	if sale.CustomerID != "" {
		customer, ok = s.customers[sale.CustomerID]
		if !ok {
			return nil, store.ErrNotFound
		}
	}
	treasury, ok := s.treasuries[sale.Employee]
	if !ok && sale.PaymentType == domain.PaymentCash {
		return nil, store.ErrNotFound
	}

	// Allocation runs against a detached lot snapshot; store state is only
	// touched once the whole pipeline has succeeded.
	lots, sorted := s.ledgerLots(currency.ID)
	report, err := ledger.AllocateAndCompute(lots, svc.Operation, svc.Price, sale.AmountForeign)
	if err != nil {
		return nil, err
	}

	for i, l := range sorted {
		l.Remaining = lots[i].Remaining
	}

	now := sale.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if sale.ID == "" {
		sale.ID = xid.New("txn")
	}

	tx := &domain.Transaction{
		ID:            sale.ID,
		Reference:     sale.Reference,
		CustomerName:  sale.CustomerName,
		Beneficiary:   sale.Beneficiary,
		Number:        sale.Number,
		AmountForeign: sale.AmountForeign,
		AmountLYD:     report.TotalSale,
		PaymentType:   sale.PaymentType,
		Status:        domain.TxStatusCompleted,
		Profit:        report.Profit,
		Employee:      sale.Employee,
		CustomerID:    sale.CustomerID,
		ServiceID:     svc.ID,
		CurrencyID:    currency.ID,
		CreatedAt:     now,
	}
	s.transactions[tx.ID] = tx
	s.txOrder = append(s.txOrder, tx.ID)
	s.referencesSeen[tx.Reference] = true

	for i, draw := range report.Draws {
		s.drawsByTx[tx.ID] = append(s.drawsByTx[tx.ID], &domain.ConsumptionRecord{
			ID:            xid.New("txl"),
			TransactionID: tx.ID,
			LotID:         draw.LotID,
			Quantity:      draw.Quantity,
			CostPerUnit:   draw.CostPerUnit,
			Position:      i,
		})
	}

	switch sale.PaymentType {
	case domain.PaymentCash:
		treasury.Balance = treasury.Balance.Add(report.TotalSale)
	case domain.PaymentCredit:
		if customer != nil {
			customer.BalanceDue = customer.BalanceDue.Add(report.TotalSale)
		}
	}

	created := s.transactionCopy(tx)
	return &created, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := s.transactionCopy(tx)
	return &found, nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	txs := make([]domain.Transaction, 0, 32)
	for i := len(s.txOrder) - 1; i >= 0 && len(txs) < limit; i-- {
		tx := s.transactions[s.txOrder[i]]
		if filter.Employee != "" && tx.Employee != filter.Employee {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.PaymentType != "" && tx.PaymentType != filter.PaymentType {
			continue
		}
		if filter.From != nil && tx.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && tx.CreatedAt.After(*filter.To) {
			continue
		}
		txs = append(txs, s.transactionCopy(tx))
	}
	return txs, nil
}

func (s *Store) ListTransactionStatusLogs(_ context.Context, transactionID string) ([]domain.TransactionStatusLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.TransactionStatusLog, 0, 4)
	for _, entry := range s.statusLogs {
		if entry.TransactionID == transactionID {
			logs = append(logs, entry)
		}
	}
	return logs, nil
}

// applyStatusChange mutates tx under the held lock. Cancelling a
// non-cancelled transaction reverses its cash effect at the pre-cancel
// amount and zeroes the monetary fields; profit stays as history. A second
// cancel only appends a log entry.
func (s *Store) applyStatusChange(tx *domain.Transaction, newStatus, reason, changedBy string) error {
	if !domain.ValidTransactionStatus(newStatus) {
		return store.ErrInvalidInput
	}

	oldStatus := tx.Status
	s.statusLogs = append(s.statusLogs, domain.TransactionStatusLog{
		ID:             xid.New("stlog"),
		TransactionID:  tx.ID,
		PreviousStatus: oldStatus,
		NewStatus:      newStatus,
		Reason:         reason,
		ChangedBy:      changedBy,
		ChangedAt:      time.Now().UTC(),
	})

	if newStatus == domain.TxStatusCancelled && oldStatus != domain.TxStatusCancelled {
		s.applyCashDelta(tx, tx.AmountLYD.Neg())
		tx.AmountForeign = decimal.Zero
		tx.AmountLYD = decimal.Zero
	}

	tx.Status = newStatus
	if reason != "" {
		tx.StatusReason = reason
	}
	return nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id string, newStatus string, reason string, changedBy string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.applyStatusChange(tx, newStatus, reason, changedBy); err != nil {
		return nil, err
	}

	updated := s.transactionCopy(tx)
	return &updated, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, req domain.TransactionUpdateRequest, changedBy string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Reject a bad status before any amount mutation so a single payload
	// either applies fully or not at all.
	if req.Status != nil && !domain.ValidTransactionStatus(*req.Status) {
		return nil, store.ErrInvalidInput
	}

	if req.AmountForeign != nil {
		if tx.Status == domain.TxStatusCancelled {
			return nil, store.ErrInvalidInput
		}
		if req.AmountForeign.IsNegative() {
			return nil, store.ErrInvalidInput
		}

		svc, ok := s.services[tx.ServiceID]
		if !ok {
			return nil, store.ErrNotFound
		}

		delta := req.AmountForeign.Sub(tx.AmountForeign)
		switch {
		case delta.IsPositive():
			// Growing edits allocate only the delta and price it at the
			// current service rate.
			lots, sorted := s.ledgerLots(tx.CurrencyID)
			report, err := ledger.AllocateAndCompute(lots, svc.Operation, svc.Price, delta)
			if err != nil {
				return nil, err
			}
			for i, l := range sorted {
				l.Remaining = lots[i].Remaining
			}

			position := len(s.drawsByTx[tx.ID])
			for _, draw := range report.Draws {
				s.drawsByTx[tx.ID] = append(s.drawsByTx[tx.ID], &domain.ConsumptionRecord{
					ID:            xid.New("txl"),
					TransactionID: tx.ID,
					LotID:         draw.LotID,
					Quantity:      draw.Quantity,
					CostPerUnit:   draw.CostPerUnit,
					Position:      position,
				})
				position++
			}

			tx.AmountForeign = *req.AmountForeign
			tx.AmountLYD = tx.AmountLYD.Add(report.TotalSale)
			tx.Profit = tx.Profit.Add(report.Profit)
			s.applyCashDelta(tx, report.TotalSale)

		case delta.IsNegative():
			release := delta.Neg()
			records := s.drawsByTx[tx.ID]
			consumptions := make([]ledger.Consumption, 0, len(records))
			for _, rec := range records {
				consumptions = append(consumptions, ledger.Consumption{
					RecordID:    rec.ID,
					LotID:       rec.LotID,
					Quantity:    rec.Quantity,
					CostPerUnit: rec.CostPerUnit,
				})
			}

			steps, releasedCost, err := ledger.PlanRelease(consumptions, svc.Operation, release)
			if err != nil {
				return nil, err
			}
			saleDeduct, err := ledger.SaleValue(svc.Operation, svc.Price, release)
			if err != nil {
				return nil, err
			}

			lotByID := make(map[string]*domain.CurrencyLot)
			for _, l := range s.lotsByCurrency[tx.CurrencyID] {
				lotByID[l.ID] = l
			}
			deleted := make(map[string]bool, len(steps))
			for _, step := range steps {
				if lot, ok := lotByID[step.LotID]; ok {
					lot.Remaining = lot.Remaining.Add(step.Quantity)
				}
				if step.Delete {
					deleted[step.RecordID] = true
					continue
				}
				for _, rec := range records {
					if rec.ID == step.RecordID {
						rec.Quantity = rec.Quantity.Sub(step.Quantity)
					}
				}
			}
			if len(deleted) > 0 {
				kept := make([]*domain.ConsumptionRecord, 0, len(records))
				for _, rec := range records {
					if !deleted[rec.ID] {
						kept = append(kept, rec)
					}
				}
				s.drawsByTx[tx.ID] = kept
			}

			tx.AmountForeign = *req.AmountForeign
			tx.AmountLYD = tx.AmountLYD.Sub(saleDeduct)
			tx.Profit = tx.Profit.Sub(saleDeduct.Sub(releasedCost).Round(2))
			s.applyCashDelta(tx, saleDeduct.Neg())
		}
	}

	if req.CustomerName != nil {
		tx.CustomerName = *req.CustomerName
	}
	if req.Beneficiary != nil {
		tx.Beneficiary = *req.Beneficiary
	}
	if req.Number != nil {
		tx.Number = *req.Number
	}

	if req.Status != nil {
		reason := ""
		if req.StatusReason != nil {
			reason = *req.StatusReason
		}
		if err := s.applyStatusChange(tx, *req.Status, reason, changedBy); err != nil {
			return nil, err
		}
	} else if req.StatusReason != nil {
		tx.StatusReason = *req.StatusReason
	}

	updated := s.transactionCopy(tx)
	return &updated, nil
}

func (s *Store) applyCashDelta(tx *domain.Transaction, delta decimal.Decimal) {
	switch tx.PaymentType {
	case domain.PaymentCash:
		if treasury, ok := s.treasuries[tx.Employee]; ok {
			treasury.Balance = treasury.Balance.Add(delta)
		}
	case domain.PaymentCredit:
		if customer, ok := s.customers[tx.CustomerID]; ok {
			customer.BalanceDue = customer.BalanceDue.Add(delta)
		}
	}
}

func (s *Store) GetTreasury(_ context.Context, employee string) (*domain.Treasury, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.treasuries[employee]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *t
	return &found, nil
}

func (s *Store) TransferTreasury(_ context.Context, fromEmployee, toEmployee string, amount decimal.Decimal) (*domain.TreasuryTransfer, error) {
	if !amount.IsPositive() || fromEmployee == toEmployee {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.treasuries[fromEmployee]
	if !ok {
		return nil, store.ErrNotFound
	}
	to, ok := s.treasuries[toEmployee]
	if !ok {
		return nil, store.ErrNotFound
	}
	if from.Balance.LessThan(amount) {
		return nil, store.ErrInsufficientBalance
	}

	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)

	transfer := domain.TreasuryTransfer{
		ID:           xid.New("trf"),
		FromEmployee: fromEmployee,
		ToEmployee:   toEmployee,
		Amount:       amount,
		CreatedAt:    time.Now().UTC(),
	}
	s.transfers = append(s.transfers, transfer)

	created := transfer
	return &created, nil
}

func (s *Store) CreateReceipt(_ context.Context, customerID string, employee string, amount decimal.Decimal) (*domain.ReceiptOrder, error) {
	if !amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	treasury, ok := s.treasuries[employee]
	if !ok {
		return nil, store.ErrNotFound
	}

	customer.BalanceDue = customer.BalanceDue.Sub(amount)
	treasury.Balance = treasury.Balance.Add(amount)

	receipt := domain.ReceiptOrder{
		ID:         xid.New("rcpt"),
		CustomerID: customerID,
		Employee:   employee,
		Amount:     amount,
		CreatedAt:  time.Now().UTC(),
	}
	s.receipts = append(s.receipts, receipt)

	created := receipt
	return &created, nil
}

func (s *Store) ListReceipts(_ context.Context) ([]domain.ReceiptOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make([]domain.ReceiptOrder, len(s.receipts))
	copy(receipts, s.receipts)
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].CreatedAt.After(receipts[j].CreatedAt) })
	return receipts, nil
}

func (s *Store) GetDailySummary(_ context.Context, employee string, day time.Time) (domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	inDay := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }

	summary := domain.DailySummary{
		Employee:         employee,
		Date:             start.Format("2006-01-02"),
		CashTransactions: make([]domain.Transaction, 0, 8),
		Receipts:         make([]domain.ReceiptOrder, 0, 4),
		TransfersOut:     make([]domain.TreasuryTransfer, 0, 4),
	}

	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx.Employee == employee && tx.PaymentType == domain.PaymentCash && inDay(tx.CreatedAt) {
			summary.CashTransactions = append(summary.CashTransactions, s.transactionCopy(tx))
		}
	}
	for _, r := range s.receipts {
		if r.Employee == employee && inDay(r.CreatedAt) {
			summary.Receipts = append(summary.Receipts, r)
		}
	}
	for _, t := range s.transfers {
		if t.FromEmployee == employee && inDay(t.CreatedAt) {
			summary.TransfersOut = append(summary.TransfersOut, t)
		}
	}

	return summary, nil
}

func (s *Store) GetFinancialReport(_ context.Context, filter domain.ReportFilter) (domain.FinancialReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.FinancialReport{
		TotalForeign:   decimal.Zero,
		TotalLYD:       decimal.Zero,
		TotalCost:      decimal.Zero,
		TotalProfit:    decimal.Zero,
		DailyBreakdown: make([]domain.FinancialReportDay, 0, 8),
	}
	byDay := make(map[string]*domain.FinancialReportDay)

	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		if tx.CreatedAt.Before(filter.From) || tx.CreatedAt.After(filter.To) {
			continue
		}
		if filter.Employee != "" && tx.Employee != filter.Employee {
			continue
		}

		// Cost is the lot-derived figure the transaction already carries:
		// amount_lyd minus profit, per the ledger invariant.
		cost := tx.AmountLYD.Sub(tx.Profit)
		report.TotalTransactions++
		report.TotalForeign = report.TotalForeign.Add(tx.AmountForeign)
		report.TotalLYD = report.TotalLYD.Add(tx.AmountLYD)
		report.TotalCost = report.TotalCost.Add(cost)
		report.TotalProfit = report.TotalProfit.Add(tx.Profit)

		key := tx.CreatedAt.UTC().Format("2006-01-02")
		day, ok := byDay[key]
		if !ok {
			day = &domain.FinancialReportDay{Date: key, TotalLYD: decimal.Zero, TotalProfit: decimal.Zero}
			byDay[key] = day
		}
		day.TotalLYD = day.TotalLYD.Add(tx.AmountLYD)
		day.TotalProfit = day.TotalProfit.Add(tx.Profit)
	}

	for _, day := range byDay {
		report.DailyBreakdown = append(report.DailyBreakdown, *day)
	}
	sort.Slice(report.DailyBreakdown, func(i, j int) bool {
		return report.DailyBreakdown[i].Date < report.DailyBreakdown[j].Date
	})

	return report, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	s.usersByUsername[username] = user
	if _, ok := s.treasuries[username]; !ok {
		s.treasuries[username] = &domain.Treasury{Employee: username, Balance: decimal.Zero}
	}
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
