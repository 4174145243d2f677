package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"sarafa/backend/internal/domain"
	"sarafa/backend/internal/ledger"
	"sarafa/backend/internal/store"
	"sarafa/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (s *Store) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.symbol, c.active, c.created_at,
		       COALESCE(SUM(l.remaining_quantity), 0) AS stock
		FROM currencies c
		LEFT JOIN currency_lots l ON l.currency_id = c.id
		GROUP BY c.id
		ORDER BY c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	currencies := make([]domain.Currency, 0, 16)
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(&c.ID, &c.Name, &c.Symbol, &c.Active, &c.CreatedAt, &c.Stock); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return currencies, nil
}

func (s *Store) GetCurrencyByID(ctx context.Context, id string) (*domain.Currency, error) {
	var c domain.Currency
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.symbol, c.active, c.created_at,
		       COALESCE(SUM(l.remaining_quantity), 0) AS stock
		FROM currencies c
		LEFT JOIN currency_lots l ON l.currency_id = c.id
		WHERE c.id = $1
		GROUP BY c.id
	`, id).Scan(&c.ID, &c.Name, &c.Symbol, &c.Active, &c.CreatedAt, &c.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCurrency(ctx context.Context, currency domain.Currency) (*domain.Currency, error) {
	if currency.Name == "" || currency.Symbol == "" {
		return nil, store.ErrInvalidInput
	}
	if currency.ID == "" {
		currency.ID = xid.New("cur")
	}
	if currency.CreatedAt.IsZero() {
		currency.CreatedAt = time.Now().UTC()
	}
	currency.Active = true
	currency.Stock = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO currencies (id, name, symbol, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, currency.ID, currency.Name, currency.Symbol, currency.Active, currency.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := currency
	return &created, nil
}

func (s *Store) UpdateCurrency(ctx context.Context, id string, req domain.CurrencyUpdateRequest) (*domain.Currency, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE currencies
		SET name = COALESCE($2, name),
		    symbol = COALESCE($3, symbol),
		    active = COALESCE($4, active)
		WHERE id = $1
	`, id, req.Name, req.Symbol, req.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetCurrencyByID(ctx, id)
}

func (s *Store) ListCurrencyLots(ctx context.Context, currencyID string) ([]domain.CurrencyLot, error) {
	if _, err := s.GetCurrencyByID(ctx, currencyID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, currency_id, quantity, remaining_quantity, cost_per_unit, created_at
		FROM currency_lots
		WHERE currency_id = $1
		ORDER BY created_at ASC, id ASC
	`, currencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.CurrencyLot, 0, 16)
	for rows.Next() {
		var l domain.CurrencyLot
		if err := rows.Scan(&l.ID, &l.CurrencyID, &l.Quantity, &l.Remaining, &l.CostPerUnit, &l.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lots, nil
}

// RestockCurrency creates a lot and runs deficit recovery in one
// transaction: the new lot's effective remaining is reduced by the
// currency's total negative stock, and the negative lots are repaid
// oldest first.
func (s *Store) RestockCurrency(ctx context.Context, currencyID string, quantity, costPerUnit decimal.Decimal, addedBy string) (*domain.CurrencyLot, error) {
	if !quantity.IsPositive() || !costPerUnit.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	err = pgTx.QueryRowContext(ctx, `SELECT true FROM currencies WHERE id = $1`, currencyID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lots, err := lockLots(ctx, pgTx, currencyID)
	if err != nil {
		return nil, err
	}
	remaining, repayments := ledger.PlanRestock(lots, quantity)

	for _, rep := range repayments {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE currency_lots
			SET remaining_quantity = remaining_quantity + $1
			WHERE id = $2
		`, rep.Amount, rep.LotID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	lot := domain.CurrencyLot{
		ID:          xid.New("lot"),
		CurrencyID:  currencyID,
		Quantity:    quantity,
		Remaining:   remaining,
		CostPerUnit: costPerUnit,
		CreatedAt:   now,
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO currency_lots (id, currency_id, quantity, remaining_quantity, cost_per_unit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, lot.ID, lot.CurrencyID, lot.Quantity, lot.Remaining, lot.CostPerUnit, lot.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO currency_lot_logs (id, lot_id, currency_id, quantity_added, cost_per_unit, added_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, xid.New("lotlog"), lot.ID, currencyID, quantity, costPerUnit, nullIfEmpty(addedBy), now)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &lot, nil
}

func (s *Store) ListCurrencyLotLogs(ctx context.Context, currencyID string) ([]domain.CurrencyLotLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lot_id, currency_id, quantity_added, cost_per_unit, COALESCE(added_by, ''), created_at
		FROM currency_lot_logs
		WHERE currency_id = $1
		ORDER BY created_at DESC
	`, currencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.CurrencyLotLog, 0, 16)
	for rows.Next() {
		var entry domain.CurrencyLotLog
		if err := rows.Scan(&entry.ID, &entry.LotID, &entry.CurrencyID, &entry.QuantityAdded, &entry.CostPerUnit, &entry.AddedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) ListCountries(ctx context.Context) ([]domain.Country, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code FROM countries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	countries := make([]domain.Country, 0, 16)
	for rows.Next() {
		var c domain.Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Code); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return countries, nil
}

func (s *Store) CreateCountry(ctx context.Context, country domain.Country) (*domain.Country, error) {
	if country.Name == "" || country.Code == "" {
		return nil, store.ErrInvalidInput
	}
	if country.ID == "" {
		country.ID = xid.New("cty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO countries (id, name, code) VALUES ($1,$2,$3)
	`, country.ID, country.Name, country.Code)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := country
	return &created, nil
}

func (s *Store) ListServices(ctx context.Context, activeOnly bool) ([]domain.Service, error) {
	query := `
		SELECT id, name, COALESCE(image_url, ''), price, operation, currency_id, country_id, active, created_at
		FROM services
	`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 16)
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.ImageURL, &svc.Price, &svc.Operation, &svc.CurrencyID, &svc.CountryID, &svc.Active, &svc.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return services, nil
}

func (s *Store) GetServiceByID(ctx context.Context, id string) (*domain.Service, error) {
	var svc domain.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(image_url, ''), price, operation, currency_id, country_id, active, created_at
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.ImageURL, &svc.Price, &svc.Operation, &svc.CurrencyID, &svc.CountryID, &svc.Active, &svc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}

func (s *Store) CreateService(ctx context.Context, service domain.Service) (*domain.Service, error) {
	if service.Name == "" || !service.Price.IsPositive() || !domain.ValidOperation(service.Operation) {
		return nil, store.ErrInvalidInput
	}
	if service.ID == "" {
		service.ID = xid.New("svc")
	}
	if service.CreatedAt.IsZero() {
		service.CreatedAt = time.Now().UTC()
	}
	service.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, image_url, price, operation, currency_id, country_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, service.ID, service.Name, nullIfEmpty(service.ImageURL), service.Price, service.Operation,
		service.CurrencyID, service.CountryID, service.Active, service.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := service
	return &created, nil
}

func (s *Store) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (*domain.Service, error) {
	if req.Price != nil && !req.Price.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if req.Operation != nil && !domain.ValidOperation(*req.Operation) {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE services
		SET name = COALESCE($2, name),
		    image_url = COALESCE($3, image_url),
		    price = COALESCE($4, price),
		    operation = COALESCE($5, operation),
		    active = COALESCE($6, active)
		WHERE id = $1
	`, id, req.Name, req.ImageURL, req.Price, req.Operation, req.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetServiceByID(ctx, id)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, COALESCE(city, ''), balance_due, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.City, &c.BalanceDue, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, COALESCE(city, ''), balance_due, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.City, &c.BalanceDue, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cst")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, city, balance_due, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.City), customer.BalanceDue, customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	if _, err := s.GetCustomerByID(ctx, customerID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, transactionSelect+`
		WHERE customer_id = $1 AND payment_type = 'credit'
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (s *Store) ListCustomerReceipts(ctx context.Context, customerID string) ([]domain.ReceiptOrder, error) {
	if _, err := s.GetCustomerByID(ctx, customerID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, employee, amount, created_at
		FROM receipt_orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	return scanReceipts(rows)
}

const transactionSelect = `
	SELECT id, reference, COALESCE(customer_name, ''), COALESCE(beneficiary, ''), COALESCE(number, ''),
	       amount_foreign, amount_lyd, payment_type, status, COALESCE(status_reason, ''),
	       profit, employee, COALESCE(customer_id, ''), service_id, currency_id, created_at
	FROM transactions
`

func scanTransactionRow(scan func(...any) error) (domain.Transaction, error) {
	var tx domain.Transaction
	err := scan(&tx.ID, &tx.Reference, &tx.CustomerName, &tx.Beneficiary, &tx.Number,
		&tx.AmountForeign, &tx.AmountLYD, &tx.PaymentType, &tx.Status, &tx.StatusReason,
		&tx.Profit, &tx.Employee, &tx.CustomerID, &tx.ServiceID, &tx.CurrencyID, &tx.CreatedAt)
	return tx, err
}

func scanTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransactionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func scanReceipts(rows *sql.Rows) ([]domain.ReceiptOrder, error) {
	defer rows.Close()

	receipts := make([]domain.ReceiptOrder, 0, 16)
	for rows.Next() {
		var r domain.ReceiptOrder
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.Employee, &r.Amount, &r.CreatedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// lockLots reads a currency's lots oldest first under FOR UPDATE. Every
// allocation, release and restock serializes on these row locks, which is
// what rules out two sales double-spending the same lot.
func lockLots(ctx context.Context, q execer, currencyID string) ([]ledger.Lot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, remaining_quantity, cost_per_unit, created_at
		FROM currency_lots
		WHERE currency_id = $1
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, currencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]ledger.Lot, 0, 16)
	for rows.Next() {
		var id string
		var remaining, cost decimal.Decimal
		var createdAt time.Time
		if err := rows.Scan(&id, &remaining, &cost, &createdAt); err != nil {
			return nil, err
		}
		lots = append(lots, ledger.Lot{ID: id, Remaining: remaining, CostPerUnit: cost, CreatedAt: createdAt.UnixNano()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func applyCashDelta(ctx context.Context, q execer, tx domain.Transaction, delta decimal.Decimal) error {
	switch tx.PaymentType {
	case domain.PaymentCash:
		res, err := q.ExecContext(ctx, `
			UPDATE treasuries SET balance = balance + $1 WHERE employee = $2
		`, delta, tx.Employee)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
	case domain.PaymentCredit:
		if tx.CustomerID == "" {
			return nil
		}
		res, err := q.ExecContext(ctx, `
			UPDATE customers SET balance_due = balance_due + $1 WHERE id = $2
		`, delta, tx.CustomerID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale store.SaleInput) (*domain.Transaction, error) {
	if sale.Reference == "" || sale.Employee == "" || sale.AmountForeign.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if sale.PaymentType != domain.PaymentCash && sale.PaymentType != domain.PaymentCredit {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var svc domain.Service
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, price, operation, currency_id, active
		FROM services
		WHERE id = $1
	`, sale.ServiceID).Scan(&svc.ID, &svc.Price, &svc.Operation, &svc.CurrencyID, &svc.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !svc.Active {
		return nil, store.ErrInactive
	}

	var currencyActive bool
	err = pgTx.QueryRowContext(ctx, `SELECT active FROM currencies WHERE id = $1`, svc.CurrencyID).Scan(&currencyActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !currencyActive {
		return nil, store.ErrInactive
	}

	if sale.CustomerID != "" {
		var one int
		err = pgTx.QueryRowContext(ctx, `SELECT 1 FROM customers WHERE id = $1 FOR UPDATE`, sale.CustomerID).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}
	if sale.PaymentType == domain.PaymentCash {
		var one int
		err = pgTx.QueryRowContext(ctx, `SELECT 1 FROM treasuries WHERE employee = $1 FOR UPDATE`, sale.Employee).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	lots, err := lockLots(ctx, pgTx, svc.CurrencyID)
	if err != nil {
		return nil, err
	}
	before := make([]decimal.Decimal, len(lots))
	for i := range lots {
		before[i] = lots[i].Remaining
	}

	report, err := ledger.AllocateAndCompute(lots, svc.Operation, svc.Price, sale.AmountForeign)
	if err != nil {
		return nil, err
	}

	for i := range lots {
		if lots[i].Remaining.Equal(before[i]) {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE currency_lots SET remaining_quantity = $1 WHERE id = $2
		`, lots[i].Remaining, lots[i].ID)
		if err != nil {
			return nil, err
		}
	}

	now := sale.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if sale.ID == "" {
		sale.ID = xid.New("txn")
	}

	tx := domain.Transaction{
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
		CurrencyID:    svc.CurrencyID,
		CreatedAt:     now,
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, reference, customer_name, beneficiary, number,
			amount_foreign, amount_lyd, payment_type, status, status_reason,
			profit, employee, customer_id, service_id, currency_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, tx.ID, tx.Reference, nullIfEmpty(tx.CustomerName), nullIfEmpty(tx.Beneficiary), nullIfEmpty(tx.Number),
		tx.AmountForeign, tx.AmountLYD, tx.PaymentType, tx.Status, nullIfEmpty(tx.StatusReason),
		tx.Profit, tx.Employee, nullIfEmpty(tx.CustomerID), tx.ServiceID, tx.CurrencyID, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateReference
		}
		return nil, err
	}

	tx.LotDraws = make([]domain.ConsumptionRecord, 0, len(report.Draws))
	for i, draw := range report.Draws {
		rec := domain.ConsumptionRecord{
			ID:            xid.New("txl"),
			TransactionID: tx.ID,
			LotID:         draw.LotID,
			Quantity:      draw.Quantity,
			CostPerUnit:   draw.CostPerUnit,
			Position:      i,
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_currency_lots (id, transaction_id, lot_id, quantity, cost_per_unit, position)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, rec.ID, rec.TransactionID, rec.LotID, rec.Quantity, rec.CostPerUnit, rec.Position)
		if err != nil {
			return nil, err
		}
		tx.LotDraws = append(tx.LotDraws, rec)
	}

	if err := applyCashDelta(ctx, pgTx, tx, report.TotalSale); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &tx, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransactionRow(s.db.QueryRowContext(ctx, transactionSelect+` WHERE id = $1`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	draws, err := s.loadDraws(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	tx.LotDraws = draws
	return &tx, nil
}

func (s *Store) loadDraws(ctx context.Context, q execer, transactionID string) ([]domain.ConsumptionRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, lot_id, quantity, cost_per_unit, position
		FROM transaction_currency_lots
		WHERE transaction_id = $1
		ORDER BY position ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	draws := make([]domain.ConsumptionRecord, 0, 4)
	for rows.Next() {
		var rec domain.ConsumptionRecord
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.LotID, &rec.Quantity, &rec.CostPerUnit, &rec.Position); err != nil {
			return nil, err
		}
		draws = append(draws, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return draws, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	query := transactionSelect + ` WHERE 1=1`
	args := make([]any, 0, 6)
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Employee != "" {
		query += ` AND employee = ` + arg(filter.Employee)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	if filter.PaymentType != "" {
		query += ` AND payment_type = ` + arg(filter.PaymentType)
	}
	if filter.From != nil {
		query += ` AND created_at >= ` + arg(*filter.From)
	}
	if filter.To != nil {
		query += ` AND created_at <= ` + arg(*filter.To)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func placeholder(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "$" + digits[n:n+1]
	}
	return "$" + digits[n/10:n/10+1] + digits[n%10:n%10+1]
}

func (s *Store) ListTransactionStatusLogs(ctx context.Context, transactionID string) ([]domain.TransactionStatusLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, previous_status, new_status, COALESCE(reason, ''), changed_by, changed_at
		FROM transaction_status_logs
		WHERE transaction_id = $1
		ORDER BY changed_at ASC, id ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.TransactionStatusLog, 0, 4)
	for rows.Next() {
		var entry domain.TransactionStatusLog
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.PreviousStatus, &entry.NewStatus, &entry.Reason, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// applyStatusChange appends the status log and, when transitioning into
// cancelled from any other state, reverses the cash effect at the
// pre-cancel amount and zeroes the monetary fields. Cancelling twice is a
// no-op on balances.
func applyStatusChange(ctx context.Context, q execer, tx domain.Transaction, newStatus, reason, changedBy string) error {
	if !domain.ValidTransactionStatus(newStatus) {
		return store.ErrInvalidInput
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transaction_status_logs (id, transaction_id, previous_status, new_status, reason, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, xid.New("stlog"), tx.ID, tx.Status, newStatus, nullIfEmpty(reason), changedBy, time.Now().UTC())
	if err != nil {
		return err
	}

	if newStatus == domain.TxStatusCancelled && tx.Status != domain.TxStatusCancelled {
		if err := applyCashDelta(ctx, q, tx, tx.AmountLYD.Neg()); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			UPDATE transactions
			SET amount_foreign = 0, amount_lyd = 0, status = $2, status_reason = COALESCE(NULLIF($3, ''), status_reason)
			WHERE id = $1
		`, tx.ID, newStatus, reason)
		return err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, status_reason = COALESCE(NULLIF($3, ''), status_reason)
		WHERE id = $1
	`, tx.ID, newStatus, reason)
	return err
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, newStatus string, reason string, changedBy string) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	tx, err := scanTransactionRow(pgTx.QueryRowContext(ctx, transactionSelect+` WHERE id = $1 FOR UPDATE`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := applyStatusChange(ctx, pgTx, tx, newStatus, reason, changedBy); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.FindTransactionByID(ctx, id)
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, req domain.TransactionUpdateRequest, changedBy string) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	tx, err := scanTransactionRow(pgTx.QueryRowContext(ctx, transactionSelect+` WHERE id = $1 FOR UPDATE`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if req.AmountForeign != nil {
		if tx.Status == domain.TxStatusCancelled || req.AmountForeign.IsNegative() {
			return nil, store.ErrInvalidInput
		}

		var svc domain.Service
		err = pgTx.QueryRowContext(ctx, `
			SELECT id, price, operation FROM services WHERE id = $1
		`, tx.ServiceID).Scan(&svc.ID, &svc.Price, &svc.Operation)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}

		delta := req.AmountForeign.Sub(tx.AmountForeign)
		switch {
		case delta.IsPositive():
			lots, err := lockLots(ctx, pgTx, tx.CurrencyID)
			if err != nil {
				return nil, err
			}
			before := make([]decimal.Decimal, len(lots))
			for i := range lots {
				before[i] = lots[i].Remaining
			}
			report, err := ledger.AllocateAndCompute(lots, svc.Operation, svc.Price, delta)
			if err != nil {
				return nil, err
			}
			for i := range lots {
				if lots[i].Remaining.Equal(before[i]) {
					continue
				}
				_, err := pgTx.ExecContext(ctx, `
					UPDATE currency_lots SET remaining_quantity = $1 WHERE id = $2
				`, lots[i].Remaining, lots[i].ID)
				if err != nil {
					return nil, err
				}
			}

			var position int
			err = pgTx.QueryRowContext(ctx, `
				SELECT COALESCE(MAX(position) + 1, 0) FROM transaction_currency_lots WHERE transaction_id = $1
			`, tx.ID).Scan(&position)
			if err != nil {
				return nil, err
			}
			for _, draw := range report.Draws {
				_, err := pgTx.ExecContext(ctx, `
					INSERT INTO transaction_currency_lots (id, transaction_id, lot_id, quantity, cost_per_unit, position)
					VALUES ($1,$2,$3,$4,$5,$6)
				`, xid.New("txl"), tx.ID, draw.LotID, draw.Quantity, draw.CostPerUnit, position)
				if err != nil {
					return nil, err
				}
				position++
			}

			_, err = pgTx.ExecContext(ctx, `
				UPDATE transactions
				SET amount_foreign = $2, amount_lyd = amount_lyd + $3, profit = profit + $4
				WHERE id = $1
			`, tx.ID, *req.AmountForeign, report.TotalSale, report.Profit)
			if err != nil {
				return nil, err
			}
			if err := applyCashDelta(ctx, pgTx, tx, report.TotalSale); err != nil {
				return nil, err
			}

		case delta.IsNegative():
			release := delta.Neg()

			// Lock the lot rows first, then read this transaction's
			// consumption records in insertion order.
			if _, err := lockLots(ctx, pgTx, tx.CurrencyID); err != nil {
				return nil, err
			}
			records, err := s.loadDraws(ctx, pgTx, tx.ID)
			if err != nil {
				return nil, err
			}
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

			for _, step := range steps {
				_, err := pgTx.ExecContext(ctx, `
					UPDATE currency_lots SET remaining_quantity = remaining_quantity + $1 WHERE id = $2
				`, step.Quantity, step.LotID)
				if err != nil {
					return nil, err
				}
				if step.Delete {
					_, err = pgTx.ExecContext(ctx, `DELETE FROM transaction_currency_lots WHERE id = $1`, step.RecordID)
				} else {
					_, err = pgTx.ExecContext(ctx, `
						UPDATE transaction_currency_lots SET quantity = quantity - $1 WHERE id = $2
					`, step.Quantity, step.RecordID)
				}
				if err != nil {
					return nil, err
				}
			}

			profitDeduct := saleDeduct.Sub(releasedCost).Round(2)
			_, err = pgTx.ExecContext(ctx, `
				UPDATE transactions
				SET amount_foreign = $2, amount_lyd = amount_lyd - $3, profit = profit - $4
				WHERE id = $1
			`, tx.ID, *req.AmountForeign, saleDeduct, profitDeduct)
			if err != nil {
				return nil, err
			}
			if err := applyCashDelta(ctx, pgTx, tx, saleDeduct.Neg()); err != nil {
				return nil, err
			}
		}

		tx.AmountForeign = *req.AmountForeign
	}

	if req.CustomerName != nil || req.Beneficiary != nil || req.Number != nil {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE transactions
			SET customer_name = COALESCE($2, customer_name),
			    beneficiary = COALESCE($3, beneficiary),
			    number = COALESCE($4, number)
			WHERE id = $1
		`, tx.ID, req.CustomerName, req.Beneficiary, req.Number)
		if err != nil {
			return nil, err
		}
	}

	if req.Status != nil {
		// Re-read monetary state so a cancellation in the same payload
		// reverses the post-edit amount, not the stale one.
		current, err := scanTransactionRow(pgTx.QueryRowContext(ctx, transactionSelect+` WHERE id = $1`, tx.ID).Scan)
		if err != nil {
			return nil, err
		}
		reason := ""
		if req.StatusReason != nil {
			reason = *req.StatusReason
		}
		if err := applyStatusChange(ctx, pgTx, current, *req.Status, reason, changedBy); err != nil {
			return nil, err
		}
	} else if req.StatusReason != nil {
		_, err = pgTx.ExecContext(ctx, `UPDATE transactions SET status_reason = $2 WHERE id = $1`, tx.ID, *req.StatusReason)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.FindTransactionByID(ctx, id)
}

func (s *Store) GetTreasury(ctx context.Context, employee string) (*domain.Treasury, error) {
	var t domain.Treasury
	err := s.db.QueryRowContext(ctx, `
		SELECT employee, balance FROM treasuries WHERE employee = $1
	`, employee).Scan(&t.Employee, &t.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) TransferTreasury(ctx context.Context, fromEmployee, toEmployee string, amount decimal.Decimal) (*domain.TreasuryTransfer, error) {
	if !amount.IsPositive() || fromEmployee == toEmployee {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// Lock in a stable order to avoid deadlocks between opposing
	// transfers.
	first, second := fromEmployee, toEmployee
	if second < first {
		first, second = second, first
	}
	balances := map[string]decimal.Decimal{}
	for _, employee := range []string{first, second} {
		var balance decimal.Decimal
		err = pgTx.QueryRowContext(ctx, `
			SELECT balance FROM treasuries WHERE employee = $1 FOR UPDATE
		`, employee).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		balances[employee] = balance
	}

	if balances[fromEmployee].LessThan(amount) {
		return nil, store.ErrInsufficientBalance
	}

	if _, err := pgTx.ExecContext(ctx, `UPDATE treasuries SET balance = balance - $1 WHERE employee = $2`, amount, fromEmployee); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `UPDATE treasuries SET balance = balance + $1 WHERE employee = $2`, amount, toEmployee); err != nil {
		return nil, err
	}

	transfer := domain.TreasuryTransfer{
		ID:           xid.New("trf"),
		FromEmployee: fromEmployee,
		ToEmployee:   toEmployee,
		Amount:       amount,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO treasury_transfers (id, from_employee, to_employee, amount, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, transfer.ID, transfer.FromEmployee, transfer.ToEmployee, transfer.Amount, transfer.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &transfer, nil
}

func (s *Store) CreateReceipt(ctx context.Context, customerID string, employee string, amount decimal.Decimal) (*domain.ReceiptOrder, error) {
	if !amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE customers SET balance_due = balance_due - $1 WHERE id = $2
	`, amount, customerID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	res, err = pgTx.ExecContext(ctx, `
		UPDATE treasuries SET balance = balance + $1 WHERE employee = $2
	`, amount, employee)
	if err != nil {
		return nil, err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	receipt := domain.ReceiptOrder{
		ID:         xid.New("rcpt"),
		CustomerID: customerID,
		Employee:   employee,
		Amount:     amount,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO receipt_orders (id, customer_id, employee, amount, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, receipt.ID, receipt.CustomerID, receipt.Employee, receipt.Amount, receipt.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &receipt, nil
}

func (s *Store) ListReceipts(ctx context.Context) ([]domain.ReceiptOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, employee, amount, created_at
		FROM receipt_orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return scanReceipts(rows)
}

func (s *Store) GetDailySummary(ctx context.Context, employee string, day time.Time) (domain.DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	summary := domain.DailySummary{
		Employee: employee,
		Date:     start.Format("2006-01-02"),
	}

	rows, err := s.db.QueryContext(ctx, transactionSelect+`
		WHERE employee = $1 AND payment_type = 'cash' AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, employee, start, end)
	if err != nil {
		return domain.DailySummary{}, err
	}
	summary.CashTransactions, err = scanTransactions(rows)
	if err != nil {
		return domain.DailySummary{}, err
	}

	receiptRows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, employee, amount, created_at
		FROM receipt_orders
		WHERE employee = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, employee, start, end)
	if err != nil {
		return domain.DailySummary{}, err
	}
	summary.Receipts, err = scanReceipts(receiptRows)
	if err != nil {
		return domain.DailySummary{}, err
	}

	transferRows, err := s.db.QueryContext(ctx, `
		SELECT id, from_employee, to_employee, amount, created_at
		FROM treasury_transfers
		WHERE from_employee = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, employee, start, end)
	if err != nil {
		return domain.DailySummary{}, err
	}
	defer transferRows.Close()

	summary.TransfersOut = make([]domain.TreasuryTransfer, 0, 4)
	for transferRows.Next() {
		var t domain.TreasuryTransfer
		if err := transferRows.Scan(&t.ID, &t.FromEmployee, &t.ToEmployee, &t.Amount, &t.CreatedAt); err != nil {
			return domain.DailySummary{}, err
		}
		summary.TransfersOut = append(summary.TransfersOut, t)
	}
	if err := transferRows.Err(); err != nil {
		return domain.DailySummary{}, err
	}

	return summary, nil
}

func (s *Store) GetFinancialReport(ctx context.Context, filter domain.ReportFilter) (domain.FinancialReport, error) {
	report := domain.FinancialReport{
		TotalForeign: decimal.Zero,
		TotalLYD:     decimal.Zero,
		TotalCost:    decimal.Zero,
		TotalProfit:  decimal.Zero,
	}

	// Cost per transaction is amount_lyd - profit, the figure backed by the
	// consumption-record snapshots rather than the currency's current cost.
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount_foreign), 0),
		       COALESCE(SUM(amount_lyd), 0),
		       COALESCE(SUM(amount_lyd - profit), 0),
		       COALESCE(SUM(profit), 0)
		FROM transactions
		WHERE status = 'completed'
		  AND created_at >= $1 AND created_at <= $2
		  AND ($3 = '' OR employee = $3)
	`, filter.From, filter.To, filter.Employee).Scan(
		&report.TotalTransactions, &report.TotalForeign, &report.TotalLYD, &report.TotalCost, &report.TotalProfit)
	if err != nil {
		return domain.FinancialReport{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at::date, 'YYYY-MM-DD'),
		       COALESCE(SUM(amount_lyd), 0),
		       COALESCE(SUM(profit), 0)
		FROM transactions
		WHERE status = 'completed'
		  AND created_at >= $1 AND created_at <= $2
		  AND ($3 = '' OR employee = $3)
		GROUP BY created_at::date
		ORDER BY created_at::date
	`, filter.From, filter.To, filter.Employee)
	if err != nil {
		return domain.FinancialReport{}, err
	}
	defer rows.Close()

	report.DailyBreakdown = make([]domain.FinancialReportDay, 0, 16)
	for rows.Next() {
		var day domain.FinancialReportDay
		if err := rows.Scan(&day.Date, &day.TotalLYD, &day.TotalProfit); err != nil {
			return domain.FinancialReport{}, err
		}
		report.DailyBreakdown = append(report.DailyBreakdown, day)
	}
	if err := rows.Err(); err != nil {
		return domain.FinancialReport{}, err
	}

	return report, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO users (username, full_name, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Username, user.FullName, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}

	// Every account gets a treasury so cash sales have somewhere to land.
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO treasuries (employee, balance)
		VALUES ($1, 0)
		ON CONFLICT (employee) DO NOTHING
	`, user.Username)
	if err != nil {
		return err
	}

	return pgTx.Commit()
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, COALESCE(full_name, ''), password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.FullName, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
