package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
)

var ErrOptimisticLock = fmt.Errorf("optimistic lock conflict: %w", domain.ErrConflict)

const mysqlDuplicateEntry = 1062

const mysqlSelectTransaction = `
	SELECT id, user_id, products, status, version, created_at, updated_at
	FROM transactions`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(mysqlSchema) {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply mysql schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) FetchOpenCart(ctx context.Context, userID string) (*domain.Transaction, error) {
	tx, err := scanTransaction(m.db.QueryRowContext(ctx,
		mysqlSelectTransaction+` WHERE open_cart_user = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query open cart: %w", err)
	}
	return &tx, nil
}

func (m *MySQLAdapter) Create(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if err := domain.ValidateLineItems(t.LineItems); err != nil {
		return domain.Transaction{}, err
	}
	items, err := marshalLineItems(t.LineItems)
	if err != nil {
		return domain.Transaction{}, err
	}
	t = withCreateDefaults(t)

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, products, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, items, t.Status, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if isMySQLDuplicate(err) {
		return domain.Transaction{}, fmt.Errorf("insert transaction %s: %w", t.ID, domain.ErrConflict)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return t, nil
}

func (m *MySQLAdapter) Update(ctx context.Context, id string, patch domain.TransactionPatch) (domain.Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := scanTransaction(tx.QueryRowContext(ctx,
		mysqlSelectTransaction+` WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("query transaction: %w", err)
	}

	next, err := current.Apply(patch, time.Now().UTC())
	if err != nil {
		return domain.Transaction{}, err
	}
	if next.Version == current.Version {
		return next, nil
	}
	items, err := marshalLineItems(next.LineItems)
	if err != nil {
		return domain.Transaction{}, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET products = ?, status = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		items, next.Status, next.Version, next.UpdatedAt, id, current.Version,
	)
	if isMySQLDuplicate(err) {
		return domain.Transaction{}, fmt.Errorf("update transaction %s: %w", id, domain.ErrConflict)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Transaction{}, ErrOptimisticLock
	}

	if err := tx.Commit(); err != nil {
		return domain.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (m *MySQLAdapter) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses), func(int) string { return "?" })+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}

	query := mysqlSelectTransaction
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) FetchByID(ctx context.Context, id string) (domain.Transaction, error) {
	t, err := scanTransaction(m.db.QueryRowContext(ctx, mysqlSelectTransaction+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("query transaction: %w", err)
	}
	return t, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, quantity_available
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.QuantityAvailable)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (m *MySQLAdapter) PutProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, quantity_available)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), price = VALUES(price),
			quantity_available = VALUES(quantity_available)`,
		p.ID, p.Name, p.Price, p.QuantityAvailable,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, productID string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RecordEvent(ctx context.Context, e domain.TransactionEvent) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO transaction_events
			(id, transaction_id, user_id, type, product_id, amount, status, version, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id`,
		e.ID, e.TransactionID, e.UserID, e.Type, e.ProductID, e.Amount, e.Status, e.Version, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		t     domain.Transaction
		items []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &items, &t.Status, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Transaction{}, err
	}
	lineItems, err := unmarshalLineItems(items)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.LineItems = lineItems
	return t, nil
}

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func placeholders(n int, f func(i int) string) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = f(i)
	}
	return strings.Join(ph, ", ")
}

func withCreateDefaults(t domain.Transaction) domain.Transaction {
	now := time.Now().UTC()
	if t.Version == 0 {
		t.Version = 1
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.LineItems == nil {
		t.LineItems = []domain.LineItem{}
	}
	return t
}
