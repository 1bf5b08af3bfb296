package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
)

const pgUniqueViolation = "23505"

const pgSelectTransaction = `
	SELECT id, user_id, products, status, version, created_at, updated_at
	FROM transactions`

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

// NewPostgresPool parses dsn and waits for the database to answer a ping.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(postgresSchema) {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresAdapter) FetchOpenCart(ctx context.Context, userID string) (*domain.Transaction, error) {
	t, err := scanPgTransaction(p.pool.QueryRow(ctx,
		pgSelectTransaction+` WHERE user_id = $1 AND status = 'cart'`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query open cart: %w", err)
	}
	return &t, nil
}

func (p *PostgresAdapter) Create(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if err := domain.ValidateLineItems(t.LineItems); err != nil {
		return domain.Transaction{}, err
	}
	items, err := marshalLineItems(t.LineItems)
	if err != nil {
		return domain.Transaction{}, err
	}
	t = withCreateDefaults(t)

	_, err = p.pool.Exec(ctx, `
		INSERT INTO transactions (id, user_id, products, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, items, string(t.Status), t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return domain.Transaction{}, fmt.Errorf("insert transaction %s: %w", t.ID, domain.ErrConflict)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (p *PostgresAdapter) Update(ctx context.Context, id string, patch domain.TransactionPatch) (domain.Transaction, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanPgTransaction(tx.QueryRow(ctx, pgSelectTransaction+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
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

	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET products = $1, status = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6`,
		items, string(next.Status), next.Version, next.UpdatedAt, id, current.Version,
	)
	if isPgUniqueViolation(err) {
		return domain.Transaction{}, fmt.Errorf("update transaction %s: %w", id, domain.ErrConflict)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Transaction{}, ErrOptimisticLock
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (p *PostgresAdapter) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := pgSelectTransaction
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanPgTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) FetchByID(ctx context.Context, id string) (domain.Transaction, error) {
	t, err := scanPgTransaction(p.pool.QueryRow(ctx, pgSelectTransaction+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("query transaction: %w", err)
	}
	return t, nil
}

func (p *PostgresAdapter) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var (
		prod  domain.Product
		price string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, price::text, quantity_available
		FROM products WHERE id = $1`, productID,
	).Scan(&prod.ID, &prod.Name, &price, &prod.QuantityAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}

	prod.Price, err = decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse price of %s: %w", productID, err)
	}
	return prod, nil
}

func (p *PostgresAdapter) PutProduct(ctx context.Context, prod domain.Product) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO products (id, name, price, quantity_available)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			quantity_available = EXCLUDED.quantity_available, updated_at = NOW()`,
		prod.ID, prod.Name, prod.Price.String(), prod.QuantityAvailable,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) DeleteProduct(ctx context.Context, productID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) RecordEvent(ctx context.Context, e domain.TransactionEvent) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO transaction_events
			(id, transaction_id, user_id, type, product_id, amount, status, version, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.TransactionID, e.UserID, string(e.Type), e.ProductID, e.Amount, string(e.Status), e.Version, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

func scanPgTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		t      domain.Transaction
		status string
		items  []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &items, &status, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Transaction{}, err
	}
	t.Status = domain.TransactionStatus(status)

	lineItems, err := unmarshalLineItems(items)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.LineItems = lineItems
	return t, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
