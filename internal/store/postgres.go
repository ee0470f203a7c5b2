package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps carts as rows with a JSONB items column.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects, pings and applies migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// RunMigrations applies the embedded schema migrations.
func (s *PostgresStore) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const cartColumns = "session_id, items, total, item_count, last_updated, expires_at, created_at"

func (s *PostgresStore) FindCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"SELECT "+cartColumns+" FROM carts WHERE session_id = $1", sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cart %s", models.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, pgErr("failed to get cart", err)
	}
	normalizeCart(&cart)
	return &cart, nil
}

func (s *PostgresStore) FindOrCreateCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	fresh := models.NewCart(sessionID, time.Now().UTC())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carts (session_id, items, total, item_count, last_updated, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		fresh.SessionID, fresh.Items, fresh.Total, fresh.ItemCount,
		fresh.LastUpdated, fresh.ExpiresAt, fresh.CreatedAt)
	if err != nil {
		return nil, pgErr("failed to create cart", err)
	}

	return s.FindCart(ctx, sessionID)
}

func (s *PostgresStore) SaveCart(ctx context.Context, cart *models.Cart) error {
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.LastUpdated
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carts (session_id, items, total, item_count, last_updated, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			items = EXCLUDED.items,
			total = EXCLUDED.total,
			item_count = EXCLUDED.item_count,
			last_updated = EXCLUDED.last_updated,
			expires_at = EXCLUDED.expires_at`,
		cart.SessionID, cart.Items, cart.Total, cart.ItemCount,
		cart.LastUpdated, cart.ExpiresAt, cart.CreatedAt)
	if err != nil {
		return pgErr("failed to save cart", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM carts WHERE expires_at <= $1", now)
	if err != nil {
		return 0, pgErr("failed to delete expired carts", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, stripe_session_id, stripe_payment_intent_id, customer_email, items,
			subtotal, shipping, tax, total, currency, payment_status, shipping_address, order_status,
			created_at, updated_at)
		VALUES (:id, :stripe_session_id, :stripe_payment_intent_id, :customer_email, :items,
			:subtotal, :shipping, :tax, :total, :currency, :payment_status, :shipping_address, :order_status,
			:created_at, :updated_at)`

	_, err := s.db.NamedExecContext(ctx, query, order)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: order for stripe session %s", models.ErrDuplicate, order.StripeSessionID)
		}
		return pgErr("failed to create order", err)
	}
	return nil
}

func (s *PostgresStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return s.findOrder(ctx, "id", id)
}

func (s *PostgresStore) GetOrderByStripeSession(ctx context.Context, stripeSessionID string) (*models.Order, error) {
	return s.findOrder(ctx, "stripe_session_id", stripeSessionID)
}

func (s *PostgresStore) findOrder(ctx context.Context, column, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE "+column+" = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, key)
	}
	if err != nil {
		return nil, pgErr("failed to get order", err)
	}
	return &order, nil
}

func (s *PostgresStore) UpdatePaymentStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	if err != nil {
		return pgErr("failed to update payment status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pgErr("failed to update payment status", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AdvanceOrderStatus(ctx context.Context, id, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET order_status = $1, updated_at = NOW() WHERE id = $2 AND order_status = $3",
		to, id, from)
	if err != nil {
		return false, pgErr("failed to advance order status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, pgErr("failed to advance order status", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return pgErr("ping failed", err)
	}
	return nil
}

func (s *PostgresStore) Close(_ context.Context) error {
	return s.db.Close()
}

// pgErr tags connectivity failures as models.ErrStoreUnavailable.
func pgErr(msg string, err error) error {
	if isPgUnavailable(err) {
		return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isPgUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 57P: operator intervention (shutdown)
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P")
	}
	return false
}
