package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository with the default retry policy.
func NewSQLite(dbPath string) (Repository, error) {
	return NewSQLiteWithRetry(dbPath, DefaultRetryPolicy())
}

// NewSQLiteWithRetry creates a new SQLite-backed repository that retries
// write transactions on busy/locked errors according to policy.
func NewSQLiteWithRetry(dbPath string, policy RetryPolicy) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; immediate transactions so two writers
	// never both hold a read lock and deadlock on upgrade.
	dsn := dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: policy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		points INTEGER NOT NULL CHECK (points >= 0),
		image_url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		image_url TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		points_awarded INTEGER NOT NULL DEFAULT 0,
		message_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_status ON receipts(status);

	CREATE TABLE IF NOT EXISTS receipt_items (
		receipt_id TEXT NOT NULL REFERENCES receipts(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		position INTEGER NOT NULL,
		PRIMARY KEY (receipt_id, position)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'pending',
		total_points INTEGER NOT NULL,
		message_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

	CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		position INTEGER NOT NULL,
		PRIMARY KEY (order_id, position)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// inTx runs fn inside a write transaction, retrying the whole transaction on
// busy/locked errors.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return s.retry.do(ctx, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", op, err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back transaction", "op", op, "error", rbErr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", op, err)
		}
		return nil
	})
}

// CreateUser inserts a user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, username, email, points, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.Points,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT id, username, email, points, created_at, updated_at
		FROM users WHERE id = ?`

	var user domain.User
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Username, &user.Email, &user.Points, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// CreateProduct inserts a catalogue entry.
func (s *SQLiteStore) CreateProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	query := `INSERT INTO products (id, name, points, image_url) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		product.ID, product.Name, product.Points, product.ImageURL,
	); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetProduct retrieves a catalogue entry by ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	query := `SELECT id, name, points, image_url FROM products WHERE id = ?`

	var p domain.Product
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&p.ID, &p.Name, &p.Points, &p.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan product row: %w", err)
	}
	return &p, nil
}

// CreateReceipt inserts a pending receipt and its line items.
func (s *SQLiteStore) CreateReceipt(ctx context.Context, receipt *domain.Receipt) error {
	if len(receipt.Items) == 0 {
		return fmt.Errorf("receipt has no line items")
	}
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	now := time.Now()
	receipt.Status = domain.ReceiptPending
	receipt.PointsAwarded = 0
	receipt.MessageID = ""
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	return s.inTx(ctx, "create receipt", func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, receipt.UserID); err != nil {
			return err
		}

		query := `
			INSERT INTO receipts (id, user_id, image_url, status, points_awarded, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)`
		if _, err := tx.ExecContext(ctx, query,
			receipt.ID, receipt.UserID, receipt.ImageURL, receipt.Status,
			now.Unix(), now.Unix(),
		); err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}

		items, err := resolveItems(ctx, tx, receipt.Items)
		if err != nil {
			return err
		}
		receipt.Items = items
		return insertItems(ctx, tx, "receipt_items", "receipt_id", receipt.ID, items)
	})
}

// GetReceipt retrieves a receipt with its line items.
func (s *SQLiteStore) GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	return getReceipt(ctx, s.db, receiptID)
}

// SetReceiptMessageID records the remote message announcing the receipt.
func (s *SQLiteStore) SetReceiptMessageID(ctx context.Context, receiptID, messageID string) error {
	return s.setMessageID(ctx, "receipts", receiptID, messageID)
}

// ApproveReceipt moves a pending receipt to approved and credits the owner.
func (s *SQLiteStore) ApproveReceipt(ctx context.Context, receiptID string, points int) (*domain.Receipt, error) {
	if points <= 0 {
		return nil, fmt.Errorf("approve receipt %s: points must be positive, got %d", receiptID, points)
	}

	var receipt *domain.Receipt
	err := s.inTx(ctx, "approve receipt", func(tx *sql.Tx) error {
		now := time.Now().Unix()
		res, err := tx.ExecContext(ctx, `
			UPDATE receipts SET status = ?, points_awarded = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			domain.ReceiptApproved, points, now, receiptID, domain.ReceiptPending,
		)
		if err != nil {
			return fmt.Errorf("update receipt status: %w", err)
		}
		if err := expectOneRow(ctx, tx, res, "receipts", receiptID); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE users SET points = points + ?, updated_at = ?
			WHERE id = (SELECT user_id FROM receipts WHERE id = ?)`,
			points, now, receiptID,
		)
		if err != nil {
			return fmt.Errorf("credit user points: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("owner of receipt %s: %w", receiptID, ErrNotFound)
		}

		receipt, err = getReceipt(ctx, tx, receiptID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RejectReceipt moves a pending receipt to rejected.
func (s *SQLiteStore) RejectReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	var receipt *domain.Receipt
	err := s.inTx(ctx, "reject receipt", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE receipts SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			domain.ReceiptRejected, time.Now().Unix(), receiptID, domain.ReceiptPending,
		)
		if err != nil {
			return fmt.Errorf("update receipt status: %w", err)
		}
		if err := expectOneRow(ctx, tx, res, "receipts", receiptID); err != nil {
			return err
		}

		receipt, err = getReceipt(ctx, tx, receiptID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// CreateOrder inserts a pending order and debits its total from the user.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("order has no line items")
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now()
	order.Status = domain.OrderPending
	order.MessageID = ""
	order.CreatedAt = now
	order.UpdatedAt = now

	return s.inTx(ctx, "create order", func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, order.UserID); err != nil {
			return err
		}

		items, err := resolveItems(ctx, tx, order.Items)
		if err != nil {
			return err
		}
		order.Items = items
		order.TotalPoints = domain.TotalPoints(items)

		res, err := tx.ExecContext(ctx, `
			UPDATE users SET points = points - ?, updated_at = ?
			WHERE id = ? AND points >= ?`,
			order.TotalPoints, now.Unix(), order.UserID, order.TotalPoints,
		)
		if err != nil {
			return fmt.Errorf("debit user points: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("order for user %s costs %d: %w", order.UserID, order.TotalPoints, ErrInsufficientPoints)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, status, total_points, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, order.UserID, order.Status, order.TotalPoints, now.Unix(), now.Unix(),
		); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		return insertItems(ctx, tx, "order_items", "order_id", order.ID, items)
	})
}

// GetOrder retrieves an order with its line items.
func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, s.db, orderID)
}

// SetOrderMessageID records the remote message announcing the order.
func (s *SQLiteStore) SetOrderMessageID(ctx context.Context, orderID, messageID string) error {
	return s.setMessageID(ctx, "orders", orderID, messageID)
}

// TransitionOrder moves an order from one status to another only if it is currently in from.
func (s *SQLiteStore) TransitionOrder(ctx context.Context, orderID string, from, to domain.OrderStatus) (*domain.Order, error) {
	var order *domain.Order
	err := s.inTx(ctx, "transition order", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			to, time.Now().Unix(), orderID, from,
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if err := expectOneRow(ctx, tx, res, "orders", orderID); err != nil {
			return err
		}

		order, err = getOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels a non-terminal order and refunds its points.
func (s *SQLiteStore) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.inTx(ctx, "cancel order", func(tx *sql.Tx) error {
		now := time.Now().Unix()
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = ?, updated_at = ?
			WHERE id = ? AND status IN (?, ?)`,
			domain.OrderCancelled, now, orderID, domain.OrderPending, domain.OrderProcessing,
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if err := expectOneRow(ctx, tx, res, "orders", orderID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET points = points + (SELECT total_points FROM orders WHERE id = ?), updated_at = ?
			WHERE id = (SELECT user_id FROM orders WHERE id = ?)`,
			orderID, now, orderID,
		); err != nil {
			return fmt.Errorf("refund user points: %w", err)
		}

		order, err = getOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *SQLiteStore) setMessageID(ctx context.Context, table, id, messageID string) error {
	// table is one of two constants chosen by the callers above.
	query := `UPDATE ` + table + ` SET message_id = ?, updated_at = ? WHERE id = ?`
	return s.retry.do(ctx, "set message id", func() error {
		res, err := s.db.ExecContext(ctx, query, messageID, time.Now().Unix(), id)
		if err != nil {
			return fmt.Errorf("update %s message_id: %w", table, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Warn("setMessageID affected 0 rows", "table", table, "id", id)
			return fmt.Errorf("%s %s: %w", strings.TrimSuffix(table, "s"), id, ErrNotFound)
		}
		return nil
	})
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// expectOneRow turns a zero-row conditional update into ErrNotFound or
// ErrInvalidTransition depending on whether the row exists.
func expectOneRow(ctx context.Context, q queryer, res sql.Result, table, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", strings.TrimSuffix(table, "s"), id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s status: %w", table, err)
	}
	return fmt.Errorf("%s %s is %s: %w", strings.TrimSuffix(table, "s"), id, status, ErrInvalidTransition)
}

func userExists(ctx context.Context, q queryer, userID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	return nil
}

// resolveItems replaces each item's product with the catalogue row so totals
// are computed from stored values, never from caller input.
func resolveItems(ctx context.Context, q queryer, items []domain.LineItem) ([]domain.LineItem, error) {
	resolved := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("product %s: quantity must be positive", item.Product.ID)
		}
		var p domain.Product
		err := q.QueryRowContext(ctx,
			`SELECT id, name, points, image_url FROM products WHERE id = ?`, item.Product.ID,
		).Scan(&p.ID, &p.Name, &p.Points, &p.ImageURL)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", item.Product.ID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		resolved = append(resolved, domain.LineItem{Product: p, Quantity: item.Quantity})
	}
	return resolved, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, table, fk, id string, items []domain.LineItem) error {
	query := `INSERT INTO ` + table + ` (` + fk + `, product_id, quantity, position) VALUES (?, ?, ?, ?)`
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, query, id, item.Product.ID, item.Quantity, i); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func loadItems(ctx context.Context, q queryer, table, fk, id string) ([]domain.LineItem, error) {
	query := `
		SELECT p.id, p.name, p.points, p.image_url, i.quantity
		FROM ` + table + ` i JOIN products p ON p.id = i.product_id
		WHERE i.` + fk + ` = ? ORDER BY i.position`

	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close line item rows", "table", table, "error", closeErr)
		}
	}()

	var items []domain.LineItem
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.Product.ID, &item.Product.Name, &item.Product.Points,
			&item.Product.ImageURL, &item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return items, nil
}

func getReceipt(ctx context.Context, q queryer, receiptID string) (*domain.Receipt, error) {
	query := `
		SELECT id, user_id, image_url, status, points_awarded, message_id, created_at, updated_at
		FROM receipts WHERE id = ?`

	var r domain.Receipt
	var messageID sql.NullString
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx, query, receiptID).Scan(
		&r.ID, &r.UserID, &r.ImageURL, &r.Status, &r.PointsAwarded,
		&messageID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan receipt row: %w", err)
	}

	r.MessageID = messageID.String
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)

	r.Items, err = loadItems(ctx, q, "receipt_items", "receipt_id", receiptID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func getOrder(ctx context.Context, q queryer, orderID string) (*domain.Order, error) {
	query := `
		SELECT id, user_id, status, total_points, message_id, created_at, updated_at
		FROM orders WHERE id = ?`

	var o domain.Order
	var messageID sql.NullString
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx, query, orderID).Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalPoints, &messageID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan order row: %w", err)
	}

	o.MessageID = messageID.String
	o.CreatedAt = time.Unix(createdAt, 0)
	o.UpdatedAt = time.Unix(updatedAt, 0)

	o.Items, err = loadItems(ctx, q, "order_items", "order_id", orderID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
