// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/points-bridge/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a conditional status update
	// matched no row because the subject was no longer in the expected state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInsufficientPoints is returned when an order costs more than the user holds.
	ErrInsufficientPoints = errors.New("insufficient points")
)

// Repository defines the interface for persisting users, catalogue entries,
// receipts and orders.
type Repository interface {
	// CreateUser inserts a user. An empty ID is filled with a new UUID.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateProduct inserts a catalogue entry. An empty ID is filled with a new UUID.
	CreateProduct(ctx context.Context, product *domain.Product) error

	// GetProduct retrieves a catalogue entry by ID.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// CreateReceipt inserts a pending receipt and its line items.
	CreateReceipt(ctx context.Context, receipt *domain.Receipt) error

	// GetReceipt retrieves a receipt with its line items.
	GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error)

	// SetReceiptMessageID records the remote message announcing the receipt.
	SetReceiptMessageID(ctx context.Context, receiptID, messageID string) error

	// ApproveReceipt moves a pending receipt to approved and credits the
	// owner with points, in one transaction.
	ApproveReceipt(ctx context.Context, receiptID string, points int) (*domain.Receipt, error)

	// RejectReceipt moves a pending receipt to rejected.
	RejectReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error)

	// CreateOrder inserts a pending order and debits its total from the user,
	// in one transaction.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves an order with its line items.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// SetOrderMessageID records the remote message announcing the order.
	SetOrderMessageID(ctx context.Context, orderID, messageID string) error

	// TransitionOrder moves an order from one status to another only if it
	// is currently in from (optimistic locking).
	TransitionOrder(ctx context.Context, orderID string, from, to domain.OrderStatus) (*domain.Order, error)

	// CancelOrder cancels a non-terminal order and refunds its points.
	CancelOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
