package store

import (
	"context"
	"time"

	"kasira/backend/internal/domain"
)

// OrderFilter narrows ListOrders. Branch scope is a set so the aggregator can
// query one branch or all branches of an owner with the same call. The time
// window is half-open: From inclusive, To exclusive. Zero values disable the
// corresponding filter.
type OrderFilter struct {
	BranchIDs []string
	Status    domain.PaymentStatus
	From      time.Time
	To        time.Time
}

// Repository is the transactional key/record store the engine depends on.
// Implementations must make CreateOrder all-or-nothing: every line's stock
// decrement plus the order insert commit together or not at all, and a
// product's committed stock never goes negative.
type Repository interface {
	ListProducts(ctx context.Context, branchID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListBranches(ctx context.Context, ownerID string) ([]domain.Branch, error)
	GetBranch(ctx context.Context, id string) (*domain.Branch, error)
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	DeleteBranch(ctx context.Context, id string) error

	// CreateOrder resolves price/cost snapshots from the current catalog,
	// applies a conditional decrement per line and persists the order with
	// its items as one unit. It returns InsufficientStockError when any line
	// cannot be covered and ErrConflict when a write race exhausts retries.
	// When the order carries a non-empty IdempotencyKey already seen by the
	// store, the previously committed order is returned and no stock moves.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)

	// AdvancePaymentStatus moves a pending order to the target terminal
	// status. When the order is already terminal it returns the stored order
	// unchanged with applied=false; duplicate callbacks are therefore no-ops.
	AdvancePaymentStatus(ctx context.Context, orderID string, target domain.PaymentStatus, details *domain.PaymentDetails) (order *domain.Order, applied bool, err error)

	// ApplyStockAdjustment appends the adjustment and mutates stock
	// conditionally; a delta that would drive stock negative is rejected
	// with InsufficientStockError and nothing is written.
	ApplyStockAdjustment(ctx context.Context, adj domain.StockAdjustment) (*domain.Product, error)
	ListStockAdjustments(ctx context.Context, productID string, limit int) ([]domain.StockAdjustment, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
