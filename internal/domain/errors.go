package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers malformed input: empty cart, non-positive
	// quantities, negative discount or tax. Fatal to the single call.
	ErrValidation = errors.New("invalid order input")
	// ErrInsufficientStock is the sentinel behind InsufficientStockError so
	// callers can match with errors.Is without knowing the product.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotFound signals a missing product, branch, order or user.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized signals a failed role check on a privileged operation.
	ErrUnauthorized = errors.New("operation requires owner role")
	// ErrConflict signals that a concurrent-write race exhausted its retries.
	ErrConflict = errors.New("concurrent write conflict")
	// ErrUpstream signals an unavailable collaborator (catalog, persistence,
	// payment gateway). The call fails whole; nothing is half-committed.
	ErrUpstream = errors.New("upstream unavailable")

	ErrBranchRequired   = errors.New("branch_id is required")
	ErrItemsRequired    = errors.New("order must contain at least one item")
	ErrNegativeAmount   = errors.New("discount and tax must be non-negative")
	ErrItemQtyInvalid   = errors.New("item qty must be greater than zero")
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	ErrSubtotalMismatch = errors.New("subtotal does not match item snapshots")
	ErrTotalMismatch    = errors.New("total does not equal subtotal + tax - discount")
)

// InsufficientStockError identifies which product ran short. It unwraps to
// ErrInsufficientStock.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
