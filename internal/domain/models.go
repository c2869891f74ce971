package domain

import "time"

// Product is a catalog entry owned by a branch. Price and CostPrice are in
// whole rupiah. Stock is the committed on-hand quantity and is never allowed
// to go negative.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     int64     `json:"price"`
	CostPrice int64     `json:"cost_price"`
	Stock     int       `json:"stock"`
	BranchID  string    `json:"branch_id"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Price     int64  `json:"price"`
	CostPrice int64  `json:"cost_price"`
	Stock     int    `json:"stock"`
	BranchID  string `json:"branch_id"`
	ImageURL  string `json:"image_url,omitempty"`
}

type ProductUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Category  *string `json:"category,omitempty"`
	Price     *int64  `json:"price,omitempty"`
	CostPrice *int64  `json:"cost_price,omitempty"`
	ImageURL  *string `json:"image_url,omitempty"`
}

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type BranchCreateRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// CartLine is one (product, quantity) pair of a proposed cart, before any
// catalog resolution.
type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// CheckoutRequest is the input of both ValidateOrder and CreateOrder.
// Discount and Tax are absolute rupiah amounts, not rates. IdempotencyKey
// deduplicates client retries: a repeated key returns the already-committed
// order instead of selling stock twice. When the client omits it, one is
// generated, which makes every attempt unique.
type CheckoutRequest struct {
	BranchID       string        `json:"branch_id"`
	CashierID      string        `json:"cashier_id"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Items          []CartLine    `json:"items"`
	Discount       int64         `json:"discount"`
	Tax            int64         `json:"tax"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
}

// OrderItem is a single order line. PriceSnapshot and CostSnapshot are
// captured from the catalog at order-creation time and never re-read, so
// later catalog edits cannot alter historical figures.
type OrderItem struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Qty           int    `json:"qty"`
	PriceSnapshot int64  `json:"price_snapshot"`
	CostSnapshot  int64  `json:"cost_snapshot"`
}

// Order is one ledger entry. Items and monetary fields are immutable after
// creation; only Status and PaymentDetails may change afterwards, and only
// through the payment status transition path.
type Order struct {
	ID             string         `json:"id"`
	BranchID       string         `json:"branch_id"`
	CashierID      string         `json:"cashier_id"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Items          []OrderItem    `json:"items"`
	Subtotal       int64          `json:"subtotal"`
	Tax            int64          `json:"tax"`
	Discount       int64          `json:"discount"`
	Total          int64          `json:"total"`
	PaymentMethod  PaymentMethod  `json:"payment_method"`
	Status         PaymentStatus  `json:"status"`
	PaymentDetails PaymentDetails `json:"payment_details"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ValidateInvariants checks the monetary invariants of a persisted order and
// returns every violation found.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.BranchID == "" {
		errs = append(errs, ErrBranchRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.Discount < 0 || o.Tax < 0 {
		errs = append(errs, ErrNegativeAmount)
	}

	var subtotal int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceSnapshot < 0 || item.CostSnapshot < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		subtotal += item.PriceSnapshot * int64(item.Qty)
	}
	if subtotal != o.Subtotal {
		errs = append(errs, ErrSubtotalMismatch)
	}
	if o.Subtotal+o.Tax-o.Discount != o.Total {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// OrderDraft is the output of the intake validator: a cart with resolved
// snapshots and computed totals that has not been persisted and holds no
// stock. A draft is advisory only; the ledger writer re-checks everything.
type OrderDraft struct {
	BranchID      string        `json:"branch_id"`
	CashierID     string        `json:"cashier_id"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	Tax           int64         `json:"tax"`
	Discount      int64         `json:"discount"`
	Total         int64         `json:"total"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// StockAdjustment is an append-only inventory correction. Delta is signed.
type StockAdjustment struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Delta     int       `json:"delta"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

type StockAdjustmentRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Note      string `json:"note,omitempty"`
}

// ReportStats is the Financial Aggregator output for one scope and window.
type ReportStats struct {
	Revenue       int64 `json:"revenue"`
	COGS          int64 `json:"cogs"`
	GrossProfit   int64 `json:"gross_profit"`
	NetProfit     int64 `json:"net_profit"`
	TotalDiscount int64 `json:"total_discount"`
	TotalTax      int64 `json:"total_tax"`
	OrderCount    int   `json:"order_count"`
}

// Add accumulates another stats block into s, field by field.
func (s *ReportStats) Add(other ReportStats) {
	s.Revenue += other.Revenue
	s.COGS += other.COGS
	s.GrossProfit += other.GrossProfit
	s.NetProfit += other.NetProfit
	s.TotalDiscount += other.TotalDiscount
	s.TotalTax += other.TotalTax
	s.OrderCount += other.OrderCount
}

type FinancialReport struct {
	Orders []Order     `json:"orders"`
	Stats  ReportStats `json:"stats"`
}

// BranchPerformance is a derived comparison row, recomputed on every request
// and never persisted.
type BranchPerformance struct {
	BranchID   string      `json:"branch_id"`
	BranchName string      `json:"branch_name"`
	Stats      ReportStats `json:"stats"`
}

const (
	RoleOwner   = "owner"
	RoleCashier = "cashier"
)

// Actor is the authenticated caller attached to a request context. BranchID
// is set for cashier accounts and scopes what they may subscribe to.
type Actor struct {
	ID       string
	Username string
	Role     string
	BranchID string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	BranchID string `json:"branch_id,omitempty"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	BranchID  string    `json:"branch_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	BranchID  string
	Active    bool
	CreatedAt time.Time
}
