package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kasira/backend/internal/domain"
	"kasira/backend/internal/store"
	"kasira/backend/internal/xid"
)

// Store is the in-memory repository used for dev mode and tests. All mutating
// operations take the write lock for their whole duration, so an order's
// stock checks and decrements are a single atomic unit: no partial decrement
// is ever observable.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	branches        map[string]domain.Branch
	ordersByID      map[string]*domain.Order
	ordersByIdem    map[string]*domain.Order
	adjustments     []domain.StockAdjustment
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD; unset variables
// fall back to dev defaults with a warning. Production deployments use
// PostgreSQL and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
		branchID string
	}{
		{"demo-owner", "owner", ownerPwd, domain.RoleOwner, ""},
		{"demo-cashier", "cashier", cashierPwd, domain.RoleCashier, "b1"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        u.id,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			BranchID:  u.branchID,
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

// NewSeeded returns a store preloaded with the demo catalog.
func NewSeeded() *Store {
	now := time.Now().UTC()
	branches := []domain.Branch{
		{ID: "b1", Name: "KASIRA Pusat - Jakarta", Location: "Sudirman, Jakarta", OwnerID: "demo-owner", CreatedAt: now},
		{ID: "b2", Name: "KASIRA Bandung", Location: "Dago, Bandung", OwnerID: "demo-owner", CreatedAt: now},
	}
	products := []domain.Product{
		{ID: "p1", Name: "Espresso Single", Category: "Coffee", Price: 15000, CostPrice: 5000, Stock: 50, BranchID: "b1", CreatedAt: now},
		{ID: "p2", Name: "Cafe Latte", Category: "Coffee", Price: 28000, CostPrice: 12000, Stock: 30, BranchID: "b1", CreatedAt: now},
		{ID: "p3", Name: "Croissant Butter", Category: "Pastry", Price: 22000, CostPrice: 8000, Stock: 15, BranchID: "b1", CreatedAt: now},
		{ID: "p4", Name: "Es Kopi Susu", Category: "Coffee", Price: 24000, CostPrice: 9000, Stock: 40, BranchID: "b2", CreatedAt: now},
	}

	branchMap := make(map[string]domain.Branch, len(branches))
	for _, b := range branches {
		branchMap[b.ID] = b
	}
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		branches:        branchMap,
		ordersByID:      make(map[string]*domain.Order),
		ordersByIdem:    make(map[string]*domain.Order),
		adjustments:     make([]domain.StockAdjustment, 0, 64),
		usersByUsername: seedUsers(),
	}
}

// NewEmpty returns a store with no seed data, for tests that build their own
// fixtures.
func NewEmpty() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		branches:        make(map[string]domain.Branch),
		ordersByID:      make(map[string]*domain.Order),
		ordersByIdem:    make(map[string]*domain.Order),
		adjustments:     make([]domain.StockAdjustment, 0, 16),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (s *Store) ListProducts(_ context.Context, branchID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if branchID != "" && branchID != "all" && p.BranchID != branchID {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.BranchID == "" {
		return nil, domain.ErrValidation
	}
	if product.Price < 1 || product.CostPrice < 0 || product.Stock < 0 {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branches[product.BranchID]; !exists {
		return nil, domain.ErrNotFound
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, domain.ErrConflict
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.Price < 1 || product.CostPrice < 0 {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, domain.ErrNotFound
	}
	// Stock and ownership are not editable through catalog updates.
	product.Stock = existing.Stock
	product.BranchID = existing.BranchID
	product.CreatedAt = existing.CreatedAt

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListBranches(_ context.Context, ownerID string) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		if ownerID != "" && b.OwnerID != ownerID {
			continue
		}
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) GetBranch(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branches[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	copyBranch := branch
	return &copyBranch, nil
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	if strings.TrimSpace(branch.Name) == "" || branch.OwnerID == "" {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	s.branches[branch.ID] = branch
	created := branch
	return &created, nil
}

func (s *Store) DeleteBranch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branches[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.branches, id)
	return nil
}

// CreateOrder checks every line against current stock first and applies
// decrements only after all checks pass, all under the write lock. A failed
// line therefore leaves no committed effect from earlier lines.
func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, domain.ErrValidation
	}
	if order.Discount < 0 || order.Tax < 0 {
		return nil, domain.ErrValidation
	}
	if !order.PaymentMethod.Valid() {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A replayed idempotency key returns the committed order as-is.
	if order.IdempotencyKey != "" {
		if existing, ok := s.ordersByIdem[order.IdempotencyKey]; ok {
			return cloneOrder(existing), nil
		}
	}

	if _, exists := s.branches[order.BranchID]; !exists {
		return nil, domain.ErrNotFound
	}

	// Lines can repeat a product; the stock check is against the combined
	// quantity per product.
	neededByProduct := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		if item.Qty < 1 {
			return nil, domain.ErrValidation
		}
		neededByProduct[item.ProductID] += item.Qty
	}
	for productID, needed := range neededByProduct {
		product, exists := s.products[productID]
		if !exists {
			return nil, domain.ErrNotFound
		}
		if product.Stock < needed {
			return nil, &domain.InsufficientStockError{ProductID: productID}
		}
	}

	subtotal := int64(0)
	resolvedItems := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		product := s.products[item.ProductID]
		resolvedItems = append(resolvedItems, domain.OrderItem{
			ProductID:     product.ID,
			ProductName:   product.Name,
			Qty:           item.Qty,
			PriceSnapshot: product.Price,
			CostSnapshot:  product.CostPrice,
		})
		subtotal += product.Price * int64(item.Qty)
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, domain.ErrConflict
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Items = resolvedItems
	order.Subtotal = subtotal
	order.Total = subtotal + order.Tax - order.Discount
	if order.Status == "" {
		order.Status = order.PaymentMethod.InitialStatus()
	}

	for productID, needed := range neededByProduct {
		product := s.products[productID]
		product.Stock -= needed
		s.products[productID] = product
	}

	orderCopy := cloneOrder(&order)
	s.ordersByID[order.ID] = orderCopy
	if order.IdempotencyKey != "" {
		s.ordersByIdem[order.IdempotencyKey] = orderCopy
	}

	return cloneOrder(orderCopy), nil
}

func (s *Store) GetOrderByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key == "" {
		return nil, domain.ErrNotFound
	}
	order, exists := s.ordersByIdem[key]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branchSet := make(map[string]struct{}, len(filter.BranchIDs))
	for _, id := range filter.BranchIDs {
		branchSet[id] = struct{}{}
	}

	result := make([]domain.Order, 0, 64)
	for _, order := range s.ordersByID {
		if len(branchSet) > 0 {
			if _, ok := branchSet[order.BranchID]; !ok {
				continue
			}
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && order.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !order.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, *cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) AdvancePaymentStatus(_ context.Context, orderID string, target domain.PaymentStatus, details *domain.PaymentDetails) (*domain.Order, bool, error) {
	if !target.Terminal() {
		return nil, false, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, false, domain.ErrNotFound
	}
	if order.Status.Terminal() {
		// Duplicate or late callback: terminal state is sticky.
		return cloneOrder(order), false, nil
	}
	if !order.Status.CanAdvanceTo(target) {
		return nil, false, domain.ErrValidation
	}

	order.Status = target
	if details != nil {
		order.PaymentDetails = *details
	}
	return cloneOrder(order), true, nil
}

func (s *Store) ApplyStockAdjustment(_ context.Context, adj domain.StockAdjustment) (*domain.Product, error) {
	if adj.ProductID == "" || adj.Delta == 0 {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[adj.ProductID]
	if !exists {
		return nil, domain.ErrNotFound
	}
	next := product.Stock + adj.Delta
	if next < 0 {
		return nil, &domain.InsufficientStockError{ProductID: adj.ProductID}
	}

	if adj.ID == "" {
		adj.ID = xid.New("adj")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}

	product.Stock = next
	s.products[adj.ProductID] = product
	s.adjustments = append(s.adjustments, adj)

	updated := product
	return &updated, nil
}

func (s *Store) ListStockAdjustments(_ context.Context, productID string, limit int) ([]domain.StockAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockAdjustment, 0, 32)
	for _, adj := range s.adjustments {
		if productID != "" && adj.ProductID != productID {
			continue
		}
		result = append(result, adj)
	}
	slices.SortFunc(result, func(a, b domain.StockAdjustment) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return domain.ErrConflict
	}
	user.Username = username
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return domain.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneOrder(src *domain.Order) *domain.Order {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.OrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}
