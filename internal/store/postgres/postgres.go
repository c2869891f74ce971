package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasira/backend/internal/domain"
	"kasira/backend/internal/store"
	"kasira/backend/internal/xid"
)

// Store is the PostgreSQL repository. Order creation relies on per-row
// conditional updates (stock = stock - qty only where stock >= qty) inside a
// single transaction, so concurrent orders on disjoint products proceed in
// parallel while contenders on the same product serialize through the row.
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

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	query := `
		SELECT id, name, category, price, cost_price, stock, branch_id, image_url, created_at
		FROM products
		ORDER BY category, name
	`
	args := []any{}
	if branchID != "" && branchID != "all" {
		query = `
			SELECT id, name, category, price, cost_price, stock, branch_id, image_url, created_at
			FROM products
			WHERE branch_id = $1
			ORDER BY category, name
		`
		args = append(args, branchID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.CostPrice, &p.Stock, &p.BranchID, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, cost_price, stock, branch_id, image_url, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.CostPrice, &p.Stock, &p.BranchID, &p.ImageURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.BranchID == "" {
		return nil, domain.ErrValidation
	}
	if product.Price < 1 || product.CostPrice < 0 || product.Stock < 0 {
		return nil, domain.ErrValidation
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, cost_price, stock, branch_id, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ID, product.Name, product.Category, product.Price, product.CostPrice, product.Stock, product.BranchID, product.ImageURL, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.Price < 1 || product.CostPrice < 0 {
		return nil, domain.ErrValidation
	}

	// Stock and branch ownership are not editable through catalog updates.
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, cost_price = $5, image_url = $6, updated_at = now()
		WHERE id = $1
		RETURNING stock, branch_id, created_at
	`, product.ID, product.Name, product.Category, product.Price, product.CostPrice, product.ImageURL)
	if err := row.Scan(&product.Stock, &product.BranchID, &product.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListBranches(ctx context.Context, ownerID string) ([]domain.Branch, error) {
	query := `SELECT id, name, location, owner_id, created_at FROM branches ORDER BY name`
	args := []any{}
	if ownerID != "" {
		query = `SELECT id, name, location, owner_id, created_at FROM branches WHERE owner_id = $1 ORDER BY name`
		args = append(args, ownerID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 16)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Location, &b.OwnerID, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (s *Store) GetBranch(ctx context.Context, id string) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location, owner_id, created_at FROM branches WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Location, &b.OwnerID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if strings.TrimSpace(branch.Name) == "" || branch.OwnerID == "" {
		return nil, domain.ErrValidation
	}
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, location, owner_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, branch.ID, branch.Name, branch.Location, branch.OwnerID, branch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	created := branch
	return &created, nil
}

func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const createOrderMaxAttempts = 3

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, domain.ErrValidation
	}
	if order.Discount < 0 || order.Tax < 0 {
		return nil, domain.ErrValidation
	}
	if !order.PaymentMethod.Valid() {
		return nil, domain.ErrValidation
	}

	// A replayed idempotency key short-circuits before any stock moves.
	if order.IdempotencyKey != "" {
		existing, err := s.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	// Serialization and deadlock aborts are retried; genuine shortages and
	// validation errors are not.
	for attempt := 0; attempt < createOrderMaxAttempts; attempt++ {
		created, err := s.createOrderOnce(ctx, order)
		if err != nil {
			if isRetryableTxError(err) {
				continue
			}
			return nil, err
		}
		return created, nil
	}
	return nil, domain.ErrConflict
}

func (s *Store) createOrderOnce(ctx context.Context, order domain.Order) (*domain.Order, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var branchExists bool
	if err := pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)
	`, order.BranchID).Scan(&branchExists); err != nil {
		return nil, err
	}
	if !branchExists {
		return nil, domain.ErrNotFound
	}

	// Lines can repeat a product; the conditional decrement runs once per
	// product with the combined quantity.
	neededByProduct := make(map[string]int, len(order.Items))
	productOrder := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Qty < 1 {
			return nil, domain.ErrValidation
		}
		if _, seen := neededByProduct[item.ProductID]; !seen {
			productOrder = append(productOrder, item.ProductID)
		}
		neededByProduct[item.ProductID] += item.Qty
	}

	type snapshot struct {
		name  string
		price int64
		cost  int64
	}
	snapshots := make(map[string]snapshot, len(neededByProduct))

	for _, productID := range productOrder {
		needed := neededByProduct[productID]
		var snap snapshot
		err := pgTx.QueryRowContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2
			RETURNING name, price, cost_price
		`, productID, needed).Scan(&snap.name, &snap.price, &snap.cost)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Distinguish a missing product from a genuine shortage.
				var exists bool
				if err := pgTx.QueryRowContext(ctx, `
					SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
				`, productID).Scan(&exists); err != nil {
					return nil, err
				}
				if !exists {
					return nil, domain.ErrNotFound
				}
				return nil, &domain.InsufficientStockError{ProductID: productID}
			}
			return nil, err
		}
		snapshots[productID] = snap
	}

	subtotal := int64(0)
	resolvedItems := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		snap := snapshots[item.ProductID]
		resolvedItems = append(resolvedItems, domain.OrderItem{
			ProductID:     item.ProductID,
			ProductName:   snap.name,
			Qty:           item.Qty,
			PriceSnapshot: snap.price,
			CostSnapshot:  snap.cost,
		})
		subtotal += snap.price * int64(item.Qty)
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
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

	detailsJSON, err := json.Marshal(order.PaymentDetails)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, branch_id, cashier_id, idempotency_key, subtotal, tax, discount, total, payment_method, status, payment_details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, order.ID, order.BranchID, order.CashierID, nullIfEmpty(order.IdempotencyKey), order.Subtotal, order.Tax, order.Discount, order.Total, string(order.PaymentMethod), string(order.Status), detailsJSON, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent request with the same idempotency key won the
			// insert; its committed order is the canonical result. The
			// deferred rollback reverts this attempt's decrements.
			if order.IdempotencyKey != "" {
				if existing, lookupErr := s.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey); lookupErr == nil {
					return existing, nil
				}
			}
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	for _, item := range order.Items {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, qty, price_snapshot, cost_snapshot)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, item.ProductID, item.ProductName, item.Qty, item.PriceSnapshot, item.CostSnapshot)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := s.queryOrders(ctx, `
		SELECT id, branch_id, cashier_id, COALESCE(idempotency_key, ''), subtotal, tax, discount, total, payment_method, status, payment_details, created_at
		FROM transactions
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrNotFound
	}
	return &orders[0], nil
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	orders, err := s.queryOrders(ctx, `
		SELECT id, branch_id, cashier_id, COALESCE(idempotency_key, ''), subtotal, tax, discount, total, payment_method, status, payment_details, created_at
		FROM transactions
		WHERE idempotency_key = $1
	`, key)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrNotFound
	}
	return &orders[0], nil
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, branch_id, cashier_id, COALESCE(idempotency_key, ''), subtotal, tax, discount, total, payment_method, status, payment_details, created_at
		FROM transactions
		WHERE 1=1
	`)
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(filter.BranchIDs) > 0 {
		query.WriteString(" AND branch_id = ANY(" + arg(filter.BranchIDs) + ")")
	}
	if filter.Status != "" {
		query.WriteString(" AND status = " + arg(string(filter.Status)))
	}
	if !filter.From.IsZero() {
		query.WriteString(" AND created_at >= " + arg(filter.From))
	}
	if !filter.To.IsZero() {
		query.WriteString(" AND created_at < " + arg(filter.To))
	}
	query.WriteString(" ORDER BY created_at, id")

	return s.queryOrders(ctx, query.String(), args...)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	index := make(map[string]int, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		var o domain.Order
		var detailsJSON []byte
		if err := rows.Scan(&o.ID, &o.BranchID, &o.CashierID, &o.IdempotencyKey, &o.Subtotal, &o.Tax, &o.Discount, &o.Total, &o.PaymentMethod, &o.Status, &detailsJSON, &o.CreatedAt); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &o.PaymentDetails); err != nil {
				return nil, err
			}
		}
		index[o.ID] = len(orders)
		ids = append(ids, o.ID)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, product_name, qty, price_snapshot, cost_snapshot
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var txID string
		var item domain.OrderItem
		if err := itemRows.Scan(&txID, &item.ProductID, &item.ProductName, &item.Qty, &item.PriceSnapshot, &item.CostSnapshot); err != nil {
			return nil, err
		}
		if i, ok := index[txID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return orders, itemRows.Err()
}

func (s *Store) AdvancePaymentStatus(ctx context.Context, orderID string, target domain.PaymentStatus, details *domain.PaymentDetails) (*domain.Order, bool, error) {
	if !target.Terminal() {
		return nil, false, domain.ErrValidation
	}

	// Conditional update keyed on the pending status: a duplicate callback
	// (or one racing another) affects zero rows and falls through to the
	// idempotent read below.
	var res sql.Result
	var err error
	if details != nil {
		detailsJSON, merr := json.Marshal(details)
		if merr != nil {
			return nil, false, merr
		}
		res, err = s.db.ExecContext(ctx, `
			UPDATE transactions
			SET status = $2, payment_details = $3
			WHERE id = $1 AND status = $4
		`, orderID, string(target), detailsJSON, string(domain.PaymentPending))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE transactions
			SET status = $2
			WHERE id = $1 AND status = $3
		`, orderID, string(target), string(domain.PaymentPending))
	}
	if err != nil {
		return nil, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, affected > 0, nil
}

func (s *Store) ApplyStockAdjustment(ctx context.Context, adj domain.StockAdjustment) (*domain.Product, error) {
	if adj.ProductID == "" || adj.Delta == 0 {
		return nil, domain.ErrValidation
	}
	if adj.ID == "" {
		adj.ID = xid.New("adj")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var p domain.Product
	err = pgTx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING id, name, category, price, cost_price, stock, branch_id, image_url, created_at
	`, adj.ProductID, adj.Delta).Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.CostPrice, &p.Stock, &p.BranchID, &p.ImageURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := pgTx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
			`, adj.ProductID).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, domain.ErrNotFound
			}
			return nil, &domain.InsufficientStockError{ProductID: adj.ProductID}
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_adjustments (id, product_id, delta, note, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, adj.ID, adj.ProductID, adj.Delta, adj.Note, adj.ActorID, adj.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListStockAdjustments(ctx context.Context, productID string, limit int) ([]domain.StockAdjustment, error) {
	if limit < 1 {
		limit = 100
	}
	query := `
		SELECT id, product_id, delta, note, actor_id, created_at
		FROM stock_adjustments
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	args := []any{limit}
	if productID != "" {
		query = `
			SELECT id, product_id, delta, note, actor_id, created_at
			FROM stock_adjustments
			WHERE product_id = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`
		args = append(args, productID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockAdjustment, 0, limit)
	for rows.Next() {
		var adj domain.StockAdjustment
		if err := rows.Scan(&adj.ID, &adj.ProductID, &adj.Delta, &adj.Note, &adj.ActorID, &adj.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, adj)
	}
	return result, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrValidation
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role, branch_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,true,$6)
	`, user.ID, username, user.Password, user.Role, user.BranchID, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, branch_id, active, created_at
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
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.BranchID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrValidation
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
		return domain.ErrNotFound
	}
	return nil
}

// nullIfEmpty maps "" to NULL so the unique index on idempotency_key ignores
// orders created without one.
func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// isRetryableTxError matches serialization failures (40001) and deadlocks
// (40P01), the PostgreSQL equivalents of a lost CAS race.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}
