package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"kasira/backend/internal/cache"
	"kasira/backend/internal/domain"
	"kasira/backend/internal/events"
	"kasira/backend/internal/insight"
	"kasira/backend/internal/metrics"
	"kasira/backend/internal/store"
	"kasira/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const reportCacheTTL = 2 * time.Minute

type Service struct {
	repo           store.Repository
	gateway        PaymentGateway
	publisher      events.Publisher
	reportCache    cache.ReportCache
	insight        *insight.Client
	metrics        *metrics.StoreMetrics
	logger         *log.Entry
	defaultOwnerID string
}

func New(repo store.Repository, gateway PaymentGateway, publisher events.Publisher, reportCache cache.ReportCache, insightClient *insight.Client, storeMetrics *metrics.StoreMetrics, defaultOwnerID string) *Service {
	if gateway == nil {
		gateway = StaticGateway{}
	}
	if publisher == nil {
		publisher = events.NewBroker()
	}
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if defaultOwnerID == "" {
		defaultOwnerID = "demo-owner"
	}

	return &Service{
		repo:           repo,
		gateway:        gateway,
		publisher:      publisher,
		reportCache:    reportCache,
		insight:        insightClient,
		metrics:        storeMetrics,
		logger:         log.WithField("component", "service"),
		defaultOwnerID: defaultOwnerID,
	}
}

func requireOwner(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, branchID)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" || req.BranchID == "" {
		return nil, domain.ErrValidation
	}
	if req.Price < 1 || req.CostPrice < 0 || req.Stock < 0 {
		return nil, domain.ErrValidation
	}

	return s.repo.CreateProduct(ctx, domain.Product{
		Name:      req.Name,
		Category:  req.Category,
		Price:     req.Price,
		CostPrice: req.CostPrice,
		Stock:     req.Stock,
		BranchID:  req.BranchID,
		ImageURL:  req.ImageURL,
	})
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrValidation
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return nil, domain.ErrValidation
		}
		updated.Category = category
	}
	if req.Price != nil {
		if *req.Price < 1 {
			return nil, domain.ErrValidation
		}
		updated.Price = *req.Price
	}
	if req.CostPrice != nil {
		if *req.CostPrice < 0 {
			return nil, domain.ErrValidation
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.ImageURL != nil {
		updated.ImageURL = *req.ImageURL
	}

	return s.repo.UpdateProduct(ctx, updated)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	actor, ok := ActorFromContext(ctx)
	ownerID := s.defaultOwnerID
	if ok && actor.Role == domain.RoleOwner {
		ownerID = actor.ID
	}
	return s.repo.ListBranches(ctx, ownerID)
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (*domain.Branch, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	actor, _ := ActorFromContext(ctx)

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, domain.ErrValidation
	}

	return s.repo.CreateBranch(ctx, domain.Branch{
		Name:     req.Name,
		Location: strings.TrimSpace(req.Location),
		OwnerID:  actor.ID,
	})
}

func (s *Service) DeleteBranch(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	return s.repo.DeleteBranch(ctx, id)
}

// validateCheckout applies the structural checks shared by ValidateOrder and
// CreateOrder. It returns the fine-grained validation error for the first
// violation found.
func validateCheckout(req domain.CheckoutRequest) error {
	if req.BranchID == "" {
		return fmt.Errorf("%w: %s", domain.ErrValidation, domain.ErrBranchRequired)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, domain.ErrItemsRequired)
	}
	if req.Discount < 0 || req.Tax < 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, domain.ErrNegativeAmount)
	}
	for _, line := range req.Items {
		if line.ProductID == "" || line.Qty < 1 {
			return fmt.Errorf("%w: %s", domain.ErrValidation, domain.ErrItemQtyInvalid)
		}
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", domain.ErrValidation, req.PaymentMethod)
	}
	return nil
}

// ValidateOrder resolves the cart against the current catalog and returns a
// priced draft. The draft holds no stock: availability reported here is
// advisory and is re-checked atomically at creation time.
func (s *Service) ValidateOrder(ctx context.Context, req domain.CheckoutRequest) (*domain.OrderDraft, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetBranch(ctx, req.BranchID); err != nil {
		return nil, err
	}

	neededByProduct := make(map[string]int, len(req.Items))
	for _, line := range req.Items {
		neededByProduct[line.ProductID] += line.Qty
	}

	var subtotal int64
	items := make([]domain.OrderItem, 0, len(req.Items))
	seen := make(map[string]*domain.Product, len(req.Items))
	for _, line := range req.Items {
		product, ok := seen[line.ProductID]
		if !ok {
			var err error
			product, err = s.repo.GetProduct(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
			if product.Stock < neededByProduct[line.ProductID] {
				return nil, &domain.InsufficientStockError{ProductID: line.ProductID}
			}
			seen[line.ProductID] = product
		}
		items = append(items, domain.OrderItem{
			ProductID:     product.ID,
			ProductName:   product.Name,
			Qty:           line.Qty,
			PriceSnapshot: product.Price,
			CostSnapshot:  product.CostPrice,
		})
		subtotal += product.Price * int64(line.Qty)
	}

	return &domain.OrderDraft{
		BranchID:      req.BranchID,
		CashierID:     req.CashierID,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           req.Tax,
		Discount:      req.Discount,
		Total:         subtotal + req.Tax - req.Discount,
		PaymentMethod: req.PaymentMethod,
	}, nil
}

// CreateOrder charges the payment channel, then commits the order and its
// stock decrements as one unit. Gateway failures abort before anything is
// persisted. A retried request carrying the same idempotency key returns the
// already-committed order without charging or decrementing again. Events are
// published best-effort after the commit.
func (s *Service) CreateOrder(ctx context.Context, req domain.CheckoutRequest) (*domain.Order, error) {
	started := time.Now()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	} else if existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		s.logger.WithFields(log.Fields{
			"order_id":        existing.ID,
			"idempotency_key": req.IdempotencyKey,
		}).Info("checkout replayed")
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	draft, err := s.ValidateOrder(ctx, req)
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	var details domain.PaymentDetails
	if !req.PaymentMethod.Cash() {
		details, err = s.gateway.Charge(ctx, *draft)
		if err != nil {
			s.recordRejection(domain.ErrUpstream)
			return nil, fmt.Errorf("%w: payment gateway: %s", domain.ErrUpstream, err)
		}
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		BranchID:       req.BranchID,
		CashierID:      req.CashierID,
		IdempotencyKey: req.IdempotencyKey,
		Items:          toCartItems(req.Items),
		Tax:            req.Tax,
		Discount:       req.Discount,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: details,
	})
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
		s.metrics.RecordCheckoutDuration(time.Since(started))
	}
	s.publishOrderEvent(ctx, created, events.TypeTransactionCreated)

	s.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"branch":   created.BranchID,
		"total":    created.Total,
		"status":   created.Status,
	}).Info("order created")

	return created, nil
}

// toCartItems carries only the product reference and quantity; snapshots are
// resolved inside the repository's transaction, not from the draft.
func toCartItems(lines []domain.CartLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.OrderItem{ProductID: line.ProductID, Qty: line.Qty})
	}
	return items
}

func (s *Service) recordRejection(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.RecordOrderRejected("insufficient_stock")
	case errors.Is(err, domain.ErrValidation):
		s.metrics.RecordOrderRejected("validation")
	case errors.Is(err, domain.ErrConflict):
		s.metrics.RecordOrderRejected("conflict")
	case errors.Is(err, domain.ErrUpstream):
		s.metrics.RecordOrderRejected("upstream")
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.RecordOrderRejected("not_found")
	default:
		s.metrics.RecordOrderRejected("other")
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

// AdvancePaymentStatus moves a pending order to a terminal status. Duplicate
// or late requests against an already-terminal order succeed without effect
// and without re-publishing events.
func (s *Service) AdvancePaymentStatus(ctx context.Context, orderID string, target domain.PaymentStatus, details *domain.PaymentDetails) (*domain.Order, error) {
	if !target.Valid() || !target.Terminal() {
		return nil, fmt.Errorf("%w: cannot advance to status %q", domain.ErrValidation, target)
	}

	order, applied, err := s.repo.AdvancePaymentStatus(ctx, orderID, target, details)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"status":   order.Status,
			"target":   target,
		}).Info("payment advance ignored, order already terminal")
		return order, nil
	}

	if s.metrics != nil {
		s.metrics.RecordPaymentAdvance(string(target))
	}
	s.publishOrderEvent(ctx, order, events.TypePaymentUpdated)

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"status":   target,
	}).Info("payment status advanced")

	return order, nil
}

// HandleGatewayCallback applies an acquirer notification. Unknown raw
// statuses and "pending" are acknowledged without touching the order.
func (s *Service) HandleGatewayCallback(ctx context.Context, orderID string, rawStatus string, details *domain.PaymentDetails) (*domain.Order, error) {
	target, ok := domain.MapGatewayStatus(rawStatus)
	if !ok {
		s.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"raw_status": rawStatus,
		}).Warn("ignoring unknown gateway status")
		return s.repo.GetOrder(ctx, orderID)
	}
	if target == domain.PaymentPending {
		return s.repo.GetOrder(ctx, orderID)
	}
	return s.AdvancePaymentStatus(ctx, orderID, target, details)
}

// AdjustStock applies a signed inventory correction. Owner role required; a
// delta that would drive stock negative is rejected whole.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (*domain.Product, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	if req.ProductID == "" || req.Delta == 0 {
		return nil, fmt.Errorf("%w: product_id and a non-zero delta are required", domain.ErrValidation)
	}
	actor, _ := ActorFromContext(ctx)

	product, err := s.repo.ApplyStockAdjustment(ctx, domain.StockAdjustment{
		ID:        xid.New("adj"),
		ProductID: req.ProductID,
		Delta:     req.Delta,
		Note:      strings.TrimSpace(req.Note),
		ActorID:   actor.ID,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordStockAdjustment()
	}
	s.publishEvent(ctx, events.BranchTopic(product.BranchID), events.TypeStockChanged, map[string]any{
		"product_id": product.ID,
		"delta":      req.Delta,
		"stock":      product.Stock,
	})

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"delta":      req.Delta,
		"stock":      product.Stock,
	}).Info("stock adjusted")

	return product, nil
}

func (s *Service) ListStockAdjustments(ctx context.Context, productID string, limit int) ([]domain.StockAdjustment, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListStockAdjustments(ctx, productID, limit)
}

// resolveBranchScope expands the "all" pseudo-branch into the caller's actual
// branch set.
func (s *Service) resolveBranchScope(ctx context.Context, branchID string) ([]string, error) {
	if branchID != "" && branchID != "all" {
		return []string{branchID}, nil
	}

	branches, err := s.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(branches))
	for _, b := range branches {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// GetFinancialReport aggregates settled orders over a half-open time window.
// Only success-status orders count. When the underlying store fails, the
// report degrades to zeroed stats instead of erroring, so dashboards render.
func (s *Service) GetFinancialReport(ctx context.Context, branchID string, from, to time.Time) (*domain.FinancialReport, error) {
	branchIDs, err := s.resolveBranchScope(ctx, branchID)
	if err != nil {
		return nil, err
	}

	// The key carries the resolved branch set, not the raw filter: "all"
	// expands per caller, so two owners never share a cached window.
	scope := slices.Clone(branchIDs)
	slices.Sort(scope)
	cacheKey := fmt.Sprintf("report:%s:%d:%d", strings.Join(scope, ","), from.Unix(), to.Unix())
	if cached, ok, err := s.reportCache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	orders, err := s.repo.ListOrders(ctx, store.OrderFilter{
		BranchIDs: branchIDs,
		Status:    domain.PaymentSuccess,
		From:      from,
		To:        to,
	})
	if err != nil {
		s.logger.WithError(err).Error("report query failed, returning empty stats")
		return &domain.FinancialReport{Orders: []domain.Order{}, Stats: domain.ReportStats{}}, nil
	}

	report := &domain.FinancialReport{
		Orders: orders,
		Stats:  computeStats(orders),
	}

	if err := s.reportCache.Set(ctx, cacheKey, report, reportCacheTTL); err != nil {
		s.logger.WithError(err).Warn("failed to cache report")
	}
	return report, nil
}

// computeStats folds settled orders into the aggregate. Revenue sums
// subtotals; COGS multiplies cost snapshots by quantity; net profit is gross
// profit minus total discount.
func computeStats(orders []domain.Order) domain.ReportStats {
	var stats domain.ReportStats
	for _, o := range orders {
		var cogs int64
		for _, item := range o.Items {
			cogs += item.CostSnapshot * int64(item.Qty)
		}
		stats.Add(domain.ReportStats{
			Revenue:       o.Subtotal,
			COGS:          cogs,
			GrossProfit:   o.Subtotal - cogs,
			NetProfit:     o.Subtotal - cogs - o.Discount,
			TotalDiscount: o.Discount,
			TotalTax:      o.Tax,
			OrderCount:    1,
		})
	}
	return stats
}

// GetBranchComparison computes per-branch stats over the same window. Each
// row is computed with the same fold as the single-branch report, so the
// rows of a comparison always sum to the all-branches report.
func (s *Service) GetBranchComparison(ctx context.Context, from, to time.Time) ([]domain.BranchPerformance, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	branches, err := s.ListBranches(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.BranchPerformance, 0, len(branches))
	for _, b := range branches {
		orders, err := s.repo.ListOrders(ctx, store.OrderFilter{
			BranchIDs: []string{b.ID},
			Status:    domain.PaymentSuccess,
			From:      from,
			To:        to,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, domain.BranchPerformance{
			BranchID:   b.ID,
			BranchName: b.Name,
			Stats:      computeStats(orders),
		})
	}
	return rows, nil
}

// BusinessInsight returns a short textual recommendation for the window.
// Advisory only: upstream failures degrade to a canned suggestion.
func (s *Service) BusinessInsight(ctx context.Context, branchID string, from, to time.Time) (string, error) {
	report, err := s.GetFinancialReport(ctx, branchID, from, to)
	if err != nil {
		return "", err
	}
	if s.insight == nil {
		return insight.NewClient("").BusinessAdvice(ctx, report.Stats), nil
	}
	return s.insight.BusinessAdvice(ctx, report.Stats), nil
}

func (s *Service) publishOrderEvent(ctx context.Context, order *domain.Order, eventType events.Type) {
	s.publishEvent(ctx, events.BranchTopic(order.BranchID), eventType, order)

	branch, err := s.repo.GetBranch(ctx, order.BranchID)
	if err == nil && branch.OwnerID != "" {
		s.publishEvent(ctx, events.OwnerTopic(branch.OwnerID), eventType, order)
	}
}

func (s *Service) publishEvent(ctx context.Context, topic string, eventType events.Type, payload any) {
	if err := s.publisher.Publish(ctx, topic, eventType, payload); err != nil {
		if s.metrics != nil {
			s.metrics.RecordEventPublishFailure()
		}
		s.logger.WithError(err).WithFields(log.Fields{
			"topic": topic,
			"type":  eventType,
		}).Warn("event publish failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordEventPublished(string(eventType))
	}
}
