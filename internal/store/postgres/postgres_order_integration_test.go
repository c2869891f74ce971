package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"kasira/backend/internal/domain"
	"kasira/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("KASIRA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASIRA_TEST_DATABASE_URL to run postgres integration tests")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedIntegrationFixture(t *testing.T, s *Store, stamp int64, stock int) (branchID, productID string) {
	t.Helper()
	ctx := context.Background()
	branchID = fmt.Sprintf("it-branch-%d", stamp)
	productID = fmt.Sprintf("it-product-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE branch_id = $1`, branchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_adjustments WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	})

	if _, err := s.CreateBranch(ctx, domain.Branch{ID: branchID, Name: "IT Branch", OwnerID: "it-owner"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Name: "IT Kopi", Category: "Coffee",
		Price: 15000, CostPrice: 5000, Stock: stock, BranchID: branchID,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return branchID, productID
}

func TestConcurrentOrdersNeverOversellPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	branchID, productID := seedIntegrationFixture(t, s, time.Now().UnixNano(), 10)
	ctx := context.Background()

	const workers = 4
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateOrder(ctx, domain.Order{
				BranchID:      branchID,
				Items:         []domain.OrderItem{{ProductID: productID, Qty: 6}},
				PaymentMethod: domain.MethodCash,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 committed order, got %d", succeeded)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 4 {
		t.Fatalf("expected final stock 4, got %d", product.Stock)
	}
}

func TestOrderRoundTripPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	branchID, productID := seedIntegrationFixture(t, s, time.Now().UnixNano(), 10)
	ctx := context.Background()

	created, err := s.CreateOrder(ctx, domain.Order{
		BranchID:      branchID,
		Items:         []domain.OrderItem{{ProductID: productID, Qty: 2}},
		Discount:      1000,
		PaymentMethod: domain.MethodQRIS,
		PaymentDetails: domain.PaymentDetails{
			Reference: "it-ref-1",
			QRCode:    "00020101it",
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.Subtotal != 30000 || created.Total != 29000 {
		t.Fatalf("unexpected totals %d/%d", created.Subtotal, created.Total)
	}
	if created.Status != domain.PaymentPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	fetched, err := s.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(fetched.Items) != 1 || fetched.Items[0].PriceSnapshot != 15000 || fetched.Items[0].CostSnapshot != 5000 {
		t.Fatalf("snapshots lost on round trip: %+v", fetched.Items)
	}
	if fetched.PaymentDetails.Reference != "it-ref-1" {
		t.Fatalf("payment details lost: %+v", fetched.PaymentDetails)
	}
	if errs := fetched.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("persisted order violates invariants: %v", errs)
	}

	// Advance, then verify terminal stickiness through the conditional
	// update path.
	_, applied, err := s.AdvancePaymentStatus(ctx, created.ID, domain.PaymentSuccess, nil)
	if err != nil || !applied {
		t.Fatalf("advance: applied=%v err=%v", applied, err)
	}
	final, applied, err := s.AdvancePaymentStatus(ctx, created.ID, domain.PaymentFailed, nil)
	if err != nil || applied {
		t.Fatalf("late failure applied: applied=%v err=%v", applied, err)
	}
	if final.Status != domain.PaymentSuccess {
		t.Fatalf("terminal status regressed: %s", final.Status)
	}

	orders, err := s.ListOrders(ctx, store.OrderFilter{
		BranchIDs: []string{branchID},
		Status:    domain.PaymentSuccess,
	})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != created.ID {
		t.Fatalf("unexpected list result: %+v", orders)
	}
}

func TestStockAdjustmentFloorPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	_, productID := seedIntegrationFixture(t, s, time.Now().UnixNano(), 3)
	ctx := context.Background()

	if _, err := s.ApplyStockAdjustment(ctx, domain.StockAdjustment{ProductID: productID, Delta: -3, ActorID: "it-owner"}); err != nil {
		t.Fatalf("adjust to zero: %v", err)
	}
	if _, err := s.ApplyStockAdjustment(ctx, domain.StockAdjustment{ProductID: productID, Delta: -1, ActorID: "it-owner"}); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected floor rejection, got %v", err)
	}

	trail, err := s.ListStockAdjustments(ctx, productID, 10)
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("rejected adjustment leaked into trail: %d entries", len(trail))
	}
}

func TestIdempotentOrderReplayPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	stamp := time.Now().UnixNano()
	branchID, productID := seedIntegrationFixture(t, s, stamp, 10)
	ctx := context.Background()

	order := domain.Order{
		BranchID:       branchID,
		IdempotencyKey: fmt.Sprintf("it-idem-%d", stamp),
		Items:          []domain.OrderItem{{ProductID: productID, Qty: 4}},
		PaymentMethod:  domain.MethodCash,
	}

	first, err := s.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := s.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay committed a new order: %s vs %s", second.ID, first.ID)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 6 {
		t.Fatalf("replay double-sold stock: %d", product.Stock)
	}

	found, err := s.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
	if err != nil || found.ID != first.ID {
		t.Fatalf("lookup by key: %v %+v", err, found)
	}
}
