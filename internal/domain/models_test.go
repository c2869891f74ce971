package domain

import (
	"errors"
	"testing"
)

func TestValidateInvariantsAcceptsConsistentOrder(t *testing.T) {
	order := Order{
		BranchID: "b1",
		Items: []OrderItem{
			{ProductID: "p1", Qty: 2, PriceSnapshot: 15000, CostSnapshot: 5000},
			{ProductID: "p2", Qty: 1, PriceSnapshot: 28000, CostSnapshot: 12000},
		},
		Subtotal: 58000,
		Total:    58000,
	}

	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestValidateInvariantsDetectsMismatches(t *testing.T) {
	order := Order{
		BranchID: "b1",
		Items: []OrderItem{
			{ProductID: "p1", Qty: 2, PriceSnapshot: 15000},
		},
		Subtotal: 31000,
		Discount: 1000,
		Total:    58000,
	}

	errs := order.ValidateInvariants()
	if len(errs) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(errs), errs)
	}

	hasSubtotal, hasTotal := false, false
	for _, err := range errs {
		if errors.Is(err, ErrSubtotalMismatch) {
			hasSubtotal = true
		}
		if errors.Is(err, ErrTotalMismatch) {
			hasTotal = true
		}
	}
	if !hasSubtotal || !hasTotal {
		t.Fatalf("expected subtotal and total mismatches, got %v", errs)
	}
}

func TestValidateInvariantsRejectsEmptyAndNegative(t *testing.T) {
	order := Order{Discount: -1}
	errs := order.ValidateInvariants()

	for _, want := range []error{ErrBranchRequired, ErrItemsRequired, ErrNegativeAmount} {
		found := false
		for _, err := range errs {
			if errors.Is(err, want) {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %v among %v", want, errs)
		}
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{PaymentPending, PaymentSuccess, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPending, PaymentExpired, true},
		{PaymentPending, PaymentPending, false},
		{PaymentSuccess, PaymentFailed, false},
		{PaymentFailed, PaymentSuccess, false},
		{PaymentExpired, PaymentPending, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestPaymentMethodInitialStatus(t *testing.T) {
	if got := MethodCash.InitialStatus(); got != PaymentSuccess {
		t.Fatalf("cash should settle immediately, got %s", got)
	}
	for _, method := range []PaymentMethod{MethodQRIS, MethodVABCA, MethodGoPay, MethodShopeePay} {
		if got := method.InitialStatus(); got != PaymentPending {
			t.Fatalf("%s should start pending, got %s", method, got)
		}
	}
}

func TestMapGatewayStatus(t *testing.T) {
	cases := []struct {
		raw    string
		status PaymentStatus
		ok     bool
	}{
		{"settlement", PaymentSuccess, true},
		{"capture", PaymentSuccess, true},
		{"deny", PaymentFailed, true},
		{"cancel", PaymentFailed, true},
		{"failure", PaymentFailed, true},
		{"expire", PaymentExpired, true},
		{"pending", PaymentPending, true},
		{"refund", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		status, ok := MapGatewayStatus(tc.raw)
		if ok != tc.ok || status != tc.status {
			t.Errorf("MapGatewayStatus(%q) = (%s, %v), want (%s, %v)", tc.raw, status, ok, tc.status, tc.ok)
		}
	}
}

func TestInsufficientStockErrorUnwraps(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: "p1"}
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected errors.Is to match ErrInsufficientStock")
	}
	if err.Error() != "insufficient stock for product p1" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestReportStatsAdd(t *testing.T) {
	a := ReportStats{Revenue: 58000, COGS: 20000, GrossProfit: 38000, NetProfit: 33000, TotalDiscount: 5000, OrderCount: 1}
	b := ReportStats{Revenue: 24000, COGS: 9000, GrossProfit: 15000, NetProfit: 15000, OrderCount: 1}

	a.Add(b)
	if a.Revenue != 82000 || a.COGS != 29000 || a.GrossProfit != 53000 || a.NetProfit != 48000 || a.OrderCount != 2 {
		t.Fatalf("unexpected aggregate: %+v", a)
	}
}
