package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"kasira/backend/internal/domain"
	"kasira/backend/internal/xid"
)

// PaymentGateway reserves a payment channel for a non-cash order before it is
// written to the ledger. A gateway failure aborts checkout entirely: nothing
// is persisted and no stock moves.
type PaymentGateway interface {
	Charge(ctx context.Context, order domain.OrderDraft) (domain.PaymentDetails, error)
}

// StaticGateway fabricates channel details locally. It stands in for a real
// acquirer in dev mode and in tests.
type StaticGateway struct{}

func (StaticGateway) Charge(_ context.Context, order domain.OrderDraft) (domain.PaymentDetails, error) {
	details := domain.PaymentDetails{Reference: xid.New("pay")}

	switch {
	case order.PaymentMethod == domain.MethodQRIS:
		details.QRCode = fmt.Sprintf("00020101kasira%s5802ID", details.Reference)
	case strings.HasPrefix(string(order.PaymentMethod), "va_"):
		details.Bank = strings.TrimPrefix(string(order.PaymentMethod), "va_")
		details.VANumber = fmt.Sprintf("88%012d", rand.Int63n(1_000_000_000_000))
	case order.PaymentMethod == domain.MethodGoPay || order.PaymentMethod == domain.MethodShopeePay:
		details.QRCode = fmt.Sprintf("wallet://%s/%s", order.PaymentMethod, details.Reference)
	}

	return details, nil
}
