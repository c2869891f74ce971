package domain

// PaymentStatus is the payment lifecycle state of an order. Success, failed
// and expired are terminal: once reached, no further transition is permitted.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
	PaymentExpired PaymentStatus = "expired"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentExpired:
		return true
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed || s == PaymentExpired
}

// CanAdvanceTo reports whether the state machine permits a transition from s
// to target. Only pending → terminal moves are allowed.
func (s PaymentStatus) CanAdvanceTo(target PaymentStatus) bool {
	return s == PaymentPending && target.Terminal()
}

// PaymentMethod names how an order is paid. Cash settles immediately; every
// other method starts pending and is resolved by the gateway callback.
type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodQRIS      PaymentMethod = "qris"
	MethodVABCA     PaymentMethod = "va_bca"
	MethodVABNI     PaymentMethod = "va_bni"
	MethodVABRI     PaymentMethod = "va_bri"
	MethodVAMandiri PaymentMethod = "va_mandiri"
	MethodGoPay     PaymentMethod = "gopay"
	MethodShopeePay PaymentMethod = "shopeepay"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodQRIS, MethodVABCA, MethodVABNI, MethodVABRI,
		MethodVAMandiri, MethodGoPay, MethodShopeePay:
		return true
	}
	return false
}

func (m PaymentMethod) Cash() bool {
	return m == MethodCash
}

// InitialStatus is the status an order is created in for this method.
func (m PaymentMethod) InitialStatus() PaymentStatus {
	if m.Cash() {
		return PaymentSuccess
	}
	return PaymentPending
}

// PaymentDetails carries opaque channel data returned by the gateway:
// reference codes, virtual account numbers, QR payloads. The engine stores
// them verbatim and never interprets them.
type PaymentDetails struct {
	Reference string `json:"reference,omitempty"`
	VANumber  string `json:"va_number,omitempty"`
	Bank      string `json:"bank,omitempty"`
	QRCode    string `json:"qr_code,omitempty"`
}

// MapGatewayStatus translates a raw gateway transaction status into the
// engine's payment status. The second result is false for statuses the
// engine does not act on.
func MapGatewayStatus(raw string) (PaymentStatus, bool) {
	switch raw {
	case "settlement", "capture":
		return PaymentSuccess, true
	case "deny", "cancel", "failure":
		return PaymentFailed, true
	case "expire":
		return PaymentExpired, true
	case "pending":
		return PaymentPending, true
	}
	return "", false
}
