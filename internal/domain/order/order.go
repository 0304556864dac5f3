package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state reported by the order API.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Cancellable reports whether an order in this state may still be cancelled.
// Only delivered and cancelled orders are final.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// AddressType labels the delivery address the way the checkout form does.
type AddressType string

const (
	AddressHome   AddressType = "Nhà Riêng"
	AddressOffice AddressType = "Văn Phòng"
)

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

// PaymentCOD is cash on delivery, the only method offered.
const PaymentCOD PaymentMethod = "COD"

// ParsePaymentMethod maps raw input to a supported method. Empty input selects
// cash on delivery.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(PaymentCOD):
		return PaymentCOD, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedPayment, "%q", raw)
	}
}

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrSubmissionInProgress = errors.New("order submission already in progress")
	ErrUnsupportedPayment   = errors.New("unsupported payment method")
	ErrInvalidAddressType   = errors.New("invalid address type")
	ErrNotCancellable       = errors.New("order cannot be cancelled")
	// ErrUnauthorized is returned when the order API rejects the caller's
	// token. Clients should send the user back to login.
	ErrUnauthorized  = errors.New("unauthorized")
	ErrOrderNotFound = errors.New("order not found")
)

// MissingFieldsError lists required shipping fields left blank.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// RejectedError is returned when the order API refuses a payload.
type RejectedError struct {
	Message string
	// Fields maps payload field names to per-field messages, when provided.
	Fields map[string]string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "order rejected"
	}
	return fmt.Sprintf("order rejected: %s", e.Message)
}

// SubmitError wraps a failure of the order API while submitting a payload.
// Failures before submission, such as loading the cart, are not wrapped.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return "submit order: " + e.Err.Error() }

func (e *SubmitError) Unwrap() error { return e.Err }

// Shipping holds the customer and delivery details collected at checkout.
type Shipping struct {
	Name        string
	Phone       string
	City        string
	District    string
	Ward        string
	Address     string
	AddressType AddressType
	Note        string
}

// Validate checks the required fields and the address type.
func (s Shipping) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", s.Name},
		{"phone", s.Phone},
		{"city", s.City},
		{"district", s.District},
		{"ward", s.Ward},
		{"address", s.Address},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	switch s.AddressType {
	case "", AddressHome, AddressOffice:
		return nil
	default:
		return errors.Wrapf(ErrInvalidAddressType, "%q", s.AddressType)
	}
}

func (s Shipping) normalize() Shipping {
	s.Name = strings.TrimSpace(s.Name)
	s.Phone = strings.TrimSpace(s.Phone)
	s.City = strings.TrimSpace(s.City)
	s.District = strings.TrimSpace(s.District)
	s.Ward = strings.TrimSpace(s.Ward)
	s.Address = strings.TrimSpace(s.Address)
	s.Note = strings.TrimSpace(s.Note)
	if s.AddressType == "" {
		s.AddressType = AddressHome
	}
	return s
}

// PayloadItem is one line of a submitted order.
type PayloadItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Payload is the order handed to the order API.
type Payload struct {
	Items         []PayloadItem
	TotalPrice    decimal.Decimal
	PaymentMethod PaymentMethod
	Shipping      Shipping
}

// Item is a line of an order as reported by the order API.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order is an order as reported by the order API.
type Order struct {
	ID            string
	Status        Status
	Items         []Item
	TotalPrice    decimal.Decimal
	PaymentMethod PaymentMethod
	Shipping      Shipping
	CreatedAt     time.Time
}

// Submitter talks to the order API on behalf of an authenticated caller.
// token is the caller's raw bearer token.
type Submitter interface {
	Submit(ctx context.Context, token string, p Payload) (*Order, error)
	Get(ctx context.Context, token, id string) (*Order, error)
	ListMine(ctx context.Context, token string) ([]Order, error)
	Cancel(ctx context.Context, token, id string) (*Order, error)
}
