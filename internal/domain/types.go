package domain

import (
	"strings"
	"time"
)

// PreOrderLinePrefix marks cart line ids that represent pre-order reservations.
// Ordinary catalog lines never carry this prefix.
const PreOrderLinePrefix = "preorder-"

// PaymentType selects how much of a pre-order is payable up front.
type PaymentType string

const (
	// PaymentTypeDeposit charges only the per-unit deposit now.
	PaymentTypeDeposit PaymentType = "deposit"
	// PaymentTypeFull charges the complete unit price now.
	PaymentTypeFull PaymentType = "full"
)

// FulfillmentMethod enumerates how a settled order reaches the customer.
type FulfillmentMethod string

const (
	// FulfillmentDelivery ships to the supplied address.
	FulfillmentDelivery FulfillmentMethod = "delivery"
	// FulfillmentPickup is collected from a named pickup location.
	FulfillmentPickup FulfillmentMethod = "pickup"
)

// SessionStatus tracks a payment session from creation to its terminal state.
type SessionStatus string

const (
	// SessionPending means the session exists but the gateway has not reported back.
	SessionPending SessionStatus = "pending"
	// SessionVerifying means a success callback fired and server-side verification is in flight.
	SessionVerifying SessionStatus = "verifying"
	// SessionConfirmed means the backend confirmed the charge and materialised a record.
	SessionConfirmed SessionStatus = "confirmed"
	// SessionFailed means verification failed; the attempt is terminal.
	SessionFailed SessionStatus = "failed"
)

// IntentKind distinguishes the two settlement paths.
type IntentKind string

const (
	// IntentOrder settles an ordinary cart into an order.
	IntentOrder IntentKind = "order"
	// IntentPreOrder settles a single pre-order line, deposit or full.
	IntentPreOrder IntentKind = "preorder"
)

// PreOrderMeta carries the pricing facts attached to a pre-order cart line.
// DepositPerUnit is nil when the catalog offers no deposit option.
type PreOrderMeta struct {
	PreOrderID     string
	UnitPrice      int64
	DepositPerUnit *int64
}

// CartLine is a single entry in the cart. UnitPrice is in major currency units.
type CartLine struct {
	ID        string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageRef  string
	Category  string
	PreOrder  *PreOrderMeta
	AddedAt   time.Time
}

// IsPreOrder reports whether the line follows the reserved pre-order id convention.
func (l CartLine) IsPreOrder() bool {
	return strings.HasPrefix(l.ID, PreOrderLinePrefix)
}

// Subtotal returns price times quantity for the line.
func (l CartLine) Subtotal() int64 {
	if l.Quantity <= 0 {
		return 0
	}
	return l.UnitPrice * int64(l.Quantity)
}

// Contact identifies the payer across both settlement paths.
type Contact struct {
	FullName string
	Email    string
	Phone    string
}

// Fulfillment captures the delivery-or-pickup choice and its required fields.
type Fulfillment struct {
	Method         FulfillmentMethod
	Address        string
	City           string
	State          string
	PickupLocation string
}

// OrderItem is a line item reference sent to the backend when settling.
type OrderItem struct {
	ProductID string
	Quantity  int
}

// OrderIntent describes an ordinary-cart checkout before any record exists.
type OrderIntent struct {
	Contact     Contact
	Fulfillment Fulfillment
	Items       []OrderItem
}

// PreOrderIntent describes a pre-order checkout before any record exists.
type PreOrderIntent struct {
	PreOrderID  string
	Quantity    int
	PaymentType PaymentType
	Contact     Contact
	Fulfillment Fulfillment
}

// RemainingBalanceIntent re-enters the pipeline to pay off a deposit-paid pre-order.
type RemainingBalanceIntent struct {
	PreOrderID string
}

// PaymentSession is one payment attempt against the gateway. AmountMinorUnits
// is the gateway-facing amount (major units x 100) and is always > 0.
type PaymentSession struct {
	Reference        string
	AmountMinorUnits int64
	Currency         string
	Status           SessionStatus
	Intent           IntentKind
	IntentKey        string
	LineIDs          []string
	PayerEmail       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SettlementResult reports the outcome of verify-and-settle for one reference.
type SettlementResult struct {
	Success         bool
	CanonicalNumber string
	Message         string
}

// SettlementView is the confirmation-page projection of a settled record.
type SettlementView struct {
	Kind            IntentKind
	CanonicalNumber string
	PaymentStatus   string
	AmountPaid      int64
	RemainingAmount int64
	Currency        string
	CanPayRemaining bool
}

// PayTokenClaims is the decoded payload of a deep-link remaining-balance token.
type PayTokenClaims struct {
	PreOrderID string
	AmountDue  int64
}
