package services

import (
	"fmt"

	"github.com/emberline/checkout/internal/domain"
)

// DepositUnavailableNotice is surfaced to the customer when a deposit
// preference falls back to full payment. It never blocks checkout.
const DepositUnavailableNotice = "Deposit payment is unavailable for this item; the full amount applies."

// PaymentResolution is the outcome of resolving a payment type preference
// against an item's pricing.
type PaymentResolution struct {
	PaymentType domain.PaymentType
	Payable     int64
	ForcedFull  bool
	Notice      string
}

// ResolvePaymentType computes the payable amount for a pre-order item. A
// deposit preference falls back to full payment when no positive per-unit
// deposit is configured, attaching a non-blocking notice. A non-positive
// payable under full payment is a pricing failure.
func ResolvePaymentType(preference domain.PaymentType, unitPrice int64, quantity int, depositPerUnit *int64) (PaymentResolution, error) {
	if quantity < 1 {
		return PaymentResolution{}, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	switch preference {
	case domain.PaymentTypeDeposit:
		if depositPerUnit != nil && *depositPerUnit > 0 {
			return PaymentResolution{
				PaymentType: domain.PaymentTypeDeposit,
				Payable:     *depositPerUnit * int64(quantity),
			}, nil
		}
		resolution, err := resolveFull(unitPrice, quantity)
		if err != nil {
			return PaymentResolution{}, err
		}
		resolution.ForcedFull = true
		resolution.Notice = DepositUnavailableNotice
		return resolution, nil
	case domain.PaymentTypeFull:
		return resolveFull(unitPrice, quantity)
	default:
		return PaymentResolution{}, fmt.Errorf("%w: unknown payment type %q", ErrValidation, preference)
	}
}

func resolveFull(unitPrice int64, quantity int) (PaymentResolution, error) {
	payable := unitPrice * int64(quantity)
	if payable <= 0 {
		return PaymentResolution{}, fmt.Errorf("%w: payable amount must be positive, got %d", ErrPricing, payable)
	}
	return PaymentResolution{
		PaymentType: domain.PaymentTypeFull,
		Payable:     payable,
	}, nil
}
