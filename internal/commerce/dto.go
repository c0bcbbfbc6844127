package commerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OrderSessionRequest is the payload for creating an order payment session.
type OrderSessionRequest struct {
	FullName       string             `json:"full_name"`
	Email          string             `json:"email"`
	Phone          string             `json:"phone"`
	Method         string             `json:"delivery_method"`
	Address        string             `json:"address,omitempty"`
	City           string             `json:"city,omitempty"`
	State          string             `json:"state,omitempty"`
	PickupLocation string             `json:"pickup_location,omitempty"`
	Items          []OrderItemRequest `json:"items"`
	Amount         int64              `json:"amount"`
	Currency       string             `json:"currency"`
}

// OrderItemRequest is a single product line in an order session payload.
type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PreOrderSessionRequest is the payload for creating a pre-order payment session.
type PreOrderSessionRequest struct {
	PreOrderID     string `json:"pre_order_id"`
	Quantity       int    `json:"quantity"`
	PaymentType    string `json:"payment_type"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Method         string `json:"delivery_method"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	PickupLocation string `json:"pickup_location,omitempty"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// Session is the normalized result of a session creation call.
type Session struct {
	Reference string
	Amount    int64
	Currency  string
}

// OrderVerification is the normalized result of an order verify call.
type OrderVerification struct {
	OrderNumber   string
	PaymentStatus string
	AmountPaid    int64
}

// PreOrderVerification is the normalized result of a pre-order verify call.
type PreOrderVerification struct {
	PreOrderNumber  string
	PaymentStatus   string
	AmountPaid      int64
	RemainingAmount int64
}

// PayTokenDetails is the normalized result of a pay-token exchange.
type PayTokenDetails struct {
	PreOrderID     string
	PreOrderNumber string
	AmountDue      int64
	Currency       string
}

// OrderDetails is the normalized result of an order lookup by number.
type OrderDetails struct {
	OrderNumber   string
	PaymentStatus string
	AmountPaid    int64
	Currency      string
}

// PreOrderDetails is the normalized result of a pre-order lookup by number.
type PreOrderDetails struct {
	PreOrderID      string
	PreOrderNumber  string
	PaymentStatus   string
	AmountPaid      int64
	RemainingAmount int64
	Currency        string
}

// envelope is the loose wrapper the backend wraps every response in. Some
// deployments report success via "success", others via "status"; the payload
// sometimes nests an extra "data" level.
type envelope struct {
	Success *bool           `json:"success"`
	Status  *bool           `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) ok() bool {
	if e.Success != nil {
		return *e.Success
	}
	if e.Status != nil {
		return *e.Status
	}
	return false
}

// payload unwraps the data object, descending through a nested "data" level
// when present.
func (e envelope) payload() (map[string]json.RawMessage, error) {
	fields, err := objectFields(e.Data)
	if err != nil {
		return nil, err
	}
	if inner, ok := fields["data"]; ok {
		innerFields, err := objectFields(inner)
		if err == nil && len(innerFields) > 0 {
			return innerFields, nil
		}
	}
	return fields, nil
}

func objectFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("commerce: unexpected response shape: %w", err)
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, names ...string) string {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// intField reads a number that some backend versions serialize as a string.
func intField(fields map[string]json.RawMessage, names ...string) (int64, bool) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, true
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return int64(f), true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, perr := strconv.ParseInt(strings.TrimSpace(s), 10, 64); perr == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

func nestedFields(fields map[string]json.RawMessage, name string) map[string]json.RawMessage {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	nested, err := objectFields(raw)
	if err != nil {
		return nil
	}
	return nested
}

func normalizeSession(data json.RawMessage) (Session, error) {
	fields, err := (envelope{Data: data}).payload()
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Reference: stringField(fields, "reference", "payment_reference", "access_code"),
		Currency:  stringField(fields, "currency"),
	}
	if amount, ok := intField(fields, "amount", "total_amount", "amount_due"); ok {
		session.Amount = amount
	}
	if session.Reference == "" {
		return Session{}, fmt.Errorf("commerce: session response missing reference")
	}
	return session, nil
}

func normalizeOrderVerification(data json.RawMessage) (OrderVerification, error) {
	fields, err := (envelope{Data: data}).payload()
	if err != nil {
		return OrderVerification{}, err
	}
	if order := nestedFields(fields, "order"); order != nil {
		fields = order
	}
	verification := OrderVerification{
		OrderNumber:   stringField(fields, "order_number", "orderNumber", "number"),
		PaymentStatus: stringField(fields, "payment_status", "paymentStatus"),
	}
	if paid, ok := intField(fields, "amount_paid", "amountPaid"); ok {
		verification.AmountPaid = paid
	}
	if verification.OrderNumber == "" {
		return OrderVerification{}, fmt.Errorf("commerce: verify response missing order number")
	}
	return verification, nil
}

func normalizePreOrderVerification(data json.RawMessage) (PreOrderVerification, error) {
	fields, err := (envelope{Data: data}).payload()
	if err != nil {
		return PreOrderVerification{}, err
	}
	if preOrder := nestedFields(fields, "pre_order"); preOrder != nil {
		fields = preOrder
	}
	verification := PreOrderVerification{
		PreOrderNumber: stringField(fields, "pre_order_number", "preOrderNumber", "number"),
		PaymentStatus:  stringField(fields, "payment_status", "paymentStatus"),
	}
	if paid, ok := intField(fields, "amount_paid", "amountPaid"); ok {
		verification.AmountPaid = paid
	}
	if remaining, ok := intField(fields, "remaining_amount", "remainingAmount", "balance"); ok {
		verification.RemainingAmount = remaining
	}
	if verification.PreOrderNumber == "" {
		return PreOrderVerification{}, fmt.Errorf("commerce: verify response missing pre-order number")
	}
	return verification, nil
}

func normalizePayToken(data json.RawMessage) (PayTokenDetails, error) {
	fields, err := (envelope{Data: data}).payload()
	if err != nil {
		return PayTokenDetails{}, err
	}
	details := PayTokenDetails{
		PreOrderID:     stringField(fields, "pre_order_id", "preOrderId"),
		PreOrderNumber: stringField(fields, "pre_order_number", "preOrderNumber"),
		Currency:       stringField(fields, "currency"),
	}
	if due, ok := intField(fields, "amount_due", "amountDue", "remaining_amount"); ok {
		details.AmountDue = due
	}
	if details.PreOrderID == "" {
		return PayTokenDetails{}, fmt.Errorf("commerce: pay-token response missing pre-order id")
	}
	return details, nil
}

func normalizeOrderDetails(data json.RawMessage) (OrderDetails, error) {
	fields, err := (envelope{Data: data}).payload()
	if err != nil {
		return OrderDetails{}, err
	}
	if order := nestedFields(fields, "order"); order != nil {
		fields = order
	}
	details := OrderDetails{
		OrderNumber:   stringField(fields, "order_number", "orderNumber", "number"),
		PaymentStatus: stringField(fields, "payment_status", "paymentStatus"),
		Currency:      stringField(fields, "currency"),
	}
	if paid, ok := intField(fields, "amount_paid", "amountPaid"); ok {
		details.AmountPaid = paid
	}
	if details.OrderNumber == "" {
		return OrderDetails{}, fmt.Errorf("commerce: order response missing order number")
	}
	return details, nil
}

func normalizePreOrderDetails(data json.RawMessage) (PreOrderDetails, error) {
	fields, err := (envelope{Data: data}).payload()
	if err != nil {
		return PreOrderDetails{}, err
	}
	if preOrder := nestedFields(fields, "pre_order"); preOrder != nil {
		fields = preOrder
	}
	details := PreOrderDetails{
		PreOrderID:     stringField(fields, "id", "pre_order_id", "preOrderId"),
		PreOrderNumber: stringField(fields, "pre_order_number", "preOrderNumber", "number"),
		PaymentStatus:  stringField(fields, "payment_status", "paymentStatus"),
		Currency:       stringField(fields, "currency"),
	}
	if paid, ok := intField(fields, "amount_paid", "amountPaid"); ok {
		details.AmountPaid = paid
	}
	if remaining, ok := intField(fields, "remaining_amount", "remainingAmount", "balance"); ok {
		details.RemainingAmount = remaining
	}
	if details.PreOrderNumber == "" {
		return PreOrderDetails{}, fmt.Errorf("commerce: pre-order response missing pre-order number")
	}
	return details, nil
}
