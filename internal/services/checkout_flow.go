package services

import (
	"fmt"

	"github.com/emberline/checkout/internal/domain"
)

// FlowState enumerates the checkout progression states.
type FlowState string

const (
	StateCartReview          FlowState = "cart_review"
	StateFulfillmentSelected FlowState = "fulfillment_selected"
	StatePaymentTypeSelected FlowState = "payment_type_selected"
	StateSessionPending      FlowState = "session_pending"
	StateGatewayOpen         FlowState = "gateway_open"
	StateVerifying           FlowState = "verifying"
	StateSettled             FlowState = "settled"
	StateFailed              FlowState = "failed"
	StateAbandoned           FlowState = "abandoned"
)

// FlowEvent enumerates the inputs that move the checkout forward or back.
type FlowEvent string

const (
	EventSelectFulfillment FlowEvent = "select_fulfillment"
	EventSelectPaymentType FlowEvent = "select_payment_type"
	EventInitSession       FlowEvent = "init_session"
	EventSessionReady      FlowEvent = "session_ready"
	EventSessionFailed     FlowEvent = "session_failed"
	EventGatewaySuccess    FlowEvent = "gateway_success"
	EventGatewayClose      FlowEvent = "gateway_close"
	EventVerifySucceeded   FlowEvent = "verify_succeeded"
	EventVerifyFailed      FlowEvent = "verify_failed"
	EventResumePayment     FlowEvent = "resume_payment"
	EventReturnToCart      FlowEvent = "return_to_cart"
)

// ErrInvalidTransition wraps transitions the flow does not permit.
type ErrInvalidTransition struct {
	State FlowState
	Event FlowEvent
}

// Error implements the error interface.
func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("checkout flow: event %q not allowed in state %q", e.Event, e.State)
}

var flowTransitions = map[FlowState]map[FlowEvent]FlowState{
	StateCartReview: {
		EventSelectFulfillment: StateFulfillmentSelected,
	},
	// Ordinary orders initiate a session straight from fulfillment;
	// payment-type selection exists only on the pre-order path.
	StateFulfillmentSelected: {
		EventSelectPaymentType: StatePaymentTypeSelected,
		EventInitSession:       StateSessionPending,
		EventReturnToCart:      StateCartReview,
	},
	StatePaymentTypeSelected: {
		EventInitSession:       StateSessionPending,
		EventSelectPaymentType: StatePaymentTypeSelected,
		EventReturnToCart:      StateCartReview,
	},
	StateSessionPending: {
		EventSessionReady:  StateGatewayOpen,
		EventSessionFailed: StatePaymentTypeSelected,
	},
	StateGatewayOpen: {
		EventGatewaySuccess: StateVerifying,
		EventGatewayClose:   StateAbandoned,
	},
	StateVerifying: {
		EventVerifySucceeded: StateSettled,
		EventVerifyFailed:    StateFailed,
	},
	// An abandoned attempt is recoverable; the cart is untouched.
	StateAbandoned: {
		EventResumePayment: StatePaymentTypeSelected,
		EventReturnToCart:  StateCartReview,
	},
	// Settled and failed are terminal for the attempt.
	StateSettled: {},
	StateFailed:  {},
}

// Transition applies an event to a state and returns the next state. It is a
// pure function; callers own any side effects.
func Transition(state FlowState, event FlowEvent) (FlowState, error) {
	events, ok := flowTransitions[state]
	if !ok {
		return state, &ErrInvalidTransition{State: state, Event: event}
	}
	next, ok := events[event]
	if !ok {
		return state, &ErrInvalidTransition{State: state, Event: event}
	}
	return next, nil
}

// Terminal reports whether the state ends the current payment attempt.
func Terminal(state FlowState) bool {
	return state == StateSettled || state == StateFailed
}

// sessionFlowStates maps journal statuses onto the flow states a recorded
// session can occupy.
var sessionFlowStates = map[domain.SessionStatus]FlowState{
	domain.SessionPending:   StateGatewayOpen,
	domain.SessionVerifying: StateVerifying,
	domain.SessionConfirmed: StateSettled,
	domain.SessionFailed:    StateFailed,
}

// sessionFlowEvents maps a target status onto the event that reaches it.
var sessionFlowEvents = map[domain.SessionStatus]FlowEvent{
	domain.SessionVerifying: EventGatewaySuccess,
	domain.SessionConfirmed: EventVerifySucceeded,
	domain.SessionFailed:    EventVerifyFailed,
}

// StatusTransition validates a session status change against the checkout
// flow table. Failed is terminal for the attempt; a failed session may only
// re-enter verifying because a deliberate retry starts a new attempt.
func StatusTransition(from, to domain.SessionStatus) error {
	if from == to {
		return nil
	}
	if from == domain.SessionFailed && to == domain.SessionVerifying {
		return nil
	}
	state, ok := sessionFlowStates[from]
	if !ok {
		return fmt.Errorf("checkout flow: unknown session status %q", from)
	}
	event, ok := sessionFlowEvents[to]
	if !ok {
		return fmt.Errorf("checkout flow: no event reaches session status %q", to)
	}
	next, err := Transition(state, event)
	if err != nil {
		return err
	}
	if next != sessionFlowStates[to] {
		return &ErrInvalidTransition{State: state, Event: event}
	}
	return nil
}
