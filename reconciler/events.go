package reconciler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/planora/booking-service/utils"
)

// Gateway webhook event names this service reconciles. Anything else is
// acknowledged and ignored so the gateway does not retry-storm us over
// event types we never handle.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
	EventRefundCreated   = "refund.created"
)

// Event is the tagged union of webhook payloads. Exactly one of the variant
// pointers is set, matching Kind; unknown event types produce Kind with all
// variants nil.
type Event struct {
	Kind      string
	Capture   *CaptureEvent
	Failure   *FailureEvent
	OrderPaid *OrderPaidEvent
	Refund    *RefundEvent
}

// CaptureEvent is a settled payment. Amount is in minor currency units, as
// the gateway reports it.
type CaptureEvent struct {
	PaymentID  string
	OrderID    string
	Amount     int64
	Method     string
	CapturedAt time.Time
}

// FailureEvent is a failed payment attempt.
type FailureEvent struct {
	PaymentID string
	OrderID   string
	Reason    string
}

// OrderPaidEvent signals an order settled in full; used as a fallback
// correlation when the capture event is missing or arrives without a
// payment entity we know.
type OrderPaidEvent struct {
	OrderID   string
	PaymentID string
	Amount    int64
}

// RefundEvent is a gateway-issued refund. Amount is in minor currency
// units.
type RefundEvent struct {
	RefundID  string
	PaymentID string
	Amount    int64
	Status    string
}

// envelope mirrors the gateway wire shape:
// {"event": "...", "payload": {"payment"|"order"|"refund": {"entity": {...}}}}
type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
		Refund *struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Method           string `json:"method"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

type orderEntity struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Status     string `json:"status"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// ParseEvent decodes a raw webhook body into the event union, validating
// the fields each variant needs before anything downstream touches them.
// An unrecognized event name is not an error: the caller acks it.
func ParseEvent(raw []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body: %v", utils.ErrValidation, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: webhook body missing event type", utils.ErrValidation)
	}

	evt := &Event{Kind: env.Event}

	switch env.Event {
	case EventPaymentCaptured:
		if env.Payload.Payment == nil {
			return nil, fmt.Errorf("%w: %s without payment entity", utils.ErrValidation, env.Event)
		}
		p := env.Payload.Payment.Entity
		if p.ID == "" {
			return nil, fmt.Errorf("%w: %s without payment id", utils.ErrValidation, env.Event)
		}
		if p.Amount <= 0 {
			return nil, fmt.Errorf("%w: %s with non-positive amount", utils.ErrValidation, env.Event)
		}
		capturedAt := time.Now()
		if p.CreatedAt > 0 {
			capturedAt = time.Unix(p.CreatedAt, 0)
		}
		evt.Capture = &CaptureEvent{
			PaymentID:  p.ID,
			OrderID:    p.OrderID,
			Amount:     p.Amount,
			Method:     p.Method,
			CapturedAt: capturedAt,
		}

	case EventPaymentFailed:
		if env.Payload.Payment == nil {
			return nil, fmt.Errorf("%w: %s without payment entity", utils.ErrValidation, env.Event)
		}
		p := env.Payload.Payment.Entity
		if p.ID == "" {
			return nil, fmt.Errorf("%w: %s without payment id", utils.ErrValidation, env.Event)
		}
		evt.Failure = &FailureEvent{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			Reason:    p.ErrorDescription,
		}

	case EventOrderPaid:
		if env.Payload.Order == nil {
			return nil, fmt.Errorf("%w: %s without order entity", utils.ErrValidation, env.Event)
		}
		o := env.Payload.Order.Entity
		if o.ID == "" {
			return nil, fmt.Errorf("%w: %s without order id", utils.ErrValidation, env.Event)
		}
		op := &OrderPaidEvent{OrderID: o.ID, Amount: o.AmountPaid}
		if env.Payload.Payment != nil {
			op.PaymentID = env.Payload.Payment.Entity.ID
		}
		evt.OrderPaid = op

	case EventRefundCreated:
		if env.Payload.Refund == nil {
			return nil, fmt.Errorf("%w: %s without refund entity", utils.ErrValidation, env.Event)
		}
		r := env.Payload.Refund.Entity
		if r.ID == "" || r.PaymentID == "" {
			return nil, fmt.Errorf("%w: %s missing refund or payment id", utils.ErrValidation, env.Event)
		}
		evt.Refund = &RefundEvent{
			RefundID:  r.ID,
			PaymentID: r.PaymentID,
			Amount:    r.Amount,
			Status:    r.Status,
		}
	}

	return evt, nil
}
