package lifecycle

import (
	"fmt"

	"github.com/jogardn/office-meals/pkg/models"
	"github.com/shopspring/decimal"
)

// forward is the linear fulfilment flow. PAID sits beside it: payment implies
// dispatch already happened, so the next step after PAID is HANDED_OFF.
var forward = map[models.OrderStatus]models.OrderStatus{
	models.StatusSubmitted:  models.StatusDispatched,
	models.StatusDispatched: models.StatusHandedOff,
	models.StatusHandedOff:  models.StatusDelivered,
	models.StatusPaid:       models.StatusHandedOff,
}

// Next returns the forward target of s. ok is false for terminal and
// unknown statuses.
func Next(s models.OrderStatus) (next models.OrderStatus, ok bool) {
	next, ok = forward[s]
	return next, ok
}

// CanTransition reports whether from -> to is allowed: the forward step,
// marking paid, or cancelling as unavailable. Nothing leaves a terminal status.
func CanTransition(from, to models.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if next, ok := forward[from]; ok && next == to {
		return true
	}
	switch to {
	case models.StatusPaid:
		return from != models.StatusPaid
	case models.StatusUnavailable:
		return true
	}
	return false
}

// Transition returns a copy of o moved to status to. Items and total are
// untouched.
func Transition(o models.Order, to models.OrderStatus) (models.Order, error) {
	if !CanTransition(o.Status, to) {
		return o, illegal(o.Status, to)
	}
	out := o.Clone()
	out.Status = to
	return out, nil
}

// Advance moves o one step along the forward flow.
func Advance(o models.Order) (models.Order, error) {
	next, ok := Next(o.Status)
	if !ok {
		return o, fmt.Errorf("%w: %s has no next status", ErrIllegalTransition, o.Status)
	}
	return Transition(o, next)
}

// MarkPaid records payment. Marking an already paid order again is a no-op.
func MarkPaid(o models.Order) (models.Order, error) {
	if o.Status == models.StatusPaid {
		return o.Clone(), nil
	}
	return Transition(o, models.StatusPaid)
}

// ToggleLine flips the availability of one line and recomputes the total.
// Only submitted orders can have their lines toggled.
func ToggleLine(o models.Order, index int) (models.Order, error) {
	if o.Status != models.StatusSubmitted {
		return o, fmt.Errorf("%w: lines are fixed once an order is %s", ErrNotEditable, o.Status)
	}
	if index < 0 || index >= len(o.Items) {
		return o, fmt.Errorf("%w: %d of %d", ErrLineOutOfRange, index, len(o.Items))
	}

	out := o.Clone()
	if out.Items[index].Available() {
		out.Items[index].Status = models.LineUnavailable
	} else {
		out.Items[index].Status = models.LineOK
	}
	out.TotalAmount = Total(out.Items)
	return out, nil
}

// Total sums price*quantity over the available lines.
func Total(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if !l.Available() {
			continue
		}
		total = total.Add(l.Subtotal())
	}
	return total
}

// Recompute returns a copy of o whose total is derived from its lines.
func Recompute(o models.Order) models.Order {
	out := o.Clone()
	out.TotalAmount = Total(out.Items)
	return out
}
