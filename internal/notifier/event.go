package notifier

import (
	"fmt"

	"github.com/jogardn/office-meals/pkg/models"
)

type Kind string

const (
	KindNewOrder        Kind = "new_order"
	KindStatusChanged   Kind = "status_changed"
	KindLineUnavailable Kind = "line_unavailable"
)

// Event is one observed transition between two snapshots.
type Event struct {
	Kind  Kind
	Order models.Order
	// From and To are set for status changes.
	From models.OrderStatus
	To   models.OrderStatus
	// LineIndex is set for line events.
	LineIndex int
}

func (e Event) Title() string {
	switch e.Kind {
	case KindNewOrder:
		return "New order"
	case KindStatusChanged:
		return "Order update"
	case KindLineUnavailable:
		return "Item unavailable"
	default:
		return string(e.Kind)
	}
}

func (e Event) Body() string {
	switch e.Kind {
	case KindNewOrder:
		n := len(e.Order.Items)
		if n == 1 {
			return fmt.Sprintf("%s ordered 1 item.", e.Order.RequesterName)
		}
		return fmt.Sprintf("%s ordered %d items.", e.Order.RequesterName, n)
	case KindStatusChanged:
		return fmt.Sprintf("Order #%s... is now: %s", e.Order.ShortID(), e.To.Label())
	case KindLineUnavailable:
		return fmt.Sprintf("Sorry, %s is unavailable.", e.line().Name)
	default:
		return ""
	}
}

func (e Event) line() models.OrderLine {
	if e.LineIndex < 0 || e.LineIndex >= len(e.Order.Items) {
		return models.OrderLine{}
	}
	return e.Order.Items[e.LineIndex]
}
