package lifecycle

import (
	"sort"

	"github.com/jogardn/office-meals/pkg/models"
	"github.com/shopspring/decimal"
)

// ActiveStatuses are the statuses counted on a fulfiller's board, in display order.
var ActiveStatuses = []models.OrderStatus{
	models.StatusSubmitted,
	models.StatusDispatched,
	models.StatusPaid,
	models.StatusHandedOff,
}

// Partition splits orders into active and history, keeping their order.
func Partition(orders []models.Order) (active, history []models.Order) {
	active = []models.Order{}
	history = []models.Order{}
	for _, o := range orders {
		if o.Status.IsTerminal() {
			history = append(history, o)
		} else {
			active = append(active, o)
		}
	}
	return active, history
}

// Revenue sums the totals of delivered orders. Cancelled orders never count.
func Revenue(orders []models.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range orders {
		if o.Status != models.StatusDelivered {
			continue
		}
		sum = sum.Add(o.TotalAmount)
	}
	return sum
}

// StatusCounts counts active orders per status. Every active status is
// present, zero or not.
func StatusCounts(orders []models.Order) map[models.OrderStatus]int {
	counts := make(map[models.OrderStatus]int, len(ActiveStatuses))
	for _, s := range ActiveStatuses {
		counts[s] = 0
	}
	for _, o := range orders {
		if o.Status.IsTerminal() {
			continue
		}
		counts[o.Status]++
	}
	return counts
}

// SortNewestFirst sorts in place by creation timestamp, newest first.
func SortNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Timestamp > orders[j].Timestamp
	})
}

// FilterByRequester keeps the orders placed by requesterID.
func FilterByRequester(orders []models.Order, requesterID string) []models.Order {
	out := []models.Order{}
	for _, o := range orders {
		if o.RequesterID == requesterID {
			out = append(out, o)
		}
	}
	return out
}

// FilterByRunner keeps the orders assigned to runnerID.
func FilterByRunner(orders []models.Order, runnerID string) []models.Order {
	out := []models.Order{}
	for _, o := range orders {
		if o.AssignedRunnerID == runnerID {
			out = append(out, o)
		}
	}
	return out
}
