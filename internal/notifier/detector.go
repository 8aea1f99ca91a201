package notifier

import (
	"sync"

	"github.com/jogardn/office-meals/pkg/models"
)

// Observer is whose view of the order list is being watched. A requester
// sees the orders it placed; a fulfiller sees the orders assigned to it, or
// every order when UserID is empty.
type Observer struct {
	Role   models.Role
	UserID string
}

func (o Observer) Matches(order models.Order) bool {
	switch o.Role {
	case models.RoleRequester:
		return order.RequesterID == o.UserID
	case models.RoleFulfiller:
		return o.UserID == "" || order.AssignedRunnerID == o.UserID
	default:
		return true
	}
}

// Detector turns successive order snapshots into events. The first snapshot
// is a baseline and yields nothing.
type Detector struct {
	observer Observer

	mutex       sync.Mutex
	initialized bool
	previous    map[string]models.Order
	seen        map[string]struct{}
}

func NewDetector(observer Observer) *Detector {
	return &Detector{
		observer: observer,
		previous: make(map[string]models.Order),
		seen:     make(map[string]struct{}),
	}
}

// Observe compares orders with the previous snapshot. An order that dropped
// out of view and comes back is re-baselined without events.
func (d *Detector) Observe(orders []models.Order) []Event {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	current := make(map[string]models.Order, len(orders))
	var events []Event

	for _, o := range orders {
		if !d.observer.Matches(o) {
			continue
		}
		if _, dup := current[o.ID]; dup {
			continue
		}
		current[o.ID] = o

		if !d.initialized {
			continue
		}

		prev, inPrevious := d.previous[o.ID]
		if !inPrevious {
			if _, returning := d.seen[o.ID]; !returning {
				events = append(events, Event{Kind: KindNewOrder, Order: o})
			}
			continue
		}

		if prev.Status != o.Status {
			events = append(events, Event{Kind: KindStatusChanged, Order: o, From: prev.Status, To: o.Status})
		}
		if d.observer.Role == models.RoleRequester {
			events = append(events, lineEvents(prev, o)...)
		}
	}

	for id := range current {
		d.seen[id] = struct{}{}
	}
	d.previous = current
	d.initialized = true

	return events
}

// lineEvents reports lines that were available in prev and are unavailable
// in cur. Lines are matched by menu item, so edits that drop or reorder lines
// do not re-announce lines that were already unavailable. A line new to the
// order is never an event.
func lineEvents(prev, cur models.Order) []Event {
	before := make(map[string]models.OrderLine, len(prev.Items))
	for _, line := range prev.Items {
		if _, dup := before[lineKey(line)]; !dup {
			before[lineKey(line)] = line
		}
	}

	var events []Event
	for i, line := range cur.Items {
		old, ok := before[lineKey(line)]
		if !ok {
			continue
		}
		if old.Available() && !line.Available() {
			events = append(events, Event{Kind: KindLineUnavailable, Order: cur, LineIndex: i})
		}
	}
	return events
}

// lineKey falls back to the item name for lines saved without a menu id.
func lineKey(l models.OrderLine) string {
	if l.MenuID != "" {
		return "menu:" + l.MenuID
	}
	return "name:" + l.Name
}
