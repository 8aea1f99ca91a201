package lifecycle

import (
	"fmt"
	"time"

	"github.com/jogardn/office-meals/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	defaultUnit       = "-"
	defaultRunnerName = "Unknown"
)

// Cart collects lines before an order is placed. Prices are copied from the
// menu item when it is added and never re-read afterwards.
type Cart struct {
	lines []models.OrderLine
}

func NewCart() *Cart {
	return &Cart{}
}

// CartFromOrder loads a submitted order's lines for editing.
func CartFromOrder(o models.Order) *Cart {
	c := &Cart{lines: make([]models.OrderLine, len(o.Items))}
	copy(c.lines, o.Items)
	return c
}

// Add puts one unit of item in the cart, bumping the quantity if the item is
// already there.
func (c *Cart) Add(item models.MenuItem) {
	for i := range c.lines {
		if c.lines[i].MenuID == item.ID {
			c.lines[i].Quantity++
			return
		}
	}
	c.lines = append(c.lines, models.OrderLine{
		MenuID:   item.ID,
		Name:     item.Name,
		Price:    item.Price,
		Quantity: 1,
		ShopID:   item.ShopID,
		Status:   models.LineOK,
	})
}

// Adjust changes a line's quantity by delta. A line that reaches zero is removed.
func (c *Cart) Adjust(menuID string, delta int) {
	kept := c.lines[:0]
	for _, l := range c.lines {
		if l.MenuID == menuID {
			l.Quantity += delta
			if l.Quantity <= 0 {
				continue
			}
		}
		kept = append(kept, l)
	}
	c.lines = kept
}

func (c *Cart) SetNote(menuID, note string) {
	for i := range c.lines {
		if c.lines[i].MenuID == menuID {
			c.lines[i].Notes = note
		}
	}
}

// Lines returns a copy of the cart's lines in insertion order.
func (c *Cart) Lines() []models.OrderLine {
	out := make([]models.OrderLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Total() decimal.Decimal {
	return Total(c.lines)
}

func (c *Cart) Clear() {
	c.lines = nil
}

// Placement carries who is ordering and who should fulfil the order.
type Placement struct {
	Requester models.User
	RunnerID  string
	// Runners resolves RunnerID to a display name.
	Runners []models.User
	Notes   string
}

func (p Placement) validate(c *Cart) error {
	if c == nil || c.Len() == 0 {
		return &ValidationError{Field: "items", Reason: "cart is empty"}
	}
	if p.RunnerID == "" {
		return &ValidationError{Field: "assignedRunnerId", Reason: "no runner selected"}
	}
	if p.Requester.ID == "" {
		return &ValidationError{Field: "requesterId", Reason: "no requester"}
	}
	return nil
}

func (p Placement) runnerName() string {
	for _, r := range p.Runners {
		if r.ID == p.RunnerID && r.Name != "" {
			return r.Name
		}
	}
	return defaultRunnerName
}

// Place builds a new, not yet persisted order from the cart.
func Place(c *Cart, p Placement, now time.Time) (models.Order, error) {
	if err := p.validate(c); err != nil {
		return models.Order{}, err
	}

	unit := p.Requester.Unit
	if unit == "" {
		unit = defaultUnit
	}

	o := models.Order{
		RequesterID:        p.Requester.ID,
		RequesterName:      p.Requester.Name,
		RequesterUnit:      unit,
		Items:              c.Lines(),
		Status:             models.StatusSubmitted,
		Timestamp:          now.UnixMilli(),
		Notes:              p.Notes,
		AssignedRunnerID:   p.RunnerID,
		AssignedRunnerName: p.runnerName(),
	}
	o.TotalAmount = Total(o.Items)
	return o, nil
}

// Resubmit replaces the contents of a submitted order. The id is kept, the
// status resets to submitted and the timestamp moves to now.
func Resubmit(existing models.Order, c *Cart, p Placement, now time.Time) (models.Order, error) {
	if existing.Status != models.StatusSubmitted {
		return existing, fmt.Errorf("%w: order %s is %s", ErrNotEditable, existing.ID, existing.Status)
	}

	o, err := Place(c, p, now)
	if err != nil {
		return existing, err
	}
	o.ID = existing.ID
	return o, nil
}
