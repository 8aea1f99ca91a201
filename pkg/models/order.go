package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The CRUD service stores prices and totals as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderStatus string

// Wire values are the ones the CRUD service already stores.
const (
	StatusSubmitted   OrderStatus = "PROSES"
	StatusDispatched  OrderStatus = "ORDERED"
	StatusPaid        OrderStatus = "PAID"
	StatusUnavailable OrderStatus = "SOLD"
	StatusHandedOff   OrderStatus = "PICKED_UP"
	StatusDelivered   OrderStatus = "FINISH"
)

// Label is the human readable form used in notifications.
func (s OrderStatus) Label() string {
	switch s {
	case StatusSubmitted:
		return "Submitted"
	case StatusDispatched:
		return "Dispatched"
	case StatusPaid:
		return "Paid"
	case StatusUnavailable:
		return "Unavailable / cancelled"
	case StatusHandedOff:
		return "Handed off"
	case StatusDelivered:
		return "Delivered"
	default:
		return string(s)
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusUnavailable
}

type LineStatus string

const (
	LineOK          LineStatus = "OK"
	LineUnavailable LineStatus = "HABIS"
)

type OrderLine struct {
	MenuID   string          `json:"menuId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Notes    string          `json:"notes,omitempty"`
	ShopID   string          `json:"shopId,omitempty"`
	Status   LineStatus      `json:"status,omitempty"`
}

// Available reports whether the line counts towards the order total.
// A missing status is treated as OK.
func (l OrderLine) Available() bool {
	return l.Status != LineUnavailable
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID                 string          `json:"id"`
	RequesterID        string          `json:"workerId"`
	RequesterName      string          `json:"workerName"`
	RequesterUnit      string          `json:"workerUnit,omitempty"`
	Items              []OrderLine     `json:"items"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	Status             OrderStatus     `json:"status"`
	Timestamp          int64           `json:"timestamp"`
	Notes              string          `json:"notes,omitempty"`
	AssignedRunnerID   string          `json:"assignedObId,omitempty"`
	AssignedRunnerName string          `json:"assignedObName,omitempty"`
}

// CreatedAt converts the millisecond timestamp.
func (o Order) CreatedAt() time.Time {
	return time.UnixMilli(o.Timestamp)
}

// Clone returns a copy whose Items can be mutated independently.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]OrderLine, len(o.Items))
		copy(c.Items, o.Items)
	}
	return c
}

// ShortID is the id prefix shown to users.
func (o Order) ShortID() string {
	if len(o.ID) <= 4 {
		return o.ID
	}
	return o.ID[:4]
}

// IsPersisted reports whether an id was assigned by a store. Empty ids and
// ids prefixed with "temp" are client-side placeholders.
func IsPersisted(id string) bool {
	return id != "" && !strings.HasPrefix(id, "temp")
}
