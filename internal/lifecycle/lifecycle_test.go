package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/jogardn/office-meals/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	friedRice = models.MenuItem{ID: "m-1", ShopID: "s-1", Name: "Fried Rice", Price: decimal.NewFromInt(15000)}
	icedTea   = models.MenuItem{ID: "m-2", ShopID: "s-1", Name: "Iced Tea", Price: decimal.NewFromInt(5000)}

	requester = models.User{ID: "w-1", Name: "Budi", Role: models.RoleRequester, Unit: "Finance"}
	runner    = models.User{ID: "ob-1", Name: "Joko", Role: models.RoleFulfiller}
)

func scenarioAOrder(t *testing.T) models.Order {
	t.Helper()
	cart := NewCart()
	cart.Add(friedRice)
	cart.Add(friedRice)
	cart.Add(icedTea)

	o, err := Place(cart, Placement{Requester: requester, RunnerID: runner.ID, Runners: []models.User{runner}}, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return o
}

func assertTotalInvariant(t *testing.T, o models.Order) {
	t.Helper()
	want := decimal.Zero
	for _, l := range o.Items {
		if l.Status != models.LineUnavailable {
			want = want.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	if !o.TotalAmount.Equal(want) {
		t.Errorf("Total invariant broken: got %s, want %s", o.TotalAmount, want)
	}
}

func TestPlaceScenarioA(t *testing.T) {
	o := scenarioAOrder(t)

	if !o.TotalAmount.Equal(decimal.NewFromInt(35000)) {
		t.Errorf("Expected total 35000, got %s", o.TotalAmount)
	}
	if o.Status != models.StatusSubmitted {
		t.Errorf("Expected status %s, got %s", models.StatusSubmitted, o.Status)
	}
	if o.ID != "" {
		t.Errorf("Expected unpersisted order, got id %q", o.ID)
	}
	if len(o.Items) != 2 || o.Items[0].Name != "Fried Rice" || o.Items[0].Quantity != 2 {
		t.Errorf("Unexpected lines: %+v", o.Items)
	}
	if o.AssignedRunnerName != "Joko" || o.RequesterUnit != "Finance" {
		t.Errorf("Unexpected snapshot fields: %+v", o)
	}
	if o.Timestamp != 1000 {
		t.Errorf("Expected timestamp 1000, got %d", o.Timestamp)
	}
	assertTotalInvariant(t, o)
}

func TestToggleLineScenarioB(t *testing.T) {
	o := scenarioAOrder(t)

	toggled, err := ToggleLine(o, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !toggled.TotalAmount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected total 5000, got %s", toggled.TotalAmount)
	}
	if toggled.Items[0].Status != models.LineUnavailable {
		t.Errorf("Expected line to be unavailable, got %s", toggled.Items[0].Status)
	}
	assertTotalInvariant(t, toggled)

	if o.Items[0].Status != models.LineOK {
		t.Error("ToggleLine must not mutate its input")
	}

	restored, err := ToggleLine(toggled, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !restored.TotalAmount.Equal(decimal.NewFromInt(35000)) {
		t.Errorf("Expected total 35000, got %s", restored.TotalAmount)
	}
	assertTotalInvariant(t, restored)
}

func TestToggleLineRequiresSubmitted(t *testing.T) {
	o := scenarioAOrder(t)
	o.Status = models.StatusDispatched

	if _, err := ToggleLine(o, 0); !errors.Is(err, ErrNotEditable) {
		t.Errorf("Expected ErrNotEditable, got %v", err)
	}

	o.Status = models.StatusSubmitted
	if _, err := ToggleLine(o, 5); !errors.Is(err, ErrLineOutOfRange) {
		t.Errorf("Expected ErrLineOutOfRange, got %v", err)
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		from models.OrderStatus
		want models.OrderStatus
		ok   bool
	}{
		{models.StatusSubmitted, models.StatusDispatched, true},
		{models.StatusDispatched, models.StatusHandedOff, true},
		{models.StatusHandedOff, models.StatusDelivered, true},
		{models.StatusPaid, models.StatusHandedOff, true},
		{models.StatusDelivered, "", false},
		{models.StatusUnavailable, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got, ok := Next(tt.from)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Next(%s) = %s, %v; want %s, %v", tt.from, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAdvanceFullFlow(t *testing.T) {
	o := scenarioAOrder(t)
	want := []models.OrderStatus{models.StatusDispatched, models.StatusHandedOff, models.StatusDelivered}

	for _, s := range want {
		var err error
		o, err = Advance(o)
		if err != nil {
			t.Fatalf("Unexpected error advancing to %s: %v", s, err)
		}
		if o.Status != s {
			t.Fatalf("Expected %s, got %s", s, o.Status)
		}
	}

	if _, err := Advance(o); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition from delivered, got %v", err)
	}
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	all := []models.OrderStatus{
		models.StatusSubmitted, models.StatusDispatched, models.StatusPaid,
		models.StatusHandedOff, models.StatusDelivered, models.StatusUnavailable,
	}

	for _, terminal := range []models.OrderStatus{models.StatusDelivered, models.StatusUnavailable} {
		o := scenarioAOrder(t)
		o.Status = terminal

		for _, to := range all {
			got, err := Transition(o, to)
			if !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("Expected %s -> %s to be rejected, got %v", terminal, to, err)
			}
			if got.Status != terminal {
				t.Errorf("Expected status to stay %s, got %s", terminal, got.Status)
			}
		}
		if _, err := MarkPaid(o); !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("Expected MarkPaid from %s to be rejected, got %v", terminal, err)
		}
	}
}

func TestMarkPaid(t *testing.T) {
	o := scenarioAOrder(t)
	o.Status = models.StatusDispatched

	paid, err := MarkPaid(o)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if paid.Status != models.StatusPaid {
		t.Errorf("Expected PAID, got %s", paid.Status)
	}
	if !paid.TotalAmount.Equal(o.TotalAmount) || len(paid.Items) != len(o.Items) {
		t.Error("MarkPaid must not alter items or total")
	}

	again, err := MarkPaid(paid)
	if err != nil || again.Status != models.StatusPaid {
		t.Errorf("Expected repeated MarkPaid to be a no-op, got %s, %v", again.Status, err)
	}

	next, err := Advance(paid)
	if err != nil || next.Status != models.StatusHandedOff {
		t.Errorf("Expected PAID to advance to handed off, got %s, %v", next.Status, err)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to models.OrderStatus
		ok       bool
	}{
		{models.StatusSubmitted, models.StatusDispatched, true},
		{models.StatusSubmitted, models.StatusHandedOff, false},
		{models.StatusSubmitted, models.StatusUnavailable, true},
		{models.StatusDispatched, models.StatusSubmitted, false},
		{models.StatusHandedOff, models.StatusPaid, true},
		{models.StatusPaid, models.StatusDelivered, false},
		{models.StatusPaid, models.StatusUnavailable, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
