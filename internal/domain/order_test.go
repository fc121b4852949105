package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          1,
		UserID:      1,
		UserName:    "Juan Pérez",
		Status:      domain.OrderStatusPending,
		AmountMinor: 500,
		Items: []domain.OrderItem{
			{ProductID: 1, Qty: 5, PriceMinor: 100},
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no user",
			mut: func(o *domain.Order) {
				o.UserID = 0
			},
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
			},
		},
		{
			name: "negative amount",
			mut: func(o *domain.Order) {
				o.AmountMinor = -1
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Items[0].Qty = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Items[0].PriceMinor = -5
			},
		},
		{
			name: "amount mismatch",
			mut: func(o *domain.Order) {
				o.AmountMinor = 999
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			if errs := order.ValidateInvariants(); len(errs) == 0 {
				t.Fatalf("expected validation errors, got none")
			}
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, raw := range []string{"PENDING", "CONFIRMED", "SHIPPED", "CANCELLED"} {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if string(status) != raw {
			t.Fatalf("parse %q: got %q", raw, status)
		}
	}

	// Любой другой литерал — ошибка формата, в том числе другой регистр.
	for _, raw := range []string{"", "pending", "PAID", "Shipped"} {
		if _, err := domain.ParseOrderStatus(raw); err == nil {
			t.Fatalf("expected format error for %q", raw)
		}
	}
}

func TestOrderStatusCanApply(t *testing.T) {
	cases := []struct {
		from    domain.OrderStatus
		event   domain.TransitionEvent
		allowed bool
	}{
		{domain.OrderStatusPending, domain.EventConfirm, true},
		{domain.OrderStatusPending, domain.EventCancel, true},
		{domain.OrderStatusPending, domain.EventShip, false},
		{domain.OrderStatusConfirmed, domain.EventShip, true},
		{domain.OrderStatusConfirmed, domain.EventCancel, true},
		{domain.OrderStatusConfirmed, domain.EventConfirm, false},
		{domain.OrderStatusShipped, domain.EventShip, false},
		{domain.OrderStatusShipped, domain.EventCancel, false},
		{domain.OrderStatusCancelled, domain.EventConfirm, false},
		{domain.OrderStatusCancelled, domain.EventCancel, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanApply(tc.event); got != tc.allowed {
			t.Fatalf("%s.CanApply(%s) = %v, want %v", tc.from, tc.event, got, tc.allowed)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if domain.OrderStatusPending.Terminal() || domain.OrderStatusConfirmed.Terminal() {
		t.Fatalf("pending/confirmed must not be terminal")
	}
	if !domain.OrderStatusShipped.Terminal() || !domain.OrderStatusCancelled.Terminal() {
		t.Fatalf("shipped/cancelled must be terminal")
	}
}
