package main

import (
	"errors"
	"testing"
)

func TestNewCartSelection(t *testing.T) {
	sel, err := NewCartSelection(Product{ID: 1, Price: 50000, Stock: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Quantity != 1 {
		t.Errorf("initial quantity must be 1, got %d", sel.Quantity)
	}
}

func TestNewCartSelectionOutOfStock(t *testing.T) {
	for _, stock := range []int{0, -1} {
		_, err := NewCartSelection(Product{ID: 1, Stock: stock})
		if !errors.Is(err, ErrOutOfStock) {
			t.Errorf("stock %d: expected ErrOutOfStock, got %v", stock, err)
		}
	}
}

func TestSetQuantityClamps(t *testing.T) {
	cases := []struct {
		input    int
		stock    int
		expected int
	}{
		{3, 5, 3},
		{0, 5, 1},
		{-10, 5, 1},
		{5, 5, 5},
		{6, 5, 5},
		{1000000, 5, 5},
		{1, 1, 1},
	}

	for _, tc := range cases {
		sel, err := NewCartSelection(Product{ID: 1, Stock: tc.stock})
		if err != nil {
			t.Fatalf("stock %d: %v", tc.stock, err)
		}
		sel.SetQuantity(tc.input)
		if sel.Quantity != tc.expected {
			t.Errorf("SetQuantity(%d) with stock %d: expected %d, got %d",
				tc.input, tc.stock, tc.expected, sel.Quantity)
		}
	}
}

func TestRefreshReclampsQuantity(t *testing.T) {
	sel, _ := NewCartSelection(Product{ID: 1, Price: 50000, Stock: 10})
	sel.SetQuantity(8)

	if err := sel.Refresh(Product{ID: 1, Price: 60000, Stock: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Quantity != 3 {
		t.Errorf("quantity must be re-clamped to new stock, got %d", sel.Quantity)
	}
	if sel.Product.Price != 60000 {
		t.Errorf("product snapshot not replaced, price %d", sel.Product.Price)
	}
}

func TestRefreshOutOfStock(t *testing.T) {
	sel, _ := NewCartSelection(Product{ID: 1, Stock: 10})

	if err := sel.Refresh(Product{ID: 1, Stock: 0}); !errors.Is(err, ErrOutOfStock) {
		t.Errorf("expected ErrOutOfStock, got %v", err)
	}
}

func TestTotal(t *testing.T) {
	sel, _ := NewCartSelection(Product{ID: 1, Price: 50000, Stock: 10})
	sel.SetQuantity(2)

	if total := sel.Total(); total != 100000 {
		t.Errorf("expected total 100000, got %d", total)
	}
}
