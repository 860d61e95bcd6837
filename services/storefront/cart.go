package main

// CartSelection holds the currently chosen product and quantity. The quantity is
// always kept inside [1, stock]; callers can never store an invalid quantity.
type CartSelection struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// NewCartSelection picks a product with quantity 1. Products without stock are
// refused rather than clamped: there is no valid quantity for them.
func NewCartSelection(p Product) (*CartSelection, error) {
	if p.Stock <= 0 {
		return nil, ErrOutOfStock
	}
	return &CartSelection{Product: p, Quantity: 1}, nil
}

// SetQuantity clamps n into [1, stock] and stores it. Out-of-range values are
// silently clamped, not rejected.
func (s *CartSelection) SetQuantity(n int) {
	s.Quantity = clampQuantity(n, s.Product.Stock)
}

// Refresh replaces the product snapshot (same product, possibly new stock/price)
// and re-clamps the stored quantity against the new stock.
func (s *CartSelection) Refresh(p Product) error {
	if p.Stock <= 0 {
		return ErrOutOfStock
	}
	s.Product = p
	s.Quantity = clampQuantity(s.Quantity, p.Stock)
	return nil
}

// Total is unit price times quantity, in whole rupiah.
func (s *CartSelection) Total() int64 {
	return s.Product.Price * int64(s.Quantity)
}

func clampQuantity(n, stock int) int {
	if n < 1 {
		return 1
	}
	if n > stock {
		return stock
	}
	return n
}
