package main

import (
	"context"
	"fmt"
	"log"
)

type seedUser struct {
	username string
	email    string
	password string
	fullName string
	role     string
}

type seedProduct struct {
	name        string
	price       int64
	description string
	imageURL    string
	stock       int
}

var demoUsers = []seedUser{
	{"admin", "admin@tokobaju.id", "admin123", "Administrator", RoleAdmin},
	{"sales", "sales@tokobaju.id", "sales123", "Staf Penjualan", RoleSales},
	{"budi", "budi@example.com", "budi123", "Budi Santoso", RoleCustomer},
}

var demoProducts = []seedProduct{
	{"Kaos Polos Hitam", 75000, "Kaos katun combed 30s, warna hitam", "/images/kaos-hitam.jpg", 50},
	{"Kemeja Flanel", 185000, "Kemeja flanel lengan panjang", "/images/kemeja-flanel.jpg", 20},
	{"Celana Chino", 225000, "Celana chino slim fit", "/images/celana-chino.jpg", 15},
	{"Jaket Hoodie", 250000, "Hoodie fleece tebal", "/images/jaket-hoodie.jpg", 10},
}

// SeedDemoData inserts demo accounts and catalog items for local development.
// Existing rows are left alone, so repeated startups are harmless.
func (r *Repository) SeedDemoData(ctx context.Context) error {
	for _, u := range demoUsers {
		hash, err := HashPassword(u.password)
		if err != nil {
			return err
		}
		_, err = r.pool.Exec(ctx, `
			INSERT INTO users (username, email, password_hash, full_name, role_id)
			SELECT $1, $2, $3, $4, r.id FROM roles r WHERE r.name = $5
			ON CONFLICT (username) DO NOTHING`,
			u.username, u.email, hash, u.fullName, u.role)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.username, err)
		}
	}

	var productCount int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&productCount); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if productCount == 0 {
		for _, p := range demoProducts {
			_, err := r.pool.Exec(ctx, `
				INSERT INTO products (name, price, description, image_url, stock)
				VALUES ($1, $2, $3, $4, $5)`,
				p.name, p.price, p.description, p.imageURL, p.stock)
			if err != nil {
				return fmt.Errorf("seed product %s: %w", p.name, err)
			}
		}
	}

	log.Println("✅ Demo data seeded")
	return nil
}
