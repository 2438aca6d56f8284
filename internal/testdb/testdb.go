// Package testdb provides shared test database helpers for fast,
// realistic testing against an in-memory SQLite database.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/querybuddy/querybuddy/internal/database"
)

// NewPlain creates an in-memory SQLite database without any schema.
// Useful for tests that manage their own tables.
func NewPlain(t *testing.T) database.Database {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(ctx, "sqlite:///:memory:")
	if err != nil {
		t.Fatalf("testdb.NewPlain: open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// WithSchema creates an in-memory SQLite database and executes the given
// SQL statements to set up a custom schema.
func WithSchema(t *testing.T, statements ...string) database.Database {
	t.Helper()
	ctx := context.Background()
	db := NewPlain(t)
	for _, stmt := range statements {
		if err := db.Session(ctx).Exec(stmt).Error; err != nil {
			t.Fatalf("testdb.WithSchema: %v\nSQL: %s", err, stmt)
		}
	}
	return db
}

// retailSchema is a small e-commerce schema exercising the introspection
// surface: primary keys, NOT NULL columns, and foreign keys across tables.
var retailSchema = []string{
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		country TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		price REAL NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL,
		total REAL NOT NULL,
		ordered_at TEXT NOT NULL
	)`,
	`CREATE TABLE order_items (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		unit_price REAL NOT NULL
	)`,
}

// retailSeed fills the retail schema with a handful of rows so sample
// queries return data.
var retailSeed = []string{
	`INSERT INTO customers (id, name, email, country, created_at) VALUES
		(1, 'Ada Lovelace', 'ada@example.com', 'GB', '2024-01-10'),
		(2, 'Grace Hopper', 'grace@example.com', 'US', '2024-02-14'),
		(3, 'Alan Turing', 'alan@example.com', 'GB', '2024-03-01'),
		(4, 'Katherine Johnson', 'katherine@example.com', 'US', '2024-03-15')`,
	`INSERT INTO products (id, name, category, price) VALUES
		(1, 'Mechanical Keyboard', 'electronics', 129.99),
		(2, 'Standing Desk', 'furniture', 499.00),
		(3, 'Monitor Arm', 'furniture', 89.50),
		(4, 'USB Microphone', 'electronics', 149.00)`,
	`INSERT INTO orders (id, customer_id, status, total, ordered_at) VALUES
		(1, 1, 'shipped', 219.49, '2024-04-01'),
		(2, 2, 'shipped', 499.00, '2024-04-03'),
		(3, 1, 'pending', 149.00, '2024-04-10'),
		(4, 3, 'cancelled', 129.99, '2024-04-12')`,
	`INSERT INTO order_items (id, order_id, product_id, quantity, unit_price) VALUES
		(1, 1, 1, 1, 129.99),
		(2, 1, 3, 1, 89.50),
		(3, 2, 2, 1, 499.00),
		(4, 3, 4, 1, 149.00),
		(5, 4, 1, 1, 129.99)`,
}

// NewRetail creates an in-memory SQLite database with a seeded retail
// schema (customers, products, orders, order_items).
func NewRetail(t *testing.T) database.Database {
	t.Helper()
	statements := make([]string, 0, len(retailSchema)+len(retailSeed))
	statements = append(statements, retailSchema...)
	statements = append(statements, retailSeed...)
	return WithSchema(t, statements...)
}

// RetailURL creates a file-backed seeded retail database in a temp
// directory and returns its URL. Use it when the code under test opens
// its own connection.
func RetailURL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	url := "sqlite://" + filepath.Join(t.TempDir(), "retail.db")

	db, err := database.NewDatabase(ctx, url)
	if err != nil {
		t.Fatalf("testdb.RetailURL: open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	statements := make([]string, 0, len(retailSchema)+len(retailSeed))
	statements = append(statements, retailSchema...)
	statements = append(statements, retailSeed...)
	for _, stmt := range statements {
		if err := db.Session(ctx).Exec(stmt).Error; err != nil {
			t.Fatalf("testdb.RetailURL: %v\nSQL: %s", err, stmt)
		}
	}
	return url
}
