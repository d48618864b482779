package testmodel

import (
	"context"
	"database/sql"
	"strings"
)

// Schema creates the tables of the shop model.
const Schema = `
CREATE TABLE countries (id INTEGER PRIMARY KEY, code TEXT NOT NULL);
CREATE TABLE addresses (id INTEGER PRIMARY KEY, city TEXT NOT NULL, country_id INTEGER NOT NULL REFERENCES countries(id));
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT, address_id INTEGER REFERENCES addresses(id));
CREATE TABLE "groups" (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE customer_groups (customer_id INTEGER NOT NULL, group_id INTEGER NOT NULL);
CREATE TABLE profiles (id INTEGER PRIMARY KEY, bio TEXT NOT NULL, customer_id INTEGER NOT NULL);
CREATE TABLE coupons (id INTEGER PRIMARY KEY, code TEXT NOT NULL);
CREATE TABLE orders (id INTEGER PRIMARY KEY, title TEXT NOT NULL, total REAL NOT NULL, created TEXT, customer_id INTEGER NOT NULL);
CREATE TABLE order_coupons (order_id INTEGER NOT NULL, coupon_id INTEGER NOT NULL);
CREATE TABLE order_ext (order_id INTEGER PRIMARY KEY, color TEXT, label TEXT);
CREATE TABLE items (id INTEGER PRIMARY KEY, sku TEXT NOT NULL, quantity INTEGER NOT NULL, order_id INTEGER NOT NULL);
CREATE TABLE notes (id INTEGER PRIMARY KEY, text TEXT NOT NULL, order_id INTEGER);
`

// Seed inserts a small data set:
//
//	Ada (1, ada@example.com, Berlin/DE) in Group3, orders 10 "order1" and 11 "order2"
//	Bob (2, no email, no address) in Group1 and Group3, order 12 "order3"
//	Cy  (3, cy@example.com, Lyon/FR), no orders
const Seed = `
INSERT INTO countries VALUES (1, 'DE'), (2, 'FR');
INSERT INTO addresses VALUES (1, 'Berlin', 1), (2, 'Lyon', 2);
INSERT INTO customers VALUES (1, 'Ada', 'ada@example.com', 1), (2, 'Bob', NULL, NULL), (3, 'Cy', 'cy@example.com', 2);
INSERT INTO "groups" VALUES (1, 'Group1'), (3, 'Group3');
INSERT INTO customer_groups VALUES (1, 3), (2, 1), (2, 3);
INSERT INTO profiles VALUES (1, 'mathematician', 1);
INSERT INTO coupons VALUES (1, 'WELCOME');
INSERT INTO orders VALUES (10, 'order1', 25.5, '2024-03-01T10:00:00Z', 1), (11, 'order2', 7, '2024-03-02T10:00:00Z', 1), (12, 'order3', 99.9, '2024-03-03T10:00:00Z', 2);
INSERT INTO order_coupons VALUES (10, 1);
INSERT INTO order_ext VALUES (10, 'red', 'gift'), (12, 'blue', NULL);
INSERT INTO items VALUES (1, 'SKU-1', 2, 10), (2, 'SKU-2', 1, 10), (3, 'SKU-3', 5, 12);
INSERT INTO notes VALUES (1, 'leave at door', 10);
`

// Load creates and seeds the shop model in db.
func Load(ctx context.Context, db *sql.DB) error {
	for _, script := range []string{Schema, Seed} {
		for _, stmt := range strings.Split(script, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}
