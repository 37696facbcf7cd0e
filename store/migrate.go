package store

import (
	"context"
	"database/sql"
	"fmt"
)

const productsTable = `
CREATE TABLE IF NOT EXISTS products (
	id            BIGINT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	category_id   TEXT,
	min_price     BIGINT,
	max_price     BIGINT,
	rating        DOUBLE PRECISION,
	reviews_count INTEGER,
	offers_count  INTEGER
)`

const offersTable = `
CREATE TABLE IF NOT EXISTS offers (
	id          %s,
	product_id  BIGINT NOT NULL REFERENCES products(id),
	seller_id   TEXT NOT NULL,
	seller_name TEXT NOT NULL,
	price       BIGINT NOT NULL,
	UNIQUE (product_id, seller_id)
)`

const offersProductIndex = `CREATE INDEX IF NOT EXISTS idx_offers_product_id ON offers (product_id)`

// Migrate creates the products and offers tables when missing.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	idColumn := "BIGSERIAL PRIMARY KEY"
	if driver == DriverSQLite {
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	statements := []string{
		productsTable,
		fmt.Sprintf(offersTable, idColumn),
		offersProductIndex,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
