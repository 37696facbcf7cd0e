package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

// ProductChange reports what an upsert did to the product row.
type ProductChange struct {
	Inserted bool
	Fields   []string
}

// OfferStats counts the outcome of an offer batch.
type OfferStats struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// Result is the outcome of a full reconciliation.
type Result struct {
	Product ProductChange
	Offers  OfferStats
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type assignment struct {
	column string
	value  any
}

// Reconciler applies fetched snapshots to the persisted state.
//
// Products are compared column by column and only differing columns are
// written. Absent values (nil rating, missing price range) never overwrite
// stored ones. Offers are keyed by (product_id, seller_id) and are never
// deleted.
type Reconciler struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReconciler returns a reconciler over db. A nil logger falls back to
// slog.Default().
func NewReconciler(db *sql.DB, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{db: db, logger: logger}
}

// UpsertProduct inserts or updates rec in its own transaction.
func (r *Reconciler) UpsertProduct(ctx context.Context, rec *models.ProductRecord) (ProductChange, error) {
	var change ProductChange
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		change, err = upsertProduct(ctx, tx, rec)
		return err
	})
	return change, err
}

// UpsertOffers inserts or updates offers for productID in its own
// transaction. Inserted offers get their ID assigned in place.
func (r *Reconciler) UpsertOffers(ctx context.Context, productID int64, offers []models.OfferRecord) (OfferStats, error) {
	var stats OfferStats
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		stats, err = upsertOffers(ctx, tx, productID, offers)
		return err
	})
	return stats, err
}

// Reconcile upserts the product and, when offers is non-nil, its offers in a
// single transaction.
func (r *Reconciler) Reconcile(ctx context.Context, rec *models.ProductRecord, offers []models.OfferRecord) (*Result, error) {
	result := &Result{}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		change, err := upsertProduct(ctx, tx, rec)
		if err != nil {
			return err
		}
		result.Product = change

		if offers == nil {
			return nil
		}
		stats, err := upsertOffers(ctx, tx, rec.ID, offers)
		if err != nil {
			return err
		}
		result.Offers = stats
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("success",
		slog.String("action", "reconcile"),
		slog.Int64("product_id", rec.ID),
		slog.Bool("inserted", result.Product.Inserted),
		slog.Any("changed_fields", result.Product.Fields),
		slog.Int("offers_inserted", result.Offers.Inserted),
		slog.Int("offers_updated", result.Offers.Updated),
	)
	return result, nil
}

func (r *Reconciler) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type storedProduct struct {
	name         string
	category     string
	categoryID   sql.NullString
	minPrice     sql.NullInt64
	maxPrice     sql.NullInt64
	rating       sql.NullFloat64
	reviewsCount sql.NullInt64
	offersCount  sql.NullInt64
}

func upsertProduct(ctx context.Context, q querier, rec *models.ProductRecord) (ProductChange, error) {
	if rec == nil {
		return ProductChange{}, errors.New("upsert product: nil record")
	}

	var stored storedProduct
	err := q.QueryRowContext(ctx,
		`SELECT name, category, category_id, min_price, max_price, rating, reviews_count, offers_count
		 FROM products WHERE id = $1`, rec.ID,
	).Scan(&stored.name, &stored.category, &stored.categoryID, &stored.minPrice, &stored.maxPrice,
		&stored.rating, &stored.reviewsCount, &stored.offersCount)

	if errors.Is(err, sql.ErrNoRows) {
		_, err := q.ExecContext(ctx,
			`INSERT INTO products (id, name, category, category_id, min_price, max_price, rating, reviews_count, offers_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.ID, rec.Name, rec.Category, nullString(rec.CategoryID), nullInt64(rec.MinPrice), nullInt64(rec.MaxPrice),
			nullFloat64(rec.Rating), nullInt(rec.ReviewCount), nullInt(rec.OffersCount),
		)
		if err != nil {
			return ProductChange{}, fmt.Errorf("insert product %d: %w", rec.ID, err)
		}
		return ProductChange{Inserted: true}, nil
	}
	if err != nil {
		return ProductChange{}, fmt.Errorf("load product %d: %w", rec.ID, err)
	}

	sets := diffProduct(stored, rec)
	if len(sets) == 0 {
		return ProductChange{}, nil
	}
	if err := update(ctx, q, "products", sets, rec.ID); err != nil {
		return ProductChange{}, fmt.Errorf("update product %d: %w", rec.ID, err)
	}
	return ProductChange{Fields: columns(sets)}, nil
}

func diffProduct(stored storedProduct, rec *models.ProductRecord) []assignment {
	var sets []assignment
	if stored.name != rec.Name {
		sets = append(sets, assignment{"name", rec.Name})
	}
	if stored.category != rec.Category {
		sets = append(sets, assignment{"category", rec.Category})
	}
	if rec.CategoryID != "" && (!stored.categoryID.Valid || stored.categoryID.String != rec.CategoryID) {
		sets = append(sets, assignment{"category_id", rec.CategoryID})
	}
	if rec.MinPrice != nil && (!stored.minPrice.Valid || stored.minPrice.Int64 != *rec.MinPrice) {
		sets = append(sets, assignment{"min_price", *rec.MinPrice})
	}
	if rec.MaxPrice != nil && (!stored.maxPrice.Valid || stored.maxPrice.Int64 != *rec.MaxPrice) {
		sets = append(sets, assignment{"max_price", *rec.MaxPrice})
	}
	if rec.Rating != nil && (!stored.rating.Valid || stored.rating.Float64 != *rec.Rating) {
		sets = append(sets, assignment{"rating", *rec.Rating})
	}
	if rec.ReviewCount != nil && (!stored.reviewsCount.Valid || stored.reviewsCount.Int64 != int64(*rec.ReviewCount)) {
		sets = append(sets, assignment{"reviews_count", int64(*rec.ReviewCount)})
	}
	if rec.OffersCount != nil && (!stored.offersCount.Valid || stored.offersCount.Int64 != int64(*rec.OffersCount)) {
		sets = append(sets, assignment{"offers_count", int64(*rec.OffersCount)})
	}
	return sets
}

func upsertOffers(ctx context.Context, q querier, productID int64, offers []models.OfferRecord) (OfferStats, error) {
	var (
		stats  OfferStats
		staged []int
	)

	for i := range offers {
		offer := &offers[i]
		offer.ProductID = productID

		var (
			id    int64
			name  string
			price int64
		)
		err := q.QueryRowContext(ctx,
			`SELECT id, seller_name, price FROM offers WHERE product_id = $1 AND seller_id = $2`,
			productID, offer.SellerID,
		).Scan(&id, &name, &price)
		if errors.Is(err, sql.ErrNoRows) {
			staged = append(staged, i)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("load offer %d/%s: %w", productID, offer.SellerID, err)
		}

		offer.ID = id
		var sets []assignment
		if name != offer.SellerName {
			sets = append(sets, assignment{"seller_name", offer.SellerName})
		}
		if price != offer.Price {
			sets = append(sets, assignment{"price", offer.Price})
		}
		if len(sets) == 0 {
			stats.Unchanged++
			continue
		}
		if err := update(ctx, q, "offers", sets, id); err != nil {
			return stats, fmt.Errorf("update offer %d: %w", id, err)
		}
		stats.Updated++
	}

	for _, i := range staged {
		offer := &offers[i]
		err := q.QueryRowContext(ctx,
			`INSERT INTO offers (product_id, seller_id, seller_name, price)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			productID, offer.SellerID, offer.SellerName, offer.Price,
		).Scan(&offer.ID)
		if err != nil {
			return stats, fmt.Errorf("insert offer %d/%s: %w", productID, offer.SellerID, err)
		}
		stats.Inserted++
	}
	return stats, nil
}

// update writes only the given columns. Placeholders are numbered in order
// of appearance so the statement works with every supported driver.
func update(ctx context.Context, q querier, table string, sets []assignment, id int64) error {
	clauses := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	for i, s := range sets {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", s.column, i+1))
		args = append(args, s.value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(clauses, ", "), len(args))
	_, err := q.ExecContext(ctx, query, args...)
	return err
}

func columns(sets []assignment) []string {
	out := make([]string, len(sets))
	for i, s := range sets {
		out[i] = s.column
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullFloat64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
