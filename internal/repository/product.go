package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"github.com/tolmv/elasticsearch/internal/domain"
)

// PgxIface is the subset of pgxpool.Pool the repository uses. pgxmock
// satisfies it in tests.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// ProductRepository is the relational system of record for products.
type ProductRepository interface {
	// InsertProducts writes the whole batch in one transaction; any failure
	// rolls the whole batch back.
	InsertProducts(ctx context.Context, products []domain.Product) error
	// FetchProducts streams the {uuid, title, description, brand} projection
	// of every stored product in pages of pageSize.
	FetchProducts(ctx context.Context, pageSize int, fn func([]domain.ProductRef) error) error
	// UpdateSimilar sets one product's similarity links, independently of
	// every other update.
	UpdateSimilar(ctx context.Context, productUUID string, similarUUIDs []string) error
	Ping(ctx context.Context) error
	Close()
}

type productRepository struct {
	db PgxIface
}

func NewProductRepository(db PgxIface) ProductRepository {
	return &productRepository{db: db}
}

const insertProductSQL = `
	INSERT INTO public.sku (
		uuid, marketplace_id, product_id, title, description, brand,
		seller_id, seller_name, first_image_url, category_id,
		category_lvl_1, category_lvl_2, category_lvl_3, category_remaining,
		price_before_discounts, discount, price_after_discounts, currency, barcode
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

func (r *productRepository) InsertProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(insertProductSQL,
			p.UUID, p.MarketplaceID, p.ProductID, p.Title, p.Description, p.Brand,
			p.SellerID, p.SellerName, p.FirstImageURL, p.CategoryID,
			p.CategoryLvl1, p.CategoryLvl2, p.CategoryLvl3, p.CategoryRemaining,
			p.PriceBeforeDiscounts, p.Discount, p.PriceAfterDiscounts, p.Currency, p.Barcode,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range products {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert product batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit product batch: %w", err)
	}

	log.Infof("Inserted %d products into PostgreSQL", len(products))
	return nil
}

func (r *productRepository) FetchProducts(ctx context.Context, pageSize int, fn func([]domain.ProductRef) error) error {
	if pageSize < 1 {
		pageSize = 1
	}

	rows, err := r.db.Query(ctx, `SELECT uuid, title, description, brand FROM public.sku`)
	if err != nil {
		return fmt.Errorf("failed to fetch products: %w", err)
	}
	defer rows.Close()

	page := make([]domain.ProductRef, 0, pageSize)
	for rows.Next() {
		var ref domain.ProductRef
		if err := rows.Scan(&ref.UUID, &ref.Title, &ref.Description, &ref.Brand); err != nil {
			return fmt.Errorf("failed to scan product row: %w", err)
		}

		page = append(page, ref)
		if len(page) >= pageSize {
			if err := fn(page); err != nil {
				return err
			}
			page = make([]domain.ProductRef, 0, pageSize)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed reading product rows: %w", err)
	}

	if len(page) > 0 {
		return fn(page)
	}
	return nil
}

func (r *productRepository) UpdateSimilar(ctx context.Context, productUUID string, similarUUIDs []string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE public.sku SET similar_sku = $1 WHERE uuid = $2`,
		similarUUIDs, productUUID,
	)
	if err != nil {
		return fmt.Errorf("failed to update similar products for %s: %w", productUUID, err)
	}
	return nil
}

func (r *productRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *productRepository) Close() {
	r.db.Close()
}
