package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn
type TxBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements labelsync.CatalogStore using PostgreSQL
type Repository struct {
	db DBTX
}

var _ labelsync.CatalogStore = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// EnsureSchema creates the catalog tables when they do not exist yet
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, labelsync.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: duplicate entry (%s): %w", operation, pgErr.ConstraintName, labelsync.ErrInvalidState)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record: %w", operation, labelsync.ErrNotFound)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing: %w", operation, pgErr.ColumnName, labelsync.ErrInvalidState)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %v", operation, labelsync.ErrUnavailable, err)
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Company operations

func (r *Repository) CreateCompany(ctx context.Context, company *labelsync.Company) error {
	query := `INSERT INTO companies (name, description) VALUES ($1, $2) RETURNING id`

	if err := r.db.QueryRow(ctx, query, company.Name, company.Description).Scan(&company.ID); err != nil {
		return r.handlePostgresError("create company", err)
	}
	return nil
}

// Product operations

// CreateProduct inserts product and its class labels in one transaction when
// the underlying handle can begin one.
func (r *Repository) CreateProduct(ctx context.Context, product *labelsync.Product) error {
	if beginner, ok := r.db.(TxBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return r.handlePostgresError("create product", err)
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if err := createProduct(ctx, tx, product); err != nil {
			return r.handlePostgresError("create product", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return r.handlePostgresError("create product", err)
		}
		return nil
	}

	if err := createProduct(ctx, r.db, product); err != nil {
		return r.handlePostgresError("create product", err)
	}
	return nil
}

func createProduct(ctx context.Context, db DBTX, product *labelsync.Product) error {
	query := `
		INSERT INTO products (company_id, name) VALUES ($1, $2)
		RETURNING id, (SELECT name FROM companies WHERE id = $1)`

	var companyName *string
	if err := db.QueryRow(ctx, query, product.CompanyID, product.Name).Scan(&product.ID, &companyName); err != nil {
		return err
	}
	if companyName != nil {
		product.CompanyName = *companyName
	}

	for i, class := range product.ClassLabels {
		_, err := db.Exec(ctx,
			`INSERT INTO product_classes (product_id, position, name) VALUES ($1, $2, $3)`,
			product.ID, i, class)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteProduct removes a product and its class labels. Its images stay
// behind as orphans.
func (r *Repository) DeleteProduct(ctx context.Context, productID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return r.handlePostgresError("delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", productID, labelsync.ErrNotFound)
	}
	return nil
}

const productSelect = `
	SELECT p.id, p.company_id, c.name, p.name,
	       COALESCE(ARRAY(
	           SELECT pc.name FROM product_classes pc
	           WHERE pc.product_id = p.id ORDER BY pc.position
	       ), '{}')
	FROM products p
	JOIN companies c ON c.id = p.company_id`

func (r *Repository) GetProduct(ctx context.Context, productID int64) (*labelsync.Product, error) {
	var product labelsync.Product
	err := r.db.QueryRow(ctx, productSelect+` WHERE p.id = $1`, productID).Scan(
		&product.ID, &product.CompanyID, &product.CompanyName, &product.Name, &product.ClassLabels)
	if err != nil {
		return nil, r.handlePostgresError(fmt.Sprintf("get product %d", productID), err)
	}
	return &product, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]*labelsync.Product, error) {
	rows, err := r.db.Query(ctx, productSelect+` ORDER BY p.id`)
	if err != nil {
		return nil, r.handlePostgresError("list products", err)
	}
	defer rows.Close()

	var products []*labelsync.Product
	for rows.Next() {
		var product labelsync.Product
		if err := rows.Scan(&product.ID, &product.CompanyID, &product.CompanyName, &product.Name, &product.ClassLabels); err != nil {
			return nil, r.handlePostgresError("list products", err)
		}
		products = append(products, &product)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list products", err)
	}
	return products, nil
}

// Image operations

const imageSelect = `
	SELECT id, product_id, filename, object_key, bucket, size_bytes,
	       mime_type, checksum, provider, created_at
	FROM images`

func (r *Repository) CreateImage(ctx context.Context, image *labelsync.ImageRecord) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, image.ProductID).Scan(&exists); err != nil {
		return r.handlePostgresError("create image", err)
	}
	if !exists {
		return fmt.Errorf("product %d: %w", image.ProductID, labelsync.ErrNotFound)
	}

	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO images (
			product_id, filename, object_key, bucket, size_bytes,
			mime_type, checksum, provider, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	meta := image.Metadata
	err := r.db.QueryRow(ctx, query,
		image.ProductID, image.FileName, meta.ObjectKey, meta.Bucket, meta.SizeBytes,
		meta.MimeType, meta.Checksum, meta.Provider, image.CreatedAt).Scan(&image.ID)
	if err != nil {
		return r.handlePostgresError("create image", err)
	}
	return nil
}

func (r *Repository) GetImage(ctx context.Context, imageID int64) (*labelsync.ImageRecord, error) {
	image, err := scanImage(r.db.QueryRow(ctx, imageSelect+` WHERE id = $1`, imageID))
	if err != nil {
		return nil, r.handlePostgresError(fmt.Sprintf("get image %d", imageID), err)
	}
	return image, nil
}

func (r *Repository) DeleteImage(ctx context.Context, imageID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, imageID)
	if err != nil {
		return r.handlePostgresError("delete image", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("image %d: %w", imageID, labelsync.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListImages(ctx context.Context, productID int64) ([]*labelsync.ImageRecord, error) {
	return r.queryImages(ctx, "list images", imageSelect+` WHERE product_id = $1 ORDER BY id`, productID)
}

func (r *Repository) ListOrphanImages(ctx context.Context) ([]*labelsync.ImageRecord, error) {
	query := imageSelect + `
		WHERE NOT EXISTS (SELECT 1 FROM products p WHERE p.id = images.product_id)
		ORDER BY id`
	return r.queryImages(ctx, "list orphan images", query)
}

func (r *Repository) queryImages(ctx context.Context, operation, query string, args ...interface{}) ([]*labelsync.ImageRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var images []*labelsync.ImageRecord
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	return images, nil
}

func scanImage(row pgx.Row) (*labelsync.ImageRecord, error) {
	var image labelsync.ImageRecord
	meta := &image.Metadata
	err := row.Scan(&image.ID, &image.ProductID, &image.FileName, &meta.ObjectKey, &meta.Bucket,
		&meta.SizeBytes, &meta.MimeType, &meta.Checksum, &meta.Provider, &image.CreatedAt)
	if err != nil {
		return nil, err
	}
	image.CreatedAt = image.CreatedAt.UTC()
	return &image, nil
}
