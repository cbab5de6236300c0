package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

type productRow struct {
	id        int64
	companyID int64
	name      string
	classes   []string
}

// Repository implements labelsync.CatalogStore using in-memory storage
type Repository struct {
	mu        sync.RWMutex
	companies map[int64]labelsync.Company
	products  map[int64]productRow
	images    map[int64]labelsync.ImageRecord
	lastID    int64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		companies: make(map[int64]labelsync.Company),
		products:  make(map[int64]productRow),
		images:    make(map[int64]labelsync.ImageRecord),
	}
}

var _ labelsync.CatalogStore = (*Repository)(nil)

func (r *Repository) nextID() int64 {
	r.lastID++
	return r.lastID
}

// Company operations

// CreateCompany stores company, assigning an id when it has none
func (r *Repository) CreateCompany(ctx context.Context, company *labelsync.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if company.ID == 0 {
		company.ID = r.nextID()
	} else if company.ID > r.lastID {
		r.lastID = company.ID
	}
	r.companies[company.ID] = *company
	return nil
}

// Product operations

// CreateProduct stores product with its class labels. The company must exist.
func (r *Repository) CreateProduct(ctx context.Context, product *labelsync.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	company, ok := r.companies[product.CompanyID]
	if !ok {
		return fmt.Errorf("company %d: %w", product.CompanyID, labelsync.ErrNotFound)
	}
	if product.ID == 0 {
		product.ID = r.nextID()
	} else if product.ID > r.lastID {
		r.lastID = product.ID
	}
	product.CompanyName = company.Name

	r.products[product.ID] = productRow{
		id:        product.ID,
		companyID: product.CompanyID,
		name:      product.Name,
		classes:   append([]string(nil), product.ClassLabels...),
	}
	return nil
}

// DeleteProduct removes a product. Its images stay behind as orphans.
func (r *Repository) DeleteProduct(ctx context.Context, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[productID]; !ok {
		return labelsync.ErrNotFound
	}
	delete(r.products, productID)
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, productID int64) (*labelsync.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", productID, labelsync.ErrNotFound)
	}
	return r.joinProduct(row)
}

func (r *Repository) ListProducts(ctx context.Context) ([]*labelsync.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*labelsync.Product, 0, len(r.products))
	for _, row := range r.products {
		product, err := r.joinProduct(row)
		if err != nil {
			// products of deleted companies are not listed
			continue
		}
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *Repository) joinProduct(row productRow) (*labelsync.Product, error) {
	company, ok := r.companies[row.companyID]
	if !ok {
		return nil, fmt.Errorf("company of product %d: %w", row.id, labelsync.ErrNotFound)
	}
	return &labelsync.Product{
		ID:          row.id,
		CompanyID:   row.companyID,
		CompanyName: company.Name,
		Name:        row.name,
		ClassLabels: append([]string(nil), row.classes...),
	}, nil
}

// Image operations

func (r *Repository) CreateImage(ctx context.Context, image *labelsync.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[image.ProductID]; !ok {
		return fmt.Errorf("product %d: %w", image.ProductID, labelsync.ErrNotFound)
	}
	image.ID = r.nextID()
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	r.images[image.ID] = *image
	return nil
}

func (r *Repository) GetImage(ctx context.Context, imageID int64) (*labelsync.ImageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	image, ok := r.images[imageID]
	if !ok {
		return nil, fmt.Errorf("image %d: %w", imageID, labelsync.ErrNotFound)
	}
	return &image, nil
}

func (r *Repository) DeleteImage(ctx context.Context, imageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.images[imageID]; !ok {
		return fmt.Errorf("image %d: %w", imageID, labelsync.ErrNotFound)
	}
	delete(r.images, imageID)
	return nil
}

func (r *Repository) ListImages(ctx context.Context, productID int64) ([]*labelsync.ImageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(image labelsync.ImageRecord) bool { return image.ProductID == productID }), nil
}

func (r *Repository) ListOrphanImages(ctx context.Context) ([]*labelsync.ImageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(image labelsync.ImageRecord) bool {
		_, ok := r.products[image.ProductID]
		return !ok
	}), nil
}

func (r *Repository) collect(match func(labelsync.ImageRecord) bool) []*labelsync.ImageRecord {
	var result []*labelsync.ImageRecord
	for _, image := range r.images {
		if match(image) {
			imageCopy := image
			result = append(result, &imageCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
