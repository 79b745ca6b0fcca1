package scylla

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
)

const productColumns = `product_id, name, description, composition, manufacturer, price, mrp, stock,
	category_id, image_urls, tags, requires_prescription, is_active, created_at, updated_at`

type productStore struct{ s *gocql.Session }

func scanProduct(scan func(...any) bool) (models.Product, bool) {
	var p models.Product
	ok := scan(&p.ID, &p.Name, &p.Description, &p.Composition, &p.Manufacturer, &p.Price, &p.MRP, &p.Stock,
		&p.CategoryID, &p.ImageURLs, &p.Tags, &p.RequiresPrescription, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, ok
}

// List lit la table products (ou l'index par catégorie) puis filtre en mémoire:
// ScyllaDB ne sait pas faire de recherche plein texte.
func (r *productStore) List(ctx context.Context, f store.ProductFilter) ([]models.Product, error) {
	var products []models.Product

	if f.CategoryID != nil {
		ids, err := r.idsByCategory(ctx, *f.CategoryID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			p, err := r.Get(ctx, id)
			if err != nil {
				continue
			}
			if f.Match(p) {
				products = append(products, p)
			}
		}
	} else {
		iter := r.s.Query(`SELECT ` + productColumns + ` FROM products`).WithContext(ctx).Iter()
		for {
			p, ok := scanProduct(iter.Scan)
			if !ok {
				break
			}
			if f.Match(p) {
				products = append(products, p)
			}
		}
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("lecture produits: %w", err)
		}
	}

	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return store.Page(products, f.Limit, f.Offset), nil
}

func (r *productStore) idsByCategory(ctx context.Context, categoryID gocql.UUID) ([]gocql.UUID, error) {
	iter := r.s.Query(`SELECT product_id FROM products_by_category WHERE category_id = ?`, categoryID).WithContext(ctx).Iter()
	var (
		id  gocql.UUID
		ids []gocql.UUID
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	return ids, iter.Close()
}

func (r *productStore) Get(ctx context.Context, id gocql.UUID) (models.Product, error) {
	var p models.Product
	err := r.s.Query(`SELECT `+productColumns+` FROM products WHERE product_id = ?`, id).WithContext(ctx).Scan(
		&p.ID, &p.Name, &p.Description, &p.Composition, &p.Manufacturer, &p.Price, &p.MRP, &p.Stock,
		&p.CategoryID, &p.ImageURLs, &p.Tags, &p.RequiresPrescription, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.Product{}, notFound(err)
	}
	return p, nil
}

func (r *productStore) Create(ctx context.Context, p models.Product) error {
	batch := r.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Composition, p.Manufacturer, p.Price, p.MRP, p.Stock,
		p.CategoryID, p.ImageURLs, p.Tags, p.RequiresPrescription, p.IsActive, p.CreatedAt, p.UpdatedAt)
	batch.Query(`INSERT INTO products_by_category (category_id, product_id) VALUES (?, ?)`, p.CategoryID, p.ID)
	return r.s.ExecuteBatch(batch)
}

func (r *productStore) Update(ctx context.Context, p models.Product) error {
	old, err := r.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	batch := r.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE products SET name = ?, description = ?, composition = ?, manufacturer = ?, price = ?, mrp = ?,
		category_id = ?, tags = ?, requires_prescription = ?, is_active = ?, updated_at = ?
		WHERE product_id = ?`,
		p.Name, p.Description, p.Composition, p.Manufacturer, p.Price, p.MRP,
		p.CategoryID, p.Tags, p.RequiresPrescription, p.IsActive, p.UpdatedAt, p.ID)
	if p.ImageURLs != nil {
		batch.Query(`UPDATE products SET image_urls = ? WHERE product_id = ?`, p.ImageURLs, p.ID)
	}
	if old.CategoryID != p.CategoryID {
		batch.Query(`DELETE FROM products_by_category WHERE category_id = ? AND product_id = ?`, old.CategoryID, p.ID)
		batch.Query(`INSERT INTO products_by_category (category_id, product_id) VALUES (?, ?)`, p.CategoryID, p.ID)
	}
	return r.s.ExecuteBatch(batch)
}

// AddImage ajoute à la liste côté serveur: deux envois simultanés gardent leurs deux URLs.
func (r *productStore) AddImage(ctx context.Context, id gocql.UUID, url string, at time.Time) error {
	applied, err := r.s.Query(`UPDATE products SET image_urls = image_urls + ?, updated_at = ? WHERE product_id = ? IF EXISTS`,
		[]string{url}, at, id).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return err
	}
	if !applied {
		return store.ErrNotFound
	}
	return nil
}

func (r *productStore) Delete(ctx context.Context, id gocql.UUID) error {
	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	batch := r.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM products WHERE product_id = ?`, id)
	batch.Query(`DELETE FROM products_by_category WHERE category_id = ? AND product_id = ?`, p.CategoryID, id)
	return r.s.ExecuteBatch(batch)
}

// AdjustStock passe par une transaction légère (IF stock = ?) pour ne jamais
// perdre une mise à jour concurrente.
func (r *productStore) AdjustStock(ctx context.Context, id gocql.UUID, delta int) (int, error) {
	const maxAttempts = 5

	var current int
	if err := r.s.Query(`SELECT stock FROM products WHERE product_id = ?`, id).WithContext(ctx).Scan(&current); err != nil {
		return 0, notFound(err)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		next := current + delta
		if next < 0 {
			return current, store.ErrInsufficientStock
		}
		var seen int
		applied, err := r.s.Query(`UPDATE products SET stock = ?, updated_at = ? WHERE product_id = ? IF stock = ?`,
			next, time.Now(), id, current).WithContext(ctx).ScanCAS(&seen)
		if err != nil {
			return current, err
		}
		if applied {
			return next, nil
		}
		current = seen
	}
	return current, fmt.Errorf("stock du produit %s trop disputé", id)
}

// --- Catégories ---

type categoryStore struct{ s *gocql.Session }

func (r *categoryStore) List(ctx context.Context) ([]models.Category, error) {
	iter := r.s.Query(`SELECT category_id, name, slug, description, image_url, created_at FROM categories`).WithContext(ctx).Iter()
	var (
		c    models.Category
		cats []models.Category
	)
	for iter.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ImageURL, &c.CreatedAt) {
		cats = append(cats, c)
		c = models.Category{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (r *categoryStore) Get(ctx context.Context, id gocql.UUID) (models.Category, error) {
	var c models.Category
	err := r.s.Query(`SELECT category_id, name, slug, description, image_url, created_at FROM categories WHERE category_id = ?`, id).
		WithContext(ctx).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ImageURL, &c.CreatedAt)
	return c, notFound(err)
}

// GetBySlug parcourt la table: quelques dizaines de lignes au plus.
func (r *categoryStore) GetBySlug(ctx context.Context, slug string) (models.Category, error) {
	cats, err := r.List(ctx)
	if err != nil {
		return models.Category{}, err
	}
	for _, c := range cats {
		if c.Slug == slug {
			return c, nil
		}
	}
	return models.Category{}, store.ErrNotFound
}

func (r *categoryStore) Create(ctx context.Context, c models.Category) error {
	if _, err := r.GetBySlug(ctx, c.Slug); err == nil {
		return store.ErrConflict
	}
	return r.s.Query(`INSERT INTO categories (category_id, name, slug, description, image_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Slug, c.Description, c.ImageURL, c.CreatedAt).WithContext(ctx).Exec()
}

func (r *categoryStore) Delete(ctx context.Context, id gocql.UUID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.s.Query(`DELETE FROM categories WHERE category_id = ?`, id).WithContext(ctx).Exec()
}

// --- Médicaments ---

type medicineStore struct{ s *gocql.Session }

func (r *medicineStore) List(ctx context.Context, query string) ([]models.Medicine, error) {
	iter := r.s.Query(`SELECT medicine_id, name, composition, manufacturer, schedule, created_at FROM medicines`).WithContext(ctx).Iter()
	q := strings.ToLower(strings.TrimSpace(query))
	var (
		m   models.Medicine
		out []models.Medicine
	)
	for iter.Scan(&m.ID, &m.Name, &m.Composition, &m.Manufacturer, &m.Schedule, &m.CreatedAt) {
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Composition), q) {
			out = append(out, m)
		}
		m = models.Medicine{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *medicineStore) Get(ctx context.Context, id gocql.UUID) (models.Medicine, error) {
	var m models.Medicine
	err := r.s.Query(`SELECT medicine_id, name, composition, manufacturer, schedule, created_at FROM medicines WHERE medicine_id = ?`, id).
		WithContext(ctx).Scan(&m.ID, &m.Name, &m.Composition, &m.Manufacturer, &m.Schedule, &m.CreatedAt)
	return m, notFound(err)
}

func (r *medicineStore) Create(ctx context.Context, m models.Medicine) error {
	return r.s.Query(`INSERT INTO medicines (medicine_id, name, composition, manufacturer, schedule, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Composition, m.Manufacturer, m.Schedule, m.CreatedAt).WithContext(ctx).Exec()
}
