package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/cache"
	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/search"
	"pharmacie_back_end/internal/storage"
	"pharmacie_back_end/internal/store"
)

const (
	productsCachePattern = "products:*"
	categoriesCacheKey   = "categories:all"
	maxImageBytes        = 5 << 20
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CatalogService: produits, catégories et fiches médicaments.
// cache, index et files sont optionnels.
type CatalogService struct {
	products   store.Products
	categories store.Categories
	medicines  store.Medicines
	cache      *cache.Store
	index      search.Index
	files      storage.Store
	bucket     string
	Clock      Clock
}

func NewCatalogService(s *store.Stores, c *cache.Store, idx search.Index, files storage.Store, bucket string) *CatalogService {
	return &CatalogService{
		products:   s.Products,
		categories: s.Categories,
		medicines:  s.Medicines,
		cache:      c,
		index:      idx,
		files:      files,
		bucket:     bucket,
	}
}

// --- Produits ---

func listCacheKey(f store.ProductFilter) string {
	cat, rx := "-", "-"
	if f.CategoryID != nil {
		cat = f.CategoryID.String()
	}
	if f.RequiresPrescription != nil {
		rx = fmt.Sprint(*f.RequiresPrescription)
	}
	return fmt.Sprintf("products:list:%s:%s:%s:%d:%d", cat, rx, strings.ToLower(strings.TrimSpace(f.Query)), f.Limit, f.Offset)
}

func (s *CatalogService) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, error) {
	useCache := s.cache != nil && !f.IncludeInactive
	key := listCacheKey(f)

	var out []models.Product
	if useCache && s.cache.GetJSON(ctx, key, &out) {
		return out, nil
	}

	out, err := s.products.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if useCache {
		s.cache.SetJSON(ctx, key, out, cache.ProductCacheTTL)
	}
	return out, nil
}

// GetProduct renvoie aussi les produits inactifs; au handler de filtrer.
func (s *CatalogService) GetProduct(ctx context.Context, id gocql.UUID) (models.Product, error) {
	key := "products:item:" + id.String()
	var p models.Product
	if s.cache != nil && s.cache.GetJSON(ctx, key, &p) {
		return p, nil
	}
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	if s.cache != nil {
		s.cache.SetJSON(ctx, key, p, cache.ProductCacheTTL)
	}
	return p, nil
}

// Product lit toujours la base (prix et stock à jour pour le checkout).
func (s *CatalogService) Product(ctx context.Context, id gocql.UUID) (models.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *CatalogService) AdjustStock(ctx context.Context, id gocql.UUID, delta int) (int, error) {
	n, err := s.products.AdjustStock(ctx, id, delta)
	if err == nil {
		s.invalidateProducts(ctx)
	}
	return n, err
}

// Search interroge Elasticsearch puis relit les produits; repli sur le filtre du store si l'index échoue.
func (s *CatalogService) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidf("paramètre q requis")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if s.index != nil {
		ids, err := s.index.Search(ctx, query, limit)
		if err == nil {
			out := make([]models.Product, 0, len(ids))
			for _, raw := range ids {
				id, perr := gocql.ParseUUID(raw)
				if perr != nil {
					continue
				}
				p, gerr := s.products.Get(ctx, id)
				if gerr != nil || !p.IsActive {
					continue
				}
				out = append(out, p)
			}
			return out, nil
		}
		log.Printf("⚠️ Recherche Elastic indisponible, repli sur le store: %v", err)
	}

	return s.products.List(ctx, store.ProductFilter{Query: query, Limit: limit})
}

func (s *CatalogService) CreateProduct(ctx context.Context, in models.ProductInput) (models.Product, error) {
	p, err := s.productFromInput(ctx, in)
	if err != nil {
		return models.Product{}, err
	}
	p.ID = gocql.TimeUUID()
	p.CreatedAt = s.Clock.now()
	p.UpdatedAt = p.CreatedAt
	if in.IsActive == nil {
		p.IsActive = true
	}

	if err := s.products.Create(ctx, p); err != nil {
		return models.Product{}, err
	}
	s.afterProductWrite(ctx, p)
	log.Printf("✅ Produit créé: %s (%s)", p.Name, p.ID)
	return p, nil
}

// UpdateProduct réécrit la fiche. Le stock du corps est ignoré: il ne change
// que par AdjustStock, pour ne pas écraser une vente concurrente.
func (s *CatalogService) UpdateProduct(ctx context.Context, id gocql.UUID, in models.ProductInput) (models.Product, error) {
	current, err := s.products.Get(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	p, err := s.productFromInput(ctx, in)
	if err != nil {
		return models.Product{}, err
	}
	p.ID = current.ID
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = s.Clock.now()
	if in.IsActive == nil {
		p.IsActive = current.IsActive
	}
	if in.ImageURLs == nil {
		p.ImageURLs = nil
	}

	if err := s.products.Update(ctx, p); err != nil {
		return models.Product{}, err
	}
	if p, err = s.products.Get(ctx, id); err != nil {
		return models.Product{}, err
	}
	s.afterProductWrite(ctx, p)
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id gocql.UUID) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateProducts(ctx)
	if s.index != nil {
		if err := s.index.DeleteProduct(ctx, id.String()); err != nil {
			log.Printf("⚠️ Suppression index %s: %v", id, err)
		}
	}
	return nil
}

// UploadImage ajoute une image au produit. Formats: jpeg, png, webp.
func (s *CatalogService) UploadImage(ctx context.Context, id gocql.UUID, r io.Reader, size int64, contentType string) (models.Product, error) {
	if s.files == nil {
		return models.Product{}, errors.New("stockage de fichiers non configuré")
	}
	ext := storage.Ext(contentType)
	if ext == "" || ext == ".pdf" {
		return models.Product{}, invalidf("format d'image non supporté: %s", contentType)
	}
	if size > maxImageBytes {
		return models.Product{}, invalidf("image trop volumineuse (max %d Mo)", maxImageBytes>>20)
	}

	if _, err := s.products.Get(ctx, id); err != nil {
		return models.Product{}, err
	}

	key := storage.CleanKey("products", id.String(), uuid.NewString()+ext)
	obj := storage.Object{Bucket: s.bucket, Key: key, Size: size, ContentType: contentType}
	if err := s.files.Upload(ctx, obj, r); err != nil {
		return models.Product{}, err
	}

	if err := s.products.AddImage(ctx, id, s.files.PublicURL(s.bucket, key), s.Clock.now()); err != nil {
		_ = s.files.Remove(ctx, s.bucket, key)
		return models.Product{}, err
	}
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	s.afterProductWrite(ctx, p)
	return p, nil
}

func (s *CatalogService) productFromInput(ctx context.Context, in models.ProductInput) (models.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Product{}, invalidf("nom requis")
	}
	if in.Price <= 0 {
		return models.Product{}, invalidf("le prix doit être positif")
	}
	if in.MRP != 0 && in.MRP < in.Price {
		return models.Product{}, invalidf("le MRP ne peut pas être inférieur au prix")
	}
	if in.Stock < 0 {
		return models.Product{}, invalidf("stock négatif")
	}
	catID, err := gocql.ParseUUID(in.CategoryID)
	if err != nil {
		return models.Product{}, invalidf("catégorie invalide")
	}
	if _, err := s.categories.Get(ctx, catID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Product{}, invalidf("catégorie inexistante")
		}
		return models.Product{}, err
	}

	p := models.Product{
		Name:                 name,
		Description:          strings.TrimSpace(in.Description),
		Composition:          strings.TrimSpace(in.Composition),
		Manufacturer:         strings.TrimSpace(in.Manufacturer),
		Price:                in.Price,
		MRP:                  in.MRP,
		Stock:                in.Stock,
		CategoryID:           catID,
		ImageURLs:            in.ImageURLs,
		Tags:                 normalizeTags(in.Tags),
		RequiresPrescription: in.RequiresPrescription,
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
	return p, nil
}

func (s *CatalogService) afterProductWrite(ctx context.Context, p models.Product) {
	s.invalidateProducts(ctx)
	if s.index == nil {
		return
	}
	if err := s.index.IndexProduct(ctx, p); err != nil {
		log.Printf("⚠️ Indexation %s: %v", p.Name, err)
	}
}

func (s *CatalogService) invalidateProducts(ctx context.Context) {
	if s.cache != nil {
		s.cache.DeletePattern(ctx, productsCachePattern)
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// --- Catégories ---

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if s.cache != nil && s.cache.GetJSON(ctx, categoriesCacheKey, &out) {
		return out, nil
	}
	out, err := s.categories.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetJSON(ctx, categoriesCacheKey, out, cache.CategoryCacheTTL)
	}
	return out, nil
}

func (s *CatalogService) CategoryProducts(ctx context.Context, slug string, limit, offset int) (models.Category, []models.Product, error) {
	c, err := s.categories.GetBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return models.Category{}, nil, err
	}
	products, err := s.ListProducts(ctx, store.ProductFilter{CategoryID: &c.ID, Limit: limit, Offset: offset})
	if err != nil {
		return models.Category{}, nil, err
	}
	return c, products, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, c models.Category) (models.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Slug = strings.ToLower(strings.TrimSpace(c.Slug))
	if c.Name == "" {
		return models.Category{}, invalidf("nom requis")
	}
	if !slugPattern.MatchString(c.Slug) {
		return models.Category{}, invalidf("slug invalide: %q", c.Slug)
	}
	c.ID = gocql.TimeUUID()
	c.CreatedAt = s.Clock.now()

	if err := s.categories.Create(ctx, c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.Category{}, conflictf("slug %q déjà utilisé", c.Slug)
		}
		return models.Category{}, err
	}
	s.invalidateCategories(ctx)
	return c, nil
}

// DeleteCategory refuse de supprimer une catégorie qui contient encore des produits.
func (s *CatalogService) DeleteCategory(ctx context.Context, id gocql.UUID) error {
	remaining, err := s.products.List(ctx, store.ProductFilter{CategoryID: &id, IncludeInactive: true, Limit: 1})
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return conflictf("la catégorie contient encore des produits")
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCategories(ctx)
	return nil
}

func (s *CatalogService) invalidateCategories(ctx context.Context) {
	if s.cache != nil {
		s.cache.Reset(ctx, categoriesCacheKey)
	}
}

// --- Médicaments ---

func (s *CatalogService) ListMedicines(ctx context.Context, query string) ([]models.Medicine, error) {
	return s.medicines.List(ctx, strings.TrimSpace(query))
}

func (s *CatalogService) CreateMedicine(ctx context.Context, m models.Medicine) (models.Medicine, error) {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return models.Medicine{}, invalidf("nom requis")
	}
	m.ID = gocql.TimeUUID()
	m.CreatedAt = s.Clock.now()
	m.Schedule = strings.ToUpper(strings.TrimSpace(m.Schedule))
	if err := s.medicines.Create(ctx, m); err != nil {
		return models.Medicine{}, err
	}
	return m, nil
}
