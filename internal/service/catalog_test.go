package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/cache"
	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/search"
	"pharmacie_back_end/internal/storage"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/store/memory"
)

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]models.Product
	results []string
	err     error
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: map[string]models.Product{}} }

func (f *fakeIndex) IndexProduct(_ context.Context, p models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[p.ID.String()] = p
	return nil
}

func (f *fakeIndex) DeleteProduct(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) Search(context.Context, string, int) ([]string, error) {
	return f.results, f.err
}

type catalogFixture struct {
	svc   *CatalogService
	index *fakeIndex
	files *storage.Memory
	cat   models.Category
}

func newCatalog(t *testing.T) catalogFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	f := catalogFixture{index: newFakeIndex(), files: storage.NewMemory()}
	f.svc = NewCatalogService(memory.New(), cache.New(rdb), f.index, f.files, "products")
	f.svc.Clock = tickClock()

	cat, err := f.svc.CreateCategory(context.Background(), models.Category{Name: "Pain relief", Slug: "Pain-Relief"})
	require.NoError(t, err)
	f.cat = cat
	return f
}

func (f catalogFixture) input(name string, price float64) models.ProductInput {
	return models.ProductInput{Name: name, Price: price, Stock: 10, CategoryID: f.cat.ID.String(), Tags: []string{" Fever ", "fever"}}
}

func TestCreateProductValidation(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)

	in := f.input("Crocin", 30)
	in.MRP = 20
	_, err := f.svc.CreateProduct(ctx, in)
	assert.ErrorIs(t, err, ErrInvalid)

	in = f.input("Crocin", 30)
	in.CategoryID = gocql.TimeUUID().String()
	_, err = f.svc.CreateProduct(ctx, in)
	assert.ErrorIs(t, err, ErrInvalid)

	p, err := f.svc.CreateProduct(ctx, f.input("Crocin", 30))
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Equal(t, []string{"fever"}, p.Tags)
	assert.Equal(t, "pain-relief", f.cat.Slug)
	assert.Contains(t, f.index.docs, p.ID.String())
}

func TestListCacheIsInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)

	_, err := f.svc.CreateProduct(ctx, f.input("Crocin", 30))
	require.NoError(t, err)
	list, err := f.svc.ListProducts(ctx, store.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	p2, err := f.svc.CreateProduct(ctx, f.input("Dolo", 25))
	require.NoError(t, err)
	list, err = f.svc.ListProducts(ctx, store.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.AdjustStock(ctx, p2.ID, -4)
	require.NoError(t, err)
	got, err := f.svc.GetProduct(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)
}

func TestSearchUsesIndexThenFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)

	a, _ := f.svc.CreateProduct(ctx, f.input("Crocin Advance", 30))
	b, _ := f.svc.CreateProduct(ctx, f.input("Dolo 650", 25))

	f.index.results = []string{b.ID.String(), "not-a-uuid", a.ID.String()}
	got, err := f.svc.Search(ctx, "fever", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)

	f.index.err = search.ErrUnavailable
	got, err = f.svc.Search(ctx, "dolo", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	_, err = f.svc.Search(ctx, "  ", 10)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCategoryRules(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)

	_, err := f.svc.CreateCategory(ctx, models.Category{Name: "Dup", Slug: "pain-relief"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.CreateCategory(ctx, models.Category{Name: "Bad", Slug: "bad slug"})
	assert.ErrorIs(t, err, ErrInvalid)

	p, _ := f.svc.CreateProduct(ctx, f.input("Crocin", 30))
	assert.ErrorIs(t, f.svc.DeleteCategory(ctx, f.cat.ID), ErrConflict)

	cat, products, err := f.svc.CategoryProducts(ctx, "PAIN-RELIEF", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, f.cat.ID, cat.ID)
	assert.Len(t, products, 1)

	require.NoError(t, f.svc.DeleteProduct(ctx, p.ID))
	assert.NotContains(t, f.index.docs, p.ID.String())
	require.NoError(t, f.svc.DeleteCategory(ctx, f.cat.ID))

	cats, err := f.svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestUploadImage(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)
	p, _ := f.svc.CreateProduct(ctx, f.input("Crocin", 30))

	_, err := f.svc.UploadImage(ctx, p.ID, strings.NewReader("%PDF"), 4, "application/pdf")
	assert.ErrorIs(t, err, ErrInvalid)

	updated, err := f.svc.UploadImage(ctx, p.ID, strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	require.Len(t, updated.ImageURLs, 1)
	assert.True(t, strings.HasPrefix(updated.ImageURLs[0], "memory://products/products/"+p.ID.String()+"/"))
}

func TestConcurrentImageUploadsKeepEveryURL(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)
	p, err := f.svc.CreateProduct(ctx, f.input("Crocin", 30))
	require.NoError(t, err)

	const uploads = 6
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UploadImage(ctx, p.ID, strings.NewReader("png"), 3, "image/png")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.ImageURLs, uploads)
}

func TestUpdateProductLeavesStockAndImagesAlone(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)
	p, err := f.svc.CreateProduct(ctx, f.input("Crocin", 30))
	require.NoError(t, err)
	_, err = f.svc.UploadImage(ctx, p.ID, strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)

	// Une vente passe entre la lecture de la fiche par l'admin et sa sauvegarde.
	_, err = f.svc.AdjustStock(ctx, p.ID, -3)
	require.NoError(t, err)

	in := f.input("Crocin 650", 32)
	in.Stock = 10
	updated, err := f.svc.UpdateProduct(ctx, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Crocin 650", updated.Name)
	assert.Equal(t, 7, updated.Stock)
	assert.Len(t, updated.ImageURLs, 1)

	in.ImageURLs = []string{}
	updated, err = f.svc.UpdateProduct(ctx, p.ID, in)
	require.NoError(t, err)
	assert.Empty(t, updated.ImageURLs)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)

	p, err := f.svc.CreateProduct(ctx, f.input("Crocin", 30))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportProducts(ctx, &buf))
	assert.NotZero(t, buf.Len())

	report, err := f.svc.ImportProducts(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Zero(t, report.Created)
	assert.Zero(t, report.Skipped)

	got, err := f.svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Price)
	assert.Equal(t, 10, got.Stock)

	_, err = f.svc.ImportProducts(ctx, bytes.NewReader([]byte("nope")), 4)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestMedicines(t *testing.T) {
	ctx := context.Background()
	f := newCatalog(t)

	_, err := f.svc.CreateMedicine(ctx, models.Medicine{Name: " "})
	assert.ErrorIs(t, err, ErrInvalid)

	m, err := f.svc.CreateMedicine(ctx, models.Medicine{Name: "Paracetamol", Schedule: "otc"})
	require.NoError(t, err)
	assert.Equal(t, "OTC", m.Schedule)

	list, err := f.svc.ListMedicines(ctx, "para")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
