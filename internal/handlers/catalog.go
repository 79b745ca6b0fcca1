package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/service"
	"pharmacie_back_end/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type CatalogHandler struct {
	catalog *service.CatalogService
}

func NewCatalogHandler(s *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: s}
}

func page(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// productFilter lit ?category=(id|slug)&q=&rx=&limit=&offset=
func (h *CatalogHandler) productFilter(c *gin.Context) (store.ProductFilter, error) {
	f := store.ProductFilter{Query: c.Query("q")}
	f.Limit, f.Offset = page(c)

	if raw := c.Query("rx"); raw != "" {
		rx, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("%w: rx doit valoir true ou false", service.ErrInvalid)
		}
		f.RequiresPrescription = &rx
	}

	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		if id, err := gocql.ParseUUID(raw); err == nil {
			f.CategoryID = &id
			return f, nil
		}
		categories, err := h.catalog.ListCategories(c.Request.Context())
		if err != nil {
			return f, err
		}
		for _, cat := range categories {
			if strings.EqualFold(cat.Slug, raw) {
				id := cat.ID
				f.CategoryID = &id
				return f, nil
			}
		}
		return f, fmt.Errorf("catégorie %q: %w", raw, store.ErrNotFound)
	}
	return f, nil
}

func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// GET /api/products
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	f, err := h.productFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	products, err := h.catalog.ListProducts(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": orEmpty(products), "limit": f.Limit, "offset": f.Offset})
}

// GET /api/products/:id (les produits inactifs sont invisibles côté boutique)
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !p.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /api/products/search?q=
func (h *CatalogHandler) Search(c *gin.Context) {
	limit, _ := page(c)
	products, err := h.catalog.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": c.Query("q"), "products": orEmpty(products)})
}

// GET /api/categories
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(categories))
}

// GET /api/categories/:slug/products
func (h *CatalogHandler) CategoryProducts(c *gin.Context) {
	limit, offset := page(c)
	category, products, err := h.catalog.CategoryProducts(c.Request.Context(), c.Param("slug"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "products": orEmpty(products)})
}

// GET /api/medicines?q=
func (h *CatalogHandler) ListMedicines(c *gin.Context) {
	medicines, err := h.catalog.ListMedicines(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(medicines))
}

// --- Admin ---

// GET /api/admin/products (inclut les inactifs)
func (h *CatalogHandler) AdminListProducts(c *gin.Context) {
	f, err := h.productFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	f.IncludeInactive = true
	products, err := h.catalog.ListProducts(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": orEmpty(products), "limit": f.Limit, "offset": f.Offset})
}

// POST /api/admin/products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var in models.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// PUT /api/admin/products/:id
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in models.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.catalog.UpdateProduct(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DELETE /api/admin/products/:id
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit supprimé"})
}

// POST /api/admin/products/:id/image (multipart "file")
func (h *CatalogHandler) UploadImage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucun fichier reçu"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Fichier illisible"})
		return
	}
	defer f.Close()

	p, err := h.catalog.UploadImage(c.Request.Context(), id, f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /api/admin/products/export
func (h *CatalogHandler) ExportProducts(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.catalog.ExportProducts(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}
	name := fmt.Sprintf("produits-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// POST /api/admin/products/import (multipart "file", même format que l'export)
func (h *CatalogHandler) ImportProducts(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucun fichier reçu"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Fichier illisible"})
		return
	}
	defer f.Close()

	report, err := h.catalog.ImportProducts(c.Request.Context(), f, fh.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// POST /api/admin/categories
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var in models.Category
	if !bindJSON(c, &in) {
		return
	}
	cat, err := h.catalog.CreateCategory(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// DELETE /api/admin/categories/:id
func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Catégorie supprimée"})
}

// POST /api/admin/medicines
func (h *CatalogHandler) CreateMedicine(c *gin.Context) {
	var in models.Medicine
	if !bindJSON(c, &in) {
		return
	}
	m, err := h.catalog.CreateMedicine(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}
