package store

import (
	"strings"

	"pharmacie_back_end/internal/models"
)

// Match applique un filtre produit en mémoire. Utilisé par le driver mémoire
// et par le repli ScyllaDB qui ne sait pas faire de LIKE.
func (f ProductFilter) Match(p models.Product) bool {
	if !f.IncludeInactive && !p.IsActive {
		return false
	}
	if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
		return false
	}
	if f.RequiresPrescription != nil && p.RequiresPrescription != *f.RequiresPrescription {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		return containsFold(p.Name, q) || containsFold(p.Description, q) ||
			containsFold(p.Composition, q) || anyContainsFold(p.Tags, q)
	}
	return true
}

// Page découpe une liste déjà triée selon Limit/Offset.
func Page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func anyContainsFold(values []string, q string) bool {
	for _, v := range values {
		if containsFold(v, q) {
			return true
		}
	}
	return false
}
