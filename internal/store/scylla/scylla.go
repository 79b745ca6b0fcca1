// Package scylla implémente les dépôts sur ScyllaDB (gocql). Les structures
// imbriquées (lignes de commande, extraction d'ordonnance, médicaments donnés)
// sont stockées en JSON dans des colonnes text.
package scylla

import (
	"encoding/json"
	"errors"

	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/store"
)

// New construit les dépôts à partir des trois sessions par keyspace.
func New(catalog, users, orders *gocql.Session) *store.Stores {
	return &store.Stores{
		Products:      &productStore{s: catalog},
		Categories:    &categoryStore{s: catalog},
		Medicines:     &medicineStore{s: catalog},
		Orders:        &orderStore{s: orders},
		Addresses:     &addressStore{s: users},
		Prescriptions: &prescriptionStore{s: orders},
		Donations:     &donationStore{s: orders},
		Profiles:      &profileStore{s: users},
		Users:         &userStore{s: users},
	}
}

// notFound traduit gocql.ErrNotFound en erreur du dépôt.
func notFound(err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return store.ErrNotFound
	}
	return err
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
