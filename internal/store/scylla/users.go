package scylla

import (
	"context"
	"sort"
	"strings"

	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
)

type userStore struct{ s *gocql.Session }

// Create réserve l'email par une insertion conditionnelle avant d'écrire l'utilisateur.
func (r *userStore) Create(ctx context.Context, u models.User) error {
	email := strings.ToLower(u.Email)
	existing := map[string]any{}
	applied, err := r.s.Query(`INSERT INTO users_by_email (email, user_id) VALUES (?, ?) IF NOT EXISTS`, email, u.ID).
		WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return err
	}
	if !applied {
		return store.ErrConflict
	}

	batch := r.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO users (user_id, email, password, name, role, provider, provider_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, email, u.Password, u.Name, u.Role, u.Provider, u.ProviderID, u.CreatedAt)
	if u.Provider != "" && u.ProviderID != "" {
		batch.Query(`INSERT INTO users_by_provider (provider, provider_id, user_id) VALUES (?, ?, ?)`, u.Provider, u.ProviderID, u.ID)
	}
	return r.s.ExecuteBatch(batch)
}

func (r *userStore) Get(ctx context.Context, id string) (models.User, error) {
	u := models.User{ID: id}
	err := r.s.Query(`SELECT email, password, name, role, provider, provider_id, created_at FROM users WHERE user_id = ?`, id).
		WithContext(ctx).Scan(&u.Email, &u.Password, &u.Name, &u.Role, &u.Provider, &u.ProviderID, &u.CreatedAt)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}

func (r *userStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var id string
	err := r.s.Query(`SELECT user_id FROM users_by_email WHERE email = ?`, strings.ToLower(email)).WithContext(ctx).Scan(&id)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return r.Get(ctx, id)
}

// LinkProvider réserve l'identité (IF NOT EXISTS) pour qu'elle ne désigne jamais deux comptes.
func (r *userStore) LinkProvider(ctx context.Context, userID, provider, providerID string) error {
	existing := map[string]any{}
	applied, err := r.s.Query(`INSERT INTO users_by_provider (provider, provider_id, user_id) VALUES (?, ?, ?) IF NOT EXISTS`,
		provider, providerID, userID).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return err
	}
	if !applied {
		if owner, _ := existing["user_id"].(string); owner != userID {
			return store.ErrConflict
		}
	}
	return nil
}

func (r *userStore) GetByProvider(ctx context.Context, provider, providerID string) (models.User, error) {
	var id string
	err := r.s.Query(`SELECT user_id FROM users_by_provider WHERE provider = ? AND provider_id = ?`, provider, providerID).
		WithContext(ctx).Scan(&id)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return r.Get(ctx, id)
}

// --- Adresses: partitionnées par utilisateur, triées par timeuuid (ordre de création) ---

const addressColumns = `address_id, user_id, full_name, phone, line1, line2, city, state, pincode, country, label, is_default, created_at`

type addressStore struct{ s *gocql.Session }

func (r *addressStore) ListByUser(ctx context.Context, userID string) ([]models.Address, error) {
	iter := r.s.Query(`SELECT `+addressColumns+` FROM addresses WHERE user_id = ?`, userID).WithContext(ctx).Iter()
	var (
		a   models.Address
		out []models.Address
	)
	for iter.Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.Pincode, &a.Country, &a.Label, &a.IsDefault, &a.CreatedAt) {
		out = append(out, a)
		a = models.Address{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *addressStore) Get(ctx context.Context, userID string, id gocql.UUID) (models.Address, error) {
	var a models.Address
	err := r.s.Query(`SELECT `+addressColumns+` FROM addresses WHERE user_id = ? AND address_id = ?`, userID, id).WithContext(ctx).
		Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.Pincode, &a.Country, &a.Label, &a.IsDefault, &a.CreatedAt)
	if err != nil {
		return models.Address{}, notFound(err)
	}
	return a, nil
}

func (r *addressStore) Create(ctx context.Context, a models.Address) error {
	return r.s.Query(`INSERT INTO addresses (`+addressColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.FullName, a.Phone, a.Line1, a.Line2, a.City, a.State, a.Pincode, a.Country, a.Label, a.IsDefault, a.CreatedAt).
		WithContext(ctx).Exec()
}

func (r *addressStore) Update(ctx context.Context, a models.Address) error {
	if _, err := r.Get(ctx, a.UserID, a.ID); err != nil {
		return err
	}
	return r.s.Query(`UPDATE addresses SET full_name = ?, phone = ?, line1 = ?, line2 = ?, city = ?, state = ?, pincode = ?,
		country = ?, label = ?, is_default = ? WHERE user_id = ? AND address_id = ?`,
		a.FullName, a.Phone, a.Line1, a.Line2, a.City, a.State, a.Pincode, a.Country, a.Label, a.IsDefault, a.UserID, a.ID).
		WithContext(ctx).Exec()
}

func (r *addressStore) Delete(ctx context.Context, userID string, id gocql.UUID) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	return r.s.Query(`DELETE FROM addresses WHERE user_id = ? AND address_id = ?`, userID, id).WithContext(ctx).Exec()
}

// SetDefault écrit toutes les lignes de la partition dans un batch: un batch
// mono-partition est appliqué atomiquement et de façon isolée.
func (r *addressStore) SetDefault(ctx context.Context, userID string, id gocql.UUID) error {
	list, err := r.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	found := false
	for _, a := range list {
		if a.ID == id {
			found = true
			break
		}
	}
	if !found {
		return store.ErrNotFound
	}

	batch := r.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, a := range list {
		batch.Query(`UPDATE addresses SET is_default = ? WHERE user_id = ? AND address_id = ?`, a.ID == id, userID, a.ID)
	}
	return r.s.ExecuteBatch(batch)
}

// --- Profils ---

type profileStore struct{ s *gocql.Session }

func (r *profileStore) Get(ctx context.Context, userID string) (models.UserProfile, error) {
	p := models.UserProfile{UserID: userID}
	err := r.s.Query(`SELECT full_name, phone, date_of_birth, gender, avatar_url, updated_at FROM profiles WHERE user_id = ?`, userID).
		WithContext(ctx).Scan(&p.FullName, &p.Phone, &p.DateOfBirth, &p.Gender, &p.AvatarURL, &p.UpdatedAt)
	if err != nil {
		return models.UserProfile{}, notFound(err)
	}
	return p, nil
}

func (r *profileStore) Upsert(ctx context.Context, p models.UserProfile) error {
	return r.s.Query(`INSERT INTO profiles (user_id, full_name, phone, date_of_birth, gender, avatar_url, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.FullName, p.Phone, p.DateOfBirth, p.Gender, p.AvatarURL, p.UpdatedAt).WithContext(ctx).Exec()
}
