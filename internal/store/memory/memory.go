// Package memory est le driver en mémoire des dépôts: développement local
// (STORAGE_DRIVER=memory) et tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
)

// db garde toutes les tables derrière un seul verrou.
type db struct {
	mu            sync.RWMutex
	products      map[gocql.UUID]models.Product
	categories    map[gocql.UUID]models.Category
	medicines     map[gocql.UUID]models.Medicine
	orders        map[gocql.UUID]models.Order
	addresses     map[gocql.UUID]models.Address
	prescriptions map[gocql.UUID]models.Prescription
	donations     map[gocql.UUID]models.Donation
	profiles      map[string]models.UserProfile
	users         map[string]models.User
	// providers associe "provider:provider_id" à un user_id.
	providers map[string]string
}

// New crée un jeu de dépôts vide partageant la même base.
func New() *store.Stores {
	d := &db{
		products:      map[gocql.UUID]models.Product{},
		categories:    map[gocql.UUID]models.Category{},
		medicines:     map[gocql.UUID]models.Medicine{},
		orders:        map[gocql.UUID]models.Order{},
		addresses:     map[gocql.UUID]models.Address{},
		prescriptions: map[gocql.UUID]models.Prescription{},
		donations:     map[gocql.UUID]models.Donation{},
		profiles:      map[string]models.UserProfile{},
		users:         map[string]models.User{},
		providers:     map[string]string{},
	}
	return &store.Stores{
		Products:      productStore{d},
		Categories:    categoryStore{d},
		Medicines:     medicineStore{d},
		Orders:        orderStore{d},
		Addresses:     addressStore{d},
		Prescriptions: prescriptionStore{d},
		Donations:     donationStore{d},
		Profiles:      profileStore{d},
		Users:         userStore{d},
	}
}

// --- Produits ---

type productStore struct{ d *db }

func (s productStore) List(_ context.Context, f store.ProductFilter) ([]models.Product, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	out := []models.Product{}
	for _, p := range s.d.products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return store.Page(out, f.Limit, f.Offset), nil
}

func (s productStore) Get(_ context.Context, id gocql.UUID) (models.Product, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	p, ok := s.d.products[id]
	if !ok {
		return models.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (s productStore) Create(_ context.Context, p models.Product) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.products[p.ID]; ok {
		return store.ErrConflict
	}
	s.d.products[p.ID] = p
	return nil
}

func (s productStore) Update(_ context.Context, p models.Product) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	old, ok := s.d.products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock = old.Stock
	if p.ImageURLs == nil {
		p.ImageURLs = old.ImageURLs
	}
	s.d.products[p.ID] = p
	return nil
}

func (s productStore) AddImage(_ context.Context, id gocql.UUID, url string, at time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.ImageURLs = append(append([]string(nil), p.ImageURLs...), url)
	p.UpdatedAt = at
	s.d.products[id] = p
	return nil
}

func (s productStore) Delete(_ context.Context, id gocql.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.d.products, id)
	return nil
}

func (s productStore) AdjustStock(_ context.Context, id gocql.UUID, delta int) (int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.products[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return p.Stock, store.ErrInsufficientStock
	}
	p.Stock += delta
	p.UpdatedAt = time.Now()
	s.d.products[id] = p
	return p.Stock, nil
}

// --- Catégories ---

type categoryStore struct{ d *db }

func (s categoryStore) List(_ context.Context) ([]models.Category, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := make([]models.Category, 0, len(s.d.categories))
	for _, c := range s.d.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s categoryStore) Get(_ context.Context, id gocql.UUID) (models.Category, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	c, ok := s.d.categories[id]
	if !ok {
		return models.Category{}, store.ErrNotFound
	}
	return c, nil
}

func (s categoryStore) GetBySlug(_ context.Context, slug string) (models.Category, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	for _, c := range s.d.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return models.Category{}, store.ErrNotFound
}

func (s categoryStore) Create(_ context.Context, c models.Category) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.categories {
		if existing.Slug == c.Slug {
			return store.ErrConflict
		}
	}
	s.d.categories[c.ID] = c
	return nil
}

func (s categoryStore) Delete(_ context.Context, id gocql.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.d.categories, id)
	return nil
}

// --- Médicaments (référentiel) ---

type medicineStore struct{ d *db }

func (s medicineStore) List(_ context.Context, query string) ([]models.Medicine, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	out := []models.Medicine{}
	for _, m := range s.d.medicines {
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Composition), q) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s medicineStore) Get(_ context.Context, id gocql.UUID) (models.Medicine, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	m, ok := s.d.medicines[id]
	if !ok {
		return models.Medicine{}, store.ErrNotFound
	}
	return m, nil
}

func (s medicineStore) Create(_ context.Context, m models.Medicine) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.medicines[m.ID] = m
	return nil
}

// --- Commandes ---

type orderStore struct{ d *db }

func (s orderStore) Create(_ context.Context, o models.Order) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o.Items = append([]models.OrderItem(nil), o.Items...)
	s.d.orders[o.ID] = o
	return nil
}

func (s orderStore) Get(_ context.Context, id gocql.UUID) (models.Order, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	o, ok := s.d.orders[id]
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (s orderStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := []models.Order{}
	for _, o := range s.d.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (s orderStore) ListAll(_ context.Context) ([]models.Order, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := make([]models.Order, 0, len(s.d.orders))
	for _, o := range s.d.orders {
		out = append(out, o)
	}
	sortOrders(out)
	return out, nil
}

func (s orderStore) UpdateStatus(_ context.Context, id gocql.UUID, from, to string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if o.Status != from {
		return store.ErrConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	s.d.orders[id] = o
	return nil
}

func sortOrders(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
}

// --- Adresses ---

type addressStore struct{ d *db }

func (s addressStore) ListByUser(_ context.Context, userID string) ([]models.Address, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := []models.Address{}
	for _, a := range s.d.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s addressStore) Get(_ context.Context, userID string, id gocql.UUID) (models.Address, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	a, ok := s.d.addresses[id]
	if !ok || a.UserID != userID {
		return models.Address{}, store.ErrNotFound
	}
	return a, nil
}

func (s addressStore) Create(_ context.Context, a models.Address) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.addresses[a.ID] = a
	return nil
}

func (s addressStore) Update(_ context.Context, a models.Address) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	existing, ok := s.d.addresses[a.ID]
	if !ok || existing.UserID != a.UserID {
		return store.ErrNotFound
	}
	s.d.addresses[a.ID] = a
	return nil
}

func (s addressStore) Delete(_ context.Context, userID string, id gocql.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	a, ok := s.d.addresses[id]
	if !ok || a.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.d.addresses, id)
	return nil
}

func (s addressStore) SetDefault(_ context.Context, userID string, id gocql.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	target, ok := s.d.addresses[id]
	if !ok || target.UserID != userID {
		return store.ErrNotFound
	}
	for aid, a := range s.d.addresses {
		if a.UserID != userID {
			continue
		}
		a.IsDefault = aid == id
		s.d.addresses[aid] = a
	}
	return nil
}

// --- Ordonnances ---

type prescriptionStore struct{ d *db }

func (s prescriptionStore) Create(_ context.Context, p models.Prescription) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.prescriptions[p.ID] = p
	return nil
}

func (s prescriptionStore) Get(_ context.Context, id gocql.UUID) (models.Prescription, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	p, ok := s.d.prescriptions[id]
	if !ok {
		return models.Prescription{}, store.ErrNotFound
	}
	return p, nil
}

func (s prescriptionStore) ListByUser(_ context.Context, userID string) ([]models.Prescription, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := []models.Prescription{}
	for _, p := range s.d.prescriptions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s prescriptionStore) ListByStatus(_ context.Context, status string) ([]models.Prescription, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := []models.Prescription{}
	for _, p := range s.d.prescriptions {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s prescriptionStore) Delete(_ context.Context, id gocql.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.prescriptions[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.OrderID != nil {
		return store.ErrConflict
	}
	delete(s.d.prescriptions, id)
	return nil
}

// mutate applique fn sous le verrou d'écriture; fn renvoie false si sa condition ne tient pas.
func (s prescriptionStore) mutate(id gocql.UUID, at time.Time, fn func(p *models.Prescription) bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.prescriptions[id]
	if !ok {
		return store.ErrNotFound
	}
	if !fn(&p) {
		return store.ErrConflict
	}
	p.UpdatedAt = at
	s.d.prescriptions[id] = p
	return nil
}

func (s prescriptionStore) SetStatus(_ context.Context, id gocql.UUID, from, to string, at time.Time) error {
	return s.mutate(id, at, func(p *models.Prescription) bool {
		if p.Status != from {
			return false
		}
		p.Status = to
		return true
	})
}

func (s prescriptionStore) SetExtraction(_ context.Context, id gocql.UUID, ex models.PrescriptionExtraction, at time.Time) error {
	return s.mutate(id, at, func(p *models.Prescription) bool {
		if p.Status != models.PrescriptionProcessing {
			return false
		}
		p.Status = models.PrescriptionProcessed
		p.Extraction = &ex
		return true
	})
}

func (s prescriptionStore) SetReview(_ context.Context, id gocql.UUID, from, to, note string, at time.Time) error {
	return s.mutate(id, at, func(p *models.Prescription) bool {
		if p.Status != from {
			return false
		}
		p.Status = to
		p.ReviewNote = note
		return true
	})
}

func (s prescriptionStore) ClaimForOrder(_ context.Context, id, orderID gocql.UUID, at time.Time) error {
	return s.mutate(id, at, func(p *models.Prescription) bool {
		if p.OrderID != nil || !p.Usable() {
			return false
		}
		p.OrderID = &orderID
		return true
	})
}

func (s prescriptionStore) ReleaseOrder(_ context.Context, id, orderID gocql.UUID, at time.Time) error {
	return s.mutate(id, at, func(p *models.Prescription) bool {
		if p.OrderID == nil || *p.OrderID != orderID {
			return false
		}
		p.OrderID = nil
		return true
	})
}

// --- Dons ---

type donationStore struct{ d *db }

func (s donationStore) Create(_ context.Context, d models.Donation) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	d.Medicines = append([]models.DonatedMedicine(nil), d.Medicines...)
	s.d.donations[d.ID] = d
	return nil
}

func (s donationStore) Get(_ context.Context, id gocql.UUID) (models.Donation, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	d, ok := s.d.donations[id]
	if !ok {
		return models.Donation{}, store.ErrNotFound
	}
	return d, nil
}

func (s donationStore) ListByUser(_ context.Context, userID string) ([]models.Donation, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := []models.Donation{}
	for _, d := range s.d.donations {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sortDonations(out)
	return out, nil
}

func (s donationStore) ListAll(_ context.Context) ([]models.Donation, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := make([]models.Donation, 0, len(s.d.donations))
	for _, d := range s.d.donations {
		out = append(out, d)
	}
	sortDonations(out)
	return out, nil
}

func (s donationStore) UpdateStatus(_ context.Context, id gocql.UUID, status string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	d, ok := s.d.donations[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now()
	s.d.donations[id] = d
	return nil
}

func sortDonations(ds []models.Donation) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].CreatedAt.After(ds[j].CreatedAt) })
}

// --- Profils ---

type profileStore struct{ d *db }

func (s profileStore) Get(_ context.Context, userID string) (models.UserProfile, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	p, ok := s.d.profiles[userID]
	if !ok {
		return models.UserProfile{}, store.ErrNotFound
	}
	return p, nil
}

func (s profileStore) Upsert(_ context.Context, p models.UserProfile) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.profiles[p.UserID] = p
	return nil
}

// --- Utilisateurs ---

type userStore struct{ d *db }

func (s userStore) Create(_ context.Context, u models.User) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrConflict
		}
	}
	s.d.users[u.ID] = u
	if u.Provider != "" && u.ProviderID != "" {
		s.d.providers[providerKey(u.Provider, u.ProviderID)] = u.ID
	}
	return nil
}

func (s userStore) Get(_ context.Context, id string) (models.User, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	u, ok := s.d.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s userStore) GetByEmail(_ context.Context, email string) (models.User, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	for _, u := range s.d.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (s userStore) GetByProvider(_ context.Context, provider, providerID string) (models.User, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	u, ok := s.d.users[s.d.providers[providerKey(provider, providerID)]]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s userStore) LinkProvider(_ context.Context, userID, provider, providerID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.users[userID]; !ok {
		return store.ErrNotFound
	}
	key := providerKey(provider, providerID)
	if owner, ok := s.d.providers[key]; ok && owner != userID {
		return store.ErrConflict
	}
	s.d.providers[key] = userID
	return nil
}

func providerKey(provider, providerID string) string {
	return provider + ":" + providerID
}
