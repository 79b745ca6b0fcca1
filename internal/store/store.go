// Package store définit les dépôts par ressource. Chaque dépôt est une fine
// couche CRUD au-dessus du driver choisi (ScyllaDB ou mémoire).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/models"
)

var (
	ErrNotFound          = errors.New("introuvable")
	ErrConflict          = errors.New("existe déjà")
	ErrInsufficientStock = errors.New("stock insuffisant")
)

type ProductFilter struct {
	CategoryID           *gocql.UUID
	Query                string
	RequiresPrescription *bool
	IncludeInactive      bool
	Limit                int
	Offset               int
}

type Products interface {
	List(ctx context.Context, f ProductFilter) ([]models.Product, error)
	Get(ctx context.Context, id gocql.UUID) (models.Product, error)
	Create(ctx context.Context, p models.Product) error
	// Update réécrit la fiche sans toucher au stock, qui ne bouge que par
	// AdjustStock. image_urls n'est remplacé que si p.ImageURLs n'est pas nil.
	Update(ctx context.Context, p models.Product) error
	// AddImage ajoute url en fin de liste sans relire la fiche.
	AddImage(ctx context.Context, id gocql.UUID, url string, at time.Time) error
	Delete(ctx context.Context, id gocql.UUID) error
	// AdjustStock ajoute delta (négatif pour une vente) et renvoie le nouveau stock.
	AdjustStock(ctx context.Context, id gocql.UUID, delta int) (int, error)
}

type Categories interface {
	List(ctx context.Context) ([]models.Category, error)
	Get(ctx context.Context, id gocql.UUID) (models.Category, error)
	GetBySlug(ctx context.Context, slug string) (models.Category, error)
	Create(ctx context.Context, c models.Category) error
	Delete(ctx context.Context, id gocql.UUID) error
}

type Medicines interface {
	List(ctx context.Context, query string) ([]models.Medicine, error)
	Get(ctx context.Context, id gocql.UUID) (models.Medicine, error)
	Create(ctx context.Context, m models.Medicine) error
}

type Orders interface {
	Create(ctx context.Context, o models.Order) error
	Get(ctx context.Context, id gocql.UUID) (models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	// UpdateStatus passe de from à to seulement si le statut courant vaut
	// encore from; sinon ErrConflict. Un seul appelant gagne une transition.
	UpdateStatus(ctx context.Context, id gocql.UUID, from, to string) error
}

type Addresses interface {
	ListByUser(ctx context.Context, userID string) ([]models.Address, error)
	Get(ctx context.Context, userID string, id gocql.UUID) (models.Address, error)
	Create(ctx context.Context, a models.Address) error
	Update(ctx context.Context, a models.Address) error
	Delete(ctx context.Context, userID string, id gocql.UUID) error
	// SetDefault retire le drapeau des autres adresses et le pose sur id, en une seule écriture atomique.
	SetDefault(ctx context.Context, userID string, id gocql.UUID) error
}

type Prescriptions interface {
	Create(ctx context.Context, p models.Prescription) error
	Get(ctx context.Context, id gocql.UUID) (models.Prescription, error)
	ListByUser(ctx context.Context, userID string) ([]models.Prescription, error)
	ListByStatus(ctx context.Context, status string) ([]models.Prescription, error)
	// Delete refuse (ErrConflict) une ordonnance rattachée à une commande.
	Delete(ctx context.Context, id gocql.UUID) error

	// Les écritures suivantes ne touchent que leurs colonnes et sont
	// conditionnelles: ErrConflict si la condition ne tient plus.
	SetStatus(ctx context.Context, id gocql.UUID, from, to string, at time.Time) error
	// SetExtraction enregistre la lecture et passe processing → processed.
	SetExtraction(ctx context.Context, id gocql.UUID, ex models.PrescriptionExtraction, at time.Time) error
	SetReview(ctx context.Context, id gocql.UUID, from, to, note string, at time.Time) error
	// ClaimForOrder pose order_id sur une ordonnance exploitable encore libre.
	ClaimForOrder(ctx context.Context, id, orderID gocql.UUID, at time.Time) error
	// ReleaseOrder libère l'ordonnance si elle est toujours tenue par orderID.
	ReleaseOrder(ctx context.Context, id, orderID gocql.UUID, at time.Time) error
}

type Donations interface {
	Create(ctx context.Context, d models.Donation) error
	Get(ctx context.Context, id gocql.UUID) (models.Donation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Donation, error)
	ListAll(ctx context.Context) ([]models.Donation, error)
	UpdateStatus(ctx context.Context, id gocql.UUID, status string) error
}

type Profiles interface {
	Get(ctx context.Context, userID string) (models.UserProfile, error)
	Upsert(ctx context.Context, p models.UserProfile) error
}

type Users interface {
	Create(ctx context.Context, u models.User) error
	Get(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByProvider(ctx context.Context, provider, providerID string) (models.User, error)
	// LinkProvider rattache une identité OAuth à un compte existant.
	LinkProvider(ctx context.Context, userID, provider, providerID string) error
}

// Stores regroupe tous les dépôts d'un même driver.
type Stores struct {
	Products      Products
	Categories    Categories
	Medicines     Medicines
	Orders        Orders
	Addresses     Addresses
	Prescriptions Prescriptions
	Donations     Donations
	Profiles      Profiles
	Users         Users
}
