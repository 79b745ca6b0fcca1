package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
)

var ErrNoAddress = errors.New("aucune adresse enregistrée")

type AddressService struct {
	store store.Addresses
	Clock Clock
}

func NewAddressService(s store.Addresses) *AddressService {
	return &AddressService{store: s}
}

// SelectDefault: l'adresse marquée par défaut, sinon la plus ancienne.
// La liste est supposée triée par date de création.
func SelectDefault(list []models.Address) (models.Address, bool) {
	if len(list) == 0 {
		return models.Address{}, false
	}
	for _, a := range list {
		if a.IsDefault {
			return a, true
		}
	}
	return list[0], true
}

func (s *AddressService) List(ctx context.Context, userID string) ([]models.Address, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *AddressService) Get(ctx context.Context, userID string, id gocql.UUID) (models.Address, error) {
	return s.store.Get(ctx, userID, id)
}

func (s *AddressService) Default(ctx context.Context, userID string) (models.Address, error) {
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return models.Address{}, err
	}
	a, ok := SelectDefault(list)
	if !ok {
		return models.Address{}, ErrNoAddress
	}
	return a, nil
}

// Resolve renvoie l'adresse demandée si elle appartient à l'utilisateur, sinon l'adresse par défaut.
func (s *AddressService) Resolve(ctx context.Context, userID string, id *gocql.UUID) (models.Address, error) {
	if id != nil {
		return s.store.Get(ctx, userID, *id)
	}
	return s.Default(ctx, userID)
}

func (s *AddressService) Create(ctx context.Context, userID string, in models.AddressInput) (models.Address, error) {
	existing, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return models.Address{}, err
	}

	a := fromInput(in)
	a.ID = gocql.TimeUUID()
	a.UserID = userID
	a.CreatedAt = s.Clock.now()
	a.IsDefault = len(existing) == 0

	if err := s.store.Create(ctx, a); err != nil {
		return models.Address{}, err
	}
	if in.IsDefault && !a.IsDefault {
		if err := s.store.SetDefault(ctx, userID, a.ID); err != nil {
			return models.Address{}, err
		}
		a.IsDefault = true
	}

	log.Printf("📍 Adresse %s créée pour %s (défaut=%v)", a.ID, userID, a.IsDefault)
	return a, nil
}

func (s *AddressService) Update(ctx context.Context, userID string, id gocql.UUID, in models.AddressInput) (models.Address, error) {
	current, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return models.Address{}, err
	}

	a := fromInput(in)
	a.ID = current.ID
	a.UserID = userID
	a.CreatedAt = current.CreatedAt
	a.IsDefault = current.IsDefault

	if err := s.store.Update(ctx, a); err != nil {
		return models.Address{}, err
	}
	if in.IsDefault && !current.IsDefault {
		if err := s.store.SetDefault(ctx, userID, id); err != nil {
			return models.Address{}, err
		}
		a.IsDefault = true
	}
	return a, nil
}

// Delete promeut la plus ancienne adresse restante quand l'adresse supprimée était celle par défaut.
func (s *AddressService) Delete(ctx context.Context, userID string, id gocql.UUID) error {
	current, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	if !current.IsDefault {
		return nil
	}

	rest, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return nil
	}
	return s.store.SetDefault(ctx, userID, rest[0].ID)
}

func (s *AddressService) SetDefault(ctx context.Context, userID string, id gocql.UUID) (models.Address, error) {
	a, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return models.Address{}, err
	}
	if err := s.store.SetDefault(ctx, userID, id); err != nil {
		return models.Address{}, err
	}
	a.IsDefault = true
	return a, nil
}

func fromInput(in models.AddressInput) models.Address {
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if country == "" {
		country = "IN"
	}
	label := in.Label
	if label == "" {
		label = "home"
	}
	return models.Address{
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Line1:    strings.TrimSpace(in.Line1),
		Line2:    strings.TrimSpace(in.Line2),
		City:     strings.TrimSpace(in.City),
		State:    strings.TrimSpace(in.State),
		Pincode:  strings.TrimSpace(in.Pincode),
		Country:  country,
		Label:    label,
	}
}
