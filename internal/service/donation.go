package service

import (
	"context"
	"strings"

	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/validation"
)

var donationTransitions = map[string][]string{
	models.DonationPending:   {models.DonationScheduled, models.DonationRejected},
	models.DonationScheduled: {models.DonationCollected, models.DonationRejected},
}

func CanTransitionDonation(from, to string) bool {
	for _, s := range donationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type DonationService struct {
	store store.Donations
	Clock Clock
}

func NewDonationService(s store.Donations) *DonationService {
	return &DonationService{store: s}
}

func (s *DonationService) Create(ctx context.Context, userID string, in models.DonationInput) (models.Donation, error) {
	if err := validation.Struct(in); err != nil {
		return models.Donation{}, invalidf("%v", err)
	}

	meds := make([]models.DonatedMedicine, 0, len(in.Medicines))
	for _, m := range in.Medicines {
		m.Name = strings.TrimSpace(m.Name)
		meds = append(meds, m)
	}

	now := s.Clock.now()
	d := models.Donation{
		ID:            gocql.TimeUUID(),
		UserID:        userID,
		DonorName:     strings.TrimSpace(in.DonorName),
		Phone:         strings.TrimSpace(in.Phone),
		PickupAddress: strings.TrimSpace(in.PickupAddress),
		City:          strings.TrimSpace(in.City),
		Pincode:       strings.TrimSpace(in.Pincode),
		Medicines:     meds,
		Notes:         strings.TrimSpace(in.Notes),
		Status:        models.DonationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return models.Donation{}, err
	}
	log.Printf("💊 Don %s enregistré (%d médicaments, %s)", d.ID, len(meds), d.City)
	return d, nil
}

func (s *DonationService) List(ctx context.Context, userID string) ([]models.Donation, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *DonationService) ListAll(ctx context.Context) ([]models.Donation, error) {
	return s.store.ListAll(ctx)
}

func (s *DonationService) Get(ctx context.Context, userID string, id gocql.UUID) (models.Donation, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Donation{}, err
	}
	if d.UserID != userID {
		return models.Donation{}, store.ErrNotFound
	}
	return d, nil
}

func (s *DonationService) UpdateStatus(ctx context.Context, id gocql.UUID, status string) (models.Donation, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Donation{}, err
	}
	if !CanTransitionDonation(d.Status, status) {
		return models.Donation{}, conflictf("transition %s → %s interdite", d.Status, status)
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return models.Donation{}, err
	}
	d.Status = status
	d.UpdatedAt = s.Clock.now()
	return d, nil
}
