package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
)

func TestProductListFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	cat := gocql.TimeUUID()
	rx := true

	require.NoError(t, s.Products.Create(ctx, models.Product{ID: gocql.TimeUUID(), Name: "Paracetamol 500", CategoryID: cat, IsActive: true}))
	require.NoError(t, s.Products.Create(ctx, models.Product{ID: gocql.TimeUUID(), Name: "Amoxicillin 250", CategoryID: cat, IsActive: true, RequiresPrescription: true}))
	require.NoError(t, s.Products.Create(ctx, models.Product{ID: gocql.TimeUUID(), Name: "Old syrup", CategoryID: cat}))

	all, err := s.Products.List(ctx, store.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyRx, err := s.Products.List(ctx, store.ProductFilter{RequiresPrescription: &rx})
	require.NoError(t, err)
	require.Len(t, onlyRx, 1)
	assert.Equal(t, "Amoxicillin 250", onlyRx[0].Name)

	byName, err := s.Products.List(ctx, store.ProductFilter{Query: "para"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	paged, err := s.Products.List(ctx, store.ProductFilter{IncludeInactive: true, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "Old syrup", paged[0].Name)
}

func TestAdjustStockRefusesNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := gocql.TimeUUID()
	require.NoError(t, s.Products.Create(ctx, models.Product{ID: id, Name: "ORS", Stock: 2, IsActive: true}))

	left, err := s.Products.AdjustStock(ctx, id, -2)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, err = s.Products.AdjustStock(ctx, id, -1)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestAddressSetDefaultIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	a := models.Address{ID: gocql.TimeUUID(), UserID: "u1", IsDefault: true, CreatedAt: now}
	b := models.Address{ID: gocql.TimeUUID(), UserID: "u1", CreatedAt: now.Add(time.Second)}
	other := models.Address{ID: gocql.TimeUUID(), UserID: "u2", IsDefault: true, CreatedAt: now}
	for _, addr := range []models.Address{a, b, other} {
		require.NoError(t, s.Addresses.Create(ctx, addr))
	}

	require.NoError(t, s.Addresses.SetDefault(ctx, "u1", b.ID))

	list, err := s.Addresses.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].IsDefault)
	assert.True(t, list[1].IsDefault)

	o, err := s.Addresses.Get(ctx, "u2", other.ID)
	require.NoError(t, err)
	assert.True(t, o.IsDefault)

	assert.ErrorIs(t, s.Addresses.SetDefault(ctx, "u2", a.ID), store.ErrNotFound)
}

func TestUserEmailIsUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Users.Create(ctx, models.User{ID: "1", Email: "a@b.in"}))
	assert.ErrorIs(t, s.Users.Create(ctx, models.User{ID: "2", Email: "A@B.in"}), store.ErrConflict)
}

func TestOrderStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	o := models.Order{ID: gocql.TimeUUID(), UserID: "u1", Status: models.OrderPending}
	require.NoError(t, s.Orders.Create(ctx, o))

	require.NoError(t, s.Orders.UpdateStatus(ctx, o.ID, models.OrderPending, models.OrderCancelled))
	assert.ErrorIs(t, s.Orders.UpdateStatus(ctx, o.ID, models.OrderPending, models.OrderConfirmed), store.ErrConflict)
	assert.ErrorIs(t, s.Orders.UpdateStatus(ctx, gocql.TimeUUID(), models.OrderPending, models.OrderConfirmed), store.ErrNotFound)

	got, err := s.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
}

func TestPrescriptionClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	p := models.Prescription{ID: gocql.TimeUUID(), UserID: "u1", Status: models.PrescriptionUploaded, CreatedAt: now}
	require.NoError(t, s.Prescriptions.Create(ctx, p))

	first, second := gocql.TimeUUID(), gocql.TimeUUID()
	assert.ErrorIs(t, s.Prescriptions.ClaimForOrder(ctx, p.ID, first, now), store.ErrConflict, "pas encore exploitable")

	require.NoError(t, s.Prescriptions.SetStatus(ctx, p.ID, models.PrescriptionUploaded, models.PrescriptionProcessing, now))
	require.NoError(t, s.Prescriptions.SetExtraction(ctx, p.ID, models.PrescriptionExtraction{}, now))
	require.NoError(t, s.Prescriptions.ClaimForOrder(ctx, p.ID, first, now))
	assert.ErrorIs(t, s.Prescriptions.ClaimForOrder(ctx, p.ID, second, now), store.ErrConflict)
	assert.ErrorIs(t, s.Prescriptions.Delete(ctx, p.ID), store.ErrConflict)

	assert.ErrorIs(t, s.Prescriptions.ReleaseOrder(ctx, p.ID, second, now), store.ErrConflict)
	require.NoError(t, s.Prescriptions.ReleaseOrder(ctx, p.ID, first, now))
	require.NoError(t, s.Prescriptions.ClaimForOrder(ctx, p.ID, second, now))

	got, err := s.Prescriptions.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, second, *got.OrderID)
	assert.Equal(t, models.PrescriptionProcessed, got.Status)
}

func TestLinkProviderKeepsFirstOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Users.Create(ctx, models.User{ID: "1", Email: "a@b.in"}))
	require.NoError(t, s.Users.Create(ctx, models.User{ID: "2", Email: "c@d.in"}))

	require.NoError(t, s.Users.LinkProvider(ctx, "1", "google", "g-1"))
	require.NoError(t, s.Users.LinkProvider(ctx, "1", "google", "g-1"))
	assert.ErrorIs(t, s.Users.LinkProvider(ctx, "2", "google", "g-1"), store.ErrConflict)

	u, err := s.Users.GetByProvider(ctx, "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)
}
