package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/pricing"
	"pharmacie_back_end/internal/store/memory"
)

type fixture struct {
	svc       *Service
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	crocin    models.Product
	azithro   models.Product
	withdrawn models.Product
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stores := memory.New()

	f := fixture{
		mr:        mr,
		rdb:       rdb,
		crocin:    models.Product{ID: gocql.TimeUUID(), Name: "Crocin 650", Price: 30, MRP: 35, Stock: 10, IsActive: true, ImageURLs: []string{"crocin.jpg"}},
		azithro:   models.Product{ID: gocql.TimeUUID(), Name: "Azithral 500", Price: 120, Stock: 3, IsActive: true, RequiresPrescription: true},
		withdrawn: models.Product{ID: gocql.TimeUUID(), Name: "Old", Price: 10, Stock: 5},
	}
	for _, p := range []models.Product{f.crocin, f.azithro, f.withdrawn} {
		require.NoError(t, stores.Products.Create(ctx, p))
	}
	f.svc = NewService(rdb, stores.Products, pricing.ShippingPolicy{FreeThreshold: 500, Fee: 40}, time.Hour)
	return f
}

func TestAddAccumulatesAndComputesTotals(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.Add(ctx, "u1", f.crocin.ID, 2)
	require.NoError(t, err)
	c, err := f.svc.Add(ctx, "u1", f.crocin.ID, 1)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "crocin.jpg", c.Items[0].ImageURL)
	assert.Equal(t, 90.0, c.Totals.Subtotal)
	assert.Equal(t, 15.0, c.Totals.Discount)
	assert.Equal(t, 40.0, c.Totals.Shipping)
	assert.Equal(t, 130.0, c.Totals.Total)
	assert.False(t, c.RequiresPrescription)

	assert.Equal(t, time.Hour, f.mr.TTL(Key("u1")))
}

func TestAddRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.Add(ctx, "u1", f.crocin.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.Add(ctx, "u1", gocql.TimeUUID(), 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.svc.Add(ctx, "u1", f.withdrawn.ID, 1)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = f.svc.Add(ctx, "u1", f.azithro.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, "u1", f.azithro.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.Add(ctx, "u1", f.crocin.ID, 1)
	require.NoError(t, err)
	c, err := f.svc.Add(ctx, "u1", f.azithro.ID, 1)
	require.NoError(t, err)
	assert.True(t, c.RequiresPrescription)

	c, err = f.svc.Update(ctx, "u1", f.crocin.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Items[0].Quantity)

	_, err = f.svc.Update(ctx, "u1", f.crocin.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.Update(ctx, "u2", f.crocin.ID, 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	c, err = f.svc.Update(ctx, "u1", f.azithro.ID, 0)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.False(t, c.RequiresPrescription)

	c, err = f.svc.Remove(ctx, "u1", f.crocin.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.False(t, f.mr.Exists(Key("u1")))
}

func TestMutationsArePublished(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sub := f.rdb.Subscribe(ctx, Key("u1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	_, err = f.svc.Add(ctx, "u1", f.crocin.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx, "u1"))

	ch := sub.Channel()
	got := []string{(<-ch).Payload, (<-ch).Payload}
	assert.Equal(t, []string{EventUpdated, EventCleared}, got)
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Add(ctx, "u1", f.crocin.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := f.svc.Items(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, writers, items[0].Quantity)
}

func TestLockIsExclusiveAndOwned(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	unlock, err := f.svc.Lock(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.Lock(ctx, "u1")
	assert.ErrorIs(t, err, ErrCheckoutInProgress)

	// Verrou expiré puis repris: l'ancien détenteur ne doit pas le supprimer.
	f.mr.FastForward(LockTTL + time.Second)
	unlockNext, err := f.svc.Lock(ctx, "u1")
	require.NoError(t, err)
	unlock()
	_, err = f.svc.Lock(ctx, "u1")
	assert.ErrorIs(t, err, ErrCheckoutInProgress)

	unlockNext()
	again, err := f.svc.Lock(ctx, "u1")
	require.NoError(t, err)
	again()
}
