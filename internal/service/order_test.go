package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/cart"
	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/payment"
	"pharmacie_back_end/internal/pricing"
	"pharmacie_back_end/internal/storage"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/store/memory"
)

type fakeGateway struct {
	mu         sync.Mutex
	created    []string
	cancelled  []string
	refunded   []string
	fail       bool
	refundFail bool
	// slow élargit la fenêtre de course des annulations concurrentes.
	slow time.Duration
}

func (g *fakeGateway) CreateIntent(_ context.Context, o models.Order) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return payment.Intent{}, errors.New("card_declined")
	}
	g.created = append(g.created, o.ID.String())
	return payment.Intent{ID: "pi_" + o.ID.String()[:8], ClientSecret: "secret_x"}, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, id string) error {
	time.Sleep(g.slow)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, id string) error {
	time.Sleep(g.slow)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundFail {
		return errors.New("refund_failed")
	}
	g.refunded = append(g.refunded, id)
	return nil
}

type recordingMailer struct {
	mu       sync.Mutex
	confirms []string
	statuses []string
}

func (m *recordingMailer) SendOrderConfirmation(_ context.Context, o models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms = append(m.confirms, o.Email)
	return nil
}

func (m *recordingMailer) SendOrderStatus(_ context.Context, o models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, o.Status)
	return nil
}

func (m *recordingMailer) SendWelcome(context.Context, models.User) error { return nil }

type fakeInvoices struct{}

func (fakeInvoices) Render(_ context.Context, o models.Order) ([]byte, error) {
	return []byte("%PDF " + o.Reference()), nil
}

type orderFixture struct {
	svc           *OrderService
	stores        *store.Stores
	cart          *cart.Service
	addresses     *AddressService
	prescriptions *PrescriptionService
	gateway       *fakeGateway
	mailer        *recordingMailer
	otc, rx       models.Product
}

func newOrders(t *testing.T) orderFixture {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stores := memory.New()
	policy := pricing.ShippingPolicy{FreeThreshold: 500, Fee: 40}

	f := orderFixture{
		stores:  stores,
		gateway: &fakeGateway{},
		mailer:  &recordingMailer{},
		otc:     models.Product{ID: gocql.TimeUUID(), Name: "Crocin 650", Price: 30, MRP: 35, Stock: 10, IsActive: true},
		rx:      models.Product{ID: gocql.TimeUUID(), Name: "Amoxicillin 500", Price: 120, Stock: 5, IsActive: true, RequiresPrescription: true},
	}
	require.NoError(t, stores.Products.Create(ctx, f.otc))
	require.NoError(t, stores.Products.Create(ctx, f.rx))

	catalog := NewCatalogService(stores, nil, nil, nil, "")
	f.cart = cart.NewService(rdb, stores.Products, policy, time.Hour)
	f.addresses = NewAddressService(stores.Addresses)
	f.addresses.Clock = tickClock()
	f.prescriptions = NewPrescriptionService(stores.Prescriptions, storage.NewMemory(), "prescriptions", 1<<20, 0)

	f.svc = NewOrderService(OrderDeps{
		Orders:        stores.Orders,
		Inventory:     catalog,
		Cart:          f.cart,
		Addresses:     f.addresses,
		Prescriptions: f.prescriptions,
		Gateway:       f.gateway,
		Mailer:        f.mailer,
		Invoices:      fakeInvoices{},
		Policy:        policy,
		Currency:      "INR",
	})
	f.svc.Clock = tickClock()
	return f
}

func (f orderFixture) withAddress(t *testing.T, userID string) models.Address {
	t.Helper()
	a, err := f.addresses.Create(context.Background(), userID, addr("Pune", false))
	require.NoError(t, err)
	return a
}

func (f orderFixture) processedPrescription(t *testing.T, userID string) models.Prescription {
	t.Helper()
	ctx := context.Background()
	p, err := f.prescriptions.Upload(ctx, userID, upload("image/png", "png"))
	require.NoError(t, err)
	require.NoError(t, f.prescriptions.Process(ctx, p.ID))
	return p
}

func (f orderFixture) stock(t *testing.T, id gocql.UUID) int {
	t.Helper()
	p, err := f.stores.Products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.OrderPending, models.OrderConfirmed))
	assert.True(t, CanTransition(models.OrderAwaitingPayment, models.OrderCancelled))
	assert.True(t, CanTransition(models.OrderConfirmed, models.OrderShipped))
	assert.True(t, CanTransition(models.OrderShipped, models.OrderDelivered))
	assert.False(t, CanTransition(models.OrderShipped, models.OrderCancelled))
	assert.False(t, CanTransition(models.OrderDelivered, models.OrderPending))
	assert.False(t, CanTransition(models.OrderPending, models.OrderDelivered))
}

func TestCheckoutCOD(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")

	_, err := f.cart.Add(ctx, "u1", f.otc.ID, 3)
	require.NoError(t, err)

	res, err := f.svc.Checkout(ctx, "u1", "u1@example.in", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	require.NoError(t, err)
	f.svc.Wait()

	o := res.Order
	assert.Equal(t, models.OrderPending, o.Status)
	assert.Equal(t, 90.0, o.Subtotal)
	assert.Equal(t, 15.0, o.Discount)
	assert.Equal(t, 40.0, o.Shipping)
	assert.Equal(t, 130.0, o.Total)
	assert.Equal(t, "inr", o.Currency)
	assert.Equal(t, "Pune", o.ShippingAddress.City)
	assert.Empty(t, res.ClientSecret)

	assert.Equal(t, 7, f.stock(t, f.otc.ID))
	items, _ := f.cart.Items(ctx, "u1")
	assert.Empty(t, items)
	assert.Equal(t, []string{"u1@example.in"}, f.mailer.confirms)

	saved, err := f.svc.Get(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, saved.Total)
	_, err = f.svc.Get(ctx, "u2", o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckoutPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)

	_, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.cart.Add(ctx, "u1", f.otc.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	assert.ErrorIs(t, err, ErrInvalid, "sans adresse")

	other := f.withAddress(t, "u2")
	f.withAddress(t, "u1")
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD, AddressID: other.ID.String()})
	assert.ErrorIs(t, err, ErrInvalid, "adresse d'un autre utilisateur")

	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: "bitcoin"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCheckoutRepricesAndChecksStock(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")

	_, err := f.cart.Add(ctx, "u1", f.otc.ID, 4)
	require.NoError(t, err)

	p := f.otc
	p.Price = 28
	require.NoError(t, f.stores.Products.Update(ctx, p))
	_, err = f.stores.Products.AdjustStock(ctx, p.ID, -8)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	require.ErrorIs(t, err, ErrConflict)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Items[0].Available)
	assert.Equal(t, 4, stockErr.Items[0].Requested)

	_, err = f.stores.Products.AdjustStock(ctx, p.ID, 8)
	require.NoError(t, err)
	res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	require.NoError(t, err)
	assert.Equal(t, 28.0, res.Order.Items[0].Price)
	assert.Equal(t, 112.0, res.Order.Subtotal)
}

func TestCheckoutRequiresPrescription(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")

	_, err := f.cart.Add(ctx, "u1", f.rx.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	assert.ErrorIs(t, err, ErrInvalid)

	pending, err := f.prescriptions.Upload(ctx, "u1", upload("image/png", "png"))
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD, PrescriptionID: pending.ID.String()})
	assert.ErrorIs(t, err, ErrInvalid)

	foreign := f.processedPrescription(t, "u2")
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD, PrescriptionID: foreign.ID.String()})
	assert.ErrorIs(t, err, ErrInvalid)

	rx := f.processedPrescription(t, "u1")
	res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD, PrescriptionID: rx.ID.String()})
	require.NoError(t, err)
	assert.Empty(t, res.UnmatchedItems)
	require.NotNil(t, res.Order.PrescriptionID)

	linked, err := f.prescriptions.Get(ctx, "u1", rx.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.OrderID)
	assert.Equal(t, res.Order.ID, *linked.OrderID)

	_, err = f.cart.Add(ctx, "u1", f.rx.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD, PrescriptionID: rx.ID.String()})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUnmatchedItems(t *testing.T) {
	ex := &models.PrescriptionExtraction{Medicines: []models.ExtractedMedicine{{Name: "Amoxicillin"}, {Name: "Paracetamol"}}}
	lines := []models.OrderItem{
		{Name: "Amoxicillin 500", RequiresPrescription: true},
		{Name: "Azithral 500", RequiresPrescription: true},
		{Name: "Vicks", RequiresPrescription: false},
	}
	assert.Equal(t, []string{"Azithral 500"}, UnmatchedItems(lines, ex))
	assert.Equal(t, []string{"Amoxicillin 500", "Azithral 500"}, UnmatchedItems(lines, nil))
}

func TestCheckoutCardAndWebhookConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")

	_, err := f.cart.Add(ctx, "u1", f.otc.ID, 2)
	require.NoError(t, err)

	res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCard})
	require.NoError(t, err)
	assert.Equal(t, models.OrderAwaitingPayment, res.Order.Status)
	assert.Equal(t, "secret_x", res.ClientSecret)
	assert.NotEmpty(t, res.Order.PaymentIntentID)

	assert.ErrorIs(t, f.svc.ConfirmPayment(ctx, res.Order.ID, "pi_other"), ErrInvalid)
	require.NoError(t, f.svc.ConfirmPayment(ctx, res.Order.ID, res.Order.PaymentIntentID))
	require.NoError(t, f.svc.ConfirmPayment(ctx, res.Order.ID, res.Order.PaymentIntentID))

	o, err := f.svc.Get(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, o.Status)

	cancelled, err := f.svc.Cancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, []string{o.PaymentIntentID}, f.gateway.refunded)
	assert.Equal(t, 10, f.stock(t, f.otc.ID))
}

func TestCardFailureRestoresStock(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")
	f.gateway.fail = true

	_, err := f.cart.Add(ctx, "u1", f.otc.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCard})
	assert.Error(t, err)
	assert.Equal(t, 10, f.stock(t, f.otc.ID))

	items, _ := f.cart.Items(ctx, "u1")
	assert.Len(t, items, 1)
}

func TestFailedCheckoutReleasesPrescription(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")
	rx := f.processedPrescription(t, "u1")
	f.gateway.fail = true

	_, err := f.cart.Add(ctx, "u1", f.rx.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCard, PrescriptionID: rx.ID.String()})
	require.Error(t, err)

	got, err := f.prescriptions.Get(ctx, "u1", rx.ID)
	require.NoError(t, err)
	assert.Nil(t, got.OrderID)
	assert.Equal(t, 5, f.stock(t, f.rx.ID))

	f.gateway.fail = false
	_, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCard, PrescriptionID: rx.ID.String()})
	require.NoError(t, err)
}

func TestConcurrentCheckoutsOfOneCartCreateOneOrder(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")
	rx := f.processedPrescription(t, "u1")

	_, err := f.cart.Add(ctx, "u1", f.rx.ID, 1)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, "u1", f.otc.ID, 3)
	require.NoError(t, err)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []models.Order
		start   = make(chan struct{})
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD, PrescriptionID: rx.ID.String()})
			if err != nil {
				return
			}
			mu.Lock()
			created = append(created, res.Order)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	f.svc.Wait()

	require.Len(t, created, 1)
	assert.Equal(t, 7, f.stock(t, f.otc.ID))
	assert.Equal(t, 4, f.stock(t, f.rx.ID))

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	linked, err := f.prescriptions.Get(ctx, "u1", rx.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.OrderID)
	assert.Equal(t, created[0].ID, *linked.OrderID)
}

func TestConcurrentCancelsRestockOnce(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")
	f.gateway.slow = 20 * time.Millisecond

	_, err := f.cart.Add(ctx, "u1", f.otc.ID, 3)
	require.NoError(t, err)
	res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCard})
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmPayment(ctx, res.Order.ID, res.Order.PaymentIntentID))
	require.Equal(t, 7, f.stock(t, f.otc.ID))

	const attempts = 5
	var (
		wg        sync.WaitGroup
		cancelled atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.svc.Cancel(ctx, "u1", res.Order.ID); err == nil {
				cancelled.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}()
	}
	close(start)
	wg.Wait()
	f.svc.Wait()

	assert.EqualValues(t, 1, cancelled.Load())
	assert.Equal(t, 10, f.stock(t, f.otc.ID))
	assert.Len(t, f.gateway.refunded, 1)
}

func TestRefundFailureKeepsOrderAndStock(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")

	_, err := f.cart.Add(ctx, "u1", f.otc.ID, 2)
	require.NoError(t, err)
	res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCard})
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmPayment(ctx, res.Order.ID, res.Order.PaymentIntentID))

	f.gateway.refundFail = true
	_, err = f.svc.Cancel(ctx, "u1", res.Order.ID)
	require.Error(t, err)

	o, err := f.svc.Get(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, o.Status)
	assert.Equal(t, 8, f.stock(t, f.otc.ID))

	f.gateway.refundFail = false
	_, err = f.svc.Cancel(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t, f.otc.ID))
}

func TestCancelAndAdminTransitions(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")
	rx := f.processedPrescription(t, "u1")

	_, err := f.cart.Add(ctx, "u1", f.rx.ID, 2)
	require.NoError(t, err)
	res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD, PrescriptionID: rx.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, f.rx.ID))

	_, err = f.svc.UpdateStatus(ctx, res.Order.ID, models.OrderDelivered)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Cancel(ctx, "u2", res.Order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.Cancel(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, f.rx.ID))

	freed, err := f.prescriptions.Get(ctx, "u1", rx.ID)
	require.NoError(t, err)
	assert.Nil(t, freed.OrderID)

	_, err = f.svc.Cancel(ctx, "u1", res.Order.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.cart.Add(ctx, "u1", f.otc.ID, 1)
	require.NoError(t, err)
	res, err = f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	require.NoError(t, err)
	for _, st := range []string{models.OrderConfirmed, models.OrderShipped, models.OrderDelivered} {
		o, err := f.svc.UpdateStatus(ctx, res.Order.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, o.Status)
	}
	_, err = f.svc.Cancel(ctx, "u1", res.Order.ID)
	assert.ErrorIs(t, err, ErrConflict)

	f.svc.Wait()
	assert.Contains(t, f.mailer.statuses, models.OrderDelivered)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInvoiceIsOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newOrders(t)
	f.withAddress(t, "u1")
	_, _ = f.cart.Add(ctx, "u1", f.otc.ID, 1)
	res, err := f.svc.Checkout(ctx, "u1", "", models.CheckoutInput{PaymentMethod: models.PaymentCOD})
	require.NoError(t, err)

	pdf, o, err := f.svc.Invoice(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, o.ID)
	assert.Contains(t, string(pdf), o.Reference())

	_, _, err = f.svc.Invoice(ctx, "u2", res.Order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
