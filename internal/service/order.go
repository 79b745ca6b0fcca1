package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/payment"
	"pharmacie_back_end/internal/pricing"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/utils"
)

var ErrEmptyCart = errors.New("panier vide")

// Inventory lit le catalogue sans cache et ajuste le stock.
type Inventory interface {
	Product(ctx context.Context, id gocql.UUID) (models.Product, error)
	AdjustStock(ctx context.Context, id gocql.UUID, delta int) (int, error)
}

type CartSource interface {
	// Lock empêche deux validations simultanées du même panier; unlock libère le verrou.
	Lock(ctx context.Context, userID string) (unlock func(), err error)
	Items(ctx context.Context, userID string) ([]models.CartItem, error)
	Clear(ctx context.Context, userID string) error
}

// StockIssue décrit une ligne du panier qui ne peut pas être servie.
type StockIssue struct {
	ProductID gocql.UUID `json:"product_id"`
	Name      string     `json:"name"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
	Reason    string     `json:"reason"`
}

type StockError struct {
	Items []StockIssue
}

func (e *StockError) Error() string {
	names := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		names = append(names, it.Name)
	}
	return "stock insuffisant: " + strings.Join(names, ", ")
}

func (e *StockError) Unwrap() error { return ErrConflict }

type CheckoutResult struct {
	Order          models.Order `json:"order"`
	ClientSecret   string       `json:"client_secret,omitempty"`
	UnmatchedItems []string     `json:"unmatched_items,omitempty"`
}

var orderTransitions = map[string][]string{
	models.OrderAwaitingPayment: {models.OrderConfirmed, models.OrderCancelled},
	models.OrderPending:         {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed:       {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:         {models.OrderDelivered},
}

func CanTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type OrderService struct {
	orders        store.Orders
	inventory     Inventory
	cart          CartSource
	addresses     *AddressService
	prescriptions *PrescriptionService
	gateway       payment.Gateway
	mailer        utils.Mailer
	invoices      utils.InvoiceRenderer
	policy        pricing.ShippingPolicy
	currency      string
	Clock         Clock

	wg sync.WaitGroup
}

type OrderDeps struct {
	Orders        store.Orders
	Inventory     Inventory
	Cart          CartSource
	Addresses     *AddressService
	Prescriptions *PrescriptionService
	Gateway       payment.Gateway // nil: carte refusée
	Mailer        utils.Mailer
	Invoices      utils.InvoiceRenderer
	Policy        pricing.ShippingPolicy
	Currency      string
}

func NewOrderService(d OrderDeps) *OrderService {
	if d.Mailer == nil {
		d.Mailer = utils.LogMailer{}
	}
	if d.Currency == "" {
		d.Currency = "inr"
	}
	return &OrderService{
		orders:        d.Orders,
		inventory:     d.Inventory,
		cart:          d.Cart,
		addresses:     d.Addresses,
		prescriptions: d.Prescriptions,
		gateway:       d.Gateway,
		mailer:        d.Mailer,
		invoices:      d.Invoices,
		policy:        d.Policy,
		currency:      strings.ToLower(d.Currency),
	}
}

// Checkout transforme le panier en commande.
func (s *OrderService) Checkout(ctx context.Context, userID, email string, in models.CheckoutInput) (CheckoutResult, error) {
	if in.PaymentMethod != models.PaymentCOD && in.PaymentMethod != models.PaymentCard {
		return CheckoutResult{}, invalidf("moyen de paiement inconnu: %s", in.PaymentMethod)
	}
	if in.PaymentMethod == models.PaymentCard && s.gateway == nil {
		return CheckoutResult{}, invalidf("%v", payment.ErrDisabled)
	}

	unlock, err := s.cart.Lock(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	defer unlock()

	items, err := s.cart.Items(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(items) == 0 {
		return CheckoutResult{}, ErrEmptyCart
	}

	address, err := s.resolveAddress(ctx, userID, in.AddressID)
	if err != nil {
		return CheckoutResult{}, err
	}

	lines, err := s.reprice(ctx, items)
	if err != nil {
		return CheckoutResult{}, err
	}

	var result CheckoutResult
	var prescriptionID *gocql.UUID
	needsRx := false
	for _, l := range lines {
		if l.RequiresPrescription {
			needsRx = true
			break
		}
	}
	if needsRx && in.PrescriptionID == "" {
		return CheckoutResult{}, invalidf("une ordonnance est requise pour cette commande")
	}
	if in.PrescriptionID != "" {
		id, perr := gocql.ParseUUID(in.PrescriptionID)
		if perr != nil {
			return CheckoutResult{}, invalidf("identifiant d'ordonnance invalide")
		}
		p, err := s.prescriptions.ForOrder(ctx, userID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return CheckoutResult{}, invalidf("ordonnance inconnue")
			}
			return CheckoutResult{}, err
		}
		prescriptionID = &p.ID
		result.UnmatchedItems = UnmatchedItems(lines, p.Extraction)
	}

	totals := pricing.Calculate(pricing.OrderLines(lines), s.policy)
	now := s.Clock.now()
	order := models.Order{
		ID:              gocql.TimeUUID(),
		UserID:          userID,
		Email:           email,
		Items:           lines,
		ShippingAddress: address,
		PrescriptionID:  prescriptionID,
		PaymentMethod:   in.PaymentMethod,
		Status:          models.OrderPending,
		Subtotal:        totals.Subtotal,
		Discount:        totals.Discount,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
		Currency:        s.currency,
		Notes:           strings.TrimSpace(in.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// L'ordonnance est réservée avant le stock: une seule commande peut la consommer.
	if prescriptionID != nil {
		if err := s.prescriptions.Claim(ctx, *prescriptionID, order.ID); err != nil {
			return CheckoutResult{}, err
		}
	}
	abort := func() {
		if prescriptionID != nil {
			s.releasePrescription(ctx, *prescriptionID, order.ID)
		}
	}

	if err := s.reserve(ctx, lines); err != nil {
		abort()
		return CheckoutResult{}, err
	}

	if order.PaymentMethod == models.PaymentCard {
		order.Status = models.OrderAwaitingPayment
		intent, err := s.gateway.CreateIntent(ctx, order)
		if err != nil {
			s.restock(ctx, lines)
			abort()
			return CheckoutResult{}, fmt.Errorf("création du paiement: %w", err)
		}
		order.PaymentIntentID = intent.ID
		result.ClientSecret = intent.ClientSecret
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.restock(ctx, lines)
		abort()
		if order.PaymentIntentID != "" {
			_ = s.gateway.CancelIntent(ctx, order.PaymentIntentID)
		}
		return CheckoutResult{}, err
	}

	if err := s.cart.Clear(ctx, userID); err != nil {
		log.Printf("⚠️ Vidage panier après commande %s: %v", order.ID, err)
	}

	s.notify(func(ctx context.Context) error { return s.mailer.SendOrderConfirmation(ctx, order) })

	log.Printf("🧾 Commande %s créée pour %s (%s, %.2f %s)", order.Reference(), userID, order.PaymentMethod, order.Total, order.Currency)
	result.Order = order
	return result, nil
}

func (s *OrderService) resolveAddress(ctx context.Context, userID, raw string) (models.Address, error) {
	var id *gocql.UUID
	if raw != "" {
		parsed, err := gocql.ParseUUID(raw)
		if err != nil {
			return models.Address{}, invalidf("identifiant d'adresse invalide")
		}
		id = &parsed
	}
	a, err := s.addresses.Resolve(ctx, userID, id)
	switch {
	case errors.Is(err, ErrNoAddress):
		return models.Address{}, invalidf("aucune adresse de livraison")
	case errors.Is(err, store.ErrNotFound):
		return models.Address{}, invalidf("adresse inconnue")
	}
	return a, err
}

// reprice relit chaque produit: prix courant, disponibilité et stock.
func (s *OrderService) reprice(ctx context.Context, items []models.CartItem) ([]models.OrderItem, error) {
	lines := make([]models.OrderItem, 0, len(items))
	var issues []StockIssue

	for _, it := range items {
		p, err := s.inventory.Product(ctx, it.ProductID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsActive) {
			issues = append(issues, StockIssue{ProductID: it.ProductID, Name: it.Name, Requested: it.Quantity, Reason: "indisponible"})
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Stock < it.Quantity {
			issues = append(issues, StockIssue{ProductID: p.ID, Name: p.Name, Requested: it.Quantity, Available: p.Stock, Reason: "stock insuffisant"})
			continue
		}
		lines = append(lines, models.OrderItem{
			ProductID:            p.ID,
			Name:                 p.Name,
			Price:                p.Price,
			MRP:                  p.MRP,
			Quantity:             it.Quantity,
			RequiresPrescription: p.RequiresPrescription,
		})
	}

	if len(issues) > 0 {
		return nil, &StockError{Items: issues}
	}
	return lines, nil
}

// reserve décrémente le stock ligne par ligne et annule tout si une ligne échoue.
func (s *OrderService) reserve(ctx context.Context, lines []models.OrderItem) error {
	for i, l := range lines {
		if _, err := s.inventory.AdjustStock(ctx, l.ProductID, -l.Quantity); err != nil {
			s.restock(ctx, lines[:i])
			if errors.Is(err, store.ErrInsufficientStock) {
				return &StockError{Items: []StockIssue{{ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity, Reason: "stock insuffisant"}}}
			}
			return err
		}
	}
	return nil
}

func (s *OrderService) restock(ctx context.Context, lines []models.OrderItem) {
	for _, l := range lines {
		if _, err := s.inventory.AdjustStock(ctx, l.ProductID, l.Quantity); err != nil {
			log.Printf("⚠️ Remise en stock %s (+%d): %v", l.ProductID, l.Quantity, err)
		}
	}
}

// UnmatchedItems liste les produits sur ordonnance absents de l'extraction.
// Le rapprochement est volontairement large: un nom contient l'autre, ou le premier mot du produit.
func UnmatchedItems(lines []models.OrderItem, ex *models.PrescriptionExtraction) []string {
	var out []string
	for _, l := range lines {
		if !l.RequiresPrescription {
			continue
		}
		if ex == nil || !matchesAny(l.Name, ex.Medicines) {
			out = append(out, l.Name)
		}
	}
	return out
}

func matchesAny(product string, meds []models.ExtractedMedicine) bool {
	name := strings.ToLower(strings.TrimSpace(product))
	first := name
	if f := strings.Fields(name); len(f) > 0 {
		first = f[0]
	}
	for _, m := range meds {
		med := strings.ToLower(strings.TrimSpace(m.Name))
		if med == "" {
			continue
		}
		if strings.Contains(name, med) || strings.Contains(med, first) {
			return true
		}
	}
	return false
}

func (s *OrderService) List(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.orders.ListAll(ctx)
}

func (s *OrderService) Get(ctx context.Context, userID string, id gocql.UUID) (models.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if o.UserID != userID {
		return models.Order{}, store.ErrNotFound
	}
	return o, nil
}

// Cancel côté client: seulement avant expédition.
func (s *OrderService) Cancel(ctx context.Context, userID string, id gocql.UUID) (models.Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return models.Order{}, err
	}
	return s.transition(ctx, o, models.OrderCancelled)
}

// UpdateStatus côté admin.
func (s *OrderService) UpdateStatus(ctx context.Context, id gocql.UUID, status string) (models.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	return s.transition(ctx, o, status)
}

// ConfirmPayment traite le webhook payment_intent.succeeded. Idempotent.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID gocql.UUID, intentID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PaymentIntentID != intentID {
		return invalidf("paiement %s inconnu pour la commande %s", intentID, o.Reference())
	}
	if o.Status != models.OrderAwaitingPayment {
		log.Printf("🔁 Paiement %s déjà traité (statut %s)", intentID, o.Status)
		return nil
	}
	_, err = s.transition(ctx, o, models.OrderConfirmed)
	return err
}

// transition écrit d'abord le nouveau statut de façon conditionnelle: parmi des
// appels concurrents, seul le gagnant touche au paiement, au stock et à l'ordonnance.
func (s *OrderService) transition(ctx context.Context, o models.Order, to string) (models.Order, error) {
	from := o.Status
	if !CanTransition(from, to) {
		return models.Order{}, conflictf("transition %s → %s interdite", from, to)
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, from, to); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.Order{}, conflictf("commande %s modifiée entre-temps", o.Reference())
		}
		return models.Order{}, err
	}

	if to == models.OrderCancelled {
		if err := s.cancelPayment(ctx, o); err != nil {
			// cancelled n'a aucune sortie: personne n'a pu nous devancer sur ce retour arrière.
			if rerr := s.orders.UpdateStatus(ctx, o.ID, to, from); rerr != nil {
				log.Printf("❌ Commande %s annulée sans remboursement: %v", o.Reference(), rerr)
			}
			return models.Order{}, fmt.Errorf("annulation du paiement: %w", err)
		}
		s.restock(ctx, o.Items)
		if o.PrescriptionID != nil {
			s.releasePrescription(ctx, *o.PrescriptionID, o.ID)
		}
	}

	log.Printf("📦 Commande %s : %s → %s", o.Reference(), from, to)
	o.Status = to
	o.UpdatedAt = s.Clock.now()
	s.notify(func(ctx context.Context) error { return s.mailer.SendOrderStatus(ctx, o) })
	return o, nil
}

// cancelPayment annule l'intention encore ouverte, ou rembourse un paiement encaissé.
func (s *OrderService) cancelPayment(ctx context.Context, o models.Order) error {
	if o.PaymentMethod != models.PaymentCard || o.PaymentIntentID == "" || s.gateway == nil {
		return nil
	}
	if o.Status == models.OrderAwaitingPayment {
		return s.gateway.CancelIntent(ctx, o.PaymentIntentID)
	}
	return s.gateway.Refund(ctx, o.PaymentIntentID)
}

func (s *OrderService) releasePrescription(ctx context.Context, id, orderID gocql.UUID) {
	if err := s.prescriptions.Release(ctx, id, orderID); err != nil {
		log.Printf("⚠️ Libération ordonnance %s: %v", id, err)
	}
}

func (s *OrderService) Invoice(ctx context.Context, userID string, id gocql.UUID) ([]byte, models.Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, models.Order{}, err
	}
	if s.invoices == nil {
		return nil, models.Order{}, errors.New("génération de facture non configurée")
	}
	pdf, err := s.invoices.Render(ctx, o)
	if err != nil {
		return nil, models.Order{}, err
	}
	return pdf, o, nil
}

// notify envoie un e-mail hors de la requête; les échecs sont seulement journalisés.
func (s *OrderService) notify(send func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			log.Printf("❌ Erreur envoi e-mail: %v", err)
		}
	}()
}

// Wait attend la fin des envois d'e-mails en cours.
func (s *OrderService) Wait() {
	s.wg.Wait()
}
