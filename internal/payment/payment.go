// Package payment encapsule les paiements carte via Stripe.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/pricing"
)

var ErrDisabled = errors.New("paiement par carte non configuré")

const (
	EventSucceeded = "payment_intent.succeeded"
	EventFailed    = "payment_intent.payment_failed"
)

type Intent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, order models.Order) (Intent, error)
	// CancelIntent annule un paiement non capturé.
	CancelIntent(ctx context.Context, intentID string) error
	Refund(ctx context.Context, intentID string) error
}

type Stripe struct{}

func NewStripe(secretKey string) *Stripe {
	stripe.Key = secretKey
	return &Stripe{}
}

func (s *Stripe) CreateIntent(_ context.Context, order models.Order) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(pricing.MinorUnits(order.Total)),
		Currency: stripe.String(strings.ToLower(order.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"order_id": order.ID.String(),
			"user_id":  order.UserID,
			"email":    order.Email,
		},
	}
	if order.Email != "" {
		params.ReceiptEmail = stripe.String(order.Email)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: %w", err)
	}
	log.Printf("💳 PaymentIntent créé : %s (%.2f %s) pour %s", pi.ID, order.Total, order.Currency, order.Reference())
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) CancelIntent(_ context.Context, intentID string) error {
	_, err := paymentintent.Cancel(intentID, &stripe.PaymentIntentCancelParams{})
	return err
}

func (s *Stripe) Refund(_ context.Context, intentID string) error {
	_, err := refund.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String("requested_by_customer"),
	})
	return err
}

// Event est la partie d'un événement Stripe utile aux commandes.
type Event struct {
	Type     string
	IntentID string
	OrderID  string
}

// ParseWebhook vérifie la signature quand un secret est configuré.
func ParseWebhook(payload []byte, signature, secret string) (Event, error) {
	var event stripe.Event
	if secret == "" {
		log.Println("⚠️ Pas de STRIPE_WEBHOOK_SECRET, mode test")
		if err := json.Unmarshal(payload, &event); err != nil {
			return Event{}, fmt.Errorf("JSON invalide: %w", err)
		}
	} else {
		var err error
		event, err = webhook.ConstructEvent(payload, signature, secret)
		if err != nil {
			return Event{}, fmt.Errorf("signature invalide: %w", err)
		}
	}

	out := Event{Type: string(event.Type)}
	if event.Data == nil || !strings.HasPrefix(out.Type, "payment_intent.") {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Event{}, fmt.Errorf("décodage PaymentIntent: %w", err)
	}
	out.IntentID = pi.ID
	out.OrderID = pi.Metadata["order_id"]
	return out, nil
}
