package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/payment"
	"pharmacie_back_end/internal/service"
	"pharmacie_back_end/internal/store"
)

const maxWebhookBytes = 64 << 10

type PaymentHandler struct {
	orders        *service.OrderService
	webhookSecret string
}

func NewPaymentHandler(orders *service.OrderService, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{orders: orders, webhookSecret: webhookSecret}
}

// POST /api/payments/webhook (Stripe)
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Lecture du corps impossible"})
		return
	}

	event, err := payment.ParseWebhook(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Warnf("⚠️ Webhook Stripe rejeté: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook invalide"})
		return
	}

	switch event.Type {
	case payment.EventSucceeded:
		orderID, err := gocql.ParseUUID(event.OrderID)
		if err != nil {
			log.Warnf("⚠️ PaymentIntent %s sans order_id exploitable", event.IntentID)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		if err := h.orders.ConfirmPayment(c.Request.Context(), orderID, event.IntentID); err != nil {
			// Une commande inconnue ne doit pas faire réessayer Stripe indéfiniment.
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, service.ErrInvalid) {
				log.Warnf("⚠️ Paiement %s ignoré: %v", event.IntentID, err)
				c.JSON(http.StatusOK, gin.H{"received": true})
				return
			}
			respondError(c, err)
			return
		}
		log.Printf("💳 Paiement confirmé pour la commande %s", event.OrderID)
	case payment.EventFailed:
		log.WithFields(log.Fields{"order_id": event.OrderID, "intent": event.IntentID}).
			Warn("💳 Paiement échoué, la commande reste en attente")
	default:
		log.Debugf("Webhook Stripe ignoré: %s", event.Type)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
