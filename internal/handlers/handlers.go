// Package handlers expose les services de la pharmacie en HTTP/JSON.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/cart"
	"pharmacie_back_end/internal/payment"
	"pharmacie_back_end/internal/service"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/validation"
)

// respondError traduit une erreur métier en statut HTTP. Les erreurs
// inattendues sont journalisées et jamais renvoyées telles quelles.
func respondError(c *gin.Context, err error) {
	var stock *service.StockError
	var cooldown *service.CooldownError

	switch {
	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, gin.H{"error": "Stock insuffisant", "details": stock.Items})
	case errors.As(err, &cooldown):
		secs := int(cooldown.RetryAfter.Seconds())
		c.Header("Retry-After", fmt.Sprintf("%d", secs))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Trop de tentatives échouées. Compte temporairement bloqué",
			"retry_after": secs,
		})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrNoAddress),
		errors.Is(err, cart.ErrProductNotFound), errors.Is(err, cart.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict), errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInsufficientStock), errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, cart.ErrUnavailable), errors.Is(err, cart.ErrCheckoutInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalid), errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, payment.ErrDisabled):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithFields(log.Fields{
			"user_id": c.GetString("user_id"),
			"route":   c.FullPath(),
		}).Errorf("❌ Erreur interne: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur interne du serveur"})
	}
}

// bindJSON lie le corps et répond 400 avec un message par champ en cas d'échec.
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Données invalides",
			"details": validation.Messages(err),
		})
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (gocql.UUID, bool) {
	id, err := gocql.ParseUUID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID invalide"})
		return gocql.UUID{}, false
	}
	return id, true
}
