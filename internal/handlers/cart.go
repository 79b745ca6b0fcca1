package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/cart"
)

type CartHandler struct {
	carts *cart.Service
	// origine autorisée pour le websocket (FRONTEND_URL), vide = toutes
	allowedOrigin string
	// streams est annulé à l'arrêt du serveur: Shutdown ne ferme pas les connexions détournées.
	streams context.Context
}

func NewCartHandler(s *cart.Service, allowedOrigin string, streams context.Context) *CartHandler {
	if streams == nil {
		streams = context.Background()
	}
	return &CartHandler{carts: s, allowedOrigin: allowedOrigin, streams: streams}
}

type cartItemInput struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"min=0,max=100"`
}

// GET /api/cart
func (h *CartHandler) Get(c *gin.Context) {
	view, err := h.carts.Get(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// POST /api/cart/items {product_id, quantity (défaut 1)}
func (h *CartHandler) Add(c *gin.Context) {
	var in cartItemInput
	if !bindJSON(c, &in) {
		return
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	id, err := gocql.ParseUUID(in.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID invalide"})
		return
	}
	view, err := h.carts.Add(c.Request.Context(), c.GetString("user_id"), id, in.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PUT /api/cart/items/:product_id {quantity} (0 retire la ligne)
func (h *CartHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "product_id")
	if !ok {
		return
	}
	var in struct {
		Quantity *int `json:"quantity" binding:"required"`
	}
	if !bindJSON(c, &in) {
		return
	}
	view, err := h.carts.Update(c.Request.Context(), c.GetString("user_id"), id, *in.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DELETE /api/cart/items/:product_id
func (h *CartHandler) Remove(c *gin.Context) {
	id, ok := paramID(c, "product_id")
	if !ok {
		return
	}
	view, err := h.carts.Remove(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DELETE /api/cart
func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), c.GetString("user_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Panier vidé"})
}
