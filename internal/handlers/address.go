package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/service"
)

type AddressHandler struct {
	addresses *service.AddressService
}

func NewAddressHandler(s *service.AddressService) *AddressHandler {
	return &AddressHandler{addresses: s}
}

// GET /api/addresses
func (h *AddressHandler) List(c *gin.Context) {
	list, err := h.addresses.List(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Address{}
	}
	c.JSON(http.StatusOK, list)
}

// GET /api/addresses/default
func (h *AddressHandler) Default(c *gin.Context) {
	a, err := h.addresses.Default(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// POST /api/addresses
func (h *AddressHandler) Create(c *gin.Context) {
	var in models.AddressInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.addresses.Create(c.Request.Context(), c.GetString("user_id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// PUT /api/addresses/:id
func (h *AddressHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in models.AddressInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.addresses.Update(c.Request.Context(), c.GetString("user_id"), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// DELETE /api/addresses/:id
func (h *AddressHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.addresses.Delete(c.Request.Context(), c.GetString("user_id"), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Adresse supprimée"})
}

// POST /api/addresses/:id/default
func (h *AddressHandler) SetDefault(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	a, err := h.addresses.SetDefault(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
