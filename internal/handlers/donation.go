package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/service"
)

type DonationHandler struct {
	donations *service.DonationService
}

func NewDonationHandler(s *service.DonationService) *DonationHandler {
	return &DonationHandler{donations: s}
}

// POST /api/donations
func (h *DonationHandler) Create(c *gin.Context) {
	var in models.DonationInput
	if !bindJSON(c, &in) {
		return
	}
	d, err := h.donations.Create(c.Request.Context(), c.GetString("user_id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// GET /api/donations
func (h *DonationHandler) List(c *gin.Context) {
	list, err := h.donations.List(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(list))
}

// GET /api/donations/:id
func (h *DonationHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.donations.Get(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/admin/donations
func (h *DonationHandler) ListAll(c *gin.Context) {
	list, err := h.donations.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(list))
}

// PUT /api/admin/donations/:id/status
func (h *DonationHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in models.StatusInput
	if !bindJSON(c, &in) {
		return
	}
	d, err := h.donations.UpdateStatus(c.Request.Context(), id, in.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
