package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/service"
)

type OrderHandler struct {
	orders *service.OrderService
}

func NewOrderHandler(s *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: s}
}

// POST /api/orders/checkout
func (h *OrderHandler) Checkout(c *gin.Context) {
	var in models.CheckoutInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.orders.Checkout(c.Request.Context(), c.GetString("user_id"), c.GetString("email"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /api/orders
func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(orders))
}

// GET /api/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// POST /api/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Cancel(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// GET /api/orders/:id/invoice
func (h *OrderHandler) Invoice(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	pdf, o, err := h.orders.Invoice(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "facture-"+o.Reference()+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// --- Admin ---

// GET /api/admin/orders
func (h *OrderHandler) ListAll(c *gin.Context) {
	orders, err := h.orders.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(orders))
}

// PUT /api/admin/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in models.StatusInput
	if !bindJSON(c, &in) {
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), id, in.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
