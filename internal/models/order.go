package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	OrderAwaitingPayment = "awaiting_payment"
	OrderPending         = "pending"
	OrderConfirmed       = "confirmed"
	OrderShipped         = "shipped"
	OrderDelivered       = "delivered"
	OrderCancelled       = "cancelled"

	PaymentCOD  = "cod"
	PaymentCard = "card"
)

type OrderItem struct {
	ProductID            gocql.UUID `json:"product_id"`
	Name                 string     `json:"name"`
	Price                float64    `json:"price"`
	MRP                  float64    `json:"mrp,omitempty"`
	Quantity             int        `json:"quantity"`
	RequiresPrescription bool       `json:"requires_prescription"`
}

type Order struct {
	ID              gocql.UUID  `json:"id" db:"order_id"`
	UserID          string      `json:"user_id" db:"user_id"`
	Email           string      `json:"email,omitempty" db:"email"`
	Items           []OrderItem `json:"items" db:"items"`
	ShippingAddress Address     `json:"shipping_address" db:"address"`
	PrescriptionID  *gocql.UUID `json:"prescription_id,omitempty" db:"prescription_id"`
	PaymentMethod   string      `json:"payment_method" db:"payment_method"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	Status          string      `json:"status" db:"status"`
	Subtotal        float64     `json:"subtotal" db:"subtotal"`
	Discount        float64     `json:"discount" db:"discount"`
	Shipping        float64     `json:"shipping" db:"shipping"`
	Total           float64     `json:"total" db:"total"`
	Currency        string      `json:"currency" db:"currency"`
	Notes           string      `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// Reference est l'identifiant court montré au client (mail, QR, facture).
func (o Order) Reference() string {
	s := o.ID.String()
	if len(s) < 8 {
		return "CMD-" + s
	}
	return "CMD-" + s[:8]
}

type CheckoutInput struct {
	AddressID      string `json:"address_id" binding:"omitempty,uuid"`
	PrescriptionID string `json:"prescription_id" binding:"omitempty,uuid"`
	PaymentMethod  string `json:"payment_method" binding:"required,oneof=cod card"`
	Notes          string `json:"notes" binding:"max=500"`
}

type StatusInput struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"max=500"`
}
