package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pharmacie_back_end/internal/models"
)

var policy = ShippingPolicy{FreeThreshold: 500, Fee: 40}

func TestCalculateAddsShippingUnderThreshold(t *testing.T) {
	items := []models.CartItem{
		{Name: "Paracetamol", Price: 25.5, Quantity: 2},
		{Name: "ORS", Price: 19.99, Quantity: 3},
	}
	got := Calculate(items, policy)

	assert.Equal(t, 110.97, got.Subtotal)
	assert.Equal(t, 40.0, got.Shipping)
	assert.Equal(t, 150.97, got.Total)
	assert.Equal(t, 5, got.ItemCount)
}

func TestCalculateFreeShippingAtThreshold(t *testing.T) {
	got := Calculate([]models.CartItem{{Price: 250, Quantity: 2}}, policy)
	assert.Equal(t, 500.0, got.Subtotal)
	assert.Zero(t, got.Shipping)
	assert.Equal(t, 500.0, got.Total)
}

func TestCalculateEmptyCart(t *testing.T) {
	got := Calculate(nil, policy)
	assert.Equal(t, models.Totals{}, got)
}

func TestCalculateDiscountFromMRP(t *testing.T) {
	items := []models.CartItem{
		{Price: 90, MRP: 100, Quantity: 2},
		{Price: 50, MRP: 40, Quantity: 1}, // MRP incohérent: ignoré
	}
	got := Calculate(items, policy)
	assert.Equal(t, 20.0, got.Discount)
	assert.Equal(t, 230.0, got.Subtotal)
}

func TestCalculateAvoidsFloatDrift(t *testing.T) {
	items := []models.CartItem{{Price: 0.1, Quantity: 3}}
	got := Calculate(items, ShippingPolicy{})
	assert.Equal(t, 0.3, got.Subtotal)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(15097), MinorUnits(150.97))
	assert.Equal(t, int64(1), MinorUnits(0.005))
}
