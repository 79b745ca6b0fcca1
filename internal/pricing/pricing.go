// Package pricing calcule les totaux d'un panier ou d'une commande.
package pricing

import (
	"github.com/shopspring/decimal"

	"pharmacie_back_end/internal/models"
)

// ShippingPolicy: frais fixes tant que le sous-total reste sous le seuil de gratuité.
type ShippingPolicy struct {
	FreeThreshold float64
	Fee           float64
}

// Calculate renvoie sous-total, économies, frais de port et total, arrondis au centime.
func Calculate(items []models.CartItem, policy ShippingPolicy) models.Totals {
	subtotal := decimal.Zero
	discount := decimal.Zero
	count := 0

	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(it.Quantity))
		price := decimal.NewFromFloat(it.Price)
		subtotal = subtotal.Add(price.Mul(qty))

		if it.MRP > it.Price {
			discount = discount.Add(decimal.NewFromFloat(it.MRP).Sub(price).Mul(qty))
		}
		count += it.Quantity
	}

	subtotal = subtotal.Round(2)
	shipping := decimal.Zero
	threshold := decimal.NewFromFloat(policy.FreeThreshold)
	if subtotal.IsPositive() && subtotal.LessThan(threshold) {
		shipping = decimal.NewFromFloat(policy.Fee).Round(2)
	}

	return models.Totals{
		Subtotal:  subtotal.InexactFloat64(),
		Discount:  discount.Round(2).InexactFloat64(),
		Shipping:  shipping.InexactFloat64(),
		Total:     subtotal.Add(shipping).InexactFloat64(),
		ItemCount: count,
	}
}

// OrderLines convertit des lignes de commande pour le calcul.
func OrderLines(items []models.OrderItem) []models.CartItem {
	out := make([]models.CartItem, 0, len(items))
	for _, it := range items {
		out = append(out, models.CartItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			MRP:       it.MRP,
			Quantity:  it.Quantity,
		})
	}
	return out
}

// MinorUnits convertit un montant en plus petite unité (paise, centimes) pour le PSP.
func MinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
