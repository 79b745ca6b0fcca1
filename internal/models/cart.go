package models

import "github.com/gocql/gocql"

type CartItem struct {
	ProductID            gocql.UUID `json:"product_id"`
	Name                 string     `json:"name"`
	Price                float64    `json:"price"`
	MRP                  float64    `json:"mrp,omitempty"`
	Quantity             int        `json:"quantity"`
	ImageURL             string     `json:"image_url,omitempty"`
	RequiresPrescription bool       `json:"requires_prescription"`
}

type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	Discount  float64 `json:"discount"`
	Shipping  float64 `json:"shipping"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"item_count"`
}

type Cart struct {
	UserID               string     `json:"user_id"`
	Items                []CartItem `json:"items"`
	Totals               Totals     `json:"totals"`
	RequiresPrescription bool       `json:"requires_prescription"`
}
