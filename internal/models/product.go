package models

import (
	"time"

	"github.com/gocql/gocql"
)

type Product struct {
	ID                   gocql.UUID `json:"id" db:"product_id"`
	Name                 string     `json:"name" db:"name"`
	Description          string     `json:"description" db:"description"`
	Composition          string     `json:"composition,omitempty" db:"composition"`
	Manufacturer         string     `json:"manufacturer,omitempty" db:"manufacturer"`
	Price                float64    `json:"price" db:"price"`
	MRP                  float64    `json:"mrp,omitempty" db:"mrp"`
	Stock                int        `json:"stock" db:"stock"`
	CategoryID           gocql.UUID `json:"category_id" db:"category_id"`
	ImageURLs            []string   `json:"image_urls" db:"image_urls"`
	Tags                 []string   `json:"tags" db:"tags"`
	RequiresPrescription bool       `json:"requires_prescription" db:"requires_prescription"`
	IsActive             bool       `json:"is_active" db:"is_active"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// ProductInput est le corps accepté par les routes admin de création/mise à jour.
type ProductInput struct {
	Name                 string   `json:"name" binding:"required,max=200"`
	Description          string   `json:"description" binding:"max=5000"`
	Composition          string   `json:"composition" binding:"max=500"`
	Manufacturer         string   `json:"manufacturer" binding:"max=200"`
	Price                float64  `json:"price" binding:"gt=0"`
	MRP                  float64  `json:"mrp" binding:"gte=0"`
	Stock                int      `json:"stock" binding:"gte=0"`
	CategoryID           string   `json:"category_id" binding:"required,uuid"`
	ImageURLs            []string `json:"image_urls"`
	Tags                 []string `json:"tags"`
	RequiresPrescription bool     `json:"requires_prescription"`
	IsActive             *bool    `json:"is_active"`
}
