package models

import (
	"time"

	"github.com/gocql/gocql"
)

type Category struct {
	ID          gocql.UUID `json:"id"`
	Name        string     `json:"name" binding:"required"`
	Slug        string     `json:"slug" binding:"required,max=80"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Medicine est une fiche de référence (pas un article vendu).
type Medicine struct {
	ID           gocql.UUID `json:"id"`
	Name         string     `json:"name" binding:"required,max=200"`
	Composition  string     `json:"composition,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Schedule     string     `json:"schedule,omitempty"` // ex: "H", "H1", "OTC"
	CreatedAt    time.Time  `json:"created_at"`
}
