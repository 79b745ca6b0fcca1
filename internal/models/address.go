package models

import (
	"time"

	"github.com/gocql/gocql"
)

type Address struct {
	ID        gocql.UUID `json:"id"`
	UserID    string     `json:"user_id"`
	FullName  string     `json:"full_name"`
	Phone     string     `json:"phone"`
	Line1     string     `json:"line1"`
	Line2     string     `json:"line2,omitempty"`
	City      string     `json:"city"`
	State     string     `json:"state"`
	Pincode   string     `json:"pincode"`
	Country   string     `json:"country"`
	Label     string     `json:"label"` // home, work, other
	IsDefault bool       `json:"is_default"`
	CreatedAt time.Time  `json:"created_at"`
}

type AddressInput struct {
	FullName  string `json:"full_name" binding:"required,max=120"`
	Phone     string `json:"phone" binding:"required,phone"`
	Line1     string `json:"line1" binding:"required,max=200"`
	Line2     string `json:"line2" binding:"max=200"`
	City      string `json:"city" binding:"required,max=100"`
	State     string `json:"state" binding:"required,max=100"`
	Pincode   string `json:"pincode" binding:"required,pincode"`
	Country   string `json:"country" binding:"omitempty,len=2"`
	Label     string `json:"label" binding:"omitempty,oneof=home work other"`
	IsDefault bool   `json:"is_default"`
}
