package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	DonationPending   = "pending"
	DonationScheduled = "scheduled"
	DonationCollected = "collected"
	DonationRejected  = "rejected"
)

type DonatedMedicine struct {
	Name       string `json:"name" binding:"required,max=200"`
	Quantity   int    `json:"quantity" binding:"gte=1,lte=1000"`
	ExpiryDate string `json:"expiry_date" binding:"required,futuredate"`
}

type Donation struct {
	ID            gocql.UUID        `json:"id"`
	UserID        string            `json:"user_id"`
	DonorName     string            `json:"donor_name"`
	Phone         string            `json:"phone"`
	PickupAddress string            `json:"pickup_address"`
	City          string            `json:"city"`
	Pincode       string            `json:"pincode"`
	Medicines     []DonatedMedicine `json:"medicines"`
	Notes         string            `json:"notes,omitempty"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type DonationInput struct {
	DonorName     string            `json:"donor_name" binding:"required,max=120"`
	Phone         string            `json:"phone" binding:"required,phone"`
	PickupAddress string            `json:"pickup_address" binding:"required,max=300"`
	City          string            `json:"city" binding:"required,max=100"`
	Pincode       string            `json:"pincode" binding:"required,pincode"`
	Medicines     []DonatedMedicine `json:"medicines" binding:"required,min=1,dive"`
	Notes         string            `json:"notes" binding:"max=1000"`
}
