package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	PrescriptionUploaded   = "uploaded"
	PrescriptionProcessing = "processing"
	PrescriptionProcessed  = "processed"
	PrescriptionVerified   = "verified"
	PrescriptionRejected   = "rejected"
)

type ExtractedMedicine struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
}

type PrescriptionExtraction struct {
	DoctorName string              `json:"doctor_name"`
	IssuedOn   string              `json:"issued_on"`
	Medicines  []ExtractedMedicine `json:"medicines"`
	Confidence float64             `json:"confidence"`
}

type Prescription struct {
	ID          gocql.UUID              `json:"id"`
	UserID      string                  `json:"user_id"`
	FileKey     string                  `json:"-"`
	FileName    string                  `json:"file_name"`
	ContentType string                  `json:"content_type"`
	Size        int64                   `json:"size"`
	PatientName string                  `json:"patient_name,omitempty"`
	Notes       string                  `json:"notes,omitempty"`
	Status      string                  `json:"status"`
	Extraction  *PrescriptionExtraction `json:"extraction,omitempty"`
	OrderID     *gocql.UUID             `json:"order_id,omitempty"`
	ReviewNote  string                  `json:"review_note,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Usable indique si l'ordonnance peut justifier une commande.
func (p Prescription) Usable() bool {
	return p.Status == PrescriptionProcessed || p.Status == PrescriptionVerified
}
