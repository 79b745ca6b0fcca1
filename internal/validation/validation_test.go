package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/models"
)

func TestIsFutureDate(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	defer func() { now = time.Now }()

	assert.True(t, IsFutureDate("2026-03-11"))
	assert.False(t, IsFutureDate("2026-03-10"))
	assert.False(t, IsFutureDate("2025-12-31"))
	assert.False(t, IsFutureDate("11/03/2026"))
}

func TestAddressInputRules(t *testing.T) {
	in := models.AddressInput{
		FullName: "Asha Rao",
		Phone:    "+91 98765 43210",
		Line1:    "12 MG Road",
		City:     "Bengaluru",
		State:    "KA",
		Pincode:  "560001",
	}
	require.NoError(t, Struct(in))

	in.Phone = "12ab"
	in.Pincode = "5"
	err := Struct(in)
	require.Error(t, err)

	msgs := Messages(err)
	assert.Equal(t, "numéro de téléphone invalide", msgs["Phone"])
	assert.Equal(t, "code postal invalide", msgs["Pincode"])
}

func TestDonationRequiresMedicines(t *testing.T) {
	in := models.DonationInput{
		DonorName:     "Ravi",
		Phone:         "9876543210",
		PickupAddress: "4 Park Street",
		City:          "Kolkata",
		Pincode:       "700016",
	}
	err := Struct(in)
	require.Error(t, err)
	assert.Contains(t, Messages(err), "Medicines")
}
