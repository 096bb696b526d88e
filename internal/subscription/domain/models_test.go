package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeName(t *testing.T) {
	cases := map[string]string{
		"Jane Doe":            "Jane D.",
		"  jane   van  der  ": "jane D.",
		"Prince":              "Prince",
		"":                    "Customer",
		"Ömer şahin":          "Ömer Ş.",
	}
	for in, want := range cases {
		assert.Equal(t, want, AnonymizeName(in), in)
	}
}

func TestDisplayName(t *testing.T) {
	country := "Canada"
	n := PurchaseNotification{UserName: "Jane D.", Country: &country}
	assert.Equal(t, "Jane D. from Canada", n.DisplayName())

	blank := " "
	n.Country = &blank
	assert.Equal(t, "Jane D.", n.DisplayName())
}
